// Package rating aggregates 1..5 post ratings and records one score per
// (post, user) pair.
package rating

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quillpost/models"
)

const (
	MinScore = 1
	MaxScore = 5
)

var ErrInvalidScore = errors.New("rating must be an integer between 1 and 5")

// Cache holds computed averages. Implementations must tolerate concurrent use.
//
// Every Forget advances the post's generation. SetAverage stores a value only
// while the generation still equals the one read before the average was
// computed, so a recompute that raced with a write is dropped.
type Cache interface {
	Average(ctx context.Context, postID uint) (float64, bool, error)
	Generation(ctx context.Context, postID uint) (int64, error)
	SetAverage(ctx context.Context, postID uint, avg float64, gen int64) error
	Forget(ctx context.Context, postID uint) error
}

type Aggregator struct {
	db    *gorm.DB
	cache Cache
	log   *slog.Logger
}

// New builds an Aggregator. cache may be nil.
func New(db *gorm.DB, cache Cache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{db: db, cache: cache, log: logger}
}

// ParseScore accepts a plain decimal integer in [1,5].
func ParseScore(raw string) (int, error) {
	if raw == "" {
		return 0, ErrInvalidScore
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, ErrInvalidScore
		}
	}
	score, err := strconv.Atoi(raw)
	if err != nil || !Valid(score) {
		return 0, ErrInvalidScore
	}
	return score, nil
}

func Valid(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// Average returns the mean score of a post, or 0 when it has no ratings.
func (a *Aggregator) Average(ctx context.Context, postID uint) (float64, error) {
	cacheable := false
	var gen int64
	if a.cache != nil {
		avg, ok, err := a.cache.Average(ctx, postID)
		if err != nil {
			a.log.Warn("rating cache read failed", "error", err, "post_id", postID)
		} else if ok {
			return avg, nil
		}
		if gen, err = a.cache.Generation(ctx, postID); err != nil {
			a.log.Warn("rating cache read failed", "error", err, "post_id", postID)
		} else {
			cacheable = true
		}
	}

	var avg float64
	err := a.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("COALESCE(AVG(score), 0)").
		Where("post_id = ?", postID).
		Scan(&avg).Error
	if err != nil {
		return 0, err
	}

	if cacheable {
		if err := a.cache.SetAverage(ctx, postID, avg, gen); err != nil {
			a.log.Warn("rating cache write failed", "error", err, "post_id", postID)
		}
	}
	return avg, nil
}

// Averages returns the mean score for each post id. Unrated posts map to 0.
func (a *Aggregator) Averages(ctx context.Context, postIDs []uint) (map[uint]float64, error) {
	out := make(map[uint]float64, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		PostID uint
		Avg    float64
	}
	err := a.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("post_id, AVG(score) AS avg").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, id := range postIDs {
		out[id] = 0
	}
	for _, r := range rows {
		out[r.PostID] = r.Avg
	}
	return out, nil
}

// UserRating reports the score a user gave a post, if any.
func (a *Aggregator) UserRating(ctx context.Context, postID, userID uint) (int, bool, error) {
	var r models.Rating
	err := a.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return r.Score, true, nil
}

// Submit stores the user's score for a post, replacing any earlier score.
func (a *Aggregator) Submit(ctx context.Context, postID, userID uint, score int) error {
	if !Valid(score) {
		return ErrInvalidScore
	}
	r := models.Rating{PostID: postID, UserID: userID, Score: score}
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
		}).
		Create(&r).Error
	if err != nil {
		return err
	}
	a.Forget(ctx, postID)
	return nil
}

// Forget drops any cached state for a post.
func (a *Aggregator) Forget(ctx context.Context, postID uint) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Forget(ctx, postID); err != nil {
		a.log.Warn("rating cache invalidation failed", "error", err, "post_id", postID)
	}
}
