package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quillpost/events"
	"quillpost/models"
	"quillpost/rating"
	"quillpost/search"
	"quillpost/storage"
)

// NewCategory is the category choice that asks for a new category by name.
const NewCategory = "new_category"

// PostInput is the submitted post form. Tags is a comma-separated list;
// Category is a category id or NewCategory, in which case NewCategoryName
// names the category to create.
type PostInput struct {
	Title           string
	Content         string
	Tags            string
	Category        string
	NewCategoryName string
	Image           *multipart.FileHeader
}

type PostDetail struct {
	Post          models.Post      `json:"post"`
	ContentHTML   string           `json:"content_html"`
	Comments      []models.Comment `json:"comments"`
	AverageRating float64          `json:"average_rating"`
	UserRating    *int             `json:"user_rating"`
}

type validPost struct {
	title, content string
	tags           []string
	category       categoryChoice
}

func validatePost(in PostInput) (validPost, error) {
	v := validPost{
		title:   strings.TrimSpace(in.Title),
		content: strings.TrimSpace(in.Content),
		tags:    ParseTags(in.Tags),
	}
	if v.title == "" || v.content == "" {
		return v, ErrMissingFields
	}
	if len(v.tags) == 0 {
		return v, ErrTagsRequired
	}
	c, err := parseCategoryChoice(in.Category, in.NewCategoryName)
	if err != nil {
		return v, err
	}
	v.category = c
	if in.Image != nil && !storage.Allowed(in.Image.Filename, storage.PostImageTypes) {
		return v, storage.ErrUnsupportedImage
	}
	return v, nil
}

func (s *Service) saveImage(ctx context.Context, file *multipart.FileHeader) (string, error) {
	if file == nil {
		return "", nil
	}
	if s.images == nil {
		return "", ErrUploadsDisabled
	}
	return s.images.Save(ctx, "", file)
}

// CreatePost stores a post authored by the actor together with its tags.
func (s *Service) CreatePost(ctx context.Context, actor Actor, in PostInput) (*models.Post, error) {
	v, err := validatePost(in)
	if err != nil {
		return nil, err
	}
	image, err := s.saveImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	post := models.Post{Title: v.title, Content: v.content, AuthorID: actor.UserID}
	if image != "" {
		post.Image = &image
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		categoryID, err := v.category.resolve(tx)
		if err != nil {
			return err
		}
		post.CategoryID = categoryID
		if err := tx.Omit(clause.Associations).Create(&post).Error; err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		return replaceTags(tx, post.ID, v.tags)
	})
	if err != nil {
		s.removeImage(ctx, image)
		return nil, err
	}

	created, err := s.loadPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("post created", "post_id", created.ID, "author_id", actor.UserID)
	s.publish(events.SubjectPostCreated, postEvent(created))
	return created, nil
}

// UpdatePost replaces the title, content, category and tag set of a post.
// Only the author may edit. A new image replaces the old one.
func (s *Service) UpdatePost(ctx context.Context, actor Actor, postID uint, in PostInput) (*models.Post, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actor.UserID {
		return nil, ErrNotAuthorized
	}
	v, err := validatePost(in)
	if err != nil {
		return nil, err
	}
	image, err := s.saveImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	oldImage := ""
	if post.Image != nil {
		oldImage = *post.Image
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		categoryID, err := v.category.resolve(tx)
		if err != nil {
			return err
		}
		changes := map[string]any{
			"title":       v.title,
			"content":     v.content,
			"category_id": categoryID,
		}
		if image != "" {
			changes["image"] = image
		}
		if err := tx.Model(&models.Post{ID: post.ID}).Updates(changes).Error; err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		return replaceTags(tx, post.ID, v.tags)
	})
	if err != nil {
		s.removeImage(ctx, image)
		return nil, err
	}
	if image != "" {
		s.removeImage(ctx, oldImage)
	}

	updated, err := s.loadPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("post updated", "post_id", updated.ID, "author_id", actor.UserID)
	s.publish(events.SubjectPostUpdated, postEvent(updated))
	return updated, nil
}

// DeletePost removes a post with its ratings, comments and tag links.
// The author or an admin may delete.
func (s *Service) DeletePost(ctx context.Context, actor Actor, postID uint) error {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != actor.UserID && !actor.IsAdmin() {
		return ErrNotAuthorized
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dependent := range []any{&models.Rating{}, &models.Comment{}, &models.PostTag{}} {
			if err := tx.Where("post_id = ?", post.ID).Delete(dependent).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Post{}, post.ID).Error
	})
	if err != nil {
		return fmt.Errorf("delete post %d: %w", post.ID, err)
	}

	s.ratings.Forget(ctx, post.ID)
	if post.Image != nil {
		s.removeImage(ctx, *post.Image)
	}
	s.log.Info("post deleted", "post_id", post.ID, "actor_id", actor.UserID)
	s.publish(events.SubjectPostDeleted, events.PostEvent{
		PostID:    post.ID,
		AuthorID:  post.AuthorID,
		Title:     post.Title,
		Timestamp: events.Now(),
	})
	return nil
}

// Post returns a post ready for display. viewer may be nil.
func (s *Service) Post(ctx context.Context, postID uint, viewer *Actor) (*PostDetail, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := s.md.Convert([]byte(post.Content), &html); err != nil {
		return nil, fmt.Errorf("render post %d: %w", post.ID, err)
	}

	comments := []models.Comment{}
	err = s.db.WithContext(ctx).Where("post_id = ?", post.ID).
		Order("created_at ASC").Order("id ASC").
		Preload("Author").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}

	avg, err := s.ratings.Average(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	post.AverageRating = avg

	detail := &PostDetail{
		Post:          *post,
		ContentHTML:   html.String(),
		Comments:      comments,
		AverageRating: avg,
	}
	if viewer != nil {
		score, ok, err := s.ratings.UserRating(ctx, post.ID, viewer.UserID)
		if err != nil {
			return nil, err
		}
		if ok {
			detail.UserRating = &score
		}
	}
	return detail, nil
}

// RatePost records the actor's score for a post and returns the new average.
func (s *Service) RatePost(ctx context.Context, actor Actor, postID uint, raw string) (float64, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	score, err := rating.ParseScore(raw)
	if err != nil {
		return 0, err
	}
	if err := s.ratings.Submit(ctx, post.ID, actor.UserID, score); err != nil {
		return 0, err
	}
	avg, err := s.ratings.Average(ctx, post.ID)
	if err != nil {
		return 0, err
	}
	s.publish(events.SubjectPostRated, events.RatingEvent{
		PostID:    post.ID,
		UserID:    actor.UserID,
		Score:     score,
		Average:   avg,
		Timestamp: events.Now(),
	})
	return avg, nil
}

// Search runs a homepage search and fills tags and averages.
func (s *Service) Search(ctx context.Context, p search.Params) ([]models.Post, error) {
	posts, err := search.Posts(ctx, s.db, p)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	if err := s.decorate(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.WithContext(ctx).Order("name").Find(&categories).Error
	return categories, err
}

// decorate attaches tags and average ratings to posts in place.
func (s *Service) decorate(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if err := loadTags(s.db.WithContext(ctx), posts); err != nil {
		return err
	}
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	avgs, err := s.ratings.Averages(ctx, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].AverageRating = avgs[posts[i].ID]
	}
	return nil
}

func (s *Service) findPost(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).First(&post, postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// loadPost fetches a post with author, category and tags.
func (s *Service) loadPost(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	db := s.db.WithContext(ctx)
	err := db.Preload("Author").Preload("Category").First(&post, postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	posts := []models.Post{post}
	if err := loadTags(db, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func postEvent(p *models.Post) events.PostEvent {
	tags := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = t.Name
	}
	return events.PostEvent{
		PostID:    p.ID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Category:  p.Category.Name,
		Tags:      tags,
		Timestamp: events.Now(),
	}
}
