package blog

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"quillpost/models"
)

// AddComment attaches a comment by the actor to a post.
func (s *Service) AddComment(ctx context.Context, actor Actor, postID uint, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyComment
	}
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	c := models.Comment{Content: content, PostID: post.ID, AuthorID: actor.UserID}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&c).Error; err != nil {
		return nil, err
	}
	c.Author = models.User{ID: actor.UserID, Username: actor.Username, Role: actor.Role}
	return &c, nil
}
