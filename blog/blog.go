// Package blog holds the application operations: accounts, posts with their
// tags and category, comments, ratings and profiles. Every operation that
// attributes or authorizes work takes the acting identity explicitly.
package blog

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"

	"github.com/yuin/goldmark"
	"gorm.io/gorm"

	"quillpost/events"
	"quillpost/models"
	"quillpost/rating"
)

var (
	ErrPostNotFound       = errors.New("post not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingFields      = errors.New("title and content are required")
	ErrCategoryRequired   = errors.New("category is required")
	ErrUnknownCategory    = errors.New("selected category does not exist")
	ErrTagsRequired       = errors.New("at least one tag is required")
	ErrEmptyComment       = errors.New("comment is empty")
	ErrNoFile             = errors.New("no file selected")
	ErrUploadsDisabled    = errors.New("image uploads are not configured")
)

// Actor is the authenticated user a request acts as.
type Actor struct {
	UserID   uint
	Username string
	Role     string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// ImageStore persists uploaded files and returns their object names.
type ImageStore interface {
	Save(ctx context.Context, folder string, file *multipart.FileHeader) (string, error)
	Remove(ctx context.Context, objectName string) error
}

type Service struct {
	db      *gorm.DB
	ratings *rating.Aggregator
	images  ImageStore
	events  events.Publisher
	log     *slog.Logger
	md      goldmark.Markdown
}

// NewService wires the operations together. images and publisher may be nil.
func NewService(db *gorm.DB, ratings *rating.Aggregator, images ImageStore, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:      db,
		ratings: ratings,
		images:  images,
		events:  publisher,
		log:     logger,
		md:      goldmark.New(),
	}
}

func (s *Service) publish(subject string, event any) {
	if err := s.events.Publish(subject, event); err != nil {
		s.log.Warn("event publish failed", "error", err, "subject", subject)
	}
}

// removeImage deletes a stored object, logging instead of failing.
func (s *Service) removeImage(ctx context.Context, name string) {
	if s.images == nil || name == "" {
		return
	}
	if err := s.images.Remove(ctx, name); err != nil {
		s.log.Warn("image removal failed", "error", err, "object", name)
	}
}
