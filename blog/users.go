package blog

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"quillpost/models"
	"quillpost/storage"
)

const PostsPerPage = 10

type Registration struct {
	Username string
	Email    string
	Password string
}

// Register creates an active user with role "user".
func (s *Service) Register(ctx context.Context, r Registration) (*models.User, error) {
	db := s.db.WithContext(ctx)

	taken, err := exists(db, "username = ?", r.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateUsername
	}
	taken, err = exists(db, "email = ?", r.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := models.User{
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     true,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&u).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a race with a concurrent registration.
		taken, lookupErr := exists(db, "username = ?", r.Username)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if taken {
			return nil, ErrDuplicateUsername
		}
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func exists(db *gorm.DB, cond string, arg any) (bool, error) {
	var n int64
	if err := db.Model(&models.User{}).Where(cond, arg).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

func (s *Service) User(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type Profile struct {
	User       models.User   `json:"user"`
	Posts      []models.Post `json:"posts"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	TotalPosts int64         `json:"total_posts"`
}

// Profile returns a user with one page of their posts, newest first.
// Pages start at 1; out of range pages are clamped to the first or last page.
func (s *Service) Profile(ctx context.Context, userID uint, page int) (*Profile, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Post{}).Where("author_id = ?", userID).Count(&total).Error; err != nil {
		return nil, err
	}
	totalPages := int((total + PostsPerPage - 1) / PostsPerPage)
	page = clampPage(page, totalPages)

	posts := []models.Post{}
	err = db.Where("author_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(PostsPerPage).Offset((page - 1) * PostsPerPage).
		Preload("Category").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Author = *u
	}
	if err := s.decorate(ctx, posts); err != nil {
		return nil, err
	}

	return &Profile{
		User:       *u,
		Posts:      posts,
		Page:       page,
		TotalPages: totalPages,
		TotalPosts: total,
	}, nil
}

// SetProfilePicture stores a new picture for the actor's own profile.
func (s *Service) SetProfilePicture(ctx context.Context, actor Actor, userID uint, file *multipart.FileHeader) (*models.User, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != u.ID {
		return nil, ErrNotAuthorized
	}
	if file == nil {
		return nil, ErrNoFile
	}
	if !storage.Allowed(file.Filename, storage.ProfilePictureTypes) {
		return nil, storage.ErrUnsupportedImage
	}
	if s.images == nil {
		return nil, ErrUploadsDisabled
	}

	name, err := s.images.Save(ctx, storage.ProfileFolder, file)
	if err != nil {
		return nil, err
	}
	old := ""
	if u.ProfilePicture != nil {
		old = *u.ProfilePicture
	}
	if err := s.db.WithContext(ctx).Model(&models.User{ID: u.ID}).Update("profile_picture", name).Error; err != nil {
		s.removeImage(ctx, name)
		return nil, err
	}
	s.removeImage(ctx, old)
	u.ProfilePicture = &name
	return u, nil
}

func clampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}
