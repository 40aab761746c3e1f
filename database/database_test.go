package database_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"quillpost/database"
	"quillpost/models"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open("oracle", "")
	assert.Error(t, err)
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	// Running it twice is harmless.
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"users", "categories", "tags", "posts", "post_tags", "comments", "ratings"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.False(t, db.Migrator().HasColumn(&models.Post{}, "avg_rating"))
}

func TestUniqueConstraintsAreTranslated(t *testing.T) {
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "u.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	require.NoError(t, db.Create(&models.User{Username: "alice", Email: "a@x.io", PasswordHash: "h", Role: models.RoleUser, IsActive: true}).Error)
	err = db.Create(&models.User{Username: "alice", Email: "b@x.io", PasswordHash: "h", Role: models.RoleUser, IsActive: true}).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestRatingScoreCheck(t *testing.T) {
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	u := models.User{Username: "bob", Email: "b@x.io", PasswordHash: "h", Role: models.RoleUser, IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	c := models.Category{Name: "misc"}
	require.NoError(t, db.Create(&c).Error)
	p := models.Post{Title: "t", Content: "c", AuthorID: u.ID, CategoryID: c.ID}
	require.NoError(t, db.Create(&p).Error)

	err = db.Create(&models.Rating{PostID: p.ID, UserID: u.ID, Score: 9}).Error
	assert.Error(t, err)
}
