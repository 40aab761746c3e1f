//go:build integration
// +build integration

package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"quillpost/database"
	"quillpost/models"
	"quillpost/search"
)

// TestPostgresDialect runs the month, popularity and tag filters against a
// real PostgreSQL server.
func TestPostgresDialect(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	u := models.User{Username: "alice", Email: "a@example.com", PasswordHash: "x", Role: models.RoleUser, IsActive: true}
	r := models.User{Username: "rater", Email: "r@example.com", PasswordHash: "x", Role: models.RoleUser, IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	require.NoError(t, db.Create(&r).Error)
	c := models.Category{Name: "tech"}
	require.NoError(t, db.Create(&c).Error)
	tag := models.Tag{Name: "devlog"}
	require.NoError(t, db.Create(&tag).Error)

	nov := models.Post{Title: "November", Content: "x", AuthorID: u.ID, CategoryID: c.ID, CreatedAt: time.Date(2024, 11, 3, 12, 0, 0, 0, time.UTC)}
	jan := models.Post{Title: "January", Content: "x", AuthorID: u.ID, CategoryID: c.ID, CreatedAt: time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, db.Create(&nov).Error)
	require.NoError(t, db.Create(&jan).Error)
	require.NoError(t, db.Create(&models.PostTag{PostID: nov.ID, TagID: tag.ID}).Error)
	require.NoError(t, db.Create(&models.Rating{PostID: jan.ID, UserID: r.ID, Score: 5}).Error)

	ids := func(p search.Params) []uint {
		posts, err := search.Posts(ctx, db, p)
		require.NoError(t, err)
		out := []uint{}
		for _, p := range posts {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []uint{nov.ID}, ids(search.Params{Query: "month:November"}))
	assert.Equal(t, []uint{nov.ID}, ids(search.Params{Query: "#devlog"}))
	assert.Equal(t, []uint{jan.ID}, ids(search.Params{Query: "popularity:4"}))
	assert.Equal(t, []uint{jan.ID, nov.ID}, ids(search.Params{SortBy: search.SortPopularity}))
	assert.Equal(t, []uint{jan.ID, nov.ID}, ids(search.Params{Query: "tech"}))
}
