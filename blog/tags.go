package blog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"quillpost/models"
)

// ParseTags splits a comma-separated tag list, trimming whitespace and
// dropping empty and repeated names. The first occurrence keeps its place.
func ParseTags(raw string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tags = append(tags, name)
	}
	return tags
}

// replaceTags makes names the exact tag set of a post, creating missing tags.
func replaceTags(tx *gorm.DB, postID uint, names []string) error {
	if err := tx.Where("post_id = ?", postID).Delete(&models.PostTag{}).Error; err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, name := range names {
		var tag models.Tag
		if err := tx.Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return fmt.Errorf("tag %q: %w", name, err)
		}
		if err := tx.Create(&models.PostTag{PostID: postID, TagID: tag.ID}).Error; err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

type tagRow struct {
	PostID uint
	TagID  uint
	Name   string
}

// loadTags fills the Tags field of each post, ordered by name.
func loadTags(db *gorm.DB, posts []models.Post) error {
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	var rows []tagRow
	err := db.Table("post_tags").
		Select("post_tags.post_id, tags.id AS tag_id, tags.name").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("post_tags.post_id IN ?", ids).
		Order("tags.name").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}

	byPost := make(map[uint][]models.Tag, len(posts))
	for _, r := range rows {
		byPost[r.PostID] = append(byPost[r.PostID], models.Tag{ID: r.TagID, Name: r.Name})
	}
	for i := range posts {
		posts[i].Tags = byPost[posts[i].ID]
		if posts[i].Tags == nil {
			posts[i].Tags = []models.Tag{}
		}
	}
	return nil
}

// categoryChoice is either an existing category id or a name to get-or-create.
type categoryChoice struct {
	id      uint
	newName string
}

func parseCategoryChoice(choice, newName string) (categoryChoice, error) {
	choice = strings.TrimSpace(choice)
	switch choice {
	case "":
		return categoryChoice{}, ErrCategoryRequired
	case NewCategory:
		name := strings.TrimSpace(newName)
		if name == "" {
			return categoryChoice{}, ErrCategoryRequired
		}
		return categoryChoice{newName: name}, nil
	}
	id, err := strconv.ParseUint(choice, 10, 64)
	if err != nil || id == 0 {
		return categoryChoice{}, ErrUnknownCategory
	}
	return categoryChoice{id: uint(id)}, nil
}

func (c categoryChoice) resolve(tx *gorm.DB) (uint, error) {
	if c.newName != "" {
		var cat models.Category
		if err := tx.Where(models.Category{Name: c.newName}).FirstOrCreate(&cat).Error; err != nil {
			return 0, fmt.Errorf("category %q: %w", c.newName, err)
		}
		return cat.ID, nil
	}
	var cat models.Category
	err := tx.First(&cat, c.id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUnknownCategory
	}
	if err != nil {
		return 0, err
	}
	return cat.ID, nil
}
