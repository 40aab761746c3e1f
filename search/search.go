// Package search turns homepage search parameters into a post query.
//
// The free-text query may start with one prefix, checked in this order:
//
//	#tag              posts carrying exactly that tag
//	@name             author username contains name
//	>text             title or content contains text
//	month:November    posts created in that month
//	popularity:4.5    posts whose average rating is at least 4.5
//
// Anything else searches content, title and category name. Malformed month
// and popularity values drop that filter instead of failing the search.
package search

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"quillpost/models"
)

// Params are the homepage request parameters.
type Params struct {
	Query      string   `form:"q"`
	Category   string   `form:"category"`
	Author     string   `form:"author"`
	SortBy     string   `form:"sort_by"`
	Tags       []string `form:"tags"`
	Popularity string   `form:"popularity"`
}

const SortPopularity = "popularity"

type Kind int

const (
	KindNone Kind = iota
	KindTag
	KindAuthor
	KindTitleContent
	KindMonth
	KindPopularity
	KindGeneral
)

// Filter is the parsed form of the free-text query.
type Filter struct {
	Kind      Kind
	Text      string
	Month     time.Month
	Threshold float64
}

// Parse classifies a query string. Only the first matching prefix applies.
func Parse(q string) Filter {
	q = strings.TrimSpace(q)
	switch {
	case q == "":
		return Filter{Kind: KindNone}
	case strings.HasPrefix(q, "#"):
		return Filter{Kind: KindTag, Text: q[1:]}
	case strings.HasPrefix(q, "@"):
		return Filter{Kind: KindAuthor, Text: q[1:]}
	case strings.HasPrefix(q, ">"):
		return Filter{Kind: KindTitleContent, Text: q[1:]}
	case strings.HasPrefix(q, "month:"):
		m, ok := parseMonth(strings.TrimPrefix(q, "month:"))
		if !ok {
			return Filter{Kind: KindNone}
		}
		return Filter{Kind: KindMonth, Month: m}
	case strings.HasPrefix(q, "popularity:"):
		th, ok := parseThreshold(strings.TrimPrefix(q, "popularity:"))
		if !ok {
			return Filter{Kind: KindNone}
		}
		return Filter{Kind: KindPopularity, Threshold: th}
	default:
		return Filter{Kind: KindGeneral, Text: q}
	}
}

// parseMonth accepts a full English month name in any letter case.
func parseMonth(name string) (time.Month, bool) {
	if name == "" {
		return 0, false
	}
	name = strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
	t, err := time.Parse("January", name)
	if err != nil {
		return 0, false
	}
	return t.Month(), true
}

func parseThreshold(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

type query struct {
	tx      *gorm.DB
	dialect string

	author   bool
	category bool
	ratings  bool
	tags     int
}

// Build returns an unexecuted query over posts honouring every parameter.
func Build(db *gorm.DB, p Params) *gorm.DB {
	q := &query{
		tx:      db.Model(&models.Post{}).Select("posts.*"),
		dialect: db.Dialector.Name(),
	}

	q.applyFilter(Parse(p.Query))

	if p.Category != "" {
		q.joinCategory()
		q.tx = q.tx.Where("categories.name = ?", p.Category)
	}
	if p.Author != "" {
		q.joinAuthor()
		q.tx = q.tx.Where("authors.username LIKE ? ESCAPE '!'", contains(p.Author))
	}
	for _, tag := range p.Tags {
		if tag != "" {
			q.requireTag(tag)
		}
	}
	if th, ok := parseThreshold(p.Popularity); ok {
		q.minAverage(th)
	}

	if p.SortBy == SortPopularity {
		q.groupRatings()
		q.tx = q.tx.Order("avg_rating DESC")
	}
	q.tx = q.tx.Order("posts.created_at DESC").Order("posts.id DESC")
	return q.tx
}

// Posts runs the search with authors and categories loaded.
func Posts(ctx context.Context, db *gorm.DB, p Params) ([]models.Post, error) {
	var posts []models.Post
	err := Build(db.WithContext(ctx), p).
		Preload("Author").
		Preload("Category").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return posts, nil
}

func (q *query) applyFilter(f Filter) {
	switch f.Kind {
	case KindTag:
		q.requireTag(f.Text)
	case KindAuthor:
		q.joinAuthor()
		q.tx = q.tx.Where("authors.username LIKE ? ESCAPE '!'", contains(f.Text))
	case KindTitleContent:
		pat := contains(f.Text)
		q.tx = q.tx.Where("(posts.title LIKE ? ESCAPE '!' OR posts.content LIKE ? ESCAPE '!')", pat, pat)
	case KindMonth:
		q.tx = q.tx.Where(monthClause(q.dialect), int(f.Month))
	case KindPopularity:
		q.minAverage(f.Threshold)
	case KindGeneral:
		q.joinCategory()
		pat := contains(f.Text)
		q.tx = q.tx.Where("(posts.content LIKE ? ESCAPE '!' OR posts.title LIKE ? ESCAPE '!' OR categories.name LIKE ? ESCAPE '!')", pat, pat, pat)
	}
}

func (q *query) joinAuthor() {
	if q.author {
		return
	}
	q.tx = q.tx.Joins("JOIN users AS authors ON authors.id = posts.author_id")
	q.author = true
}

func (q *query) joinCategory() {
	if q.category {
		return
	}
	q.tx = q.tx.Joins("JOIN categories ON categories.id = posts.category_id")
	q.category = true
}

// requireTag adds one more aliased join, so repeated calls AND together.
func (q *query) requireTag(name string) {
	q.tags++
	link := fmt.Sprintf("pt%d", q.tags)
	tag := fmt.Sprintf("t%d", q.tags)
	q.tx = q.tx.
		Joins(fmt.Sprintf("JOIN post_tags AS %[1]s ON %[1]s.post_id = posts.id", link)).
		Joins(fmt.Sprintf("JOIN tags AS %[1]s ON %[1]s.id = %[2]s.tag_id", tag, link)).
		Where(tag+".name = ?", name)
}

// groupRatings left-joins ratings so unrated posts survive with average 0.
func (q *query) groupRatings() {
	if q.ratings {
		return
	}
	q.tx = q.tx.
		Joins("LEFT JOIN ratings ON ratings.post_id = posts.id").
		Select("posts.*, COALESCE(AVG(ratings.score), 0) AS avg_rating").
		Group("posts.id")
	q.ratings = true
}

func (q *query) minAverage(threshold float64) {
	q.groupRatings()
	q.tx = q.tx.Having("COALESCE(AVG(ratings.score), 0) >= ?", threshold)
}

func monthClause(dialect string) string {
	switch dialect {
	case "sqlite":
		return "CAST(strftime('%m', posts.created_at) AS INTEGER) = ?"
	case "postgres":
		return "EXTRACT(MONTH FROM posts.created_at) = ?"
	default:
		return "MONTH(posts.created_at) = ?"
	}
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// contains builds a LIKE pattern matching s literally anywhere.
func contains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
