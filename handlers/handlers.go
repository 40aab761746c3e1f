// Package handlers exposes the blog over HTTP as a JSON API.
package handlers

import (
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"quillpost/blog"
	"quillpost/middleware"
)

func init() {
	// Report form field names in validation messages.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	}
}

type Options struct {
	JWTSecret      []byte
	TokenTTL       time.Duration
	MaxUploadBytes int64
	Logger         *slog.Logger

	// ImageURL turns a stored object name into a public address. Optional.
	ImageURL func(objectName string) string

	// AuthLimiter throttles register and login. Optional.
	AuthLimiter *middleware.IPLimiter
}

type Handler struct {
	svc  *blog.Service
	opts Options
	log  *slog.Logger
}

func New(svc *blog.Service, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, opts: opts, log: log}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.search)
	r.GET("/categories", h.categories)
	r.GET("/users/:id", h.profile)
	r.GET("/posts/:id", middleware.OptionalAuth(h.opts.JWTSecret), h.post)

	accounts := r.Group("/")
	if h.opts.AuthLimiter != nil {
		accounts.Use(middleware.RateLimit(h.opts.AuthLimiter))
	}
	accounts.POST("/register", h.register)
	accounts.POST("/login", h.login)

	auth := r.Group("/")
	auth.Use(middleware.Auth(h.opts.JWTSecret))
	{
		auth.POST("/posts", h.limitBody, h.createPost)
		auth.PUT("/posts/:id", h.limitBody, h.updatePost)
		auth.DELETE("/posts/:id", h.deletePost)
		auth.POST("/posts/:id/comments", h.addComment)
		auth.POST("/posts/:id/rating", h.ratePost)
		auth.POST("/users/:id/picture", h.limitBody, h.uploadPicture)
	}
}

// limitBody caps the request body of upload routes.
func (h *Handler) limitBody(c *gin.Context) {
	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	}
	c.Next()
}

func (h *Handler) imageURL(name *string) string {
	if name == nil || h.opts.ImageURL == nil {
		return ""
	}
	return h.opts.ImageURL(*name)
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// actor is only called behind middleware.Auth.
func actor(c *gin.Context) blog.Actor {
	a, _ := middleware.CurrentActor(c)
	return a
}
