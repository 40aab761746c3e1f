package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quillpost/blog"
	"quillpost/middleware"
	"quillpost/search"
)

type postForm struct {
	Title           string `form:"title" binding:"required,max=255"`
	Content         string `form:"content" binding:"required"`
	Tags            string `form:"tags"`
	Category        string `form:"category"`
	NewCategoryName string `form:"new_category"`
}

type commentForm struct {
	Content string `form:"content" json:"content" binding:"required"`
}

type ratingForm struct {
	Rating string `form:"rating" json:"rating"`
}

func (h *Handler) search(c *gin.Context) {
	var params search.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		h.badForm(c, err)
		return
	}
	posts, err := h.svc.Search(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *Handler) categories(c *gin.Context) {
	categories, err := h.svc.Categories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) post(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		h.fail(c, blog.ErrPostNotFound)
		return
	}
	var viewer *blog.Actor
	if a, ok := middleware.CurrentActor(c); ok {
		viewer = &a
	}

	detail, err := h.svc.Post(c.Request.Context(), id, viewer)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"post":      detail,
		"image_url": h.imageURL(detail.Post.Image),
	})
}

// postInput binds the multipart post form. ok is false once a response
// has been written.
func (h *Handler) postInput(c *gin.Context) (blog.PostInput, bool) {
	var form postForm
	if err := c.ShouldBind(&form); err != nil {
		h.badForm(c, err)
		return blog.PostInput{}, false
	}
	in := blog.PostInput{
		Title:           form.Title,
		Content:         form.Content,
		Tags:            form.Tags,
		Category:        form.Category,
		NewCategoryName: form.NewCategoryName,
	}
	if file, err := c.FormFile("image"); err == nil {
		in.Image = file
	}
	return in, true
}

func (h *Handler) createPost(c *gin.Context) {
	in, ok := h.postInput(c)
	if !ok {
		return
	}
	post, err := h.svc.CreatePost(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Your post has been created!", "post": post})
}

func (h *Handler) updatePost(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		h.fail(c, blog.ErrPostNotFound)
		return
	}
	in, ok := h.postInput(c)
	if !ok {
		return
	}
	post, err := h.svc.UpdatePost(c.Request.Context(), actor(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your post has been updated!", "post": post})
}

func (h *Handler) deletePost(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		h.fail(c, blog.ErrPostNotFound)
		return
	}
	if err := h.svc.DeletePost(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your post has been deleted!"})
}

func (h *Handler) addComment(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		h.fail(c, blog.ErrPostNotFound)
		return
	}
	var form commentForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, blog.ErrEmptyComment)
		return
	}
	comment, err := h.svc.AddComment(c.Request.Context(), actor(c), id, form.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Your comment has been added!", "comment": comment})
}

func (h *Handler) ratePost(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		h.fail(c, blog.ErrPostNotFound)
		return
	}
	var form ratingForm
	if err := c.ShouldBind(&form); err != nil {
		h.badForm(c, err)
		return
	}
	avg, err := h.svc.RatePost(c.Request.Context(), actor(c), id, form.Rating)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your rating has been submitted!", "average_rating": avg})
}
