package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"quillpost/blog"
	"quillpost/middleware"
	"quillpost/models"
)

type registerForm struct {
	Username        string `form:"username" json:"username" binding:"required,max=50"`
	Email           string `form:"email" json:"email" binding:"required,email"`
	Password        string `form:"password" json:"password" binding:"required,min=8"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password" binding:"required,eqfield=Password"`
}

// account is a user as seen by that user, the only view that carries the email.
type account struct {
	*models.User
	Email string `json:"email"`
}

func accountOf(u *models.User) account {
	return account{User: u, Email: u.Email}
}

type loginForm struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		h.badForm(c, err)
		return
	}

	u, err := h.svc.Register(c.Request.Context(), blog.Registration{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Your account has been created! You are now able to log in.",
		"user":    accountOf(u),
	})
}

func (h *Handler) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		h.badForm(c, err)
		return
	}

	u, err := h.svc.Authenticate(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	token, err := middleware.IssueToken(h.opts.JWTSecret, blog.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}, h.opts.TokenTTL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful.",
		"token":   token,
		"user":    accountOf(u),
	})
}

func (h *Handler) profile(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		h.fail(c, blog.ErrUserNotFound)
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}

	prof, err := h.svc.Profile(c.Request.Context(), id, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":     prof,
		"picture_url": h.imageURL(prof.User.ProfilePicture),
	})
}

func (h *Handler) uploadPicture(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		h.fail(c, blog.ErrUserNotFound)
		return
	}
	file, err := c.FormFile("picture")
	if err != nil && err != http.ErrMissingFile {
		h.badForm(c, err)
		return
	}

	u, err := h.svc.SetProfilePicture(c.Request.Context(), actor(c), id, file)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Your profile picture has been updated!",
		"user":        u,
		"picture_url": h.imageURL(u.ProfilePicture),
	})
}
