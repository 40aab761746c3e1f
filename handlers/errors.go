package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"quillpost/blog"
	"quillpost/rating"
	"quillpost/storage"
)

var errorResponses = []struct {
	err     error
	status  int
	message string
}{
	{blog.ErrDuplicateUsername, http.StatusBadRequest, "Username is already taken. Please choose another one."},
	{blog.ErrDuplicateEmail, http.StatusBadRequest, "Email is already registered. Please use a different email."},
	{blog.ErrInvalidCredentials, http.StatusUnauthorized, "Login unsuccessful. Please check username and password."},
	{blog.ErrPostNotFound, http.StatusNotFound, "Post not found."},
	{blog.ErrUserNotFound, http.StatusNotFound, "User not found."},
	{blog.ErrNotAuthorized, http.StatusForbidden, "You are not authorized to perform this action."},
	{blog.ErrMissingFields, http.StatusBadRequest, "Title and content are required."},
	{blog.ErrCategoryRequired, http.StatusBadRequest, "Category is required."},
	{blog.ErrUnknownCategory, http.StatusBadRequest, "Selected category does not exist."},
	{blog.ErrTagsRequired, http.StatusBadRequest, "At least one tag is required."},
	{blog.ErrEmptyComment, http.StatusBadRequest, "Comment cannot be empty."},
	{blog.ErrNoFile, http.StatusBadRequest, "No file selected."},
	{blog.ErrUploadsDisabled, http.StatusServiceUnavailable, "Image uploads are not available."},
	{storage.ErrUnsupportedImage, http.StatusBadRequest, "Invalid file type."},
	{rating.ErrInvalidScore, http.StatusBadRequest, "Invalid rating value. Ratings must be between 1 and 5."},
}

// fail answers c with the status and message matching err.
func (h *Handler) fail(c *gin.Context, err error) {
	for _, r := range errorResponses {
		if errors.Is(err, r.err) {
			c.JSON(r.status, gin.H{"error": r.message})
			return
		}
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large."})
		return
	}

	_ = c.Error(err)
	h.log.Error("request failed", "error", err, "method", c.Request.Method, "path", c.FullPath())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred."})
}

// badForm answers a binding failure with a readable message.
func (h *Handler) badForm(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large."})
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form."})
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fieldMessage(verrs[0]), "fields": fields})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", fe.Field(), fe.Param())
	case "email":
		return "Please enter a valid email address."
	case "eqfield":
		return "Passwords must match."
	}
	return fmt.Sprintf("%s is invalid.", fe.Field())
}
