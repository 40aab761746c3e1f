package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"quillpost/blog"
)

const actorKey = "actor"

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the user that expires after ttl.
func IssueToken(secret []byte, actor blog.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   actor.UserID,
		Username: actor.Username,
		Role:     actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

var errNoToken = errors.New("missing token")

func parseToken(secret []byte, header string) (*blog.Actor, error) {
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenString == "" {
		return nil, errNoToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return &blog.Actor{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
}

// Auth rejects requests without a valid bearer token.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := parseToken(secret, c.GetHeader("Authorization"))
		if errors.Is(err, errNoToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please log in to access this page."})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token."})
			return
		}

		c.Set(actorKey, *actor)
		c.Next()
	}
}

// OptionalAuth attaches the actor when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, err := parseToken(secret, c.GetHeader("Authorization")); err == nil {
			c.Set(actorKey, *actor)
		}
		c.Next()
	}
}

// CurrentActor returns the actor set by Auth or OptionalAuth.
func CurrentActor(c *gin.Context) (blog.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return blog.Actor{}, false
	}
	actor, ok := v.(blog.Actor)
	return actor, ok
}
