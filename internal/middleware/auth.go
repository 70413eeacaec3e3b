package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"travel/internal/domain"
)

const userKey = "auth_user"

// Claims are the bearer token claims identifying a traveller.
type Claims struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	jwt.RegisteredClaims
}

// User converts the claims into the requester identity.
func (c *Claims) User() domain.User {
	return domain.User{
		ID:        c.Subject,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// Auth rejects requests without a valid HS256 bearer token.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		claims, err := parseBearer(c.GetHeader("Authorization"), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "authentication required",
				"request_id": c.GetString(RequestIDKey),
			})
			return
		}

		c.Set(userKey, claims)
		c.Next()
	}
}

// CurrentUser returns the claims stored by Auth.
func CurrentUser(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok && claims.Subject != ""
}

func parseBearer(header string, key []byte) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errors.New("missing bearer token")
	}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// SignToken issues a token for the given user. Used by tests and local tooling.
func SignToken(secret string, user domain.User, registered jwt.RegisteredClaims) (string, error) {
	registered.Subject = user.ID
	claims := Claims{
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		RegisteredClaims: registered,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
