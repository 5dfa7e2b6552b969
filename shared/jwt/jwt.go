package jwt

import (
	"fmt"
	"net/http"
	"time"

	"github.com/blogmedia/blogmedia/shared/domain"
	internal_errors "github.com/blogmedia/blogmedia/shared/errors"
	"github.com/blogmedia/blogmedia/shared/logger"
	"github.com/golang-jwt/jwt/v5"
)

type JwtService interface {
	NewToken(user domain.User) (string, error)
	DecodeToken(jwtStr string) (*domain.User, error)
}

type Jwt struct {
	secretKey []byte
	ttl       time.Duration
}

func New(secretKey string, ttl time.Duration) *Jwt {
	return &Jwt{secretKey: []byte(secretKey), ttl: ttl}
}

type claims struct {
	UserId domain.UserId `json:"uid"`
	Email  string        `json:"email"`
	Admin  bool          `json:"admin"`
	jwt.RegisteredClaims
}

func (j *Jwt) NewToken(user domain.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserId: user.Id,
		Email:  user.Email,
		Admin:  user.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	})

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("can't create token: %w", err)
	}
	return tokenString, nil
}

// DecodeToken verifies signature and expiry and returns the token's user.
func (j *Jwt) DecodeToken(jwtStr string) (*domain.User, error) {
	var c claims
	token, err := jwt.ParseWithClaims(jwtStr, &c, func(token *jwt.Token) (any, error) {
		return j.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		logger.Log.Debug("rejected token", "error", err)
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid token signature", StatusCode: http.StatusUnauthorized}
	}
	if !token.Valid {
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid access token", StatusCode: http.StatusUnauthorized}
	}

	return &domain.User{Id: c.UserId, Email: c.Email, Admin: c.Admin}, nil
}
