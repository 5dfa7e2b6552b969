package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/blogmedia/blogmedia/shared/domain"
	jwt_internal "github.com/blogmedia/blogmedia/shared/jwt"
	"github.com/blogmedia/blogmedia/shared/utils"
)

// Key to store the user claims in the request context
type key int

const UserClaimsKey key = 0

// Auth verifies bearer tokens issued by the blog's identity provider.
type Auth struct {
	jwtService jwt_internal.JwtService
}

func NewAuth(jwtService jwt_internal.JwtService) *Auth {
	return &Auth{jwtService: jwtService}
}

// NeedAuth lets any authenticated author through.
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return a.auth(false)
}

// AdminOnly guards operational endpoints such as manual sweeps.
func (a *Auth) AdminOnly() func(http.Handler) http.Handler {
	return a.auth(true)
}

func (a *Auth) auth(adminOnly bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || strings.TrimSpace(tokenString) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="blog-media"`)
				http.Error(w, "Please sign-in", http.StatusUnauthorized)
				return
			}

			user, err := a.jwtService.DecodeToken(strings.TrimSpace(tokenString))
			if err != nil {
				utils.WriteErrorAndStatusCode(w, err)
				return
			}

			if adminOnly && !user.Admin {
				http.Error(w, "Access denied. Only for admin", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext returns nil outside authenticated routes.
func GetUserFromContext(r *http.Request) *domain.User {
	user, ok := r.Context().Value(UserClaimsKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}
