package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortlinks/internal/auth"
)

type contextKey string

// UserIDKey is the context key used to store authenticated user ID.
const UserIDKey contextKey = "userID"

// AuthCookieName is the cookie carrying the signed identity token.
const AuthCookieName = "auth_token"

// AuthMiddleware manages user authentication using JWT cookies.
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

// NewAuthMiddleware creates an AuthMiddleware with the provided JWT service.
func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// AuthenticateUser ensures a user is present, issuing a token and cookie if needed.
func (a *AuthMiddleware) AuthenticateUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID string

		if cookie, err := r.Cookie(AuthCookieName); err == nil {
			claims, err := a.jwtService.ValidateToken(cookie.Value)
			if err == nil {
				userID = claims.UserID
			} else {
				log.Debug().Err(err).Msg("Invalid token, creating new user")
			}
		}

		if userID == "" {
			newUserID := a.jwtService.GenerateUserID()

			token, err := a.jwtService.GenerateToken(newUserID)
			if err != nil {
				log.Error().Err(err).Msg("Failed to generate token")
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     AuthCookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int(a.jwtService.TTL().Seconds()),
			})

			userID = newUserID
			log.Debug().Str("userID", userID).Msg("Created new user")
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// RequireAuth enforces that a valid auth cookie is present.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AuthCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := a.jwtService.ValidateToken(cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
	})
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext extracts the authenticated user ID from context.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
