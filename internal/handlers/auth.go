package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/authz"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/repository"
)

type AuthHandler struct {
	userRepository repository.UserRepository
	resolver       *authz.Resolver
	logger         zerolog.Logger
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

func NewAuthHandler(users repository.UserRepository, resolver *authz.Resolver, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		userRepository: users,
		resolver:       resolver,
		logger:         logger.With().Str("handler", "auth").Logger(),
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.userRepository.AuthenticateUser(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.Error().Err(err).Msg("failed to authenticate user")
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	token, err := h.resolver.Issue(user)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user.Summary()})
}

// JWTMiddleware resolves the bearer token and stores the identity on the
// request context. Requests without a valid token are rejected with 401.
func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		id, err := h.resolver.ResolveRequest(r)
		if err != nil {
			h.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected credential")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), id)))
	})
}
