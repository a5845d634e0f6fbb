package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/stanstork/franchise-hub/internal/authz"
	"github.com/stanstork/franchise-hub/internal/notification"
	"github.com/stanstork/franchise-hub/internal/push"
	"github.com/stanstork/franchise-hub/internal/repository"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

var errEmptyBody = errors.New("empty request body")

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes and validates a request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return validate.Struct(dst)
}

// identityFromRequest returns the caller or answers 401.
func identityFromRequest(w http.ResponseWriter, r *http.Request) (authz.Identity, bool) {
	id, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return authz.Identity{}, false
	}
	return id, true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, notification.ErrInvalidArgument),
		errors.Is(err, push.ErrInvalidSubscription):
		return http.StatusBadRequest
	case errors.Is(err, authz.ErrAuthentication),
		errors.Is(err, repository.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error text behind a generic message.
func publicMessage(err error, status int, fallback string) string {
	if status == http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}

func queryInt(r *http.Request, key string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
