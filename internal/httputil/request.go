package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"archive/internal/domain"

	"github.com/google/uuid"
)

// maxBodyBytes bounds request bodies. Tree payloads are the largest.
const maxBodyBytes = 10 << 20

// ParseJSON decodes the request body into dest, rejecting unknown fields.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", domain.ErrValidation, err)
	}
	return nil
}

// PathInt64 parses a numeric path parameter
func PathInt64(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", domain.ErrValidation, name, raw)
	}
	return id, nil
}

// PathUUID parses a UUID path parameter
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID, got %q", domain.ErrValidation, name, raw)
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter, falling back to def
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", domain.ErrValidation, name, raw)
	}
	return v, nil
}
