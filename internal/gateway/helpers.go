package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/atelierhq/atelier/internal/canvas"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"detail": message})
}

// storeError maps canvas sentinel errors onto HTTP statuses. NotFound and
// InvalidRequest reach the caller; anything else is a server fault.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, canvas.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, canvas.ErrInvalidRequest):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// splitCanvasPath parses "/api/canvas/{id}[/{section}[/{item}]]" and returns
// the trailing segments. Empty strings mark absent segments.
func splitCanvasPath(path string) (id, section, item string, ok bool) {
	rest := strings.TrimPrefix(path, "/api/canvas/")
	if rest == path || rest == "" {
		return "", "", "", false
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch len(parts) {
	case 1:
		return parts[0], "", "", parts[0] != ""
	case 2:
		return parts[0], parts[1], "", parts[0] != "" && parts[1] != ""
	case 3:
		return parts[0], parts[1], parts[2], parts[0] != "" && parts[1] != "" && parts[2] != ""
	default:
		return "", "", "", false
	}
}
