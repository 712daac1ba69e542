// Package httpx holds the small response helpers shared by the HTTP
// handlers.
package httpx

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"libman/internal/fault"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError responds with the status and body derived from the error's
// fault kind and code, so callers can tell the individual refusals apart.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(fault.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"kind":    fault.KindOf(err).String(),
			"code":    fault.CodeOf(err),
			"message": err.Error(),
		},
	})
}
