// Package httpkit holds the small JSON response helpers every kvdoc HTTP
// handler shares: success envelopes, error envelopes, and the mapping from
// storage-facade error kinds to HTTP status codes.
package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/kvdoc/pkg/log"
	"github.com/cuemby/kvdoc/pkg/storage"
)

// ErrorBody is the JSON shape returned for every non-2xx response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a plain {error} envelope with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// WriteStorageError maps err to an HTTP status per the propagation policy:
// KeyNotFound/InvalidColumnFamily become 404, Query/BadInput become 400,
// everything else becomes 500 with the cause logged and returned in details.
func WriteStorageError(w http.ResponseWriter, err error) {
	var se *storage.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case storage.KeyNotFound, storage.InvalidColumnFamily:
			WriteError(w, http.StatusNotFound, se.Error())
			return
		case storage.Query, storage.BadInput:
			WriteError(w, http.StatusBadRequest, se.Error())
			return
		}
	}
	log.Error("storage operation failed: " + err.Error())
	WriteJSON(w, http.StatusInternalServerError, ErrorBody{
		Error:   "internal error",
		Details: err.Error(),
	})
}
