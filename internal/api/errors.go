// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/tvrelay/internal/relay"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeNotFound writes a 404 Not Found response
func writeNotFound(w http.ResponseWriter) {
	writeErrorCode(w, http.StatusNotFound, "not found")
}

// statusForOpenError maps relay open errors onto HTTP status codes.
func statusForOpenError(err error) int {
	switch {
	case errors.Is(err, relay.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, relay.ErrSourceUnavailable), errors.Is(err, relay.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, relay.ErrSpawn):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
