// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package api

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/validation"
)

// escapeLogValue escapes control characters so attacker-supplied
// strings cannot forge log entries.
func escapeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x20 && r != 0x7F {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "\\x%02x", r)
	}
	return b.String()
}

// respondJSON writes the envelope with content type and a weak ETag.
func respondJSON(w http.ResponseWriter, status int, resp *APIResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("API response marshal failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("ETag", etagFor(body))
	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		logging.Error().Err(err).Msg("API response write failed")
	}
}

// etagFor derives a weak ETag from the response body.
func etagFor(body []byte) string {
	h := fnv.New32a()
	h.Write(body)
	return strconv.FormatUint(uint64(h.Sum32()), 16)
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, status int, code, msg string, err error) {
	if err != nil {
		logging.Error().
			Str("code", escapeLogValue(code)).
			Str("error", escapeLogValue(err.Error())).
			Msg("API request failed")
	}

	respondJSON(w, status, &APIResponse{
		Status: "error",
		Error:  &APIError{Code: code, Message: msg},
		Meta:   Meta{Timestamp: time.Now()},
	})
}

// respondSuccess sends a success envelope around data.
func respondSuccess(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, &APIResponse{
		Status: "success",
		Data:   data,
		Meta:   Meta{Timestamp: time.Now()},
	})
}

// validateRequest runs struct validation and converts the failure into
// the API error shape. Nil means the request passed.
func validateRequest(v any) *APIError {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return nil
	}

	converted := verr.ToAPIError()
	return &APIError{
		Code:    converted.Code,
		Message: converted.Message,
		Details: converted.Details,
	}
}

// getIntParam reads an integer query parameter, falling back when the
// parameter is absent or malformed.
func getIntParam(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
