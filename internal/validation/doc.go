// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package validation wraps go-playground/validator v10 behind a shared,
// lazily built validator so API handlers can check request structs with
// one call and hand the failure straight back as an API error.
//
// Declare constraints as struct tags and pass a pointer to
// ValidateStruct:
//
//	type IngestEventRequest struct {
//	    SourceIdentity  string `json:"source_identity" validate:"required,min=1,max=256"`
//	    DestinationPort int    `json:"destination_port" validate:"min=0,max=65535"`
//	    Timestamp       int64  `json:"timestamp" validate:"omitempty,gte=0"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
//	    return
//	}
//
// A nil return means the struct passed. Otherwise ValidateStruct
// returns *FieldErrors, which implements error: Error() joins the
// per-field messages, Errors() exposes them individually as FieldError
// values, and ToAPIError() produces the VALIDATION_ERROR envelope the
// api package writes. One failing field keeps its message and carries
// field, tag, and offending value in the details; several failing
// fields are listed under a "fields" key instead.
//
// # The severity tag
//
// Besides the built-in tags (required, min, max, gte, oneof, url, ip
// and the rest of the v10 set), the package registers a custom
// "severity" tag that accepts the detection severity levels CRITICAL,
// HIGH, MEDIUM, LOW, and INFO case-insensitively, so query strings like
// ?severity=high validate without normalization in the handler.
//
// # Messages
//
// Raw validator output is translated into messages an API caller can
// act on: "SourceIdentity is required", "DestinationPort must be at
// most 65535", "Severity must be one of: CRITICAL, HIGH, MEDIUM, LOW,
// INFO". String bounds count characters, numeric bounds compare
// magnitude, and tags without a specific translation fall back to
// naming the tag that failed.
//
// The underlying validator caches struct metadata after the first pass
// over each type and is safe for concurrent use from every handler
// goroutine. See internal/api for the handlers that call into this
// package and internal/knock for the severity levels the custom tag
// checks.
package validation
