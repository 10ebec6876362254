// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package report renders detections and summaries for the terminal.
//
// Two renderers are provided: TextRenderer for humans and
// JSONLRenderer for pipelines (one JSON object per line). Both are
// safe for concurrent use; detections arrive from the engine's
// notification goroutine while the summary is printed from the main
// goroutine on shutdown.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Renderer writes detections as they fire and a summary on shutdown.
type Renderer interface {
	Detection(d knock.Detection) error
	Summary(s knock.Summary) error
}

// PortChain formats an ordered port list as "7000 -> 8000 -> 9000".
func PortChain(ports []int) string {
	if len(ports) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, p := range ports {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}

// TextRenderer writes human-readable detections:
//
//	[HIGH]  SSH port-knock unlock sequence
//	    source: 203.0.113.5
//	    ports:  7000 -> 8000 -> 9000
type TextRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextRenderer returns a renderer writing to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

// Detection writes one detection block.
func (r *TextRenderer) Detection(d knock.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.w, "[%s]  %s\n    source: %s\n    ports:  %s\n",
		d.Severity, d.Description, d.SourceIdentity, PortChain(d.Ports))
	return err
}

// Summary writes the final severity table, all levels in priority
// order.
func (r *TextRenderer) Summary(s knock.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString("\nDetection summary\n")
	fmt.Fprintf(&b, "    total:    %d\n", s.Total)
	for _, sev := range knock.Severities() {
		fmt.Fprintf(&b, "    %-9s %d\n", string(sev)+":", s.BySeverity[sev])
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// JSONLRenderer writes one JSON object per line, detections and
// summary alike. Suitable for piping into jq or a log shipper.
type JSONLRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLRenderer returns a renderer writing to w.
func NewJSONLRenderer(w io.Writer) *JSONLRenderer {
	return &JSONLRenderer{w: w}
}

// Detection writes the detection as a single JSON line.
func (r *JSONLRenderer) Detection(d knock.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.NewEncoder(r.w).Encode(d)
}

// Summary writes the summary as a single JSON line.
func (r *JSONLRenderer) Summary(s knock.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.NewEncoder(r.w).Encode(s)
}
