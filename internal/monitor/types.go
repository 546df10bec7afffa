// Package monitor defines the core types shared by the EMA monitor subsystems.
package monitor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownStatus is returned when a persisted status token is not recognized.
var ErrUnknownStatus = errors.New("unknown status token")

// Status is the last known match state of a monitor.
type Status string

// Status tokens persisted between runs.
const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
)

// ParseStatus converts a persisted token into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.TrimSpace(raw)) {
	case StatusFound:
		return StatusFound, nil
	case StatusNotFound:
		return StatusNotFound, nil
	default:
		return StatusNotFound, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// Confidence labels how strongly an item matched the classifier keyword sets.
type Confidence string

// Confidence values assigned by the classifiers.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ContentItem is one candidate extracted from a fetched page.
type ContentItem struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	URL             string     `json:"url,omitempty"`
	Source          string     `json:"source"`
	Description     string     `json:"description,omitempty"`
	Date            string     `json:"date,omitempty"`
	RawText         string     `json:"raw_text"`
	Strategy        string     `json:"strategy"`
	MatchedKeywords []string   `json:"matched_keywords,omitempty"`
	TargetKeywords  []string   `json:"target_keywords,omitempty"`
	EventKeywords   []string   `json:"event_keywords,omitempty"`
	Confidence      Confidence `json:"confidence,omitempty"`
	Match           bool       `json:"match"`
}

// Link returns the item URL, falling back to the page it was found on.
func (c ContentItem) Link() string {
	if c.URL != "" {
		return c.URL
	}
	return c.Source
}

// RunState is the record persisted between invocations.
type RunState struct {
	LastStatus     Status    `json:"last_status"`
	ExecutionCount int       `json:"execution_count"`
	LastReportDate time.Time `json:"last_report_date,omitempty"`
	LastItemID     string    `json:"last_item_id,omitempty"`
}

// DefaultRunState is used when nothing has been persisted yet.
func DefaultRunState() RunState {
	return RunState{LastStatus: StatusNotFound}
}

// HasReportDate reports whether a periodic report date has been recorded.
func (s RunState) HasReportDate() bool {
	return !s.LastReportDate.IsZero()
}

// EventKind enumerates the notification categories.
type EventKind string

// Notification kinds, in no particular priority order.
const (
	EventDiscovery              EventKind = "discovery"
	EventStatusChangeToFound    EventKind = "status_change_found"
	EventStatusChangeToNotFound EventKind = "status_change_not_found"
	EventPeriodicReport         EventKind = "periodic_report"
	EventError                  EventKind = "error"
	EventConnectionTest         EventKind = "connection_test"
)

// Event describes a notification to send for the current run.
type Event struct {
	Kind           EventKind
	Items          []ContentItem
	Status         Status
	ExecutionCount int
	RunID          string
	Err            error
	OccurredAt     time.Time
}
