// Package domain holds the release and status records and the classified errors.
package domain

import (
	"errors"
	"time"

	"metasearch/packages/category"
)

// Release is the canonical record returned across the system boundary.
type Release struct {
	Title       string        `json:"title"`
	Link        string        `json:"link"`
	Details     string        `json:"details,omitempty"`
	Categories  []category.ID `json:"categories"`
	Size        int64         `json:"size"`
	Seeders     *int          `json:"seeders,omitempty"`
	Leechers    *int          `json:"leechers,omitempty"`
	PublishDate time.Time     `json:"publishDate"`
	InfoHash    string        `json:"infoHash,omitempty"`
	Indexer     string        `json:"indexer"`
}

type StatusCode string

const (
	StatusOK             StatusCode = "ok"
	StatusAuthError      StatusCode = "auth-error"
	StatusTransportError StatusCode = "transport-error"
	StatusParseError     StatusCode = "parse-error"
	StatusTimedOut       StatusCode = "timed-out"
	StatusNotConfigured  StatusCode = "not-configured"
	StatusUnsupported    StatusCode = "unsupported"
)

// Status is the outcome of one indexer within an aggregate search.
type Status struct {
	Indexer  string        `json:"indexer"`
	Code     StatusCode    `json:"status"`
	Message  string        `json:"message,omitempty"`
	Results  int           `json:"results"`
	Dropped  int           `json:"dropped,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// StatusFromError classifies an indexer failure.
func StatusFromError(err error) StatusCode {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrAuth):
		return StatusAuthError
	case errors.Is(err, ErrParse), errors.Is(err, ErrExtraction), errors.Is(err, ErrDefinition):
		return StatusParseError
	default:
		return StatusTransportError
	}
}
