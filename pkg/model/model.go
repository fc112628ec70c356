// Package model defines the core data types shared across burnboard:
// analysis jobs, reference-data entities, and the daily burnout time series.
package model

import (
	"time"
)

// JobStatus is the lifecycle state reported by the backend for one analysis run.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one the backend is allowed to emit.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ProgressDetail carries optional sub-stage counters ("N of M users fetched").
type ProgressDetail struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Job is one server-side analysis run. ID is the backend's internal
// identifier; UUID is the stable public identifier used in shareable
// references. Both resolve to the same job.
type Job struct {
	ID     string    `json:"id"`
	UUID   string    `json:"uuid,omitempty"`
	Status JobStatus `json:"status"`

	// Stage is a free-form label for the phase of backend work in progress
	// (e.g. "fetching_github"). Only meaningful while Status is running.
	Stage string `json:"stage,omitempty"`

	// Progress is the backend-reported percentage in [0,100]. Nil when the
	// backend provides no numeric signal. May regress between polls; the
	// display layer clamps it.
	Progress *float64 `json:"progress,omitempty"`

	// Detail carries sub-stage counters when the backend exposes them.
	Detail *ProgressDetail `json:"progress_detail,omitempty"`

	// Result is present only when Status is completed, or attached to a
	// failed job as a partial result.
	Result *Result `json:"result,omitempty"`

	// Error is present only when Status is failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ShareRef returns the identifier to embed in shareable references,
// preferring the stable public UUID over the internal id.
func (j Job) ShareRef() string {
	if j.UUID != "" {
		return j.UUID
	}
	return j.ID
}

// Result is the output of a completed (or partially completed) analysis.
type Result struct {
	// Partial is true when the run failed to produce computed metrics but
	// retained the raw collected inputs. This is a valid success variant.
	Partial bool `json:"partial,omitempty"`

	// OverallScore is the aggregate team-health score in [0,100]; higher is
	// better.
	OverallScore float64 `json:"overall_score"`

	MembersAtRisk int `json:"members_at_risk"`
	TotalMembers  int `json:"total_members"`

	// Summary is an optional AI-generated markdown narrative.
	Summary string `json:"summary,omitempty"`

	// Series is the daily time series the run covered.
	Series []TimeSeriesPoint `json:"series,omitempty"`
}

// TimeSeriesPoint is one day of aggregate burnout data, ordered by date
// with no gaps assumed.
type TimeSeriesPoint struct {
	Date          time.Time `json:"date"`
	Score         float64   `json:"score"`
	IncidentCount int       `json:"incident_count"`
	MembersAtRisk int       `json:"members_at_risk"`
	TotalMembers  int       `json:"total_members"`
}

// Platform identifies a connected data source.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformSlack  Platform = "slack"
)

// Integration is one connected integration (e.g. a GitHub organization).
type Integration struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Platform Platform `json:"platform"`
}

// PlatformStatus is the connection state of one platform.
type PlatformStatus struct {
	Platform  Platform `json:"platform"`
	Connected bool     `json:"connected"`
	Account   string   `json:"account,omitempty"`
}

// AnalysisRequest is the body of a job submission.
type AnalysisRequest struct {
	IntegrationID string `json:"integration_id"`
	TimeRangeDays int    `json:"time_range_days"`
	IncludeSlack  bool   `json:"include_slack,omitempty"`
	EnableAI      bool   `json:"enable_ai,omitempty"`
}

// EventKind classifies a detected timeline event.
type EventKind string

const (
	EventPeak       EventKind = "peak"
	EventValley     EventKind = "valley"
	EventRecovery   EventKind = "recovery"
	EventDecline    EventKind = "decline"
	EventHighVolume EventKind = "high_volume"
	EventCritical   EventKind = "critical"
	EventCurrent    EventKind = "current"
)

// Event is a derived, view-only timeline entry. Significance ranks events
// when more are detected than fit the display (3 = most significant).
type Event struct {
	Date         time.Time `json:"date"`
	Kind         EventKind `json:"kind"`
	Significance int       `json:"significance"`
	Description  string    `json:"description"`
}
