// Package types contains the JSON shapes shared by the HTTP API and its
// clients.
package types

import (
	"time"

	"github.com/okian/proctor/internal/domain/model"
)

// StateEnded is reported for sessions that have finished and only exist as
// a stored record.
const StateEnded = "ended"

// StartSessionRequest is the body of POST /sessions.
type StartSessionRequest struct {
	StudentID       string `json:"student_id"`
	CertificationID string `json:"certification_id,omitempty"`
	ExamID          string `json:"exam_id,omitempty"`
	// CameraGranted reports that the client already holds camera permission.
	CameraGranted bool `json:"camera_granted"`
}

// Meta converts the request into session metadata.
func (r StartSessionRequest) Meta() model.SessionMeta {
	return model.SessionMeta{
		StudentID:       r.StudentID,
		CertificationID: r.CertificationID,
		ExamID:          r.ExamID,
	}
}

// SignalRequest reports a browser environment change. Type is
// "fullscreenchange" with Fullscreen set, or "visibilitychange" with Hidden
// set.
type SignalRequest struct {
	Type       string `json:"type"`
	Fullscreen *bool  `json:"fullscreen,omitempty"`
	Hidden     *bool  `json:"hidden,omitempty"`
}

// CameraRequest grants or revokes the camera device of a session.
type CameraRequest struct {
	Action string `json:"action"`
}

// Camera actions.
const (
	CameraGrant  = "grant"
	CameraRevoke = "revoke"
)

// Alert is the wire form of a ledger entry.
type Alert struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the wire form of a session.
type Session struct {
	ID                      string     `json:"session_id"`
	AttemptID               string     `json:"attempt_id,omitempty"`
	StudentID               string     `json:"student_id,omitempty"`
	ExamID                  string     `json:"exam_id,omitempty"`
	State                   string     `json:"state"`
	CameraReady             bool       `json:"camera_ready"`
	StartedAt               *time.Time `json:"started_at,omitempty"`
	EndedAt                 *time.Time `json:"ended_at,omitempty"`
	Points                  int        `json:"points"`
	Threshold               int        `json:"threshold"`
	TerminatedByMalpractice bool       `json:"terminated_by_malpractice"`
	Alerts                  []Alert    `json:"alerts"`
}

// Stats summarizes the service for GET /stats.
type Stats struct {
	Started        bool   `json:"started"`
	ActiveSessions int    `json:"active_sessions"`
	StoredRecords  int    `json:"stored_records"`
	StoreDriver    string `json:"store_driver"`
	SinkWorkers    int    `json:"sink_workers"`
	SinkQueueLen   int    `json:"sink_queue_length"`
	Threshold      int    `json:"violation_threshold"`
	FrameInterval  string `json:"frame_interval"`
}

// Record wraps a persisted session record.
type Record = model.SessionRecord

// FromAlerts converts ledger entries, keeping their order.
func FromAlerts(alerts []model.Alert) []Alert {
	out := make([]Alert, len(alerts))
	for i, a := range alerts {
		out[i] = Alert{ID: a.ID, Type: string(a.Kind), Message: a.Message, Timestamp: a.Timestamp}
	}
	return out
}

// FromSession builds the view of a live session.
func FromSession(s model.Session, alerts []model.Alert, threshold int) Session { //nolint:gocritic // hugeParam: snapshots are values
	v := Session{
		ID:                      s.ID,
		AttemptID:               s.AttemptID,
		StudentID:               s.Meta.StudentID,
		ExamID:                  s.Meta.ExamID,
		State:                   s.State.String(),
		CameraReady:             s.CameraReady,
		Points:                  s.Points,
		Threshold:               threshold,
		TerminatedByMalpractice: s.TerminatedByMalpractice,
		Alerts:                  FromAlerts(alerts),
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		v.StartedAt = &started
	}
	return v
}

// FromRecord builds the view of a finished session.
func FromRecord(r model.SessionRecord, threshold int) Session { //nolint:gocritic // hugeParam: records are values
	started, ended := r.StartedAt, r.EndedAt
	return Session{
		ID:                      r.SessionID,
		AttemptID:               r.AttemptID,
		StudentID:               r.StudentID,
		ExamID:                  r.ExamID,
		State:                   StateEnded,
		StartedAt:               &started,
		EndedAt:                 &ended,
		Points:                  r.Points,
		Threshold:               threshold,
		TerminatedByMalpractice: r.Outcome == model.OutcomeTerminated,
		Alerts:                  FromAlerts(r.Alerts),
	}
}
