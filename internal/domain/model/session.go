package model

import "time"

// State is the lifecycle state of a proctoring session.
type State int

// Session states. The only legal cycle is Idle -> Starting -> Active ->
// Stopping -> Idle; a failed start goes Starting -> Idle.
const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SessionMeta describes the exam attempt a session supervises. It is sent
// to the remote attempt log when the session starts.
type SessionMeta struct {
	StudentID       string
	CertificationID string
	ExamID          string
}

// Session is a point-in-time view of a proctoring session.
type Session struct {
	ID                      string
	AttemptID               string
	State                   State
	CameraReady             bool
	StartedAt               time.Time
	Points                  int
	TerminatedByMalpractice bool
	Meta                    SessionMeta
}

// Active reports whether the session is monitoring.
func (s Session) Active() bool { return s.State == StateActive }

// Outcome is how a session ended.
type Outcome string

// Session outcomes.
const (
	OutcomeSubmitted  Outcome = "submitted"
	OutcomeTerminated Outcome = "terminated"
)

// SessionRecord is the final, persisted account of a finished session.
type SessionRecord struct {
	SessionID       string    `json:"session_id"`
	AttemptID       string    `json:"attempt_id,omitempty"`
	StudentID       string    `json:"student_id,omitempty"`
	CertificationID string    `json:"certification_id,omitempty"`
	ExamID          string    `json:"exam_id,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Points          int       `json:"points"`
	Outcome         Outcome   `json:"outcome"`
	Alerts          []Alert   `json:"alerts"`
}
