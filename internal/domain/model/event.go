package model

import "time"

// Event types forwarded to the remote attempt log. Analyzer labels are
// forwarded verbatim as their own event types.
const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
	EventFullscreenExit = "fullscreen_exit"
	EventTabSwitch      = "tab_switch"
)

// Event is a fire-and-forget notification for the attempt log.
type Event struct {
	SessionID string
	AttemptID string
	Type      string
	Metadata  map[string]any
	TS        time.Time
}

// EventCameraLost is emitted once per degradation when the camera feed stops
// producing frames mid-session.
const EventCameraLost = "camera_lost"
