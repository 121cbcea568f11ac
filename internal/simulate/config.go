package simulate

import (
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/types"
)

// Scenario selects how simulated students behave.
type Scenario string

// Scenarios.
const (
	// ScenarioMalpractice students violate until the server terminates them.
	ScenarioMalpractice Scenario = "malpractice"
	// ScenarioHonest students stay in fullscreen and submit.
	ScenarioHonest Scenario = "honest"
	// ScenarioMixed picks one of the two per student.
	ScenarioMixed Scenario = "mixed"
)

// Config holds configuration for the drill.
type Config struct {
	BaseURL    string        // Base URL of the daemon
	Sessions   int           // Number of sessions to drive
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Scenario   Scenario      // Student behavior
	Frames     int           // Frames uploaded per session before signals
	Seed       int64         // Seed for plan generation
	Pause      time.Duration // Pause between signals of one session
	OutputFile string        // Output file for the results report
	Verbose    bool          // Enable verbose logging
}

// Plan is the scripted behavior of one simulated student.
type Plan struct {
	Index   int                       `json:"index"`
	Request types.StartSessionRequest `json:"request"`
	Signals []types.SignalRequest     `json:"signals"`
	// Violations is the number of scored signals in Signals.
	Violations int  `json:"violations"`
	Malicious  bool `json:"malicious"`
}

// Result is what the daemon made of one plan.
type Result struct {
	Plan      Plan          `json:"plan"`
	SessionID string        `json:"session_id,omitempty"`
	Outcome   model.Outcome `json:"outcome,omitempty"`
	Points    int           `json:"points"`
	Alerts    int           `json:"alerts"`
	// SignalsSent counts signals delivered before the session ended.
	SignalsSent int    `json:"signals_sent"`
	Err         string `json:"error,omitempty"`
}

// Stats holds drill statistics.
type Stats struct {
	SessionsPlanned    int
	SessionsStarted    int
	SessionsTerminated int
	SessionsSubmitted  int
	SessionsFailed     int
	SignalsSent        int
	Mismatches         int
	Threshold          int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
