// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies an integrity alert.
type Kind string

// Alert kinds.
const (
	KindTabSwitch      Kind = "tab-switch"
	KindFullscreenExit Kind = "fullscreen-exit"
	KindLookingAway    Kind = "looking-away"
	KindMultipleFaces  Kind = "multiple-faces"
	KindPhoneDetected  Kind = "phone-detected"
	KindFaceUnclear    Kind = "face-unclear"
	KindNoFace         Kind = "no-face"
	KindSystem         Kind = "system"
)

// analyzerKinds are the labels an external visual analyzer may return.
var analyzerKinds = map[Kind]struct{}{ //nolint:gochecknoglobals // read-only lookup
	KindLookingAway:   {},
	KindMultipleFaces: {},
	KindPhoneDetected: {},
	KindFaceUnclear:   {},
	KindNoFace:        {},
}

// ParseKind converts a raw label into a Kind. Matching ignores case and
// surrounding whitespace.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case KindTabSwitch, KindFullscreenExit, KindSystem:
		return k, nil
	}
	if _, ok := analyzerKinds[k]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown alert kind %q", raw)
}

// IsAnalyzerKind reports whether k is a visual-analysis label.
func (k Kind) IsAnalyzerKind() bool {
	_, ok := analyzerKinds[k]
	return ok
}

// Deduplicated reports whether consecutive alerts of this kind collapse in
// the ledger. Every tab switch is kept.
func (k Kind) Deduplicated() bool {
	return k != KindTabSwitch
}

// Scored reports whether alerts of this kind add violation points. System
// alerts describe infrastructure state, not student behavior.
func (k Kind) Scored() bool {
	return k != KindSystem
}

// Alert is a single recorded integrity signal. Alerts are immutable once
// created.
type Alert struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Violation is a candidate alert produced by a watcher or the frame analysis
// scheduler, together with the attempt-log event it should be reported as.
// An empty EventType means the candidate is not forwarded.
type Violation struct {
	Kind      Kind
	Message   string
	EventType string
	Metadata  map[string]any
}
