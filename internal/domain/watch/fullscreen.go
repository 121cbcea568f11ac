package watch

import "github.com/okian/proctor/internal/domain/model"

// FullscreenExitMessage is the alert text for leaving fullscreen.
const FullscreenExitMessage = "Fullscreen mode exited. Please stay in fullscreen."

// NewFullscreen returns a watcher that raises fullscreen-exit whenever the
// document is observed outside fullscreen. There is no recovery transition:
// every exit is a fresh violation, and the watcher never re-enters
// fullscreen itself.
func NewFullscreen(src Source, r Raiser, opts ...Option) *Watcher {
	w := newWatcher("fullscreen", SignalFullscreenChange, src, r, opts)
	w.evaluate = func(n Notification, current State) (model.Violation, State, bool) {
		if n.Fullscreen {
			return model.Violation{}, current, false
		}
		return model.Violation{
			Kind:      model.KindFullscreenExit,
			Message:   FullscreenExitMessage,
			EventType: model.EventFullscreenExit,
			Metadata:  map[string]any{"ts": timestamp(n).UnixMilli()},
		}, StateViolating, true
	}
	return w
}
