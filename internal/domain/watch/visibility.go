package watch

import "github.com/okian/proctor/internal/domain/model"

// TabSwitchMessage is the alert text for a hidden page.
const TabSwitchMessage = "Tab/window switch detected!"

// NewVisibility returns a watcher that raises tab-switch whenever the page
// becomes hidden. The page becoming visible again returns it to Normal
// without raising anything.
func NewVisibility(src Source, r Raiser, opts ...Option) *Watcher {
	w := newWatcher("visibility", SignalVisibilityChange, src, r, opts)
	w.evaluate = func(n Notification, _ State) (model.Violation, State, bool) {
		if !n.Hidden {
			return model.Violation{}, StateNormal, false
		}
		return model.Violation{
			Kind:      model.KindTabSwitch,
			Message:   TabSwitchMessage,
			EventType: model.EventTabSwitch,
			Metadata: map[string]any{
				"ts":     timestamp(n).UnixMilli(),
				"reason": "document_hidden",
			},
		}, StateViolating, true
	}
	return w
}
