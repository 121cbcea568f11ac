package signals

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/proctor/internal/domain/watch"
)

func TestBus(t *testing.T) {
	Convey("Given a bus with a visibility subscriber", t, func() {
		b := NewBus()
		var got []watch.Notification
		unsubscribe := b.Subscribe(watch.SignalVisibilityChange, func(n watch.Notification) {
			got = append(got, n)
		})

		Convey("When the page is hidden and the fullscreen changes", func() {
			b.SetHidden(true)
			b.SetFullscreen(false)

			Convey("Then only the visibility notification should be delivered", func() {
				So(len(got), ShouldEqual, 1)
				So(got[0].Hidden, ShouldBeTrue)
				So(got[0].At.IsZero(), ShouldBeFalse)
				So(b.State().Hidden, ShouldBeTrue)
			})
		})

		Convey("When the subscriber unsubscribes", func() {
			unsubscribe()
			unsubscribe()
			b.SetHidden(true)

			Convey("Then it should receive nothing", func() {
				So(got, ShouldBeEmpty)
				So(b.Subscribers(watch.SignalVisibilityChange), ShouldEqual, 0)
			})
		})

		Convey("When a handler unsubscribes itself", func() {
			var self func()
			self = b.Subscribe(watch.SignalFullscreenChange, func(watch.Notification) { self() })

			Convey("Then publishing should not deadlock", func() {
				b.SetFullscreen(false)
				So(b.Subscribers(watch.SignalFullscreenChange), ShouldEqual, 0)
			})
		})
	})

	Convey("Given fullscreen requests", t, func() {
		b := NewBus()
		So(b.RequestFullscreen(context.Background()), ShouldBeNil)
		So(b.State().FullscreenRequested, ShouldBeTrue)
		So(b.ExitFullscreen(context.Background()), ShouldBeNil)
		So(b.State().FullscreenRequested, ShouldBeFalse)
	})
}
