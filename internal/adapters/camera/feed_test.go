package camera

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFeed(t *testing.T) {
	ctx := context.Background()

	Convey("Given a feed without permission", t, func() {
		f := NewFeed()

		Convey("Then acquisition and uploads should be refused", func() {
			_, err := f.Acquire(ctx)
			So(errors.Is(err, ErrPermissionDenied), ShouldBeTrue)
			So(errors.Is(f.Push([]byte{1}), ErrPermissionDenied), ShouldBeTrue)
		})
	})

	Convey("Given a granted feed", t, func() {
		f := NewFeed(WithMaxFrameBytes(4))
		f.Grant()
		s, err := f.Acquire(ctx)
		So(err, ShouldBeNil)

		Convey("When nothing has been uploaded", func() {
			frame, err := s.CaptureFrame(ctx)

			Convey("Then capture should report not ready", func() {
				So(err, ShouldBeNil)
				So(frame, ShouldBeNil)
			})
		})

		Convey("When a frame is uploaded", func() {
			So(f.Push([]byte{1, 2, 3}), ShouldBeNil)
			frame, err := s.CaptureFrame(ctx)

			Convey("Then capture should return a copy of it", func() {
				So(err, ShouldBeNil)
				So(frame, ShouldResemble, []byte{1, 2, 3})
				frame[0] = 9
				again, _ := s.CaptureFrame(ctx)
				So(again[0], ShouldEqual, 1)
				So(f.Frames(), ShouldEqual, 1)
			})
		})

		Convey("When an oversized frame is uploaded", func() {
			So(errors.Is(f.Push([]byte{1, 2, 3, 4, 5}), ErrFrameTooLarge), ShouldBeTrue)
			So(errors.Is(f.Push(nil), ErrEmptyFrame), ShouldBeTrue)
		})

		Convey("When a second holder tries to acquire", func() {
			_, err := f.Acquire(ctx)
			So(errors.Is(err, ErrBusy), ShouldBeTrue)
		})

		Convey("When the device is revoked", func() {
			f.Revoke()
			_, err := s.CaptureFrame(ctx)

			Convey("Then capture should fail with source closed", func() {
				So(errors.Is(err, ErrSourceClosed), ShouldBeTrue)
			})
		})

		Convey("When the stream is released", func() {
			f.Release(s)
			f.Release(s)

			Convey("Then the old stream is dead and the feed can be reacquired", func() {
				_, err := s.CaptureFrame(ctx)
				So(errors.Is(err, ErrSourceClosed), ShouldBeTrue)
				So(f.Held(), ShouldBeFalse)
				s2, err := f.Acquire(ctx)
				So(err, ShouldBeNil)
				So(s2, ShouldNotBeNil)
			})
		})
	})
}
