package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/proctor/internal/domain/model"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	Convey("Given a publisher over a fake writer", t, func() {
		w := &fakeWriter{}
		p := NewWithWriter(w, "proctor.events")
		ts := time.UnixMilli(1_700_000_000_123)

		Convey("When an event is published", func() {
			err := p.Publish(context.Background(), model.Event{
				SessionID: "s-1",
				AttemptID: "42",
				Type:      model.EventTabSwitch,
				Metadata:  map[string]any{"reason": "document_hidden"},
				TS:        ts,
			})

			Convey("Then one keyed JSON message should be written", func() {
				So(err, ShouldBeNil)
				So(len(w.msgs), ShouldEqual, 1)
				So(string(w.msgs[0].Key), ShouldEqual, "42")
				So(string(w.msgs[0].Headers[0].Value), ShouldEqual, model.EventTabSwitch)

				var body map[string]any
				So(json.Unmarshal(w.msgs[0].Value, &body), ShouldBeNil)
				So(body["event_type"], ShouldEqual, "tab_switch")
				So(body["ts"], ShouldEqual, float64(1_700_000_000_123))
				So(body["metadata"].(map[string]any)["reason"], ShouldEqual, "document_hidden")
			})
		})

		Convey("When an event has no attempt", func() {
			err := p.Publish(context.Background(), model.Event{SessionID: "s-9", Type: model.EventSessionStarted, TS: ts})

			Convey("Then it should be keyed by session", func() {
				So(err, ShouldBeNil)
				So(string(w.msgs[0].Key), ShouldEqual, "s-9")
			})
		})

		Convey("When the writer fails", func() {
			w.err = errors.New("broker unreachable")
			err := p.Publish(context.Background(), model.Event{AttemptID: "1", TS: ts})

			Convey("Then the error should be wrapped", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, w.err), ShouldBeTrue)
			})
		})

		Convey("When closed", func() {
			So(p.Close(), ShouldBeNil)
			So(w.closed, ShouldBeTrue)
		})
	})

	Convey("Given no brokers", t, func() {
		_, err := New(nil, "topic")
		So(errors.Is(err, ErrNoBrokers), ShouldBeTrue)
	})
}
