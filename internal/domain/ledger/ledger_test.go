package ledger_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/proctor/internal/domain/ledger"
	"github.com/okian/proctor/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestLedgerRecord(t *testing.T) {
	Convey("Given an empty ledger", t, func() {
		l := ledger.New()

		Convey("When recording a single alert", func() {
			alert, stored := l.Record(model.KindNoFace, "AI detected: no face.")

			Convey("Then it should be stored and returned", func() {
				So(stored, ShouldBeTrue)
				So(alert.Kind, ShouldEqual, model.KindNoFace)
				So(alert.Message, ShouldEqual, "AI detected: no face.")
				So(alert.ID, ShouldBeGreaterThan, 0)
				So(l.Len(), ShouldEqual, 1)
			})
		})

		Convey("When the same non-tab-switch kind is recorded twice in a row", func() {
			first, stored1 := l.Record(model.KindFullscreenExit, "exit 1")
			second, stored2 := l.Record(model.KindFullscreenExit, "exit 2")

			Convey("Then only the first should enter the ledger", func() {
				So(stored1, ShouldBeTrue)
				So(stored2, ShouldBeFalse)
				So(l.Len(), ShouldEqual, 1)
				So(l.Snapshot()[0].Message, ShouldEqual, "exit 1")
			})

			Convey("And the suppressed alert should still be returned", func() {
				So(second.Kind, ShouldEqual, model.KindFullscreenExit)
				So(second.Message, ShouldEqual, "exit 2")
				So(second.ID, ShouldBeGreaterThan, first.ID)
			})
		})

		Convey("When tab switches are recorded back to back", func() {
			_, s1 := l.Record(model.KindTabSwitch, "Tab/window switch detected!")
			_, s2 := l.Record(model.KindTabSwitch, "Tab/window switch detected!")
			_, s3 := l.Record(model.KindTabSwitch, "Tab/window switch detected!")

			Convey("Then every switch should be kept", func() {
				So(s1 && s2 && s3, ShouldBeTrue)
				So(l.Len(), ShouldEqual, 3)
			})
		})

		Convey("When two kinds alternate", func() {
			kinds := []model.Kind{model.KindLookingAway, model.KindNoFace, model.KindLookingAway, model.KindNoFace}
			for _, k := range kinds {
				_, stored := l.Record(k, string(k))
				So(stored, ShouldBeTrue)
			}

			Convey("Then nothing should be collapsed", func() {
				So(l.Len(), ShouldEqual, 4)
			})
		})

		Convey("When a different kind separates two equal kinds", func() {
			l.Record(model.KindPhoneDetected, "phone")
			l.Record(model.KindTabSwitch, "tab")
			_, stored := l.Record(model.KindPhoneDetected, "phone again")

			Convey("Then the repeat should be stored", func() {
				So(stored, ShouldBeTrue)
				So(l.Len(), ShouldEqual, 3)
			})
		})
	})
}

func TestLedgerOrderingAndIDs(t *testing.T) {
	Convey("Given a ledger with a frozen clock", t, func() {
		l := ledger.New(ledger.WithClock(fixedClock()))

		Convey("When recording several alerts in the same millisecond", func() {
			a, _ := l.Record(model.KindLookingAway, "a")
			b, _ := l.Record(model.KindMultipleFaces, "b")
			c, _ := l.Record(model.KindTabSwitch, "c")

			Convey("Then ids should still be strictly increasing", func() {
				So(b.ID, ShouldEqual, a.ID+1)
				So(c.ID, ShouldEqual, b.ID+1)
			})

			Convey("And the snapshot should be most recent first", func() {
				snap := l.Snapshot()
				So(len(snap), ShouldEqual, 3)
				So(snap[0].Message, ShouldEqual, "c")
				So(snap[1].Message, ShouldEqual, "b")
				So(snap[2].Message, ShouldEqual, "a")
			})

			Convey("And ids should stay monotonic after Clear", func() {
				l.Clear()
				So(l.Len(), ShouldEqual, 0)
				d, _ := l.Record(model.KindLookingAway, "d")
				So(d.ID, ShouldBeGreaterThan, c.ID)
			})
		})

		Convey("When the snapshot is modified by the caller", func() {
			l.Record(model.KindNoFace, "original")
			snap := l.Snapshot()
			snap[0].Message = "tampered"

			Convey("Then the ledger should be unaffected", func() {
				So(l.Snapshot()[0].Message, ShouldEqual, "original")
			})
		})
	})
}

func TestLedgerAppend(t *testing.T) {
	Convey("Given a ledger whose latest entry is a system alert", t, func() {
		l := ledger.New()
		l.Record(model.KindSystem, "Camera feed lost. Monitoring degraded.")

		Convey("When appending a terminal system alert", func() {
			alert := l.Append(model.KindSystem, "Proctoring ended.")

			Convey("Then it should bypass deduplication", func() {
				So(l.Len(), ShouldEqual, 2)
				So(l.Snapshot()[0], ShouldResemble, alert)
			})
		})
	})
}

func TestLedgerCapacity(t *testing.T) {
	Convey("Given a bounded ledger", t, func() {
		l := ledger.New(ledger.WithCapacity(3))

		Convey("When more alerts than capacity are recorded", func() {
			for i := 0; i < 5; i++ {
				l.Record(model.KindTabSwitch, fmt.Sprintf("switch-%d", i))
			}

			Convey("Then the oldest should be evicted", func() {
				snap := l.Snapshot()
				So(len(snap), ShouldEqual, 3)
				So(snap[0].Message, ShouldEqual, "switch-4")
				So(snap[2].Message, ShouldEqual, "switch-2")
			})
		})
	})

	Convey("Given an unbounded ledger", t, func() {
		l := ledger.New(ledger.WithCapacity(0))

		Convey("When many alerts are recorded", func() {
			for i := 0; i < 1000; i++ {
				l.Record(model.KindTabSwitch, "switch")
			}

			Convey("Then all should be kept", func() {
				So(l.Len(), ShouldEqual, 1000)
			})
		})
	})
}

func TestLedgerConcurrency(t *testing.T) {
	Convey("Given a ledger shared by concurrent producers", t, func() {
		l := ledger.New()
		const producers = 8
		const perProducer = 50

		Convey("When every producer records tab switches", func() {
			var wg sync.WaitGroup
			ids := make(chan int64, producers*perProducer)
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < perProducer; i++ {
						a, _ := l.Record(model.KindTabSwitch, fmt.Sprintf("p%d-%d", p, i))
						ids <- a.ID
					}
				}(p)
			}
			wg.Wait()
			close(ids)

			Convey("Then every alert should be stored with a unique id", func() {
				So(l.Len(), ShouldEqual, producers*perProducer)
				seen := make(map[int64]bool)
				for id := range ids {
					So(seen[id], ShouldBeFalse)
					seen[id] = true
				}
			})

			Convey("And each producer's alerts should keep emission order", func() {
				snap := l.Snapshot()
				last := make(map[int]int)
				for i := len(snap) - 1; i >= 0; i-- {
					var p, n int
					_, err := fmt.Sscanf(snap[i].Message, "p%d-%d", &p, &n)
					So(err, ShouldBeNil)
					if prev, ok := last[p]; ok {
						So(n, ShouldBeGreaterThan, prev)
					}
					last[p] = n
				}
			})
		})
	})
}
