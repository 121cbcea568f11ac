package simulate

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/types"
)

// frameStub is the smallest payload the daemon accepts as a frame: a JPEG
// start-of-image marker.
var frameStub = []byte{0xff, 0xd8, 0xff, 0xe0} //nolint:gochecknoglobals // read-only payload

// driveSessions runs every plan against the daemon with a worker pool.
func driveSessions(ctx context.Context, cfg *Config, client *Client, plans []Plan, stats *Stats) []Result {
	log.Printf("Driving %d sessions with %d workers...", len(plans), cfg.Workers)

	results := make([]Result, len(plans))
	var (
		done   int64
		failed int64
	)

	// Progress reporting
	var (
		reportMu   sync.Mutex
		lastReport time.Time
	)

	planChan := make(chan int, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for index := range planChan {
				if ctx.Err() != nil {
					return
				}
				res := driveSession(ctx, cfg, client, plans[index])
				results[index] = res
				if res.Err != "" {
					atomic.AddInt64(&failed, 1)
				}
				total := atomic.AddInt64(&done, 1)

				reportMu.Lock()
				if cfg.Verbose || time.Since(lastReport) >= reportInterval {
					lastReport = time.Now()
					log.Printf("Progress: %d/%d sessions finished (failed: %d)",
						total, len(plans), atomic.LoadInt64(&failed))
				}
				reportMu.Unlock()
			}
		}()
	}

	go func() {
		defer close(planChan)
		for i := range plans {
			select {
			case <-ctx.Done():
				return
			case planChan <- i:
			}
		}
	}()

	wg.Wait()

	for _, r := range results {
		stats.SignalsSent += r.SignalsSent
		switch {
		case r.Err != "":
			stats.SessionsFailed++
		case r.Outcome == model.OutcomeTerminated:
			stats.SessionsTerminated++
		case r.Outcome == model.OutcomeSubmitted:
			stats.SessionsSubmitted++
		}
		if r.SessionID != "" {
			stats.SessionsStarted++
		}
	}

	log.Printf("Session drive completed: terminated %d, submitted %d, failed %d",
		stats.SessionsTerminated, stats.SessionsSubmitted, stats.SessionsFailed)
	return results
}

// driveSession starts one session, plays its signals until the daemon ends
// it and collects the final record.
func driveSession(ctx context.Context, cfg *Config, client *Client, plan Plan) Result { //nolint:gocritic // hugeParam: plans are values
	res := Result{Plan: plan}

	view, err := client.StartSession(ctx, plan.Request)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.SessionID = view.ID

	for i := 0; i < cfg.Frames; i++ {
		if err := client.PushFrame(ctx, view.ID, frameStub); err != nil {
			res.Err = err.Error()
			return res
		}
	}

	ended := false
	for _, sig := range plan.Signals {
		if cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				res.Err = ctx.Err().Error()
				return res
			case <-time.After(cfg.Pause):
			}
		}
		after, err := client.Signal(ctx, view.ID, sig)
		if err != nil {
			res.Err = err.Error()
			return res
		}
		res.SignalsSent++
		if after.State == types.StateEnded {
			ended = true
			break
		}
	}

	var rec types.Record
	if ended {
		rec, err = client.Record(ctx, view.ID)
	} else {
		rec, err = client.StopSession(ctx, view.ID)
	}
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Outcome = rec.Outcome
	res.Points = rec.Points
	res.Alerts = len(rec.Alerts)
	return res
}
