package seeder

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lensai/lensai-stack/cli/internal/client"
)

// Sender submits one event to the ingest service.
type Sender interface {
	SendEvent(ctx context.Context, event interface{}) (*client.Response, error)
}

// Result summarizes a seeding run.
type Result struct {
	Sent     int           `json:"sent"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Failed   int           `json:"failed"`
	ByStatus map[int]int   `json:"by_status"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Runner handles the event seeding execution
type Runner struct {
	Config    *Config
	Sender    Sender
	Generator *Generator
	Logger    *log.Logger
}

// NewRunner creates a new seeder runner
func NewRunner(config *Config, sender Sender) *Runner {
	return &Runner{
		Config:    config,
		Sender:    sender,
		Generator: NewGenerator(config),
		Logger:    log.Default(),
	}
}

// Run generates Defaults.Count events and submits them with Defaults.Concurrency
// workers. Cancelling ctx stops generation; queued events fail with the
// context error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	d := r.Config.Defaults
	r.Logger.Printf("Starting usage seeder:")
	r.Logger.Printf("  URL: %s", d.URL)
	r.Logger.Printf("  Event count: %d", d.Count)
	r.Logger.Printf("  Projects: %v", r.Generator.Projects())
	r.Logger.Printf("  Concurrency: %d", d.Concurrency)
	if d.TimeSpread > 0 {
		r.Logger.Printf("  Time spread: %v", d.TimeSpread)
	} else {
		r.Logger.Printf("  Distribution: Real-time")
	}

	start := time.Now()
	res := &Result{ByStatus: make(map[int]int)}
	var mu sync.Mutex

	progressInterval := d.Count / 10
	if progressInterval < 100 {
		progressInterval = 100
	}

	jobs := make(chan interface{}, d.Concurrency)
	var wg sync.WaitGroup
	for w := 0; w < d.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				resp, err := r.Sender.SendEvent(ctx, ev)

				mu.Lock()
				res.Sent++
				switch {
				case err != nil:
					res.Failed++
					if res.Failed <= 5 {
						r.Logger.Printf("Failed to send event: %v", err)
					}
				case resp.OK():
					res.Accepted++
					res.ByStatus[resp.Status]++
				default:
					res.Rejected++
					res.ByStatus[resp.Status]++
				}
				if res.Sent%progressInterval == 0 {
					r.Logger.Printf("Progress: %d/%d events sent (%.1f%%)",
						res.Sent, d.Count, float64(res.Sent)*100.0/float64(d.Count))
				}
				mu.Unlock()
			}
		}()
	}

	var err error
generate:
	for i := 0; i < d.Count; i++ {
		ev := r.Generator.Event(i, d.Count)
		select {
		case jobs <- ev:
		case <-ctx.Done():
			err = ctx.Err()
			break generate
		}
		if d.Interval > 0 && i < d.Count-1 {
			select {
			case <-time.After(d.Interval):
			case <-ctx.Done():
				err = ctx.Err()
				break generate
			}
		}
	}
	close(jobs)
	wg.Wait()

	res.Elapsed = time.Since(start)
	r.Logger.Printf("Seeding complete: %d accepted, %d rejected, %d failed in %v",
		res.Accepted, res.Rejected, res.Failed, res.Elapsed.Round(time.Millisecond))
	return res, err
}
