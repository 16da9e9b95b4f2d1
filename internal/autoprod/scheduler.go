// Package autoprod runs a periodic produce-then-liquidate loop for one product.
package autoprod

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"avobot-go/internal/apperr"
	"avobot-go/internal/execution"
	"avobot-go/internal/market"
	"avobot-go/internal/metrics"
)

// MinInterval is the shortest period between two cycles.
const MinInterval = time.Second

// SellMessage tags the liquidation orders.
const SellMessage = "AutoProducción"

// Operations is the slice of the trading client the scheduler drives.
type Operations interface {
	ResolveProduct(name string) (market.Product, error)
	Produce(name string, premium bool) (int, error)
	Sellable(p market.Product) int
	Sell(name string, qty int, message string) (execution.Order, error)
}

// Status describes the scheduler at one point in time.
type Status struct {
	Running   bool
	Product   market.Product
	Premium   bool
	Interval  time.Duration
	Cycles    int
	LastRun   time.Time
	LastError string
}

type run struct {
	product  market.Product
	premium  bool
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Scheduler owns at most one running loop. Start and Stop are linearizable: both return only once the previous loop
// has fully exited.
type Scheduler struct {
	ops         Operations
	log         zerolog.Logger
	minInterval time.Duration

	mu  sync.Mutex
	cur *run

	statsMu   sync.Mutex
	cycles    int
	lastRun   time.Time
	lastError string
}

// New builds a stopped scheduler.
func New(ops Operations, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		ops:         ops,
		log:         log.With().Str("component", "autoprod").Logger(),
		minInterval: MinInterval,
	}
}

// Start replaces any running loop with one for name. The first cycle runs immediately.
func (s *Scheduler) Start(name string, premium bool, interval time.Duration) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("product name is required")
	}
	if interval <= 0 {
		return apperr.Validation("interval must be positive, got %s", interval)
	}
	p, err := s.ops.ResolveProduct(name)
	if err != nil {
		return err
	}
	if interval < s.minInterval {
		interval = s.minInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{product: p, premium: premium, interval: interval, cancel: cancel, done: make(chan struct{})}
	s.cur = r
	s.resetStats()
	go s.loop(ctx, r)

	s.log.Info().Str("product", p.String()).Bool("premium", premium).Dur("interval", interval).Msg("auto production started")
	return nil
}

// Stop cancels the running loop and waits for an in-flight cycle to finish. It reports whether a loop was running;
// calling it while stopped does nothing.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Scheduler) stopLocked() bool {
	r := s.cur
	if r == nil {
		return false
	}
	r.cancel()
	<-r.done
	s.cur = nil
	s.log.Info().Str("product", r.product.String()).Msg("auto production stopped")
	return true
}

// Status returns the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	var st Status
	if r := s.cur; r != nil {
		st = Status{Running: true, Product: r.product, Premium: r.premium, Interval: r.interval}
	}
	s.mu.Unlock()

	s.statsMu.Lock()
	st.Cycles, st.LastRun, st.LastError = s.cycles, s.lastRun, s.lastError
	s.statsMu.Unlock()
	return st
}

func (s *Scheduler) loop(ctx context.Context, r *run) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		s.cycle(r)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle never lets an error or panic escape; the outcome is recorded and the loop carries on.
func (s *Scheduler) cycle(r *run) {
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("auto production panic: %v", rec)
		}
		s.record(err)
	}()

	name := r.product.String()
	units, err := s.ops.Produce(name, r.premium)
	if err != nil {
		return
	}
	qty := s.ops.Sellable(r.product)
	if qty <= 0 {
		s.log.Debug().Str("product", name).Int("units", units).Msg("nothing to liquidate")
		return
	}
	if _, err = s.ops.Sell(name, qty, SellMessage); err != nil {
		return
	}
	s.log.Info().Str("product", name).Int("produced", units).Int("sold", qty).Msg("auto cycle done")
}

func (s *Scheduler) record(err error) {
	s.statsMu.Lock()
	s.cycles++
	s.lastRun = time.Now()
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.statsMu.Unlock()

	if err != nil {
		metrics.AutoCyclesTotal.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Msg("auto cycle failed")
		return
	}
	metrics.AutoCyclesTotal.WithLabelValues("ok").Inc()
}

func (s *Scheduler) resetStats() {
	s.statsMu.Lock()
	s.cycles, s.lastRun, s.lastError = 0, time.Time{}, ""
	s.statsMu.Unlock()
}
