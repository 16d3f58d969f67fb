// Package scheduler drives the fetch-compare-publish loop. A single
// goroutine owns the cycle; cron ticks and manual triggers feed the
// same loop, so at most one cycle is ever in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calpost/internal/log"
	"calpost/internal/model"
	"calpost/internal/publish"
	"calpost/internal/source"
)

// Sentinel categories for cycle failures, matchable with errors.Is.
var (
	ErrFetch   = errors.New("fetch failed")
	ErrPublish = errors.New("publish failed")
)

// State names the phase the loop is currently in.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// BuildFunc turns a month's raw events into a publishable artifact.
// The caller wires normalization, layout and rendering behind it.
type BuildFunc func(month model.Month, raws []model.RawEvent) (publish.Artifact, error)

// Options configures a Scheduler.
type Options struct {
	Source    source.Source
	Build     BuildFunc
	Publisher publish.Publisher
	Location  *time.Location

	// CycleTimeout bounds one whole cycle, fetch through publish.
	// Zero means no bound.
	CycleTimeout time.Duration

	// InitialToken seeds the freshness token, typically from a state
	// file persisted by a previous run.
	InitialToken string

	// OnTokenChange runs after a publish succeeds with a new token.
	OnTokenChange func(token string)

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Scheduler owns the freshness token and re-publishes the calendar
// when the token reported by the source changes.
type Scheduler struct {
	src           source.Source
	build         BuildFunc
	pub           publish.Publisher
	loc           *time.Location
	timeout       time.Duration
	now           func() time.Time
	onTokenChange func(token string)

	trigger chan struct{}

	mu         sync.Mutex
	state      State
	token      string
	lastCycle  time.Time
	lastChange time.Time
	lastErr    error
}

// New builds a Scheduler from opts.
func New(opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		src:           opts.Source,
		build:         opts.Build,
		pub:           opts.Publisher,
		loc:           loc,
		timeout:       opts.CycleTimeout,
		now:           now,
		onTokenChange: opts.OnTokenChange,
		trigger:       make(chan struct{}, 1),
		state:         StateIdle,
		token:         opts.InitialToken,
	}
}

// Trigger requests a forced cycle. Requests arriving while a cycle is
// in flight collapse into a single pending one.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status is a point-in-time snapshot for the web API.
type Status struct {
	State        State     `json:"state"`
	Token        string    `json:"token,omitempty"`
	LastCycleAt  time.Time `json:"last_cycle_at,omitzero"`
	LastChangeAt time.Time `json:"last_change_at,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
}

// Status reports the current loop state and token.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:        s.state,
		Token:        s.token,
		LastCycleAt:  s.lastCycle,
		LastChangeAt: s.lastChange,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Run executes cycles on the cron schedule and on manual triggers
// until ctx is canceled. The first cycle runs immediately so a fresh
// deployment publishes without waiting for the first tick.
func (s *Scheduler) Run(ctx context.Context, cronSpec string) error {
	tick := make(chan struct{}, 1)
	c := cron.New()
	if _, err := c.AddFunc(cronSpec, func() {
		select {
		case tick <- struct{}{}:
		default:
		}
	}); err != nil {
		return fmt.Errorf("parsing refresh schedule %q: %w", cronSpec, err)
	}
	c.Start()
	defer c.Stop()

	s.cycle(ctx, false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			s.cycle(ctx, false)
		case <-s.trigger:
			s.cycle(ctx, true)
		}
	}
}

// RunOnce executes a single forced cycle, for one-shot invocations.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.cycle(ctx, true)
}

func (s *Scheduler) cycle(ctx context.Context, forced bool) error {
	s.mu.Lock()
	s.state = StateFetching
	lastToken := s.token
	s.mu.Unlock()

	newToken, err := s.runCycle(ctx, lastToken, forced)

	changed := err == nil && newToken != lastToken

	s.mu.Lock()
	s.state = StateIdle
	s.lastCycle = s.now()
	s.lastErr = err
	if err == nil {
		if changed {
			s.lastChange = s.now()
		}
		s.token = newToken
	}
	s.mu.Unlock()

	if err != nil {
		appLog.Error("refresh cycle failed", err, "forced", forced)
		return err
	}
	if changed && s.onTokenChange != nil {
		s.onTokenChange(newToken)
	}
	return nil
}

// runCycle performs one fetch and, when the calendar changed or the
// cycle was forced, the full render and publish. It returns the token
// the caller should carry forward; the new token is handed back only
// once the publish has succeeded, so a failed delivery retries on the
// next tick.
func (s *Scheduler) runCycle(ctx context.Context, lastToken string, forced bool) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	month := model.MonthOf(s.now().In(s.loc))

	token, raws, err := s.src.FetchMonth(ctx, month)
	if err != nil {
		return lastToken, fmt.Errorf("%w for %s: %w", ErrFetch, month, err)
	}

	// An empty token means the source could not vouch for freshness;
	// treat it as changed rather than suppressing updates forever.
	if !forced && token != "" && token == lastToken {
		appLog.Debug("calendar unchanged", "month", month.String(), "token", token)
		return lastToken, nil
	}

	artifact, err := s.build(month, raws)
	if err != nil {
		return lastToken, fmt.Errorf("rendering %s: %w", month, err)
	}
	if err := s.pub.Publish(ctx, artifact); err != nil {
		return lastToken, fmt.Errorf("%w for %s: %w", ErrPublish, month, err)
	}

	appLog.Info("calendar published",
		"month", month.String(), "events", artifact.EventCount, "forced", forced)
	return token, nil
}
