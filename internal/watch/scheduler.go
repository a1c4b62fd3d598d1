package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/srcom"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/storage"
)

// ErrBusy is returned by PollNow when a cycle is already in flight.
var ErrBusy = errors.New("a poll cycle is already running")

const (
	// transientThreshold is how many consecutive transient failures a
	// game tolerates before entering backoff.
	transientThreshold = 3
	// maxBackoffIntervals caps the doubling backoff wait.
	maxBackoffIntervals = 8
)

// LeaderboardClient is the scheduler's view of the speedrun.com API.
type LeaderboardClient interface {
	ResolveGame(ctx context.Context, name string) (*srcom.Game, error)
	FetchRuns(ctx context.Context, gameID, status string) ([]srcom.Run, error)
}

// Announcer delivers a single new-run notification.
type Announcer interface {
	Announce(run srcom.Run, gameName, channelID, roleID string) error
}

// Store is the subset of the repository the scheduler needs.
type Store interface {
	LoadSettings() (storage.Settings, error)
	SeenIDs() (map[string]struct{}, error)
	MarkSeen(rec storage.SeenRun) error
}

// GameResult summarizes one game's outcome within a cycle.
type GameResult struct {
	Game    string
	NewRuns int
	Skipped string // non-empty when the game was not polled, with the reason
	Err     string
}

// CycleSummary is the structured result of one full poll cycle.
type CycleSummary struct {
	Started  time.Time
	Duration time.Duration
	Games    []GameResult
	NewRuns  int
	Errors   int
	Note     string // set when the cycle short-circuited (e.g. no channel bound)
}

// backoffState tracks per-game transient-failure bookkeeping.
type backoffState struct {
	failures int // consecutive transient failures
	wait     int // current backoff width in cycles; 0 means not backing off
	skip     int // cycles left to skip
}

// Scheduler drives the periodic poll cycle: fetch runs per configured
// game, filter out seen ones, mark then announce the rest.
type Scheduler struct {
	store  Store
	client LeaderboardClient
	sink   Announcer

	// cycleMu guards against overlapping cycles; manual triggers use
	// TryLock and report busy instead of queueing.
	cycleMu sync.Mutex

	// stateMu guards backoff bookkeeping and the permanent-skip set.
	stateMu sync.Mutex
	backoff map[string]*backoffState
	skipped map[string]string // game name -> reason
	games   map[string]*srcom.Game

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler. Start must be called to begin
// scheduled polling; PollNow works without Start.
func NewScheduler(store Store, client LeaderboardClient, sink Announcer) *Scheduler {
	return &Scheduler{
		store:    store,
		client:   client,
		sink:     sink,
		backoff:  make(map[string]*backoffState),
		skipped:  make(map[string]string),
		games:    make(map[string]*srcom.Game),
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop. It blocks until ctx is cancelled or
// Stop is called; cancellation takes effect between cycles, never
// mid-cycle.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.currentInterval()
	slog.Info("Starting run watcher", "interval", interval)

	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	s.scheduledCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Run watcher stopped (context cancelled)")
			return
		case <-s.stopChan:
			slog.Info("Run watcher stopped")
			return
		case <-ticker.C:
			s.scheduledCycle(ctx)
			// Pick up admin interval changes on the next tick
			if next := s.currentInterval(); next != interval {
				slog.Info("Poll interval changed", "from", interval, "to", next)
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Stop signals the scheduler to stop and waits for the loop to exit.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) currentInterval() time.Duration {
	settings, err := s.store.LoadSettings()
	if err != nil || settings.IntervalSeconds <= 0 {
		return storage.DefaultIntervalSeconds * time.Second
	}
	return settings.Interval()
}

// scheduledCycle runs one timer-driven cycle unless a manual one is in
// flight.
func (s *Scheduler) scheduledCycle(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		slog.Debug("Skipping scheduled cycle, manual poll in flight")
		return
	}
	defer s.cycleMu.Unlock()

	summary := s.runCycle(ctx)
	slog.Debug("Cycle complete",
		"games", len(summary.Games),
		"newRuns", summary.NewRuns,
		"errors", summary.Errors,
		"duration", summary.Duration,
	)
}

// PollNow runs one full cycle synchronously and returns its summary.
// A manual trigger also clears permanent game skips so configuration
// mistakes can be retried immediately. Returns ErrBusy when a cycle is
// already in flight.
func (s *Scheduler) PollNow(ctx context.Context) (*CycleSummary, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrBusy
	}
	defer s.cycleMu.Unlock()

	s.stateMu.Lock()
	s.skipped = make(map[string]string)
	s.stateMu.Unlock()

	return s.runCycle(ctx), nil
}

// ResetGameState clears backoff, permanent skips, and the resolved-game
// cache. Called by command handlers after the games list changes.
func (s *Scheduler) ResetGameState() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.backoff = make(map[string]*backoffState)
	s.skipped = make(map[string]string)
	s.games = make(map[string]*srcom.Game)
}

// runCycle performs one pass over all configured games. Callers must
// hold cycleMu.
func (s *Scheduler) runCycle(ctx context.Context) *CycleSummary {
	summary := &CycleSummary{Started: time.Now()}
	defer func() { summary.Duration = time.Since(summary.Started) }()

	settings, err := s.store.LoadSettings()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		summary.Note = "failed to load settings: " + err.Error()
		summary.Errors++
		return summary
	}

	if settings.ChannelID == "" {
		slog.Info("No notification channel bound, skipping cycle")
		summary.Note = "no notification channel bound"
		return summary
	}

	if len(settings.Games) == 0 {
		summary.Note = "no games configured"
		return summary
	}

	seen, err := s.store.SeenIDs()
	if err != nil {
		slog.Error("Failed to load seen runs", "error", err)
		summary.Note = "failed to load seen runs: " + err.Error()
		summary.Errors++
		return summary
	}

	for _, name := range settings.Games {
		select {
		case <-ctx.Done():
			summary.Note = "cycle interrupted by shutdown"
			return summary
		default:
		}

		result := s.checkGame(ctx, name, settings, seen)
		summary.Games = append(summary.Games, result)
		summary.NewRuns += result.NewRuns
		if result.Err != "" {
			summary.Errors++
		}
	}

	return summary
}

// checkGame polls a single game and announces its new runs. Failures
// are isolated: they are recorded in the result, never propagated.
func (s *Scheduler) checkGame(ctx context.Context, name string, settings storage.Settings, seen map[string]struct{}) GameResult {
	result := GameResult{Game: name}

	if reason, skip := s.shouldSkip(name); skip {
		result.Skipped = reason
		return result
	}

	game, err := s.resolveGame(ctx, name)
	if err != nil {
		result.Err = err.Error()
		s.recordFailure(name, err)
		return result
	}

	runs, err := s.client.FetchRuns(ctx, game.ID, srcom.StatusNew)
	if err != nil {
		result.Err = err.Error()
		s.recordFailure(name, err)
		return result
	}
	s.recordSuccess(name)

	for _, run := range FilterNew(runs, seen) {
		// Mark before announce: a crash between the two drops the
		// notification instead of duplicating it.
		rec := storage.SeenRun{
			RunID:    run.ID,
			Game:     game.Name(),
			Player:   run.Player,
			Category: run.Category,
			Weblink:  run.Weblink,
		}
		if err := s.store.MarkSeen(rec); err != nil {
			// Not marked seen: the run comes back next cycle (at-least-once).
			slog.Error("Failed to mark run seen", "run", run.ID, "error", err)
			result.Err = err.Error()
			continue
		}
		seen[run.ID] = struct{}{}

		if err := s.sink.Announce(run, game.Name(), settings.ChannelID, settings.RoleID); err != nil {
			// Already marked seen; log and move on to the rest of the batch.
			slog.Error("Failed to announce run", "run", run.ID, "error", err)
			result.Err = err.Error()
			continue
		}

		slog.Info("Announced new run", "game", game.Name(), "run", run.ID, "player", run.Player)
		result.NewRuns++
	}

	return result
}

// resolveGame looks up a game by name, caching successful resolutions
// for the lifetime of the games list.
func (s *Scheduler) resolveGame(ctx context.Context, name string) (*srcom.Game, error) {
	s.stateMu.Lock()
	cached, ok := s.games[name]
	s.stateMu.Unlock()
	if ok {
		return cached, nil
	}

	game, err := s.client.ResolveGame(ctx, name)
	if err != nil {
		return nil, err
	}

	s.stateMu.Lock()
	s.games[name] = game
	s.stateMu.Unlock()
	return game, nil
}

// shouldSkip reports whether a game sits out this cycle, consuming one
// backoff credit when it does.
func (s *Scheduler) shouldSkip(name string) (string, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if reason, ok := s.skipped[name]; ok {
		return reason, true
	}

	if b, ok := s.backoff[name]; ok && b.skip > 0 {
		b.skip--
		return "backing off after repeated transient failures", true
	}

	return "", false
}

// recordFailure updates per-game failure state. Transient failures
// count toward backoff; permanent ones park the game until the
// configuration changes or a manual poll clears the skip set.
func (s *Scheduler) recordFailure(name string, err error) {
	var transient *srcom.TransientError
	if !errors.As(err, &transient) {
		slog.Warn("Game skipped until reconfiguration", "game", name, "error", err)
		s.stateMu.Lock()
		s.skipped[name] = err.Error()
		s.stateMu.Unlock()
		return
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	b, ok := s.backoff[name]
	if !ok {
		b = &backoffState{}
		s.backoff[name] = b
	}
	b.failures++

	if b.failures >= transientThreshold || b.wait > 0 {
		if b.wait == 0 {
			b.wait = 1
		} else if b.wait < maxBackoffIntervals {
			b.wait *= 2
		}
		b.skip = b.wait
		slog.Warn("Game entering backoff", "game", name, "skipCycles", b.skip)
	}
}

// recordSuccess clears a game's failure state after a clean fetch.
func (s *Scheduler) recordSuccess(name string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	delete(s.backoff, name)
}
