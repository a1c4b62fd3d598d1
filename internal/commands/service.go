package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/storage"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/watch"
)

// DefaultRecentCount is how many runs list-recent returns when the
// caller gives no count.
const DefaultRecentCount = 5

// ConfigValidationError rejects a user-supplied configuration value.
// The mutation is never partially applied.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Store is the subset of the repository the command service needs.
type Store interface {
	LoadSettings() (storage.Settings, error)
	SaveSettings(s storage.Settings) error
	ResetSettings() error
	ResetSeen() error
	CountSeen() (int, error)
	RecentlyAnnounced(n int) ([]storage.SeenRun, error)
}

// Poller is the subset of the scheduler the command service needs.
type Poller interface {
	PollNow(ctx context.Context) (*watch.CycleSummary, error)
	Diagnostics(ctx context.Context) ([]watch.GameDiag, error)
	ResetGameState()
}

// ConfigView is the structured result of show-config.
type ConfigView struct {
	Settings  storage.Settings
	SeenCount int
}

// Service implements one typed entry point per chat command. Every
// settings read-modify-write runs under the service mutex so a poll
// cycle never observes a torn update.
type Service struct {
	mu    sync.Mutex
	store Store
	sched Poller
}

// NewService creates the command service.
func NewService(store Store, sched Poller) *Service {
	return &Service{store: store, sched: sched}
}

// BindChannel points notifications at the given channel.
func (s *Service) BindChannel(channelID string) (storage.Settings, error) {
	if channelID == "" {
		return storage.Settings{}, &ConfigValidationError{Field: "channel", Reason: "channel id must not be empty"}
	}
	return s.mutate(func(cfg *storage.Settings) error {
		cfg.ChannelID = channelID
		return nil
	})
}

// SetRole sets the role mentioned on announcements; an empty id clears it.
func (s *Service) SetRole(roleID string) (storage.Settings, error) {
	return s.mutate(func(cfg *storage.Settings) error {
		cfg.RoleID = roleID
		return nil
	})
}

// SetGames replaces the monitored games list. Names are trimmed and
// duplicates dropped; an empty list is allowed and makes the poll cycle
// a no-op.
func (s *Service) SetGames(names []string) (storage.Settings, error) {
	cleaned := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, name)
	}

	settings, err := s.mutate(func(cfg *storage.Settings) error {
		cfg.Games = cleaned
		return nil
	})
	if err != nil {
		return settings, err
	}
	s.sched.ResetGameState()
	return settings, nil
}

// SetInterval sets the poll cadence in seconds; non-positive values are
// rejected and the stored value stays unchanged.
func (s *Service) SetInterval(seconds int) (storage.Settings, error) {
	if seconds <= 0 {
		return storage.Settings{}, &ConfigValidationError{Field: "interval", Reason: "must be a positive number of seconds"}
	}
	return s.mutate(func(cfg *storage.Settings) error {
		cfg.IntervalSeconds = seconds
		return nil
	})
}

// ResetSeen clears the seen-run history; every pending run becomes
// announceable again.
func (s *Service) ResetSeen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ResetSeen()
}

// ResetConfig restores default settings.
func (s *Service) ResetConfig() (storage.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ResetSettings(); err != nil {
		return storage.Settings{}, err
	}
	s.sched.ResetGameState()
	return s.store.LoadSettings()
}

// ShowConfig returns the current settings plus the seen-run count.
func (s *Service) ShowConfig() (*ConfigView, error) {
	settings, err := s.store.LoadSettings()
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountSeen()
	if err != nil {
		return nil, err
	}
	return &ConfigView{Settings: settings, SeenCount: count}, nil
}

// ListRecent returns the last n announced runs, newest first. A
// non-positive n means the default of 5.
func (s *Service) ListRecent(n int) ([]storage.SeenRun, error) {
	if n <= 0 {
		n = DefaultRecentCount
	}
	return s.store.RecentlyAnnounced(n)
}

// PollNow triggers one synchronous poll cycle.
func (s *Service) PollNow(ctx context.Context) (*watch.CycleSummary, error) {
	return s.sched.PollNow(ctx)
}

// DebugGames returns per-game match diagnostics.
func (s *Service) DebugGames(ctx context.Context) ([]watch.GameDiag, error) {
	return s.sched.Diagnostics(ctx)
}

// mutate runs a load-modify-save critical section over the settings
// record and returns the persisted result.
func (s *Service) mutate(fn func(cfg *storage.Settings) error) (storage.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.store.LoadSettings()
	if err != nil {
		return storage.Settings{}, err
	}
	if err := fn(&settings); err != nil {
		return storage.Settings{}, err
	}
	if err := s.store.SaveSettings(settings); err != nil {
		return storage.Settings{}, err
	}
	return settings, nil
}
