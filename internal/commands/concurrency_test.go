package commands

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/srcom"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/storage"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/watch"
)

// raceStore is shared by the command service and the scheduler, like
// the real repository. It snapshots every persisted games list so a
// test can check none of them was torn mid-update.
type raceStore struct {
	mu       sync.Mutex
	settings storage.Settings
	seen     map[string]struct{}
	saved    [][]string
}

func newRaceStore(games []string) *raceStore {
	return &raceStore{
		settings: storage.Settings{
			ChannelID:       "chan-1",
			Games:           append([]string(nil), games...),
			IntervalSeconds: 300,
		},
		seen: make(map[string]struct{}),
	}
}

func (r *raceStore) LoadSettings() (storage.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.settings
	s.Games = append([]string(nil), r.settings.Games...)
	return s, nil
}

func (r *raceStore) SaveSettings(s storage.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Games = append([]string(nil), s.Games...)
	r.settings = s
	r.saved = append(r.saved, append([]string(nil), s.Games...))
	return nil
}

func (r *raceStore) ResetSettings() error {
	return r.SaveSettings(storage.DefaultSettings())
}

func (r *raceStore) ResetSeen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = make(map[string]struct{})
	return nil
}

func (r *raceStore) CountSeen() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen), nil
}

func (r *raceStore) RecentlyAnnounced(int) ([]storage.SeenRun, error) { return nil, nil }

func (r *raceStore) SeenIDs() (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]struct{}, len(r.seen))
	for id := range r.seen {
		snapshot[id] = struct{}{}
	}
	return snapshot, nil
}

func (r *raceStore) MarkSeen(rec storage.SeenRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[rec.RunID] = struct{}{}
	return nil
}

// blockingClient pauses inside FetchRuns until released, holding a poll
// cycle open mid-flight.
type blockingClient struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingClient) ResolveGame(_ context.Context, name string) (*srcom.Game, error) {
	g := &srcom.Game{ID: "g-" + name}
	g.Names.International = name
	return g, nil
}

func (c *blockingClient) FetchRuns(context.Context, string, string) ([]srcom.Run, error) {
	c.entered <- struct{}{}
	<-c.release
	return []srcom.Run{{ID: "R1"}}, nil
}

type nopSink struct{}

func (nopSink) Announce(srcom.Run, string, string, string) error { return nil }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSetGamesConcurrentWithCycleNeverPersistsTornList(t *testing.T) {
	listA := []string{"Destiny 2"}
	listB := []string{"Halo 3", "Portal", "Celeste"}

	store := newRaceStore(listA)
	client := &blockingClient{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	sched := watch.NewScheduler(store, client, nopSink{})
	svc := NewService(store, sched)

	done := make(chan *watch.CycleSummary)
	go func() {
		summary, err := sched.PollNow(context.Background())
		if err != nil {
			t.Errorf("poll now: %v", err)
		}
		done <- summary
	}()

	// The cycle is mid-fetch; replace the games list underneath it.
	<-client.entered
	settings, err := svc.SetGames(listB)
	require.NoError(t, err)
	require.Equal(t, listB, settings.Games)

	close(client.release)
	summary := <-done

	// The in-flight cycle keeps its snapshot of the old list.
	require.Len(t, summary.Games, len(listA))
	require.Equal(t, listA[0], summary.Games[0].Game)

	// Every persisted list is one of the two complete values, never a mix.
	require.NotEmpty(t, store.saved)
	for _, games := range store.saved {
		if !equalStrings(games, listA) && !equalStrings(games, listB) {
			t.Fatalf("persisted a torn games list: %v", games)
		}
	}

	final, err := store.LoadSettings()
	require.NoError(t, err)
	require.Equal(t, listB, final.Games)
}
