package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/storage"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/watch"
)

type memStore struct {
	settings storage.Settings
	recent   []storage.SeenRun
	seen     int
	resets   int
}

func newMemStore() *memStore {
	return &memStore{settings: storage.DefaultSettings()}
}

func (m *memStore) LoadSettings() (storage.Settings, error) { return m.settings, nil }
func (m *memStore) SaveSettings(s storage.Settings) error   { m.settings = s; return nil }
func (m *memStore) ResetSettings() error {
	m.settings = storage.DefaultSettings()
	return nil
}
func (m *memStore) ResetSeen() error        { m.resets++; return nil }
func (m *memStore) CountSeen() (int, error) { return m.seen, nil }
func (m *memStore) RecentlyAnnounced(n int) ([]storage.SeenRun, error) {
	if n > len(m.recent) {
		n = len(m.recent)
	}
	return m.recent[:n], nil
}

type stubPoller struct {
	resets  int
	summary *watch.CycleSummary
}

func (p *stubPoller) PollNow(context.Context) (*watch.CycleSummary, error) {
	return p.summary, nil
}
func (p *stubPoller) Diagnostics(context.Context) ([]watch.GameDiag, error) { return nil, nil }
func (p *stubPoller) ResetGameState()                                       { p.resets++ }

func newTestService() (*Service, *memStore, *stubPoller) {
	store := newMemStore()
	poller := &stubPoller{summary: &watch.CycleSummary{}}
	return NewService(store, poller), store, poller
}

func TestSetIntervalRejectsNonPositive(t *testing.T) {
	svc, store, _ := newTestService()
	before := store.settings.IntervalSeconds

	_, err := svc.SetInterval(-5)

	var validation *ConfigValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "interval", validation.Field)
	require.Equal(t, before, store.settings.IntervalSeconds, "stored interval must be unchanged")

	_, err = svc.SetInterval(0)
	require.ErrorAs(t, err, &validation)
	require.Equal(t, before, store.settings.IntervalSeconds)
}

func TestSetIntervalPersistsValidValue(t *testing.T) {
	svc, store, _ := newTestService()

	settings, err := svc.SetInterval(120)
	require.NoError(t, err)
	require.Equal(t, 120, settings.IntervalSeconds)
	require.Equal(t, 120, store.settings.IntervalSeconds)
}

func TestSetGamesCleansAndDeduplicates(t *testing.T) {
	svc, store, poller := newTestService()

	settings, err := svc.SetGames([]string{" Destiny 2 ", "", "Halo 3", "destiny 2", "Portal"})
	require.NoError(t, err)
	require.Equal(t, []string{"Destiny 2", "Halo 3", "Portal"}, settings.Games)
	require.Equal(t, settings.Games, store.settings.Games)
	require.Equal(t, 1, poller.resets, "changing games must reset scheduler game state")
}

func TestSetGamesAllowsEmptyList(t *testing.T) {
	svc, store, _ := newTestService()

	settings, err := svc.SetGames(nil)
	require.NoError(t, err)
	require.Empty(t, settings.Games)
	require.Empty(t, store.settings.Games)
}

func TestBindChannelRequiresChannel(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.BindChannel("")
	var validation *ConfigValidationError
	require.ErrorAs(t, err, &validation)

	settings, err := svc.BindChannel("chan-42")
	require.NoError(t, err)
	require.Equal(t, "chan-42", settings.ChannelID)
}

func TestSetRoleSetsAndClears(t *testing.T) {
	svc, store, _ := newTestService()

	_, err := svc.SetRole("role-9")
	require.NoError(t, err)
	require.Equal(t, "role-9", store.settings.RoleID)

	_, err = svc.SetRole("")
	require.NoError(t, err)
	require.Empty(t, store.settings.RoleID)
}

func TestResetConfigRestoresDefaults(t *testing.T) {
	svc, store, poller := newTestService()
	store.settings.ChannelID = "chan"
	store.settings.IntervalSeconds = 7

	settings, err := svc.ResetConfig()
	require.NoError(t, err)
	require.Equal(t, storage.DefaultSettings().Games, settings.Games)
	require.Equal(t, storage.DefaultIntervalSeconds, settings.IntervalSeconds)
	require.Empty(t, settings.ChannelID)
	require.Equal(t, 1, poller.resets)
}

func TestListRecentDefaultsToFive(t *testing.T) {
	svc, store, _ := newTestService()
	for i := 0; i < 7; i++ {
		store.recent = append(store.recent, storage.SeenRun{RunID: string(rune('a' + i))})
	}

	runs, err := svc.ListRecent(0)
	require.NoError(t, err)
	require.Len(t, runs, DefaultRecentCount)

	runs, err = svc.ListRecent(3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestShowConfigIncludesSeenCount(t *testing.T) {
	svc, store, _ := newTestService()
	store.seen = 42

	view, err := svc.ShowConfig()
	require.NoError(t, err)
	require.Equal(t, 42, view.SeenCount)
	require.Equal(t, store.settings.Games, view.Settings.Games)
}

func TestResetSeenDelegates(t *testing.T) {
	svc, store, _ := newTestService()
	require.NoError(t, svc.ResetSeen())
	require.Equal(t, 1, store.resets)
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"bindchannel": KindBindChannel,
		"setrole":     KindSetRole,
		"setgames":    KindSetGames,
		"setinterval": KindSetInterval,
		"resetseen":   KindResetSeen,
		"resetconfig": KindResetConfig,
		"config":      KindShowConfig,
		"recent":      KindListRecent,
		"pollnow":     KindPollNow,
		"debuggames":  KindDebugGames,
		"bogus":       KindUnknown,
		"":            KindUnknown,
	}
	for name, want := range cases {
		if got := ParseKind(name); got != want {
			t.Fatalf("ParseKind(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAdminOnlyGating(t *testing.T) {
	admin := []Kind{KindBindChannel, KindSetRole, KindSetGames, KindSetInterval, KindResetSeen, KindResetConfig}
	open := []Kind{KindShowConfig, KindListRecent, KindPollNow, KindDebugGames, KindUnknown}

	for _, k := range admin {
		if !k.AdminOnly() {
			t.Fatalf("%v should be admin-only", k)
		}
	}
	for _, k := range open {
		if k.AdminOnly() {
			t.Fatalf("%v should not be admin-only", k)
		}
	}
}
