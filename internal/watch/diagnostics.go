package watch

import (
	"context"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/srcom"
)

// GameDiag reports per-game match diagnostics for the debug-games
// command: how the configured name resolved and how many pending runs
// are waiting, seen or not.
type GameDiag struct {
	Query       string
	Resolved    string
	GameID      string
	Pending     int
	Unseen      int
	BackoffLeft int
	SkipReason  string
	Err         string
}

// Diagnostics resolves every configured game and counts its pending
// runs against the seen-set, without announcing or marking anything.
func (s *Scheduler) Diagnostics(ctx context.Context) ([]GameDiag, error) {
	settings, err := s.store.LoadSettings()
	if err != nil {
		return nil, err
	}

	seen, err := s.store.SeenIDs()
	if err != nil {
		return nil, err
	}

	diags := make([]GameDiag, 0, len(settings.Games))
	for _, name := range settings.Games {
		diag := GameDiag{Query: name}

		s.stateMu.Lock()
		if reason, ok := s.skipped[name]; ok {
			diag.SkipReason = reason
		}
		if b, ok := s.backoff[name]; ok {
			diag.BackoffLeft = b.skip
		}
		s.stateMu.Unlock()

		game, err := s.resolveGame(ctx, name)
		if err != nil {
			diag.Err = err.Error()
			diags = append(diags, diag)
			continue
		}
		diag.Resolved = game.Name()
		diag.GameID = game.ID

		runs, err := s.client.FetchRuns(ctx, game.ID, srcom.StatusNew)
		if err != nil {
			diag.Err = err.Error()
			diags = append(diags, diag)
			continue
		}

		diag.Pending = len(runs)
		diag.Unseen = len(FilterNew(runs, seen))
		diags = append(diags, diag)
	}

	return diags, nil
}
