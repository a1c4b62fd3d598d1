package watch

import "github.com/aCatWithSchizophrenia/SRCNotifications/internal/srcom"

// FilterNew returns the candidates whose ids are absent from seen,
// preserving input order. Pure: no I/O, no mutation of either argument;
// persisting accepted runs is the caller's job.
func FilterNew(candidates []srcom.Run, seen map[string]struct{}) []srcom.Run {
	var fresh []srcom.Run
	for _, run := range candidates {
		if _, ok := seen[run.ID]; ok {
			continue
		}
		fresh = append(fresh, run)
	}
	return fresh
}
