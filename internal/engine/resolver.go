package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Resolver finds the session that is open for a class at a given instant.
// Time is always an explicit parameter; nothing here reads a wall clock.
type Resolver struct {
	dir Directory
	log *zap.Logger
}

// NewResolver creates a resolver over the directory store.
func NewResolver(dir Directory, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{dir: dir, log: log}
}

// ResolveActive returns the unique active session of classID whose window
// contains at, or ok=false when none is open. Overlapping windows are an
// operator mistake; the lowest session id wins so every call site sees the
// same session, and the overlap is logged.
func (r *Resolver) ResolveActive(ctx context.Context, classID int64, at time.Time) (Session, bool, error) {
	date := at.Format("2006-01-02")
	sessions, err := r.dir.ActiveSessions(ctx, classID, date)
	if err != nil {
		return Session{}, false, fmt.Errorf("load active sessions: %w", err)
	}

	open := sessions[:0:0]
	for _, s := range sessions {
		if s.Contains(at) {
			open = append(open, s)
		}
	}
	if len(open) == 0 {
		return Session{}, false, nil
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	if len(open) > 1 {
		r.log.Warn("overlapping active sessions, picking lowest id",
			zap.Int64("class_id", classID),
			zap.String("date", date),
			zap.Int("overlapping", len(open)),
			zap.Int64("chosen", open[0].ID))
	}
	return open[0], true, nil
}
