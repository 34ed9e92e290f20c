// Package session tracks planner sessions and serialises the turns run
// against each of them.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	"github.com/bikepack-planner/server/internal/metrics"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// activeWindow is how recent a session's last turn must be to count as active.
const activeWindow = time.Hour

// Info is the metadata kept for one session.
type Info struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
	MessageCount int       `json:"message_count"`
}

// Stats summarises the registry.
type Stats struct {
	TotalSessions         int     `json:"total_sessions"`
	ActiveSessions        int     `json:"active_sessions"`
	TotalMessages         int     `json:"total_messages"`
	AvgMessagesPerSession float64 `json:"avg_messages_per_session"`
}

type entry struct {
	info Info
	// turn is held while a turn runs on the session.
	turn sync.Mutex
}

// Registry maps session ids to their metadata. Checkpoints themselves live
// in the store; the registry creates and deletes them.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	store    model.CheckpointStore
	metrics  *metrics.Collectors
	now      func() time.Time
}

func NewRegistry(store model.CheckpointStore, m *metrics.Collectors) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		store:    store,
		metrics:  m,
		now:      time.Now,
	}
}

// Restore registers every session the store already holds, so checkpoints
// survive a restart. Stores that cannot list are skipped.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	lister, ok := r.store.(model.CheckpointLister)
	if !ok {
		return 0, nil
	}
	infos, err := lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}

	restored := 0
	for _, ci := range infos {
		state, err := r.store.Get(ctx, ci.SessionID)
		if err != nil {
			logx.Warn().Err(err).Str("session_id", ci.SessionID).Msg("Skipping unreadable checkpoint")
			continue
		}
		r.mu.Lock()
		if _, exists := r.sessions[ci.SessionID]; !exists {
			r.sessions[ci.SessionID] = &entry{info: Info{
				ID:           ci.SessionID,
				CreatedAt:    ci.UpdatedAt,
				LastUpdated:  ci.UpdatedAt,
				MessageCount: len(state.Messages),
			}}
			restored++
		}
		r.mu.Unlock()
	}
	r.publish()
	logx.Info().Int("restored", restored).Msg("Sessions restored from checkpoint store")
	return restored, nil
}

// Create registers a new session with an empty checkpoint.
func (r *Registry) Create(ctx context.Context) (Info, error) {
	id := uuid.NewString()
	if err := r.store.Put(ctx, id, model.NewConversationState()); err != nil {
		return Info{}, fmt.Errorf("create session checkpoint: %w", err)
	}
	now := r.now()
	info := Info{ID: id, CreatedAt: now, LastUpdated: now}

	r.mu.Lock()
	r.sessions[id] = &entry{info: info}
	r.mu.Unlock()
	r.publish()

	logx.Info().Str("session_id", id).Msg("Session created")
	return info, nil
}

func (r *Registry) Get(id string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return Info{}, errx.NotFound("session not found", fmt.Errorf("session %q", id))
	}
	return e.info, nil
}

func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// Delete forgets the session and removes its checkpoint. A session with a
// turn in flight is not deleted.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return errx.NotFound("session not found", fmt.Errorf("session %q", id))
	}
	if !e.turn.TryLock() {
		r.mu.Unlock()
		return errx.Conflict("a message is being processed for this session", fmt.Errorf("session %q is busy", id))
	}
	delete(r.sessions, id)
	r.mu.Unlock()
	defer e.turn.Unlock()
	r.publish()

	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session checkpoint: %w", err)
	}
	logx.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// List returns all sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.info)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st Stats
	cutoff := r.now().Add(-activeWindow)
	for _, e := range r.sessions {
		st.TotalSessions++
		st.TotalMessages += e.info.MessageCount
		if e.info.LastUpdated.After(cutoff) {
			st.ActiveSessions++
		}
	}
	if st.TotalSessions > 0 {
		st.AvgMessagesPerSession = float64(st.TotalMessages) / float64(st.TotalSessions)
	}
	return st
}

// Cleanup deletes sessions idle for longer than maxAge. Sessions with a
// turn in flight are left alone.
func (r *Registry) Cleanup(ctx context.Context, maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)
	var stale []string

	r.mu.Lock()
	for id, e := range r.sessions {
		if !e.info.LastUpdated.Before(cutoff) {
			continue
		}
		if !e.turn.TryLock() {
			continue
		}
		e.turn.Unlock()
		stale = append(stale, id)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, id := range stale {
		if err := r.store.Delete(ctx, id); err != nil {
			logx.Warn().Err(err).Str("session_id", id).Msg("Failed to delete expired checkpoint")
		}
	}
	if len(stale) > 0 {
		r.publish()
		logx.Info().Int("removed", len(stale)).Msg("Cleaned up old sessions")
	}
	return len(stale)
}

// acquire takes the session's turn lock. A session already running a turn
// is a conflict.
func (r *Registry) acquire(id string) (func(), error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, errx.NotFound("session not found", fmt.Errorf("session %q", id))
	}
	if !e.turn.TryLock() {
		return nil, errx.Conflict("a message is already being processed for this session", fmt.Errorf("session %q is busy", id))
	}
	// deleted between the lookup and the lock
	r.mu.Lock()
	current := r.sessions[id]
	r.mu.Unlock()
	if current != e {
		e.turn.Unlock()
		return nil, errx.NotFound("session not found", fmt.Errorf("session %q", id))
	}
	return e.turn.Unlock, nil
}

// touch records a finished turn.
func (r *Registry) touch(id string, messageCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.info.LastUpdated = r.now()
		e.info.MessageCount = messageCount
	}
}

func (r *Registry) publish() {
	r.mu.Lock()
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)
}
