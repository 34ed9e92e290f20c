package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

type memoryEntry struct {
	state     *model.ConversationState
	updatedAt time.Time
}

// MemoryCheckpointStore keeps checkpoints in process. States are cloned on
// the way in and out so callers never share memory with the store.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCheckpointStore) Get(_ context.Context, sessionID string) (*model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return nil, errx.NotFound("checkpoint not found", fmt.Errorf("%w: %s", model.ErrCheckpointNotFound, sessionID))
	}
	return e.state.Clone(), nil
}

func (m *MemoryCheckpointStore) Put(_ context.Context, sessionID string, state *model.ConversationState) error {
	if state == nil {
		return errx.Validation("nil checkpoint", fmt.Errorf("session %s", sessionID))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionID] = memoryEntry{state: state.Clone(), updatedAt: m.now()}
	return nil
}

func (m *MemoryCheckpointStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

func (m *MemoryCheckpointStore) List(_ context.Context) ([]model.CheckpointInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CheckpointInfo, 0, len(m.entries))
	for id, e := range m.entries {
		out = append(out, model.CheckpointInfo{SessionID: id, UpdatedAt: e.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

var (
	_ model.CheckpointStore  = (*MemoryCheckpointStore)(nil)
	_ model.CheckpointLister = (*MemoryCheckpointStore)(nil)
)
