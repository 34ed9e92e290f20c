package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/repo"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

// echoRunner appends the user message and a canned reply. When gate is
// set, RunTurn signals entered and waits for gate to close.
type echoRunner struct {
	store   model.CheckpointStore
	gate    chan struct{}
	entered chan struct{}
}

func (r *echoRunner) RunTurn(ctx context.Context, id, text string, _ model.Sink) (*model.TurnResult, error) {
	if r.gate != nil {
		r.entered <- struct{}{}
		<-r.gate
	}
	state, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	state = state.Apply(model.StatePatch{Messages: []model.Message{
		model.UserMessage(text),
		model.AssistantMessage("planning", "ok", nil),
	}})
	if err := r.store.Put(ctx, id, state); err != nil {
		return nil, err
	}
	return &model.TurnResult{SessionID: id, Status: model.TurnSuspended, Messages: state.Messages[len(state.Messages)-1:], Steps: 1, Progress: state.Progress()}, nil
}

func (r *echoRunner) Resume(ctx context.Context, id string, _ model.Sink) (*model.TurnResult, error) {
	return nil, errx.Conflict("session has no interrupted turn", nil)
}

func (r *echoRunner) State(ctx context.Context, id string) (*model.ConversationState, error) {
	return r.store.Get(ctx, id)
}

func newService(t *testing.T) (*Service, *echoRunner, *repo.MemoryCheckpointStore) {
	t.Helper()
	store := repo.NewMemoryCheckpointStore()
	runner := &echoRunner{store: store}
	return NewService(NewRegistry(store, nil), runner), runner, store
}

func TestCreateGetDelete(t *testing.T) {
	svc, _, store := newService(t)
	ctx := context.Background()
	reg := svc.Registry()

	info, err := reg.Create(ctx)
	require.NoError(t, err)
	assert.Len(t, info.ID, 36)
	assert.True(t, reg.Exists(info.ID))

	got, err := reg.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	state, err := store.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Empty(t, state.Messages)

	require.NoError(t, reg.Delete(ctx, info.ID))
	assert.False(t, reg.Exists(info.ID))
	_, err = store.Get(ctx, info.ID)
	assert.True(t, errx.IsKind(err, errx.KindNotFound))

	err = reg.Delete(ctx, info.ID)
	assert.True(t, errx.IsKind(err, errx.KindNotFound))
	_, err = reg.Get(info.ID)
	assert.True(t, errx.IsKind(err, errx.KindNotFound))
}

func TestSendUpdatesMetadata(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	info, err := svc.Registry().Create(ctx)
	require.NoError(t, err)

	res, err := svc.Send(ctx, info.ID, "Plan a trip", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Reply())

	got, err := svc.Registry().Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.False(t, got.LastUpdated.Before(info.LastUpdated))

	st := svc.Registry().Stats()
	assert.Equal(t, 1, st.TotalSessions)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, 2, st.TotalMessages)
	assert.InDelta(t, 2.0, st.AvgMessagesPerSession, 0.001)

	_, err = svc.Send(ctx, "nope", "hi", nil)
	assert.True(t, errx.IsKind(err, errx.KindNotFound))
}

func TestConcurrentTurnIsRejected(t *testing.T) {
	svc, runner, _ := newService(t)
	ctx := context.Background()
	info, err := svc.Registry().Create(ctx)
	require.NoError(t, err)

	runner.gate = make(chan struct{})
	runner.entered = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, info.ID, "first", nil)
		done <- err
	}()
	<-runner.entered

	_, err = svc.Send(ctx, info.ID, "second", nil)
	assert.True(t, errx.IsKind(err, errx.KindConflict))

	// a busy session survives cleanup
	assert.Equal(t, 0, svc.Registry().Cleanup(ctx, -time.Hour))

	close(runner.gate)
	require.NoError(t, <-done)

	runner.gate = nil
	_, err = svc.Send(ctx, info.ID, "third", nil)
	assert.NoError(t, err)
}

func TestDeleteDuringTurnIsRejected(t *testing.T) {
	svc, runner, store := newService(t)
	ctx := context.Background()
	info, err := svc.Registry().Create(ctx)
	require.NoError(t, err)

	runner.gate = make(chan struct{})
	runner.entered = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, info.ID, "first", nil)
		done <- err
	}()
	<-runner.entered

	err = svc.Registry().Delete(ctx, info.ID)
	assert.True(t, errx.IsKind(err, errx.KindConflict))
	assert.True(t, svc.Registry().Exists(info.ID))

	close(runner.gate)
	require.NoError(t, <-done)

	state, err := store.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Len(t, state.Messages, 2)

	require.NoError(t, svc.Registry().Delete(ctx, info.ID))
	assert.False(t, svc.Registry().Exists(info.ID))
	_, err = store.Get(ctx, info.ID)
	assert.True(t, errx.IsKind(err, errx.KindNotFound))

	restored := NewRegistry(store, nil)
	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCleanupRemovesIdleSessions(t *testing.T) {
	svc, _, store := newService(t)
	ctx := context.Background()
	reg := svc.Registry()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	old, err := reg.Create(ctx)
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	fresh, err := reg.Create(ctx)
	require.NoError(t, err)

	st := reg.Stats()
	assert.Equal(t, 2, st.TotalSessions)
	assert.Equal(t, 1, st.ActiveSessions)

	assert.Equal(t, 1, reg.Cleanup(ctx, 2*time.Hour))
	assert.False(t, reg.Exists(old.ID))
	assert.True(t, reg.Exists(fresh.ID))
	_, err = store.Get(ctx, old.ID)
	assert.Error(t, err)

	ids := make([]string, 0)
	for _, i := range reg.List() {
		ids = append(ids, i.ID)
	}
	assert.Equal(t, []string{fresh.ID}, ids)
}

func TestRestoreFromStore(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	ctx := context.Background()
	state := model.NewConversationState().Apply(model.StatePatch{Messages: []model.Message{model.UserMessage("hi")}})
	require.NoError(t, store.Put(ctx, "kept", state))

	reg := NewRegistry(store, nil)
	n, err := reg.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := reg.Get("kept")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MessageCount)
}

func TestJanitorStopsWithContext(t *testing.T) {
	svc, _, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Janitor(ctx, model.SessionConfig{MaxAge: time.Hour, CleanupInterval: time.Millisecond})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
