package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/logger"
	"github.com/saiset-co/sai-query-service/types"
)

type stubConfigManager struct {
	config *types.ServiceConfig
}

func (s *stubConfigManager) Load() error { return nil }

func (s *stubConfigManager) GetConfig() *types.ServiceConfig { return s.config }

func newTestDispatcher(t *testing.T) types.ActionBroker {
	t.Helper()

	config := &stubConfigManager{config: &types.ServiceConfig{
		Actions: &types.ActionsConfig{Enabled: true},
	}}

	dispatcher, err := NewDispatcher(context.Background(), config,
		logger.NewZapWrapper(zap.NewNop()), nil)
	require.NoError(t, err)
	require.NoError(t, dispatcher.Start())
	t.Cleanup(func() { _ = dispatcher.Stop() })

	return dispatcher
}

func TestDispatcherDisabled(t *testing.T) {
	config := &stubConfigManager{config: &types.ServiceConfig{
		Actions: &types.ActionsConfig{Enabled: false},
	}}

	_, err := NewDispatcher(context.Background(), config,
		logger.NewZapWrapper(zap.NewNop()), nil)
	assert.ErrorIs(t, err, types.ErrActionIsDisabled)
}

func TestPublishInvokesSubscribedHandlers(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	var received []*types.ActionMessage
	require.NoError(t, dispatcher.Subscribe(types.ActionQueryCompleted, func(message *types.ActionMessage) error {
		received = append(received, message)
		return nil
	}))

	require.NoError(t, dispatcher.Publish(types.ActionQueryCompleted, map[string]string{"signature": "abc"}))

	require.Len(t, received, 1)
	message := received[0]
	assert.Equal(t, types.ActionQueryCompleted, message.Action)
	assert.Equal(t, "query-service", message.Source)
	assert.NotEmpty(t, message.MessageID)
	assert.False(t, message.Timestamp.IsZero())
}

func TestPublishSkipsOtherActions(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	completed := 0
	require.NoError(t, dispatcher.Subscribe(types.ActionQueryCompleted, func(*types.ActionMessage) error {
		completed++
		return nil
	}))

	require.NoError(t, dispatcher.Publish(types.ActionQueryFailed, nil))
	assert.Zero(t, completed)
}

func TestPublishToleratesHandlerFailure(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	calls := 0
	require.NoError(t, dispatcher.Subscribe(types.ActionQueryCompleted, func(*types.ActionMessage) error {
		calls++
		return types.NewErrorf("handler rejected message")
	}))
	require.NoError(t, dispatcher.Subscribe(types.ActionQueryCompleted, func(*types.ActionMessage) error {
		calls++
		return nil
	}))

	// A failing handler never fails the publication.
	require.NoError(t, dispatcher.Publish(types.ActionQueryCompleted, nil))
	assert.Equal(t, 2, calls)
}

func TestUnsubscribeRemovesAllHandlers(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	calls := 0
	require.NoError(t, dispatcher.Subscribe(types.ActionQueryCompleted, func(*types.ActionMessage) error {
		calls++
		return nil
	}))

	require.NoError(t, dispatcher.Unsubscribe(types.ActionQueryCompleted))
	require.NoError(t, dispatcher.Publish(types.ActionQueryCompleted, nil))

	assert.Zero(t, calls)
}

func TestSubscribeValidation(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	assert.ErrorIs(t, dispatcher.Subscribe("", func(*types.ActionMessage) error { return nil }), types.ErrActionConfigInvalid)
	assert.ErrorIs(t, dispatcher.Subscribe(types.ActionQueryCompleted, nil), types.ErrActionConfigInvalid)
}

func TestPublishRequiresRunningDispatcher(t *testing.T) {
	config := &stubConfigManager{config: &types.ServiceConfig{
		Actions: &types.ActionsConfig{Enabled: true},
	}}

	dispatcher, err := NewDispatcher(context.Background(), config,
		logger.NewZapWrapper(zap.NewNop()), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, dispatcher.Publish(types.ActionQueryCompleted, nil), types.ErrActionNotInitialized)
}
