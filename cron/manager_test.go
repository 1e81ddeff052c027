package cron

import (
	"testing"
	"time"

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

func newTestManager(t *testing.T) types.CronManager {
	t.Helper()

	config := &stubConfigManager{config: &types.ServiceConfig{
		Cron: &types.CronConfig{Enabled: true, Timezone: "UTC"},
	}}

	manager, err := NewManager(config, logger.NewZapWrapper(zap.NewNop()), nil)
	require.NoError(t, err)
	return manager
}

func TestAddValidation(t *testing.T) {
	manager := newTestManager(t)

	testCases := []struct {
		name     string
		jobName  string
		spec     string
		job      func()
		expected error
	}{
		{name: "empty_name", jobName: "", spec: "* * * * * *", job: func() {}, expected: types.ErrCronJobNameIsEmpty},
		{name: "empty_spec", jobName: "job", spec: "", job: func() {}, expected: types.ErrCronExpressionInvalid},
		{name: "nil_job", jobName: "job", spec: "* * * * * *", job: nil, expected: types.ErrCronJobIsNil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, manager.Add(tc.jobName, tc.spec, tc.job), tc.expected)
		})
	}
}

func TestAddRejectsMalformedSpec(t *testing.T) {
	manager := newTestManager(t)

	err := manager.Add("bad-spec", "not a cron spec", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add cron job")
}

func TestAddRejectsDuplicateName(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Add("sweep", "0 */5 * * * *", func() {}))
	assert.ErrorIs(t, manager.Add("sweep", "0 */10 * * * *", func() {}), types.ErrCronJobExists)
}

func TestRemove(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Add("sweep", "0 */5 * * * *", func() {}))
	require.NoError(t, manager.Remove("sweep"))

	// Name is free again after removal.
	assert.NoError(t, manager.Add("sweep", "0 */5 * * * *", func() {}))
	assert.ErrorIs(t, manager.Remove("absent"), types.ErrCronJobNotFound)
}

func TestJobRunsOnSecondsSchedule(t *testing.T) {
	manager := newTestManager(t)

	ran := make(chan struct{}, 4)
	require.NoError(t, manager.Add("ticker", "* * * * * *", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))

	require.NoError(t, manager.Start())
	defer func() { _ = manager.Stop() }()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run within schedule window")
	}
}

func TestManagerLifecycle(t *testing.T) {
	manager := newTestManager(t)

	assert.False(t, manager.IsRunning())
	require.NoError(t, manager.Start())
	assert.True(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Start(), types.ErrCronIsRunning)

	require.NoError(t, manager.Stop())
	assert.False(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Stop(), types.ErrComponentNotRunning)
}

func TestInvalidTimezoneFallsBackToUTC(t *testing.T) {
	config := &stubConfigManager{config: &types.ServiceConfig{
		Cron: &types.CronConfig{Enabled: true, Timezone: "Mars/Olympus"},
	}}

	manager, err := NewManager(config, logger.NewZapWrapper(zap.NewNop()), nil)
	require.NoError(t, err)
	assert.NotNil(t, manager)
}
