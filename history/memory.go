package history

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

type MemoryConfig struct {
	MaxEntries int `json:"max_entries"`
}

// MemoryStore keeps the newest MaxEntries query summaries; older ones
// are discarded in arrival order.
type MemoryStore struct {
	logger  types.Logger
	config  *MemoryConfig
	entries []types.HistoryEntry
	mu      sync.RWMutex
	state   atomic.Value
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.HistoryConfig) (types.HistoryStore, error) {
	memConfig := &MemoryConfig{
		MaxEntries: 1000,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, memConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory history config")
		}
	}

	store := &MemoryStore{
		logger: logger,
		config: memConfig,
	}

	store.state.Store(StateStopped)

	return store, nil
}

func (s *MemoryStore) Append(entry *types.HistoryEntry) error {
	if entry == nil {
		return types.ErrHistoryEntryIsNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *entry)
	if len(s.entries) > s.config.MaxEntries {
		s.entries = s.entries[len(s.entries)-s.config.MaxEntries:]
	}

	return nil
}

// Recent returns up to limit entries, newest first.
func (s *MemoryStore) Recent(limit int) ([]types.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	out := make([]types.HistoryEntry, 0, limit)
	for i := len(s.entries) - 1; i >= len(s.entries)-limit; i-- {
		out = append(out, s.entries[i])
	}

	return out, nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrComponentRunning
	}

	s.logger.Info("Memory history store started",
		zap.Int("max_entries", s.config.MaxEntries))
	return nil
}

func (s *MemoryStore) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrComponentNotRunning
	}

	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	s.logger.Info("Memory history store stopped")
	return nil
}

func (s *MemoryStore) IsRunning() bool {
	return s.state.Load().(State) == StateRunning
}
