package history

import (
	"context"
	"sync/atomic"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

const historyCollection = "query_history"

type CloverConfig struct {
	Path string `json:"path"`
}

// CloverStore persists query summaries in an embedded document database
// so history survives restarts.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
	config *CloverConfig
	state  atomic.Value
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.HistoryConfig) (types.HistoryStore, error) {
	cloverConfig := &CloverConfig{}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, cloverConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover history config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open history database")
	}

	exists, err := db.HasCollection(historyCollection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check history collection")
	}

	if !exists {
		err = db.CreateCollection(historyCollection)
		if err != nil {
			return nil, types.WrapError(err, "failed to create history collection")
		}
	}

	store := &CloverStore{
		db:     db,
		logger: logger,
		config: cloverConfig,
	}

	store.state.Store(StateStopped)

	return store, nil
}

func (s *CloverStore) Append(entry *types.HistoryEntry) error {
	if entry == nil {
		return types.ErrHistoryEntryIsNil
	}

	data, err := utils.Marshal(entry)
	if err != nil {
		return types.WrapError(err, "failed to marshal history entry")
	}

	var fields map[string]interface{}
	err = utils.Unmarshal(data, &fields)
	if err != nil {
		return types.WrapError(err, "failed to convert history entry")
	}

	// Numeric sort key for Recent()
	fields["created_at_ns"] = entry.CreatedAt.UnixNano()

	doc := clover.NewDocumentOf(fields)

	err = s.db.Insert(historyCollection, doc)
	if err != nil {
		return types.WrapError(err, "failed to insert history entry")
	}

	return nil
}

func (s *CloverStore) Recent(limit int) ([]types.HistoryEntry, error) {
	query := s.db.Query(historyCollection).
		Sort(clover.SortOption{Field: "created_at_ns", Direction: -1})

	if limit > 0 {
		query = query.Limit(limit)
	}

	docs, err := query.FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to query history")
	}

	entries := make([]types.HistoryEntry, 0, len(docs))
	for _, doc := range docs {
		fields := doc.ToMap()
		delete(fields, "_id")
		delete(fields, "created_at_ns")

		data, err := utils.Marshal(fields)
		if err != nil {
			s.logger.Warn("Skipping unreadable history document", zap.Error(err))
			continue
		}

		var entry types.HistoryEntry
		err = utils.Unmarshal(data, &entry)
		if err != nil {
			s.logger.Warn("Skipping malformed history document", zap.Error(err))
			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *CloverStore) Count() (int, error) {
	count, err := s.db.Query(historyCollection).Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count history entries")
	}

	return count, nil
}

func (s *CloverStore) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrComponentRunning
	}

	s.logger.Info("Clover history store started", zap.String("path", s.config.Path))
	return nil
}

func (s *CloverStore) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrComponentNotRunning
	}

	defer s.state.Store(StateStopped)

	err := s.db.Close()
	if err != nil {
		return types.WrapError(err, "failed to close history database")
	}

	s.logger.Info("Clover history store stopped")
	return nil
}

func (s *CloverStore) IsRunning() bool {
	return s.state.Load().(State) == StateRunning
}
