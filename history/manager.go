package history

import (
	"context"

	"github.com/saiset-co/sai-query-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func NewHistoryStore(ctx context.Context, config types.ConfigManager, logger types.Logger) (types.HistoryStore, error) {
	historyConfig := config.GetConfig().History

	if !historyConfig.Enabled {
		return nil, types.ErrHistoryIsDisabled
	}

	switch historyConfig.Type {
	case "memory":
		return NewMemoryStore(ctx, logger, historyConfig)
	case "clover":
		return NewCloverStore(ctx, logger, historyConfig)
	default:
		return nil, types.Errorf(types.ErrHistoryTypeUnknown, "type: %s", historyConfig.Type)
	}
}
