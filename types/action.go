package types

import (
	"time"
)

const (
	ActionQueryCompleted = "query.completed"
	ActionQueryFailed    = "query.failed"
)

type ActionBroker interface {
	LifecycleManager
	Publish(action string, payload interface{}) error
	Subscribe(action string, handler ActionHandler) error
	Unsubscribe(action string) error
}

type ActionHandler func(message *ActionMessage) error

type ActionMessage struct {
	Action    string      `json:"action"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	MessageID string      `json:"message_id"`
}
