package progress

import (
	"encoding/json"
	"fmt"
)

// Message types on the live subscription. Anything else is dropped.
const (
	messageTypeProgress  = "progress"
	messageTypeError     = "error"
	messageTypeHeartbeat = "heartbeat"
)

// Update is one progress tick for a task.
type Update struct {
	TaskID     string  `json:"task_id"`
	Stage      string  `json:"stage"`
	Percentage int     `json:"percentage"`
	Message    string  `json:"message"`
	Timestamp  float64 `json:"timestamp"`
}

// TaskError is a terminal failure reported by the service. UserMessage
// is for display; TechnicalDetail is for logs and debugging.
type TaskError struct {
	TaskID          string  `json:"task_id"`
	ErrorCode       string  `json:"error_code"`
	UserMessage     string  `json:"user_message"`
	TechnicalDetail string  `json:"technical_detail"`
	Timestamp       float64 `json:"timestamp"`
}

// envelope carries just enough to dispatch on message type.
type envelope struct {
	Type string `json:"type"`
}

// decodeMessage parses one wire frame. Heartbeats return (nil, nil,
// true): valid but carrying nothing for the caller.
func decodeMessage(data []byte) (*Update, *TaskError, bool, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, false, fmt.Errorf("parse message envelope: %w", err)
	}

	switch env.Type {
	case messageTypeProgress:
		var update Update
		if err := json.Unmarshal(data, &update); err != nil {
			return nil, nil, false, fmt.Errorf("parse progress message: %w", err)
		}
		return &update, nil, true, nil
	case messageTypeError:
		var taskErr TaskError
		if err := json.Unmarshal(data, &taskErr); err != nil {
			return nil, nil, false, fmt.Errorf("parse error message: %w", err)
		}
		return nil, &taskErr, true, nil
	case messageTypeHeartbeat:
		return nil, nil, true, nil
	default:
		return nil, nil, false, fmt.Errorf("unknown message type %q", env.Type)
	}
}
