package realtime

import "time"

// OperationEvent is a live progress notification for one operation. It is not persisted.
type OperationEvent struct {
	OperationID string    `json:"operationId"`
	Blockchain  string    `json:"blockchain,omitempty"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}
