package job

import (
	"encoding/json"
	"time"
)

// Job is a queued message whose handler failed. Payload is the original
// message body, republished unchanged on retry.
type Job struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
