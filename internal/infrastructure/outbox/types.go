package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Item is a best-effort calendar operation toward the sink that could not be
// delivered immediately. Items are replayed by the outbox processor and
// dropped after too many failures.
type Item struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
