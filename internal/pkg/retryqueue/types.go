package retryqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task is one deferred re-delivery of a gateway notification. Tasks are keyed
// by payment id so a notification can never have more than one pending retry.
type Task struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Svname    string    `json:"svname"`
	Svnum     int       `json:"svnum"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"created_at"`
	DueAt     time.Time `json:"due_at"`
}

// NewTask creates a retry task for a failed notification.
func NewTask(paymentID, svname string, svnum int) Task {
	return Task{
		ID:        uuid.New().String(),
		PaymentID: paymentID,
		Svname:    svname,
		Svnum:     svnum,
		Attempt:   1,
		CreatedAt: time.Now(),
	}
}

func (t Task) marshal() ([]byte, error) {
	return json.Marshal(t)
}

func unmarshalTask(data []byte) (Task, error) {
	var t Task
	err := json.Unmarshal(data, &t)
	return t, err
}
