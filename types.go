package pasugo

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pasugo/pasugo-chat-go/auth"
	"github.com/pasugo/pasugo-chat-go/wire"
)

// ID is a backend identifier (task, conversation, message, user).
type ID = wire.ID

// Timestamp decodes the layouts the backend emits (RFC 3339 with or
// without zone, and MySQL-style datetimes). Unparseable values decode to
// the zero time rather than failing the whole payload.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t.Time = ParseTime(s)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTime parses s with the first matching backend layout.
func ParseTime(s string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// --------------------------------------------------------------------------
// Conversation Types
// --------------------------------------------------------------------------

// Conversation groups the messages of one task between its customer and
// its rider. It is created by the backend on first resolution.
type Conversation struct {
	ID         ID `json:"conversation_id"`
	TaskID     ID `json:"task_id,omitempty"`
	CustomerID ID `json:"customer_id,omitempty"`
	RiderID    ID `json:"rider_id,omitempty"`
}

// Message is one entry of the conversation history.
type Message struct {
	ID             ID        `json:"message_id"`
	ConversationID ID        `json:"conversation_id,omitempty"`
	SenderID       ID        `json:"sender_id"`
	SenderRole     auth.Role `json:"sender_role,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	Kind           string    `json:"message_type"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	AttachmentType string    `json:"attachment_type,omitempty"`
	SentAt         Timestamp `json:"sent_at"`
	Read           bool      `json:"is_read,omitempty"`
}

// IsSystem reports whether the server generated the message.
func (m Message) IsSystem() bool { return m.Kind == wire.KindSystem }

// --------------------------------------------------------------------------
// Task Types
// --------------------------------------------------------------------------

// TaskStatus is the lifecycle stage of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Location is a pickup or drop-off point.
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// TaskSnapshot is the locally cached copy of a task.
type TaskSnapshot struct {
	ID          ID              `json:"id"`
	Status      TaskStatus      `json:"status"`
	ServiceType string          `json:"service_type,omitempty"`
	Fee         decimal.Decimal `json:"delivery_fee"`
	BillAmount  decimal.Decimal `json:"bill_amount"`
	Total       decimal.Decimal `json:"total_amount"`
	Pickup      *Location       `json:"pickup_location,omitempty"`
	Dropoff     *Location       `json:"dropoff_location,omitempty"`
	CustomerID  ID              `json:"customer_id,omitempty"`
	RiderID     ID              `json:"rider_id,omitempty"`
	PaymentDone bool            `json:"payment_confirmed,omitempty"`
	UpdatedAt   Timestamp       `json:"updated_at"`
}

// changed reports whether o differs from s in anything the chat view shows.
func (s TaskSnapshot) changed(o TaskSnapshot) bool {
	return s.Status != o.Status ||
		s.RiderID != o.RiderID ||
		s.PaymentDone != o.PaymentDone ||
		!s.BillAmount.Equal(o.BillAmount) ||
		!s.Total.Equal(o.Total)
}

// TaskAction is a task lifecycle endpoint.
type TaskAction string

const (
	ActionAccept         TaskAction = "accept"
	ActionStart          TaskAction = "start"
	ActionComplete       TaskAction = "complete"
	ActionCancel         TaskAction = "cancel"
	ActionSubmitBill     TaskAction = "submit-bill"
	ActionConfirmPayment TaskAction = "confirm-payment"
)

// SubmitBillRequest is sent to POST /tasks/{id}/submit-bill.
type SubmitBillRequest struct {
	Amount     decimal.Decimal `json:"bill_amount"`
	ReceiptURL string          `json:"receipt_url,omitempty"`
}

// CancelRequest is sent to POST /tasks/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}
