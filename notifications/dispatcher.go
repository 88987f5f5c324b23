package notifications

import (
	"sync"

	"github.com/google/uuid"
)

type Kind string

const (
	BookingCreated     Kind = "booking.created"
	BookingApproved    Kind = "booking.approved"
	BookingRejected    Kind = "booking.rejected"
	BookingExpired     Kind = "booking.expired"
	BookingCancelled   Kind = "booking.cancelled"
	BookingCompleted   Kind = "booking.completed"
	PaymentProofAdded  Kind = "booking.payment_proof"
	PenaltyApplied     Kind = "booking.penalty"
	StudioSuspended    Kind = "studio.suspended"
	StudioReinstated   Kind = "studio.reinstated"
	PayoutRequested    Kind = "payout.requested"
	PayoutProcessed    Kind = "payout.processed"
	FatalInconsistency Kind = "ops.fatal_inconsistency"
)

// Notification is a structured (recipient, kind, fields) payload.
type Notification struct {
	Recipient uuid.UUID         `json:"recipient"`
	Kind      Kind              `json:"kind"`
	Fields    map[string]string `json:"fields"`
}

// Dispatcher delivers notifications fire-and-forget. Implementations log
// their own failures and never block the caller's state transition.
type Dispatcher interface {
	Dispatch(n Notification)
}

type Nop struct{}

func (Nop) Dispatch(Notification) {}

// Multi fans a notification out to every dispatcher.
type Multi []Dispatcher

func (m Multi) Dispatch(n Notification) {
	for _, d := range m {
		d.Dispatch(n)
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Dispatch(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Kinds lists the kinds sent to recipient, in order.
func (r *Recorder) Kinds(recipient uuid.UUID) []Kind {
	var out []Kind
	for _, n := range r.Sent() {
		if n.Recipient == recipient {
			out = append(out, n.Kind)
		}
	}
	return out
}
