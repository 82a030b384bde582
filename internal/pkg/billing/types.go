package billing

import (
	"time"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
)

// State is a step of the per-event reconciliation state machine.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateValidated        State = "VALIDATED"
	StateCustomerResolved State = "CUSTOMER_RESOLVED"
	StateRecorded         State = "RECORDED"
	StateAdvanced         State = "ADVANCED"
	StateAcknowledged     State = "ACKNOWLEDGED"
	StateRejected         State = "REJECTED"
)

// EventCaptureCompleted is the only provider event type that moves money.
const EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"

// CaptureEvent is the normalized provider webhook delivery. The validate tags
// apply to completed captures only.
type CaptureEvent struct {
	EventID     string
	EventType   string
	CaptureID   string `validate:"required,max=191"`
	PayerEmail  string `validate:"required,email,max=200"`
	AmountValue string
	Currency    string `validate:"omitempty,len=3,alpha"`
}

// Outcome describes where an event ended up. Trace lists every state the
// event passed through, ending in ACKNOWLEDGED or REJECTED.
type Outcome struct {
	State       State
	Trace       []State
	Ignored     bool
	Duplicate   bool
	Payment     *models.Payment
	NextDueDate time.Time
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

// AdvanceFunc computes the next due date from the stored due date and plan.
type AdvanceFunc func(current time.Time, plan string) time.Time

// RecordResult reports whether the payment row was newly written and, if
// so, the due date that was persisted with it.
type RecordResult struct {
	Created     bool
	NextDueDate time.Time
}
