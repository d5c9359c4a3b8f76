package checkout

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventCheckoutReserved     = "CheckoutReserved"
	EventPaymentConfirmed     = "PaymentConfirmed"
	EventCashbackRedeemed     = "CashbackRedeemed"
	EventCashbackRedeemFailed = "CashbackRedeemFailed"
	EventCheckoutCanceled     = "CheckoutCanceled"
)

const envelopeVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type CheckoutReservedPayload struct {
	OrderID       string    `json:"order_id"`
	UnitID        string    `json:"unit_id"`
	Totals        Totals    `json:"totals"`
	ReservedUntil time.Time `json:"reserved_until"`
}

type PaymentConfirmedPayload struct {
	OrderID    string    `json:"order_id"`
	ObservedAt time.Time `json:"observed_at"`
}

type CashbackRedeemedPayload struct {
	OrderID string `json:"order_id"`
	UnitID  string `json:"unit_id"`
	Amount  int64  `json:"amount"`
}

type CashbackRedeemFailedPayload struct {
	OrderID string `json:"order_id"`
	UnitID  string `json:"unit_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

type CheckoutCanceledPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

// Publisher is satisfied by the kafka producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// NewEnvelope wraps payload in a v1 envelope correlated to orderID.
func NewEnvelope(producer, eventType, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

func publishEnvelope(p Publisher, ev Envelope) error {
	if p == nil {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.Publish(PartitionKey(ev.CorrelationID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
	return nil
}
