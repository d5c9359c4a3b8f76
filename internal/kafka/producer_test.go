package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestPublishNeverBlocks(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "checkout.events", 2, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			p.Publish([]byte("ord-1"), []byte("{}"), kafka.Header{Key: "x-event-type", Value: []byte("CheckoutReserved")})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
	assert.Len(t, p.inbox, 2)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "checkout.events", 1, nil)
	p.Start()
	p.Close()
	p.Close()
	p.WaitClosed()

	assert.NotPanics(t, func() { p.Publish([]byte("k"), []byte("v")) })
}

func TestDecodeEvent(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	raw := []byte(`{"event_id":"e1","event_type":"CashbackRedeemFailed","payload":{"order_id":"ord-1"}}`)

	ev, p, ok, err := DecodeEvent[payload](raw, "CashbackRedeemFailed")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "e1", ev.EventID)
	assert.Equal(t, "ord-1", p.OrderID)

	_, _, ok, err = DecodeEvent[payload](raw, "CheckoutReserved")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, _, err = DecodeEvent[payload]([]byte(`[`), "CheckoutReserved")
	assert.Error(t, err)
}
