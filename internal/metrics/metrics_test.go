package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCheckoutCounters(t *testing.T) {
	m := NewCheckout(prometheus.NewRegistry(), "test")
	m.Poll("pending")
	m.Poll("pending")
	m.Poll("paid")
	m.Redemption("failed")
	m.Request("/checkouts/{id}", http.StatusConflict, 12*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollAttempts.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollAttempts.WithLabelValues("paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redemptions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/checkouts/{id}", "409")))
}

func TestNilCheckoutIsNoop(t *testing.T) {
	var m *Checkout
	assert.NotPanics(t, func() {
		m.Poll("paid")
		m.Reservation("ok")
		m.Redemption("ok")
		m.Request("/", 200, time.Millisecond)
	})
}
