package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/errdefs"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/supervisor"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.Transaction("committed", 21*time.Second)
	r.Transaction("restored", 45*time.Second)
	r.Transaction("committed", 20*time.Second)
	r.SpinupFinished(nil)
	r.SpinupFinished(errdefs.StartFailed(errors.New("exited")))
	r.SlotChanged(supervisor.Active)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transactions.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transactions.WithLabelValues("restored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.spinups.WithLabelValues("start-failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.slot.WithLabelValues("active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.slot.WithLabelValues("absent")))
}

func TestHandler(t *testing.T) {
	r := New()
	r.Transaction("fatal", time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `relayer_ctr_config_transactions_total{outcome="fatal"} 1`)
}
