package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Transition("accept")
	m.Transition("accept")
	m.Transition("counter")
	m.SideEffectFailed("notify")
	m.Rated()
	m.Conflict()

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("accept")); got != 2 {
		t.Fatalf("accept transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sideEffectFailures.WithLabelValues("notify")); got != 1 {
		t.Fatalf("notify failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ratings); got != 1 {
		t.Fatalf("ratings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.conflicts); got != 1 {
		t.Fatalf("conflicts = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("accept")
	m.SideEffectFailed("chat")
	m.Rated()
	m.Conflict()
	m.ObserveOp("create", time.Now(), errors.New("x"))
	m.RegisterPool(nil)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

type nilPool struct{}

func (nilPool) Stats() *pgxpool.Stat { return nil }

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.RegisterPool(nilPool{})
	m.ObserveOp("create", time.Now(), nil)
	m.Transition("finish")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"trueque_trade_transitions_total",
		"trueque_operation_duration_seconds",
		"trueque_db_total_conns",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("exposition missing %s", name)
		}
	}
}
