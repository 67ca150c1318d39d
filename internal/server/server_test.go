package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/eventbus"
	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/policy"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

type testServer struct {
	*httptest.Server
	stream *eventbus.WSBroadcaster
}

func newTestServer(t *testing.T, today time.Time) *testServer {
	t.Helper()
	feed := activity.NewMemoryStore()
	bus := eventbus.New(64)
	stream := eventbus.NewWSBroadcaster(64)
	bus.Subscribe("ws", stream)
	bus.Start(context.Background())
	t.Cleanup(bus.Stop)

	rec := event.NewActivityRecorder(feed, event.WithPublisher(bus))
	svc := ledger.New(store.NewMemoryStore(), policy.Default(),
		ledger.WithRecorder(rec), ledger.WithClock(func() time.Time { return today }))

	srv := httptest.NewServer(NewRouter(Config{Ledger: svc, Activity: feed, Events: stream}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, stream: stream}
}

func (s *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "alice")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func leaseBody(tenant, property uuid.UUID) map[string]any {
	return map[string]any{
		"tenant_id":    tenant,
		"property_id":  property,
		"rent":         "1000",
		"cadence":      "monthly",
		"rent_due_day": 1,
		"start_date":   "2024-01-01",
		"end_date":     "2024-06-30",
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, time.Now())
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestLeaseLifecycle(t *testing.T) {
	s := newTestServer(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC))
	tenant, property := uuid.New(), uuid.New()

	var created ledger.LeaseResult
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/leases", leaseBody(tenant, property), &created))
	require.Len(t, created.Periods, 6)
	leaseURL := "/v1/leases/" + created.Lease.ID.String()

	var errBody map[string]string
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/leases", leaseBody(tenant, property), &errBody))
	assert.Equal(t, "ACTIVE_LEASE_EXISTS", errBody["code"])

	var got types.Lease
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, leaseURL, nil, &got))
	assert.Equal(t, created.Lease.ID, got.ID)

	var pay ledger.PaymentResult
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"tenant_id": tenant, "property_id": property, "paid_on": "2024-02-03", "amount": "1500",
	}, &pay))
	require.Len(t, pay.Allocations, 2)
	assert.True(t, pay.Payment.Unapplied.IsZero())

	var periods []types.RentPeriod
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, leaseURL+"/periods", nil, &periods))
	assert.Equal(t, types.PeriodPaid, periods[0].Status)
	assert.Equal(t, types.PeriodPartial, periods[1].Status)

	var assessed ledger.Assessment
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, leaseURL+"/assess", map[string]any{"as_of": "2024-02-10"}, &assessed))
	assert.Equal(t, 1, assessed.Changed, "only February is late and unpaid")

	var overridden types.RentPeriod
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, "/v1/periods/"+periods[1].ID.String()+"/late-fee",
		map[string]any{"fee": "0"}, &overridden))
	assert.True(t, overridden.LateFeeWaived)

	var sum ledger.LeaseSummary
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, leaseURL+"/summary?as_of=2024-02-10", nil, &sum))
	assert.True(t, sum.TotalDue.Equal(decimal.NewFromInt(500)), "total due %s", sum.TotalDue)

	amount := "800"
	var edited ledger.PaymentResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, "/v1/payments/"+pay.Payment.ID.String(),
		map[string]any{"amount": amount}, &edited))
	assert.True(t, edited.Payment.Amount.Equal(decimal.RequireFromString(amount)))

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/payments/"+pay.Payment.ID.String(), nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/payments/"+pay.Payment.ID.String(), nil, &errBody))

	var terminated ledger.LeaseResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, leaseURL+"/terminate", map[string]any{"terminated_on": "2024-03-15"}, &terminated))
	assert.Equal(t, types.LeaseTerminated, terminated.Lease.Status)
	assert.Len(t, terminated.Periods, 3)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPatch, leaseURL, map[string]any{"rent": "900"}, &errBody))
	assert.Equal(t, "LEASE_CLOSED", errBody["code"])

	var feed struct {
		Activities []types.ActivityEntry `json:"activities"`
		TotalCount int                   `json:"total_count"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/activity/entity/lease/"+created.Lease.ID.String()+"?since=2000-01-01T00:00:00Z", nil, &feed))
	assert.NotEmpty(t, feed.Activities)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, time.Now())
	var body map[string]any

	bad := leaseBody(uuid.New(), uuid.New())
	bad["end_date"] = "2023-01-01"
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/leases", bad, &body))
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/leases/not-a-uuid", nil, &body))
	assert.Equal(t, "INVALID_ID", body["code"])

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/leases/"+uuid.NewString(), nil, &body))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"tenant_id": uuid.New(), "property_id": uuid.New(), "paid_on": "2024-01-01", "amount": "10", "type": "gift",
	}, &body))

	req, err := http.NewRequest(http.MethodPost, s.URL+"/v1/leases", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "X-Actor is required on writes")
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+s.URL[len("http"):]+"/v1/events/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return s.stream.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	var created ledger.LeaseResult
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/leases", leaseBody(uuid.New(), uuid.New()), &created))

	var msg eventbus.StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "lease_created", msg.EventType)
	assert.Contains(t, msg.Summary, fmt.Sprint(len(created.Periods)))
}
