package httptransport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/platform/middleware"
	"custodywatch/internal/simulation"
	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
	"custodywatch/pkg/testutil"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeService struct {
	events  []changeevent.ChangeEvent
	acks    map[string]simulation.Acknowledgement
	ledger  *audit.Ledger
	health  []health.CountyHealth
	ackErr  error
	lastAck [2]string
}

func (f *fakeService) Events() []changeevent.ChangeEvent {
	return append([]changeevent.ChangeEvent(nil), f.events...)
}

func (f *fakeService) Event(id string) (changeevent.ChangeEvent, bool) {
	for _, e := range f.events {
		if e.ID == id {
			return e, true
		}
	}
	return changeevent.ChangeEvent{}, false
}

func (f *fakeService) Acknowledgement(id string) (simulation.Acknowledgement, bool) {
	a, ok := f.acks[id]
	return a, ok
}

func (f *fakeService) Acknowledge(_ context.Context, eventID, actorID string) (simulation.Acknowledgement, error) {
	f.lastAck = [2]string{eventID, actorID}
	if f.ackErr != nil {
		return simulation.Acknowledgement{}, f.ackErr
	}
	ack := simulation.Acknowledgement{EventID: eventID, ActorID: actorID, At: t0, Sequence: 4}
	f.acks[eventID] = ack
	return ack, nil
}

func (f *fakeService) Health() []health.CountyHealth { return f.health }
func (f *fakeService) AuditLog() []audit.Entry       { return f.ledger.Entries() }
func (f *fakeService) VerifyChain() audit.IntegrityReport {
	return f.ledger.VerifyChain()
}

// =============================================================================
// Handler Test Suite
// =============================================================================
// Justification: handlers only translate, so each test pins one mapping from
// service result to status code and body.

type HandlerSuite struct {
	suite.Suite
	svc    *fakeService
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	src := jurisdiction.SourceRef{JurisdictionID: "TX-01", SourceKind: jurisdiction.SourceJailRoster}
	ledger := audit.New(audit.WithClock(func() time.Time { return t0 }))
	for _, a := range []audit.ActionType{audit.ActionSimulationStarted, audit.ActionSnapshotTaken, audit.ActionEventEmitted} {
		_, err := ledger.Append(context.Background(), a, map[string]string{"action": string(a)}, "simulator")
		s.Require().NoError(err)
	}

	s.svc = &fakeService{
		events: []changeevent.ChangeEvent{
			{ID: "evt-1", Status: changeevent.StatusIntake, Source: src, PersonID: "TX-01-P001", Confidence: 0.7, CreatedAt: t0},
			{ID: "evt-2", Status: changeevent.StatusStable, Source: src, PersonID: "TX-01-P002", Confidence: 0.8, CreatedAt: t0},
		},
		acks:   map[string]simulation.Acknowledgement{},
		ledger: ledger,
		health: []health.CountyHealth{health.Initial("TX-01")},
	}
	h := NewHandler(s.svc, jurisdiction.Default(), nil)
	s.router = NewRouter(h,
		WithRequestMetrics(middleware.NewMetrics(prometheus.NewRegistry())),
		WithMetricsHandler(promhttp.Handler()),
	)
}

func (s *HandlerSuite) TestListEvents() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/events"))
	testutil.AssertStatusOK(s.T(), rr)

	resp := testutil.UnmarshalResponse[EventListResponse](s.T(), rr)
	s.Equal(2, resp.Count)
	s.Equal("evt-1", resp.Events[0].ID)
}

func (s *HandlerSuite) TestListEvents_StatusFilter() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/events?status=stable"))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[EventListResponse](s.T(), rr)
	s.Require().Len(resp.Events, 1)
	s.Equal("evt-2", resp.Events[0].ID)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/events?status=bogus"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestGetEvent() {
	s.Run("known event", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/events/evt-1"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[EventResponse](s.T(), rr)
		s.Equal("evt-1", resp.Event.ID)
		s.Nil(resp.Acknowledgement)
	})

	s.Run("unknown event", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/events/nope"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestAcknowledge() {
	s.Run("records the actor", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/events/evt-2/ack", AcknowledgeRequest{ActorID: "analyst-7"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		s.Equal([2]string{"evt-2", "analyst-7"}, s.svc.lastAck)

		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/events/evt-2"))
		resp := testutil.UnmarshalResponse[EventResponse](s.T(), rr)
		s.Require().NotNil(resp.Acknowledgement)
		s.Equal("analyst-7", resp.Acknowledgement.ActorID)
	})

	s.Run("missing actor", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/events/evt-2/ack", AcknowledgeRequest{})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/events/evt-2/ack", "{")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestAcknowledge_ServiceErrors() {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown event", fmt.Errorf("event x: %w", sentinel.ErrNotFound), http.StatusNotFound, "not_found"},
		{"pending event", fmt.Errorf("event x is intake: %w", sentinel.ErrInvalidState), http.StatusConflict, "invalid_state"},
		{"second acknowledgement", simulation.ErrAlreadyAcknowledged, http.StatusConflict, "conflict"},
		{"ledger failure", fmt.Errorf("acknowledge x: audit persistence failed"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.svc.ackErr = tc.err
			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/events/evt-1/ack", AcknowledgeRequest{ActorID: "analyst-7"})
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatusAndError(s.T(), rr, tc.status, tc.code)
		})
	}
}

func (s *HandlerSuite) TestAudit() {
	s.Run("whole chain", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[AuditResponse](s.T(), rr)
		s.Equal(3, resp.Total)
		s.Len(resp.Entries, 3)
		s.Equal(audit.GenesisHash, resp.Entries[0].PrevEntryHash)
	})

	s.Run("page after sequence", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit?after=1&limit=1"))
		resp := testutil.UnmarshalResponse[AuditResponse](s.T(), rr)
		s.Require().Len(resp.Entries, 1)
		s.Equal(uint64(2), resp.Entries[0].Sequence)
	})

	s.Run("past the tail", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit?after=10"))
		resp := testutil.UnmarshalResponse[AuditResponse](s.T(), rr)
		s.NotNil(resp.Entries)
		s.Empty(resp.Entries)
	})

	s.Run("bad parameter", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit?limit=-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestVerify() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/verify"))
	testutil.AssertStatusOK(s.T(), rr)
	report := testutil.UnmarshalResponse[audit.IntegrityReport](s.T(), rr)
	s.True(report.Intact)
	s.Equal(3, report.Checked)
	s.Equal(audit.IntactIndex, report.BrokenIndex)
}

func (s *HandlerSuite) TestHealthAndJurisdictions() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health/counties"))
	testutil.AssertStatusOK(s.T(), rr)
	hr := testutil.UnmarshalResponse[HealthResponse](s.T(), rr)
	s.Require().Len(hr.Counties, 1)
	s.Equal(health.StatusOnline, hr.Counties[0].Status)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/jurisdictions"))
	testutil.AssertStatusOK(s.T(), rr)
	jr := testutil.UnmarshalResponse[JurisdictionsResponse](s.T(), rr)
	s.Len(jr.Jurisdictions, jurisdiction.Default().Len())
	s.NotEmpty(jr.Jurisdictions[0].SourceKind)
}

func (s *HandlerSuite) TestRequestIDEchoed() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/health/counties")
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rr := testutil.DoRequest(s.router, req)
	s.Equal("req-123", rr.Header().Get(middleware.RequestIDHeader))

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health/counties"))
	s.NotEmpty(rr.Header().Get(middleware.RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := middleware.NewMetrics(reg)
	svc := &fakeService{acks: map[string]simulation.Acknowledgement{}, ledger: audit.New()}
	router := NewRouter(NewHandler(svc, jurisdiction.Default(), nil),
		WithRequestMetrics(m),
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/events/evt-9"))
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `route="/events/{id}"`), "latency should be labelled by route pattern")
}
