package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/invitation/link"
	"github.com/toddfishman/meetini/internal/invitation/repository"
	"github.com/toddfishman/meetini/internal/notification"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	schedtest "github.com/toddfishman/meetini/internal/scheduler/testing"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var errBounce = errors.New("bounce")

type gatewayCall struct {
	recipients []notification.Recipient
	payload    notification.Payload
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	err     error
	failFor map[string]bool
	// block makes Send wait for the context to end.
	block bool
}

func (g *fakeGateway) Send(ctx context.Context, recipients []notification.Recipient, payload notification.Payload) (notification.Report, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{recipients: recipients, payload: payload})
	err, block := g.err, g.block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return notification.Report{}, ctx.Err()
	}
	if err != nil {
		return notification.Report{}, err
	}

	var report notification.Report
	for _, r := range recipients {
		res := notification.RecipientResult{Recipient: r}
		for _, ch := range r.Channels() {
			d := notification.Delivery{Channel: ch, MessageID: "msg"}
			if g.failFor[r.Email] {
				d.Err = errBounce
			}
			res.Deliveries = append(res.Deliveries, d)
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (g *fakeGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type harness struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	repo       invitationdomain.Repository
	gateway    *fakeGateway
	links      *link.Signer
	scheduler  *Scheduler
	dispatcher *Dispatcher
	sweeper    *Sweeper
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		db:      schedtest.OpenDB(t),
		node:    schedtest.NewNode(t),
		clock:   clock.NewFakeClock(baseTime),
		repo:    repository.Provide(),
		gateway: &fakeGateway{failFor: map[string]bool{}},
		links:   link.NewSigner("https://meetini.test", "secret", time.Hour),
	}
	log := zaptest.NewLogger(t)
	policy := config.NewStaticReminderPolicyHolder(config.ReminderPolicy{
		ResponseNeededDelay: 24 * time.Hour,
		UpcomingLeadTime:    time.Hour,
		Retention:           30 * 24 * time.Hour,
	})
	jobMetrics := obsmetrics.NewSchedulerMetricsForTest(prometheus.NewRegistry())

	h.scheduler = newScheduler(SchedulerParams{
		DB:     h.db,
		Log:    log,
		GenID:  h.node,
		Repo:   h.repo,
		Clock:  h.clock,
		Policy: policy,
	})
	h.dispatcher = newDispatcher(DispatcherParams{
		DB:      h.db,
		Log:     log,
		Repo:    h.repo,
		Clock:   h.clock,
		Gateway: h.gateway,
		Links:   h.links,
		Config: config.Config{Reminders: config.ReminderConfig{
			BatchSize:      2,
			MaxConcurrency: 4,
			GatewayTimeout: time.Second,
		}},
		SchedulerMetrics: jobMetrics,
	})
	h.sweeper = newSweeper(SweeperParams{
		DB:               h.db,
		Log:              log,
		Repo:             h.repo,
		Clock:            h.clock,
		Policy:           policy,
		SchedulerMetrics: jobMetrics,
	})
	return h
}

func (h *harness) seed(t *testing.T, spec schedtest.InvitationSpec) invitationdomain.Invitation {
	t.Helper()
	return schedtest.SeedInvitation(t, h.db, h.node, h.clock.Now(), spec)
}

func emails(recipients []notification.Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.Email)
	}
	return out
}
