package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quote-sentinel/internal/core/memory"
	"quote-sentinel/internal/core/updater"
	"quote-sentinel/internal/domain"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.AlertRaisedEvent
	err    error
}

func (n *recordingNotifier) PublishAlert(_ context.Context, event domain.AlertRaisedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

type fixture struct {
	store    *memory.Store
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}

	d := NewDispatcher(Options{
		Rows:     updater.New(store, 3),
		Repo:     store,
		Alerts:   store,
		Trends:   store,
		Notifier: notifier,
		Clock:    clock,
		Policy:   DefaultPolicy(),
		Logger:   zap.NewNop(),
	})
	return &fixture{store: store, clock: clock, notifier: notifier, d: d}
}

func (f *fixture) seed(t *testing.T, id string, status domain.WorkflowStatus, startedAgo time.Duration, mutate ...func(*domain.WorkflowExecution)) {
	t.Helper()
	e := domain.NewWorkflowExecution(id, domain.WorkflowQuoteAutomation, domain.CorrelatedIDs{}, f.clock.Now().Add(-startedAgo))
	e.Status = status
	for _, m := range mutate {
		m(e)
	}
	require.NoError(t, f.store.Create(context.Background(), e))
}

func (f *fixture) get(t *testing.T, id string) *domain.WorkflowExecution {
	t.Helper()
	e, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

func TestTriggerAlert_SetsStickyFlagAndDedupes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "wf-1", domain.WorkflowAwaitingResponses, time.Hour)

	raised, err := f.d.TriggerAlert(ctx, "wf-1",
		domain.NewAlert(domain.AlertSupplierNonResponse, domain.SeverityWarning, "no replies", nil))
	require.NoError(t, err)
	assert.True(t, raised)

	e := f.get(t, "wf-1")
	assert.True(t, e.AlertTriggered)
	assert.Equal(t, domain.AlertSupplierNonResponse, e.AlertType)
	require.NotNil(t, e.AlertSentAt)
	assert.Equal(t, f.clock.Now(), *e.AlertSentAt)

	raised, err = f.d.TriggerAlert(ctx, "wf-1",
		domain.NewAlert(domain.AlertSupplierNonResponse, domain.SeverityWarning, "no replies", nil))
	require.NoError(t, err)
	assert.False(t, raised)

	// A different type still goes through
	raised, err = f.d.TriggerAlert(ctx, "wf-1",
		domain.NewAlert(domain.AlertWorkflowStuck, domain.SeverityCritical, "stuck", nil))
	require.NoError(t, err)
	assert.True(t, raised)

	alerts, _ := f.store.ListSince(ctx, time.Time{})
	assert.Len(t, alerts, 2)
	assert.Len(t, f.notifier.events, 2)
	assert.Equal(t, "wf-1", f.notifier.events[0].WorkflowID)
}

func TestTriggerAlert_BottlenecksDedupePerStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "wf-1", domain.WorkflowGeneratingQuote, time.Hour)

	bottleneck := func(step string) *domain.Alert {
		return domain.NewAlert(domain.AlertBottleneckDetected, domain.SeverityWarning, "slow", map[string]any{"step": step})
	}

	raised, _ := f.d.TriggerAlert(ctx, "wf-1", bottleneck("detection"))
	assert.True(t, raised)
	raised, _ = f.d.TriggerAlert(ctx, "wf-1", bottleneck("generate_quote"))
	assert.True(t, raised)
	raised, _ = f.d.TriggerAlert(ctx, "wf-1", bottleneck("detection"))
	assert.False(t, raised)
}

func TestTriggerAlert_NotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("redis down")
	f.seed(t, "wf-1", domain.WorkflowDetecting, time.Hour)

	raised, err := f.d.TriggerAlert(context.Background(), "wf-1",
		domain.NewAlert(domain.AlertWorkflowStuck, domain.SeverityCritical, "stuck", nil))

	require.NoError(t, err)
	assert.True(t, raised)
}

func TestTriggerAlert_UnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.TriggerAlert(context.Background(), "missing",
		domain.NewAlert(domain.AlertWorkflowStuck, domain.SeverityCritical, "stuck", nil))

	assert.True(t, domain.IsWorkflowNotFound(err))
}

func TestResolveAlert_KeepsTriggeredFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "wf-1", domain.WorkflowDetecting, time.Hour)

	_, err := f.d.TriggerAlert(ctx, "wf-1", domain.NewAlert(domain.AlertWorkflowStuck, domain.SeverityCritical, "stuck", nil))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.d.ResolveAlert(ctx, "wf-1"))

	e := f.get(t, "wf-1")
	assert.True(t, e.AlertTriggered)
	require.NotNil(t, e.AlertResolvedAt)
	assert.Equal(t, f.clock.Now(), *e.AlertResolvedAt)
}
