package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/config"
	"github.com/spec-kit/ticket-sla/internal/dedup"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/notify"
	"github.com/spec-kit/ticket-sla/internal/observability"
	"github.com/spec-kit/ticket-sla/internal/repository"
	"github.com/spec-kit/ticket-sla/internal/service"
)

// Job outcomes reported to metrics.
const (
	jobOutcomeOK      = "ok"
	jobOutcomePartial = "partial"
	jobOutcomeError   = "error"
	jobOutcomeSkipped = "skipped"
)

// RunReport summarizes one scan.
type RunReport struct {
	Skipped    bool
	Scanned    int
	Notified   int
	Suppressed int
	Escalated  int
	Failed     int
}

// MonitorDependencies bundles collaborators shared by the SLA jobs.
type MonitorDependencies struct {
	Ledger    *service.LedgerService
	Tickets   repository.TicketRepository
	Staff     repository.StaffRepository
	Cache     dedup.Cache
	Notifier  *notify.Dispatcher
	Config    config.MonitorConfig
	EmailFrom string
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// monitor holds what both jobs need. Each job owns one and never shares its running flag.
type monitor struct {
	name       string
	ledger     *service.LedgerService
	tickets    repository.TicketRepository
	recipients recipientResolver
	cache      dedup.Cache
	notifier   *notify.Dispatcher
	cfg        config.MonitorConfig
	emailFrom  string
	logger     *zap.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
	running    atomic.Bool
}

func newMonitor(name string, deps MonitorDependencies) *monitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("job", name))
	return &monitor{
		name:       name,
		ledger:     deps.Ledger,
		tickets:    deps.Tickets,
		recipients: recipientResolver{staff: deps.Staff, logger: logger},
		cache:      deps.Cache,
		notifier:   deps.Notifier,
		cfg:        deps.Config,
		emailFrom:  deps.EmailFrom,
		logger:     logger,
		metrics:    deps.Metrics,
		tracer:     otel.Tracer(observability.TracerName),
	}
}

// run executes scan unless a previous run of the same job is still going.
func (m *monitor) run(ctx context.Context, scan func(context.Context, *RunReport) error) (RunReport, error) {
	var report RunReport
	if !m.running.CompareAndSwap(false, true) {
		report.Skipped = true
		m.logger.Info("previous run still in progress; skipping")
		m.metrics.RecordJobRun(m.name, jobOutcomeSkipped, 0)
		return report, nil
	}
	defer m.running.Store(false)

	ctx, span := m.tracer.Start(ctx, "monitor."+m.name)
	defer span.End()

	started := time.Now()
	err := scan(ctx, &report)
	elapsed := time.Since(started)

	span.SetAttributes(
		attribute.Int("entries.scanned", report.Scanned),
		attribute.Int("notifications.sent", report.Notified),
		attribute.Int("entries.failed", report.Failed),
	)
	outcome := jobOutcomeOK
	switch {
	case err != nil:
		outcome = jobOutcomeError
		span.RecordError(err)
	case report.Failed > 0:
		outcome = jobOutcomePartial
	}
	m.metrics.RecordJobRun(m.name, outcome, elapsed)
	m.logger.Info("sla scan finished",
		zap.String("outcome", outcome),
		zap.Int("scanned", report.Scanned),
		zap.Int("notified", report.Notified),
		zap.Int("suppressed", report.Suppressed),
		zap.Int("escalated", report.Escalated),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", elapsed),
	)
	return report, err
}

// notifyOnce sends del to recipient unless the same key was already sent in this bucket.
// The key is stored only after at least one channel accepted the notification.
func (m *monitor) notifyOnce(ctx context.Context, key string, ttl time.Duration, del notify.Delivery, report *RunReport) {
	fields := []zap.Field{zap.String("dedup_key", key), zap.String("ticket_id", del.Notification.TicketID)}
	kind := string(del.Notification.Type)

	seen, err := m.cache.ContainsKey(ctx, key)
	if err != nil {
		m.logger.Warn("dedup lookup failed; sending anyway", append(fields, zap.Error(err))...)
	}
	if seen {
		report.Suppressed++
		m.metrics.RecordNotification(kind, "any", observability.OutcomeSuppressed)
		return
	}

	if !m.notifier.Dispatch(ctx, del) {
		report.Failed++
		return
	}
	report.Notified++
	if err := m.cache.Put(ctx, key, ttl); err != nil {
		m.logger.Warn("dedup store failed", append(fields, zap.Error(err))...)
	}
}

// loadTicket fetches the ticket of entry, reporting false when it should be skipped.
func (m *monitor) loadTicket(ctx context.Context, entry domain.TransitionHistoryEntry, report *RunReport) (*domain.Ticket, bool) {
	ticket, err := m.tickets.GetByID(ctx, entry.TicketID)
	if err != nil {
		report.Failed++
		m.logger.Warn("ticket lookup failed", zap.String("ticket_id", entry.TicketID), zap.String("entry_id", entry.ID), zap.Error(err))
		return nil, false
	}
	if ticket.IsCompleted || !ticket.InState(entry.ToStateID) {
		m.logger.Debug("ticket moved since scan; skipping", zap.String("ticket_id", ticket.ID), zap.String("entry_id", entry.ID))
		return nil, false
	}
	return ticket, true
}

func newNotification(kind domain.NotificationType, recipient domain.StaffMember, ticket *domain.Ticket, entry domain.TransitionHistoryEntry, now time.Time) domain.Notification {
	n := domain.Notification{
		ID:          uuid.NewString(),
		Type:        kind,
		RecipientID: recipient.ID,
		TicketID:    ticket.ID,
		EntryID:     entry.ID,
		DueAt:       entry.SLADueDate,
		CreatedAt:   now,
	}
	due := "unknown"
	if entry.SLADueDate != nil {
		due = entry.SLADueDate.UTC().Format(time.RFC3339)
	}
	switch kind {
	case domain.NotificationSLAWarning:
		n.Title = fmt.Sprintf("SLA deadline approaching for %s", ticket.ExternalKey)
		n.Body = fmt.Sprintf("%q is due at %s.", ticket.Title, due)
	case domain.NotificationSLABreach:
		n.Title = fmt.Sprintf("SLA breached for %s", ticket.ExternalKey)
		n.Body = fmt.Sprintf("%q was due at %s and has been escalated.", ticket.Title, due)
	}
	return n
}
