package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/dedup"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/notify"
)

// SLAViolationJobName identifies the violation scan in logs, metrics and the schedule.
const SLAViolationJobName = "sla_violation"

// SLAViolationJob escalates breached entries and notifies the assignee and team managers by push and email.
// Escalation happens on every run whether or not anyone can be notified.
type SLAViolationJob struct {
	*monitor
}

// NewSLAViolationJob builds the job.
func NewSLAViolationJob(deps MonitorDependencies) *SLAViolationJob {
	return &SLAViolationJob{monitor: newMonitor(SLAViolationJobName, deps)}
}

// Name implements ScheduledJob.
func (j *SLAViolationJob) Name() string { return SLAViolationJobName }

// Run performs one scan.
func (j *SLAViolationJob) Run(ctx context.Context) (RunReport, error) {
	return j.run(ctx, j.scan)
}

func (j *SLAViolationJob) scan(ctx context.Context, report *RunReport) error {
	entries, err := j.ledger.GetViolatedTransitions(ctx)
	if err != nil {
		return err
	}
	now := j.ledger.Now()
	bucket := dedup.Bucket(now, j.cfg.DedupBucket)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Scanned++

		changed, err := j.ledger.Escalate(ctx, entry.ID)
		if err != nil {
			report.Failed++
			j.logger.Warn("escalation failed", zap.String("entry_id", entry.ID), zap.Error(err))
		} else if changed {
			report.Escalated++
		}

		ticket, ok := j.loadTicket(ctx, entry, report)
		if !ok {
			continue
		}
		recipients, err := j.recipients.assigneeAndManagers(ctx, ticket)
		if err != nil {
			report.Failed++
			j.logger.Warn("recipient lookup failed", zapTicket(ticket.ID, err)...)
			continue
		}
		if len(recipients) == 0 {
			j.logger.Info("breached ticket has no one to notify", zap.String("ticket_id", ticket.ID))
			continue
		}
		for _, recipient := range recipients {
			key := dedup.Key(dedup.KindViolation, ticket.ID, recipient.ID, bucket)
			del := notify.Delivery{
				Notification: newNotification(domain.NotificationSLABreach, recipient, ticket, entry, now),
				Email:        j.breachEmail(recipient, ticket, entry),
			}
			j.notifyOnce(ctx, key, j.cfg.ViolationDedupTTL, del, report)
		}
	}
	return nil
}

func (j *SLAViolationJob) breachEmail(recipient domain.StaffMember, ticket *domain.Ticket, entry domain.TransitionHistoryEntry) *domain.EmailMessage {
	vars := map[string]string{
		"recipient_name": recipient.Name,
		"ticket_id":      ticket.ID,
		"ticket_key":     ticket.ExternalKey,
		"ticket_title":   ticket.Title,
		"entry_id":       entry.ID,
	}
	if entry.SLADueDate != nil {
		vars["due_at"] = entry.SLADueDate.UTC().Format(time.RFC3339)
	}
	return &domain.EmailMessage{
		To:        recipient.Email,
		From:      j.emailFrom,
		Template:  notify.BreachEmailTemplate,
		Variables: vars,
	}
}

func zapTicket(ticketID string, err error) []zap.Field {
	return []zap.Field{zap.String("ticket_id", ticketID), zap.Error(err)}
}
