package worker

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-sla/internal/dedup"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/notify"
)

// SLAWarningJobName identifies the warning scan in logs, metrics and the schedule.
const SLAWarningJobName = "sla_warning"

// SLAWarningJob notifies staff about in-progress entries whose deadline falls within the lead time.
// Warnings go out as push only.
type SLAWarningJob struct {
	*monitor
}

// NewSLAWarningJob builds the job.
func NewSLAWarningJob(deps MonitorDependencies) *SLAWarningJob {
	return &SLAWarningJob{monitor: newMonitor(SLAWarningJobName, deps)}
}

// Name implements ScheduledJob.
func (j *SLAWarningJob) Name() string { return SLAWarningJobName }

// Run performs one scan.
func (j *SLAWarningJob) Run(ctx context.Context) (RunReport, error) {
	return j.run(ctx, j.scan)
}

func (j *SLAWarningJob) scan(ctx context.Context, report *RunReport) error {
	entries, err := j.ledger.GetViolatingTransitions(ctx, int64(j.cfg.WarningLead/time.Second))
	if err != nil {
		return err
	}
	now := j.ledger.Now()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Scanned++
		ticket, ok := j.loadTicket(ctx, entry, report)
		if !ok {
			continue
		}
		recipients, err := j.recipients.assigneeOrManagers(ctx, ticket)
		if err != nil {
			report.Failed++
			j.logger.Warn("recipient lookup failed", zapTicket(ticket.ID, err)...)
			continue
		}
		for _, recipient := range recipients {
			key := dedup.WarningKey(ticket.ID, recipient.ID, entry.ID)
			del := notify.Delivery{Notification: newNotification(domain.NotificationSLAWarning, recipient, ticket, entry, now)}
			j.notifyOnce(ctx, key, j.cfg.WarningDedupTTL, del, report)
		}
	}
	return nil
}
