package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sla/internal/api/dto"
	"github.com/spec-kit/ticket-sla/internal/service"
	"github.com/spec-kit/ticket-sla/internal/worker"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// SLAHandler exposes the monitor read surface and manual job runs.
type SLAHandler struct {
	ledger      *service.LedgerService
	jobs        map[string]worker.ScheduledJob
	defaultLead int64
}

// NewSLAHandler constructs handler. defaultLead is used when lead_seconds is absent.
func NewSLAHandler(ledger *service.LedgerService, defaultLead int64, jobs ...worker.ScheduledJob) *SLAHandler {
	byName := make(map[string]worker.ScheduledJob, len(jobs))
	for _, j := range jobs {
		byName[j.Name()] = j
	}
	return &SLAHandler{ledger: ledger, jobs: byName, defaultLead: defaultLead}
}

// Violations GET /sla/violations.
func (h *SLAHandler) Violations(c *fiber.Ctx) error {
	entries, err := h.ledger.GetViolatedTransitions(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// Warnings GET /sla/warnings?lead_seconds=N.
func (h *SLAHandler) Warnings(c *fiber.Ctx) error {
	lead := h.defaultLead
	if raw := c.Query("lead_seconds"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperrors.NewValidationError("lead_seconds must be an integer", map[string]any{"lead_seconds": raw})
		}
		lead = v
	}
	entries, err := h.ledger.GetViolatingTransitions(c.UserContext(), lead)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// RunJob POST /sla/jobs/:name/run runs one scan synchronously.
func (h *SLAHandler) RunJob(c *fiber.Ctx) error {
	name := c.Params("name")
	job, ok := h.jobs[name]
	if !ok {
		return apperrors.NewNotFound("job", map[string]any{"name": name})
	}
	report, err := job.Run(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.JobRunResponse{
		Job:        name,
		Skipped:    report.Skipped,
		Scanned:    report.Scanned,
		Notified:   report.Notified,
		Suppressed: report.Suppressed,
		Escalated:  report.Escalated,
		Failed:     report.Failed,
	}})
}
