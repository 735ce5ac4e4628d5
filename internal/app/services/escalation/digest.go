package escalation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/kedaikopi/delivery_layer/internal/app/system"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
	"github.com/robfig/cron/v3"
)

var _ system.Service = (*Digest)(nil)

// Digest mails administrators a periodic summary of jobs still failing, so
// escalated orders that nobody acted on do not go quiet after the one-shot
// alert.
type Digest struct {
	jobs     storage.JobStore
	admins   storage.AdminStore
	email    EmailSender
	schedule string
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewDigest creates a digest on the given cron schedule (standard 5-field
// spec, e.g. "0 8 * * *" for daily at 08:00).
func NewDigest(jobs storage.JobStore, admins storage.AdminStore, email EmailSender, schedule string, log *logger.Logger) *Digest {
	if log == nil {
		log = logger.NewDefault("failed-jobs-digest")
	}
	if email == nil {
		email = NewLogSender(log)
	}
	return &Digest{
		jobs:     jobs,
		admins:   admins,
		email:    email,
		schedule: schedule,
		log:      log,
	}
}

func (d *Digest) Name() string { return "failed-jobs-digest" }

func (d *Digest) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(d.schedule, func() { d.run(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", d.schedule, err)
	}
	c.Start()
	d.cron = c

	d.log.Infof("failed jobs digest scheduled (%s)", d.schedule)
	return nil
}

func (d *Digest) Stop(ctx context.Context) error {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run composes and sends one digest immediately. Exposed for tests and for
// manual triggering.
func (d *Digest) Run(ctx context.Context) {
	d.run(ctx)
}

func (d *Digest) run(ctx context.Context) {
	failed, err := d.jobs.ListFailedJobs(ctx, 50)
	if err != nil {
		d.log.WithError(err).Warn("digest: list failed jobs")
		return
	}
	if len(failed) == 0 {
		return
	}

	admins, err := d.admins.ListAdmins(ctx)
	if err != nil {
		d.log.WithError(err).Warn("digest: resolve admin directory")
		return
	}
	if len(admins) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d delivery orders still have failing geocode jobs:\n\n", len(failed))
	for _, row := range failed {
		fmt.Fprintf(&b, "- order %s (%d attempts): %s — %q\n", row.OrderID, row.Attempts, row.LastError, row.DeliveryAddress)
	}

	subject := fmt.Sprintf("Geocoding digest: %d orders need attention", len(failed))
	for _, admin := range admins {
		if err := d.email.Send(ctx, admin.Email, subject, b.String()); err != nil {
			d.log.WithError(err).WithField("admin_id", admin.ID).Warn("digest: send email failed")
		}
	}
}
