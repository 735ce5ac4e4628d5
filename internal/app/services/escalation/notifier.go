package escalation

import (
	"context"
	"fmt"
	"strings"

	"github.com/kedaikopi/delivery_layer/internal/app/domain/notification"
	"github.com/kedaikopi/delivery_layer/internal/app/metrics"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
)

// EmailSender delivers one message. The transport (SMTP, provider API) lives
// outside this core; implementations must be safe for concurrent use.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender is the fallback EmailSender used when no transport is configured;
// it writes the message to the log instead.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.NewDefault("escalation-mail")
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.log.WithField("to", to).Infof("email suppressed (no transport configured): %s", subject)
	return nil
}

// Notifier raises the exactly-once-per-job administrative alert when a job's
// attempt count first reaches the threshold. Because attempts only increases
// and Notify is invoked solely from the path that increments it, the
// attempts==threshold guard fires at most once per job lifetime.
type Notifier struct {
	admins       storage.AdminStore
	store        storage.NotificationStore
	email        EmailSender
	threshold    int
	adminBaseURL string
	log          *logger.Logger
}

// New creates a notifier. A nil email sender falls back to LogSender.
func New(admins storage.AdminStore, store storage.NotificationStore, email EmailSender, threshold int, adminBaseURL string, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewDefault("escalation")
	}
	if email == nil {
		email = NewLogSender(log)
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &Notifier{
		admins:       admins,
		store:        store,
		email:        email,
		threshold:    threshold,
		adminBaseURL: strings.TrimRight(adminBaseURL, "/"),
		log:          log,
	}
}

// Threshold returns the configured escalation attempt count.
func (n *Notifier) Threshold() int { return n.threshold }

// Notify alerts every administrator about a job that crossed the failure
// threshold. Calls where attempts != threshold return immediately with no
// side effects. Transport failures are logged and never propagate: a broken
// mail server must not block geocoding, and one admin's delivery failure must
// not stop delivery to the rest.
func (n *Notifier) Notify(ctx context.Context, orderID, message string, attempts int) {
	if attempts != n.threshold {
		return
	}

	admins, err := n.admins.ListAdmins(ctx)
	if err != nil {
		n.log.WithError(err).WithField("order_id", orderID).Warn("resolve admin directory failed")
		return
	}
	if len(admins) == 0 {
		n.log.WithField("order_id", orderID).Warn("no administrators to escalate to")
		return
	}

	metrics.RecordEscalation()
	n.log.WithField("order_id", orderID).
		WithField("attempts", attempts).
		Warn("escalating geocode failure to administrators")

	subject := fmt.Sprintf("Order %s needs manual geocoding", orderID)
	body := fmt.Sprintf(
		"Automatic geocoding for order %s failed %d times.\n\nLast error: %s\n\nReview the order: %s/admin/orders/%s\n",
		orderID, attempts, message, n.adminBaseURL, orderID,
	)

	for _, admin := range admins {
		_, err := n.store.CreateNotification(ctx, notification.Notification{
			RecipientID: admin.ID,
			Category:    notification.CategorySystem,
			Title:       subject,
			Body:        fmt.Sprintf("Geocoding failed %d times: %s", attempts, message),
			OrderID:     orderID,
		})
		if err != nil {
			n.log.WithError(err).WithField("admin_id", admin.ID).Warn("create in-app notification failed")
		}

		if err := n.email.Send(ctx, admin.Email, subject, body); err != nil {
			n.log.WithError(err).WithField("admin_id", admin.ID).Warn("send escalation email failed")
		}
	}
}
