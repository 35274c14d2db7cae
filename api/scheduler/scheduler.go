package scheduler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/medirush/medirush-api/databases"
	"github.com/medirush/medirush-api/models"
	templates "github.com/medirush/medirush-api/templates/html"
)

const defaultStalePendingMinutes = 15

// Scheduler runs the periodic background jobs: the stale-pending sweep and
// the daily dispatch summary. Jobs take a Mongo lock first so only one
// instance runs them.
type Scheduler struct {
	cron       *cron.Cron
	EDB        databases.EmergencyDatabase
	UDB        databases.UserDatabase
	LockDB     databases.SchedulerLockDatabase
	instanceID string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(
	eDB databases.EmergencyDatabase,
	uDB databases.UserDatabase,
	lockDB databases.SchedulerLockDatabase,
) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		EDB:        eDB,
		UDB:        uDB,
		LockDB:     lockDB,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Alert dispatch about requests nobody has accepted, every 5 minutes
	_, err := s.cron.AddFunc("*/5 * * * *", s.sweepStalePending)
	if err != nil {
		zap.S().Errorw("failed to register stale pending job", "error", err)
	}

	// Daily activity summary at 3 AM UTC
	_, err = s.cron.AddFunc("0 3 * * *", s.sendDailySummary)
	if err != nil {
		zap.S().Errorw("failed to register daily summary job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("emergency scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("emergency scheduler stopped")
}

// sweepStalePending finds requests still pending past the alert threshold and
// emails dispatch about them
func (s *Scheduler) sweepStalePending() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	acquired, err := s.LockDB.Acquire(ctx, "stale_pending_job", s.instanceID, 5*time.Minute)
	if err != nil {
		zap.S().Errorw("failed to acquire lock for stale pending job", "error", err)
		return
	}
	if !acquired {
		zap.S().Debug("stale pending job already running on another instance, skipping")
		return
	}
	defer s.LockDB.Release(ctx, "stale_pending_job", s.instanceID)

	threshold := stalePendingThreshold()
	cutoff := time.Now().UTC().Add(-threshold)

	stale, err := s.EDB.Find(ctx, bson.M{
		"emergency.status":    models.StatusPending,
		"emergency.createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		zap.S().Errorw("failed to find stale pending requests", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	zap.S().Infow("found stale pending requests",
		"count", len(stale),
		"threshold", threshold.String(),
		"instance", s.instanceID,
	)

	body := fmt.Sprintf("%d emergency request(s) have been pending for more than %s:\n\n", len(stale), threshold)
	for _, req := range stale {
		body += fmt.Sprintf("- %s (%s) created %s\n",
			req.ID, req.Details.Description, req.Details.CreatedAt.Format(time.RFC3339))
	}
	body += "\nPlease check the dispatch dashboard."

	s.notifyDispatch("Unassigned emergency requests need attention", body)
}

// sendDailySummary emails dispatch a count of requests per lifecycle state
// for the last 24 hours
func (s *Scheduler) sendDailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	acquired, err := s.LockDB.Acquire(ctx, "daily_summary_job", s.instanceID, 10*time.Minute)
	if err != nil {
		zap.S().Errorw("failed to acquire lock for daily summary job", "error", err)
		return
	}
	if !acquired {
		zap.S().Debug("daily summary job already running on another instance, skipping")
		return
	}
	defer s.LockDB.Release(ctx, "daily_summary_job", s.instanceID)

	since := time.Now().UTC().Add(-24 * time.Hour)
	statuses := []models.EmergencyStatus{
		models.StatusPending, models.StatusAccepted, models.StatusEnRoute,
		models.StatusArrived, models.StatusCompleted, models.StatusCancelled,
	}

	body := "Emergency request activity in the last 24 hours:\n\n"
	total := 0
	for _, status := range statuses {
		reqs, err := s.EDB.Find(ctx, bson.M{
			"emergency.status":    status,
			"emergency.updatedAt": bson.M{"$gte": since},
		})
		if err != nil {
			zap.S().Errorw("failed to count requests for summary", "status", status, "error", err)
			continue
		}
		body += fmt.Sprintf("- %s: %d\n", status, len(reqs))
		total += len(reqs)
	}
	body += fmt.Sprintf("\nTotal active or updated: %d\n", total)

	s.notifyDispatch("Daily dispatch summary", body)
	zap.S().Infow("daily summary sent", "instance", s.instanceID)
}

// notifyDispatch emails the configured dispatch address, falling back to
// every admin account when none is configured
func (s *Scheduler) notifyDispatch(subject, body string) {
	recipients := []string{}
	if addr := os.Getenv("DISPATCH_ALERT_EMAIL"); addr != "" {
		recipients = append(recipients, addr)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		admins, err := s.UDB.Find(ctx, bson.M{"user.role": models.RoleAdmin})
		if err != nil {
			zap.S().Errorw("failed to find admin recipients", "error", err)
			return
		}
		for _, admin := range admins {
			if admin.Details.Email != "" {
				recipients = append(recipients, admin.Details.Email)
			}
		}
	}

	for _, recipient := range recipients {
		if err := s.sendEmail(recipient, subject, body); err != nil {
			zap.S().Errorw("failed to send dispatch email", "to", recipient, "error", err)
		}
	}
}

func (s *Scheduler) sendEmail(toEmail, subject, plainText string) error {
	from := mail.NewEmail("MediRush", "no-reply@medirush.app")
	to := mail.NewEmail("", toEmail)
	htmlContent := templates.RenderGenericEmail(subject, plainText)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
	return nil
}

func stalePendingThreshold() time.Duration {
	if v := os.Getenv("STALE_PENDING_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultStalePendingMinutes * time.Minute
}
