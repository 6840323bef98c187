package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/intake-api/internal/email"
	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/messaging"
)

const (
	channelEmail = "email"
	channelInApp = "in_app"
)

type Config struct {
	// OnCallEmail receives emergency escalations. Empty disables email.
	OnCallEmail string
	MaxRetries  int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

type Service interface {
	// NotifyEmergency alerts on-call staff about a red-flag session. Delivery
	// happens in the background; the returned notifications are pending.
	NotifyEmergency(ctx context.Context, session *model.IntakeSession) []*model.Notification
	// Wait blocks until in-flight deliveries finish.
	Wait()
}

type service struct {
	cfg       Config
	emailSvc  email.Service
	publisher messaging.Publisher
	logger    *logger.Logger
	inflight  sync.WaitGroup
}

func NewService(cfg Config, emailSvc email.Service, publisher messaging.Publisher, log *logger.Logger) Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if publisher == nil {
		publisher = messaging.NopPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &service{cfg: cfg, emailSvc: emailSvc, publisher: publisher, logger: log}
}

func (s *service) NotifyEmergency(ctx context.Context, session *model.IntakeSession) []*model.Notification {
	subject := fmt.Sprintf("URGENT: red-flag intake %s", session.ID)
	content := emergencyContent(session)
	now := time.Now()

	var out []*model.Notification
	channels := []string{channelInApp}
	if s.cfg.OnCallEmail != "" && s.emailSvc != nil {
		channels = append(channels, channelEmail)
	}
	for _, ch := range channels {
		n := &model.Notification{
			ID:        uuid.New(),
			SessionID: session.ID,
			Channel:   ch,
			Priority:  model.PriorityRed,
			Subject:   subject,
			Content:   content,
			Recipient: s.cfg.OnCallEmail,
			Status:    model.NotificationStatusPending,
			CreatedAt: now,
		}
		out = append(out, n)

		s.inflight.Add(1)
		go func(n model.Notification) {
			defer s.inflight.Done()
			s.process(context.WithoutCancel(ctx), &n)
		}(*n)
	}
	return out
}

func (s *service) Wait() {
	s.inflight.Wait()
}

func (s *service) process(ctx context.Context, n *model.Notification) {
	log := s.logger.WithFields(map[string]interface{}{
		"notification_id": n.ID.String(),
		"session_id":      n.SessionID,
		"channel":         n.Channel,
	})

	for {
		err := s.send(ctx, n)
		if err == nil {
			n.Status = model.NotificationStatusSent
			n.SentAt = time.Now()
			log.Info("emergency notification sent")
			return
		}

		n.RetryCount++
		n.LastError = err.Error()
		if n.RetryCount >= s.cfg.MaxRetries {
			n.Status = model.NotificationStatusFailed
			log.Error(err, "emergency notification failed", "retry_count", n.RetryCount)
			return
		}
		n.Status = model.NotificationStatusRetrying
		log.Warn("emergency notification retrying", "retry_count", n.RetryCount, "error", err.Error())
		time.Sleep(s.cfg.RetryDelay * time.Duration(n.RetryCount))
	}
}

func (s *service) send(ctx context.Context, n *model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	switch n.Channel {
	case channelEmail:
		return s.emailSvc.SendCustom(ctx, n.Recipient, n.Subject, n.Content)
	case channelInApp:
		return s.publisher.Publish(ctx, model.EventNotification, &model.NotificationEvent{
			ID:             uuid.New(),
			NotificationID: n.ID,
			SessionID:      n.SessionID,
			Type:           "emergency_escalation",
			Content:        n.Content,
			CreatedAt:      time.Now(),
		})
	default:
		return fmt.Errorf("unsupported channel: %s", n.Channel)
	}
}

func emergencyContent(session *model.IntakeSession) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s was escalated as a possible emergency.\n", session.ID)
	if session.PatientID != "" {
		fmt.Fprintf(&sb, "Patient: %s\n", session.PatientID)
	}
	if len(session.RedFlags) > 0 {
		fmt.Fprintf(&sb, "Red flags: %s\n", strings.Join(session.RedFlags, ", "))
	}
	if users := session.UserMessages(); len(users) > 0 {
		fmt.Fprintf(&sb, "Last patient message: %q\n", users[len(users)-1].Content)
	}
	sb.WriteString("The patient was told to call emergency services (108/112).")
	return sb.String()
}
