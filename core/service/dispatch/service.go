// Package dispatch owns the durable outbound queue: enqueue, claim, send,
// retry, dead-letter.
package dispatch

import (
	"context"
	"time"

	"replyflow_server/core/domain"
	"replyflow_server/core/port/out"
	"replyflow_server/pkg/apperr"
	"replyflow_server/pkg/logger"
)

// Config tunes the retry behavior.
type Config struct {
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
}

// DefaultConfig returns the retry policy used when none is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		RetryBase:   15 * time.Second,
		RetryMax:    10 * time.Minute,
	}
}

type Service struct {
	jobs      out.DispatchJobRepository
	mailboxes out.MailboxRepository
	creds     out.CredentialStore
	sender    out.MailSender
	producer  out.DispatchProducer
	cfg       Config
	log       *logger.Logger
}

func NewService(
	jobs out.DispatchJobRepository,
	mailboxes out.MailboxRepository,
	creds out.CredentialStore,
	sender out.MailSender,
	producer out.DispatchProducer,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		jobs:      jobs,
		mailboxes: mailboxes,
		creds:     creds,
		sender:    sender,
		producer:  producer,
		cfg:       cfg,
		log:       log,
	}
}

// Enqueue persists the job, then publishes a wake-up event. The publish is
// best-effort: the due-job sweep picks up anything a lost event left behind.
func (s *Service) Enqueue(ctx context.Context, job *domain.DispatchJob) (*domain.DispatchJob, error) {
	job.Status = domain.JobPending
	if job.MaxAttempts == 0 {
		job.MaxAttempts = s.cfg.MaxAttempts
	}

	saved, err := s.jobs.Insert(ctx, job)
	if err != nil {
		return nil, err
	}

	if s.producer != nil {
		if err := s.producer.PublishDispatch(ctx, saved.ID); err != nil {
			s.log.WithTenant(saved.TenantID).WithError(err).
				Warn("dispatch publish failed, job %d waits for the due sweep", saved.ID)
		}
	}

	return saved, nil
}

// Process claims and sends one job. A lost claim race or a not-yet-due job is
// a no-op, not an error.
func (s *Service) Process(ctx context.Context, jobID int64) error {
	job, err := s.jobs.Claim(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	log := s.log.WithTenant(job.TenantID).WithMailbox(job.MailboxID)

	smtpResp, sendErr := s.send(ctx, job)
	if sendErr == nil {
		if err := s.jobs.MarkSent(ctx, job.ID, smtpResp); err != nil {
			return err
		}
		log.Info("dispatch job %d sent to %s", job.ID, job.ToAddress)
		return nil
	}

	attempt := job.Attempts + 1
	if attempt >= job.MaxAttempts {
		if err := s.jobs.MarkDead(ctx, job.ID, sendErr.Error()); err != nil {
			return err
		}
		log.WithError(sendErr).Error("dispatch job %d dead after %d attempts", job.ID, attempt)
		return nil
	}

	next := time.Now().UTC().Add(domain.RetryDelay(attempt, s.cfg.RetryBase, s.cfg.RetryMax))
	if err := s.jobs.MarkFailed(ctx, job.ID, attempt, sendErr.Error(), next); err != nil {
		return err
	}
	log.WithError(sendErr).Warn("dispatch job %d attempt %d failed, retry at %s", job.ID, attempt, next.Format(time.RFC3339))
	return nil
}

// send loads the mailbox, decrypts the credential in call scope, and submits
// the message.
func (s *Service) send(ctx context.Context, job *domain.DispatchJob) (string, error) {
	mailbox, err := s.mailboxes.GetByID(ctx, job.MailboxID)
	if err != nil {
		return "", apperr.DispatchError(job.ID, err)
	}

	secret, err := s.creds.Secret(mailbox)
	if err != nil {
		return "", apperr.DispatchError(job.ID, err)
	}

	return s.sender.Send(ctx, mailbox, secret, &out.OutboundMail{
		From:    mailbox.Address,
		To:      job.ToAddress,
		Subject: job.Subject,
		Body:    job.Body,
	})
}

// SweepDue re-publishes pending or retryable jobs whose next attempt time has
// passed. It backstops lost wake-up events.
func (s *Service) SweepDue(ctx context.Context, limit int) (int, error) {
	jobs, err := s.jobs.ListDue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, job := range jobs {
		if err := s.producer.PublishDispatch(ctx, job.ID); err != nil {
			s.log.WithError(err).Warn("due sweep publish failed for job %d", job.ID)
			continue
		}
		published++
	}
	return published, nil
}

// ListDead returns dead jobs for operator inspection.
func (s *Service) ListDead(ctx context.Context, tenantID int64, limit int) ([]*domain.DispatchJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.jobs.ListDead(ctx, tenantID, limit)
}

// Retry resets a dead job to pending and publishes it.
func (s *Service) Retry(ctx context.Context, jobID int64) (*domain.DispatchJob, error) {
	job, err := s.jobs.Requeue(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if s.producer != nil {
		if err := s.producer.PublishDispatch(ctx, job.ID); err != nil {
			s.log.WithError(err).Warn("retry publish failed for job %d", job.ID)
		}
	}
	return job, nil
}
