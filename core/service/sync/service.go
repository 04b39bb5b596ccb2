// Package sync orchestrates the fetch-dedup-classify-decide pass over tenant
// mailboxes.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"replyflow_server/core/domain"
	"replyflow_server/core/port/out"
	"replyflow_server/core/service/automation"
	"replyflow_server/core/service/classify"
	"replyflow_server/pkg/apperr"
	"replyflow_server/pkg/logger"
)

// JobEnqueuer persists and publishes one dispatch job. Satisfied by the
// dispatch service.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *domain.DispatchJob) (*domain.DispatchJob, error)
}

// Config tunes per-pass behavior.
type Config struct {
	// MailboxTimeout bounds one mailbox's fetch-classify-decide pass.
	MailboxTimeout time.Duration
	// MailboxConcurrency caps mailboxes processed in parallel per tenant.
	MailboxConcurrency int
	// CooldownBase/Max shape the backoff for repeatedly failing mailboxes.
	CooldownBase time.Duration
	CooldownMax  time.Duration
}

// DefaultConfig returns the pass tuning used when none is configured.
func DefaultConfig() Config {
	return Config{
		MailboxTimeout:     60 * time.Second,
		MailboxConcurrency: 4,
		CooldownBase:       30 * time.Second,
		CooldownMax:        10 * time.Minute,
	}
}

type Service struct {
	tenants   out.TenantRepository
	mailboxes out.MailboxRepository
	messages  out.MessageRepository
	settings  out.SettingsRepository
	runs      out.SyncRunRepository
	creds     out.CredentialStore
	fetcher   out.MailboxFetcher
	composer  out.ReplyComposer

	classifier *classify.Service
	enqueuer   JobEnqueuer

	cfg Config
	log *logger.Logger
}

func NewService(
	tenants out.TenantRepository,
	mailboxes out.MailboxRepository,
	messages out.MessageRepository,
	settings out.SettingsRepository,
	runs out.SyncRunRepository,
	creds out.CredentialStore,
	fetcher out.MailboxFetcher,
	composer out.ReplyComposer,
	classifier *classify.Service,
	enqueuer JobEnqueuer,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.MailboxTimeout == 0 {
		cfg = DefaultConfig()
	}
	if cfg.MailboxConcurrency < 1 {
		cfg.MailboxConcurrency = 1
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		tenants:    tenants,
		mailboxes:  mailboxes,
		messages:   messages,
		settings:   settings,
		runs:       runs,
		creds:      creds,
		fetcher:    fetcher,
		composer:   composer,
		classifier: classifier,
		enqueuer:   enqueuer,
		cfg:        cfg,
		log:        log,
	}
}

// ListActiveTenants exposes the tenant roster for the scheduler.
func (s *Service) ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	return s.tenants.ListActive(ctx)
}

// RunTick runs one pass over every active tenant inline and sums the
// counters. One tenant failing outright still lets the rest run.
func (s *Service) RunTick(ctx context.Context) (*domain.TickResult, error) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	tick := &domain.TickResult{Tenants: len(tenants)}
	for _, t := range tenants {
		result, err := s.RunTenantPass(ctx, t.ID)
		if err != nil {
			s.log.WithTenant(t.ID).WithError(err).Warn("tick pass failed")
			tick.Failed++
			continue
		}
		tick.Mailboxes += result.Mailboxes
		tick.Messages += result.Ingested
		tick.Failed += result.Failed
	}
	return tick, nil
}

// ReleaseStaleRuns closes runs a crashed worker left open.
func (s *Service) ReleaseStaleRuns(ctx context.Context, maxAge time.Duration) (int, error) {
	return s.runs.ReleaseStale(ctx, maxAge)
}

// ListHumanQueue returns messages the decision engine routed to the
// tenant's inbox, newest first.
func (s *Service) ListHumanQueue(ctx context.Context, tenantID int64, limit int) ([]*domain.InboundMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.messages.ListRoutedToHuman(ctx, tenantID, limit)
}

// RunTenantPass processes every syncable mailbox of one tenant. Mailboxes run
// concurrently up to the configured ceiling; one mailbox failing never stops
// the others.
func (s *Service) RunTenantPass(ctx context.Context, tenantID int64) (*domain.TenantPassResult, error) {
	log := s.log.WithTenant(tenantID)

	settings := s.loadSettings(ctx, tenantID)

	mailboxes, err := s.mailboxes.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &domain.TenantPassResult{TenantID: tenantID, Mailboxes: len(mailboxes)}
	if len(mailboxes) == 0 {
		result.Outcome = domain.SyncOutcomeOK
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.MailboxConcurrency)
	)

	now := time.Now().UTC()
	for _, mb := range mailboxes {
		if !mb.Syncable(now) {
			result.Skipped++
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(mb *domain.Mailbox) {
			defer wg.Done()
			defer func() { <-sem }()

			fetched, ingested, err := s.syncMailbox(ctx, mb, settings)

			mu.Lock()
			defer mu.Unlock()
			result.Fetched += fetched
			result.Ingested += ingested
			switch {
			case err == nil:
			case apperr.IsCode(err, apperr.CodeAlreadyRunning):
				result.Skipped++
			default:
				result.Failed++
				log.WithMailbox(mb.ID).WithError(err).Warn("mailbox pass failed")
			}
		}(mb)
	}
	wg.Wait()

	attempted := result.Mailboxes - result.Skipped
	switch {
	case attempted == 0 || result.Failed == 0:
		result.Outcome = domain.SyncOutcomeOK
	case result.Failed < attempted:
		result.Outcome = domain.SyncOutcomePartial
	default:
		result.Outcome = domain.SyncOutcomeFailed
	}

	log.Info("tenant pass done: %d mailboxes, %d fetched, %d ingested, %d failed, %d skipped",
		result.Mailboxes, result.Fetched, result.Ingested, result.Failed, result.Skipped)
	return result, nil
}

// loadSettings falls back to the conservative default policy (no auto-reply)
// when the tenant has not configured automation.
func (s *Service) loadSettings(ctx context.Context, tenantID int64) *domain.AutomationSettings {
	settings, err := s.settings.GetByTenant(ctx, tenantID)
	if err != nil || settings == nil {
		if err != nil && !apperr.IsCode(err, apperr.CodeNotFound) {
			s.log.WithTenant(tenantID).WithError(err).Warn("settings lookup failed, using defaults")
		}
		return domain.DefaultAutomationSettings(tenantID)
	}
	return settings
}

// syncMailbox runs one locked fetch-classify-decide pass over a mailbox.
func (s *Service) syncMailbox(ctx context.Context, mb *domain.Mailbox, settings *domain.AutomationSettings) (fetched, ingested int, err error) {
	run, err := s.runs.Open(ctx, mb.TenantID, mb.ID)
	if err != nil {
		return 0, 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.MailboxTimeout)
	defer cancel()

	fetched, ingested, passErr := s.fetchAndProcess(ctx, mb, settings)

	outcome := domain.SyncOutcomeOK
	lastError := ""
	if passErr != nil {
		outcome = domain.SyncOutcomeFailed
		lastError = passErr.Error()
		if ingested > 0 {
			outcome = domain.SyncOutcomePartial
		}
		s.recordMailboxFailure(ctx, mb)
	} else if mb.FailureCount > 0 {
		if clearErr := s.mailboxes.ClearFailures(ctx, mb.ID); clearErr != nil {
			s.log.WithMailbox(mb.ID).WithError(clearErr).Warn("failed to clear mailbox cooldown")
		}
	}

	if closeErr := s.runs.Close(context.WithoutCancel(ctx), run.ID, outcome, fetched, ingested, lastError); closeErr != nil {
		s.log.WithMailbox(mb.ID).WithError(closeErr).Error("failed to close sync run %d", run.ID)
	}

	return fetched, ingested, passErr
}

// recordMailboxFailure pushes the mailbox into an exponential cooldown.
func (s *Service) recordMailboxFailure(ctx context.Context, mb *domain.Mailbox) {
	until := time.Now().UTC().Add(domain.RetryDelay(mb.FailureCount+1, s.cfg.CooldownBase, s.cfg.CooldownMax))
	if err := s.mailboxes.RecordFailure(context.WithoutCancel(ctx), mb.ID, until); err != nil {
		s.log.WithMailbox(mb.ID).WithError(err).Warn("failed to record mailbox failure")
	}
}

// unprocessedBatch caps how many stranded rows one pass replays before
// fetching new mail.
const unprocessedBatch = 100

// fetchAndProcess replays messages a previous pass left undecided, then
// pulls new messages, persists the survivors of dedup, advances the
// watermark, and runs classify-decide-act per message.
func (s *Service) fetchAndProcess(ctx context.Context, mb *domain.Mailbox, settings *domain.AutomationSettings) (fetched, ingested int, err error) {
	var undecided int

	// The watermark hides already-ingested messages from every future
	// fetch, so rows whose decision never landed (a killed worker, an
	// expired pass) are only ever revisited here.
	backlog, err := s.messages.ListUnprocessed(ctx, mb.ID, unprocessedBatch)
	if err != nil {
		return 0, 0, err
	}
	for _, msg := range backlog {
		if err := s.processMessage(ctx, msg, settings); err != nil {
			undecided++
			s.log.WithTenant(mb.TenantID).WithMailbox(mb.ID).WithError(err).
				Warn("replay of message %d failed", msg.ID)
		}
	}

	secret, err := s.creds.Secret(mb)
	if err != nil {
		return 0, 0, err
	}

	raw, err := s.fetcher.Fetch(ctx, mb, secret)
	if err != nil {
		return 0, 0, err
	}
	fetched = len(raw)
	if fetched == 0 {
		return 0, 0, undecidedErr(undecided)
	}

	candidates := make([]*domain.InboundMessage, 0, len(raw))
	var maxUID uint32
	for _, rm := range raw {
		if rm.UID > maxUID {
			maxUID = rm.UID
		}
		if rm.UID <= mb.LastUID {
			continue
		}
		body := rm.TextBody
		if body == "" {
			body = rm.HTMLBody
		}
		candidates = append(candidates, &domain.InboundMessage{
			TenantID:    mb.TenantID,
			MailboxID:   mb.ID,
			ExternalUID: rm.UID,
			MessageID:   rm.MessageID,
			FromEmail:   rm.From,
			FromName:    rm.FromName,
			Subject:     rm.Subject,
			Body:        body,
			ReceivedAt:  rm.ReceivedAt,
		})
	}

	inserted, err := s.messages.InsertNew(ctx, candidates)
	if err != nil {
		return fetched, 0, err
	}
	ingested = len(inserted)

	// Watermark moves only after the messages are durable.
	if maxUID > mb.LastUID {
		if err := s.mailboxes.AdvanceWatermark(ctx, mb.ID, maxUID); err != nil {
			return fetched, ingested, err
		}
	}

	for _, msg := range inserted {
		if err := s.processMessage(ctx, msg, settings); err != nil {
			undecided++
			s.log.WithTenant(mb.TenantID).WithMailbox(mb.ID).WithError(err).
				Warn("message %d processing failed", msg.ID)
		}
	}

	return fetched, ingested, undecidedErr(undecided)
}

// undecidedErr surfaces decision failures so the run closes partial or
// failed instead of ok. The rows stay queryable and replay next pass.
func undecidedErr(n int) error {
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%d message(s) awaiting a decision", n)
}

// processMessage classifies one ingested message and applies the decision.
// The decision writes run on a detached context, like runs.Close: a mailbox
// deadline expiring mid-loop must not strand a classified message.
func (s *Service) processMessage(ctx context.Context, msg *domain.InboundMessage, settings *domain.AutomationSettings) error {
	category := msg.Intent
	if _, known := domain.ParseIntentCategory(string(category)); !known {
		category = s.classifier.Classify(ctx, msg.Subject, msg.Body, settings.Purpose)
	}

	store := context.WithoutCancel(ctx)
	if err := s.messages.SetIntent(store, msg.ID, category); err != nil {
		return err
	}
	msg.Intent = category

	action := automation.Decide(msg, category, settings)
	switch action.Kind {
	case automation.ActionSuppress:
		return s.messages.MarkProcessed(store, msg.ID, false)

	case automation.ActionRouteToHuman:
		return s.messages.MarkProcessed(store, msg.ID, true)

	case automation.ActionAutoReply:
		return s.autoReply(ctx, msg, action.Draft)

	default:
		return fmt.Errorf("unknown action %v", action.Kind)
	}
}

// autoReply composes the reply and enqueues the dispatch job. Composer
// failures fall back to routing the message to a human. Only the composer
// call honors the pass deadline; the writes must land either way.
func (s *Service) autoReply(ctx context.Context, msg *domain.InboundMessage, draft *out.DraftInput) error {
	store := context.WithoutCancel(ctx)

	body, err := s.composer.ComposeReply(ctx, draft)
	if err != nil {
		s.log.WithTenant(msg.TenantID).WithError(apperr.CompositionError(err)).
			Warn("reply composition failed for message %d, routing to human", msg.ID)
		return s.messages.MarkProcessed(store, msg.ID, true)
	}

	msgID := msg.ID
	_, err = s.enqueuer.Enqueue(store, &domain.DispatchJob{
		TenantID:  msg.TenantID,
		MailboxID: msg.MailboxID,
		MessageID: &msgID,
		ToAddress: msg.FromEmail,
		Subject:   replySubject(msg.Subject),
		Body:      body,
	})
	if err != nil {
		// The reply could not be queued durably; a human should see it.
		if mpErr := s.messages.MarkProcessed(store, msg.ID, true); mpErr != nil {
			return mpErr
		}
		return err
	}

	return s.messages.MarkProcessed(store, msg.ID, false)
}

func replySubject(subject string) string {
	if len(subject) >= 3 && (subject[:3] == "Re:" || subject[:3] == "RE:" || subject[:3] == "re:") {
		return subject
	}
	return "Re: " + subject
}
