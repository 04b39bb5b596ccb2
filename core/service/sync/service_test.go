package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"replyflow_server/core/domain"
	"replyflow_server/core/port/out"
	"replyflow_server/core/service/classify"
	"replyflow_server/pkg/apperr"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeTenantRepo struct {
	tenants []*domain.Tenant
}

func (r *fakeTenantRepo) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	return r.tenants, nil
}
func (r *fakeTenantRepo) GetByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	for _, t := range r.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeMailboxRepo struct {
	mu        sync.Mutex
	mailboxes map[int64]*domain.Mailbox
	failures  map[int64]time.Time
	cleared   map[int64]bool
}

func newFakeMailboxRepo(mbs ...*domain.Mailbox) *fakeMailboxRepo {
	r := &fakeMailboxRepo{
		mailboxes: make(map[int64]*domain.Mailbox),
		failures:  make(map[int64]time.Time),
		cleared:   make(map[int64]bool),
	}
	for _, mb := range mbs {
		r.mailboxes[mb.ID] = mb
	}
	return r
}

func (r *fakeMailboxRepo) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*domain.Mailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Mailbox
	for _, mb := range r.mailboxes {
		if mb.TenantID == tenantID && mb.Active {
			cp := *mb
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (r *fakeMailboxRepo) GetByID(ctx context.Context, id int64) (*domain.Mailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mb, ok := r.mailboxes[id]; ok {
		cp := *mb
		return &cp, nil
	}
	return nil, errors.New("not found")
}

func (r *fakeMailboxRepo) AdvanceWatermark(ctx context.Context, mailboxID int64, uid uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mb, ok := r.mailboxes[mailboxID]; ok && uid > mb.LastUID {
		mb.LastUID = uid
	}
	return nil
}

func (r *fakeMailboxRepo) RecordFailure(ctx context.Context, mailboxID int64, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[mailboxID] = until
	if mb, ok := r.mailboxes[mailboxID]; ok {
		mb.FailureCount++
		mb.CooldownUntil = &until
	}
	return nil
}

func (r *fakeMailboxRepo) ClearFailures(ctx context.Context, mailboxID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared[mailboxID] = true
	if mb, ok := r.mailboxes[mailboxID]; ok {
		mb.FailureCount = 0
		mb.CooldownUntil = nil
	}
	return nil
}

func (r *fakeMailboxRepo) watermark(id int64) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mailboxes[id].LastUID
}

type msgKey struct {
	mailboxID int64
	uid       uint32
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	nextID    int64
	byKey     map[msgKey]*domain.InboundMessage
	byID      map[int64]*domain.InboundMessage
	processed map[int64]bool
	human     map[int64]bool
	markErr   error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		byKey:     make(map[msgKey]*domain.InboundMessage),
		byID:      make(map[int64]*domain.InboundMessage),
		processed: make(map[int64]bool),
		human:     make(map[int64]bool),
	}
}

func (r *fakeMessageRepo) InsertNew(ctx context.Context, msgs []*domain.InboundMessage) ([]*domain.InboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted []*domain.InboundMessage
	for _, m := range msgs {
		key := msgKey{m.MailboxID, m.ExternalUID}
		if _, dup := r.byKey[key]; dup {
			continue
		}
		r.nextID++
		cp := *m
		cp.ID = r.nextID
		r.byKey[key] = &cp
		r.byID[cp.ID] = &cp
		res := cp
		inserted = append(inserted, &res)
	}
	return inserted, nil
}

func (r *fakeMessageRepo) SetIntent(ctx context.Context, messageID int64, intent domain.IntentCategory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[messageID]; ok {
		m.Intent = intent
	}
	return nil
}

func (r *fakeMessageRepo) MarkProcessed(ctx context.Context, messageID int64, routedToHuman bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	r.processed[messageID] = true
	r.human[messageID] = routedToHuman
	return nil
}

func (r *fakeMessageRepo) ListUnprocessed(ctx context.Context, mailboxID int64, limit int) ([]*domain.InboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.InboundMessage
	for id, m := range r.byID {
		if m.MailboxID == mailboxID && !r.processed[id] {
			cp := *m
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *fakeMessageRepo) setMarkErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markErr = err
}

func (r *fakeMessageRepo) ListRoutedToHuman(ctx context.Context, tenantID int64, limit int) ([]*domain.InboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.InboundMessage
	for id, routed := range r.human {
		if routed && r.byID[id].TenantID == tenantID {
			cp := *r.byID[id]
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (r *fakeMessageRepo) CountByMailbox(ctx context.Context, mailboxID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.byKey {
		if key.mailboxID == mailboxID {
			n++
		}
	}
	return n, nil
}

type fakeSettingsRepo struct {
	settings *domain.AutomationSettings
}

func (r *fakeSettingsRepo) GetByTenant(ctx context.Context, tenantID int64) (*domain.AutomationSettings, error) {
	if r.settings == nil {
		return nil, apperr.New(apperr.CodeNotFound, "settings not found", 404)
	}
	return r.settings, nil
}

type fakeRunRepo struct {
	mu     sync.Mutex
	nextID int64
	open   map[int64]int64 // mailboxID -> runID
	closed []domain.SyncRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{open: make(map[int64]int64)}
}

func (r *fakeRunRepo) Open(ctx context.Context, tenantID, mailboxID int64) (*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.open[mailboxID]; held {
		return nil, apperr.AlreadyRunning(mailboxID)
	}
	r.nextID++
	r.open[mailboxID] = r.nextID
	return &domain.SyncRun{
		ID:        r.nextID,
		TenantID:  tenantID,
		MailboxID: mailboxID,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (r *fakeRunRepo) Close(ctx context.Context, runID int64, outcome domain.SyncOutcome, fetched, ingested int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for mbID, id := range r.open {
		if id == runID {
			delete(r.open, mbID)
			break
		}
	}
	now := time.Now().UTC()
	r.closed = append(r.closed, domain.SyncRun{
		ID: runID, FinishedAt: &now, Outcome: outcome,
		Fetched: fetched, Ingested: ingested, LastError: lastError,
	})
	return nil
}

func (r *fakeRunRepo) ReleaseStale(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}

type fakeCredStore struct{}

func (fakeCredStore) Secret(mailbox *domain.Mailbox) (*domain.MailboxSecret, error) {
	return &domain.MailboxSecret{Username: mailbox.Username, Password: "pw"}, nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	messages []*domain.RawMessage
	err      error
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, mailbox *domain.Mailbox, secret *domain.MailboxSecret) ([]*domain.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubModel struct {
	token string
	err   error
}

func (s stubModel) ClassifyIntent(ctx context.Context, subject, body, tenantContext string) (string, error) {
	return s.token, s.err
}

// deadlineModel blocks until the caller's context expires, the way a hung
// inference call does.
type deadlineModel struct{}

func (deadlineModel) ClassifyIntent(ctx context.Context, subject, body, tenantContext string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeComposer struct {
	body string
	err  error
}

func (c *fakeComposer) ComposeReply(ctx context.Context, input *out.DraftInput) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.body, nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []*domain.DispatchJob
	err  error
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, job *domain.DispatchJob) (*domain.DispatchJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	cp := *job
	cp.ID = int64(len(e.jobs) + 1)
	e.jobs = append(e.jobs, &cp)
	return &cp, nil
}

// =============================================================================
// Helpers
// =============================================================================

func rawMessage(uid uint32, subject, body string) *domain.RawMessage {
	return &domain.RawMessage{
		UID:        uid,
		MessageID:  fmt.Sprintf("<%d@example.com>", uid),
		From:       "customer@example.com",
		FromName:   "Ada",
		Subject:    subject,
		TextBody:   body,
		ReceivedAt: time.Now().UTC(),
	}
}

func testMailbox(lastUID uint32) *domain.Mailbox {
	return &domain.Mailbox{
		ID:       1,
		TenantID: 1,
		Address:  "support@tenant.example",
		IMAPHost: "imap.tenant.example",
		IMAPPort: 993,
		Username: "support@tenant.example",
		Active:   true,
		LastUID:  lastUID,
	}
}

type testEnv struct {
	svc       *Service
	mailboxes *fakeMailboxRepo
	messages  *fakeMessageRepo
	runs      *fakeRunRepo
	fetcher   *fakeFetcher
	composer  *fakeComposer
	enqueuer  *fakeEnqueuer
}

func newTestEnv(mb *domain.Mailbox, settings *domain.AutomationSettings, model stubModel) *testEnv {
	return newTestEnvWith(mb, settings, model, Config{
		MailboxTimeout:     5 * time.Second,
		MailboxConcurrency: 2,
		CooldownBase:       time.Minute,
		CooldownMax:        10 * time.Minute,
	})
}

func newTestEnvWith(mb *domain.Mailbox, settings *domain.AutomationSettings, model out.IntentClassifier, cfg Config) *testEnv {
	env := &testEnv{
		mailboxes: newFakeMailboxRepo(mb),
		messages:  newFakeMessageRepo(),
		runs:      newFakeRunRepo(),
		fetcher:   &fakeFetcher{},
		composer:  &fakeComposer{body: "Thanks for reaching out, here are the details."},
		enqueuer:  &fakeEnqueuer{},
	}
	env.svc = NewService(
		&fakeTenantRepo{tenants: []*domain.Tenant{{ID: 1, Active: true}}},
		env.mailboxes,
		env.messages,
		&fakeSettingsRepo{settings: settings},
		env.runs,
		fakeCredStore{},
		env.fetcher,
		env.composer,
		classify.NewService(model, nil),
		env.enqueuer,
		cfg,
		nil,
	)
	return env
}

func enabledSettings() *domain.AutomationSettings {
	return &domain.AutomationSettings{
		TenantID:         1,
		AutoReplyEnabled: true,
		Tone:             "friendly",
		Purpose:          "SaaS helpdesk",
		ReplyLength:      domain.ReplyLengthMedium,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestWatermarkSkipsOldAndAdvances(t *testing.T) {
	env := newTestEnv(testMailbox(100), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{
		rawMessage(98, "Old question", "Already ingested last pass."),
		rawMessage(101, "Pricing", "How much is the pro plan?"),
		rawMessage(105, "Pricing again", "And the enterprise plan?"),
	}

	result, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}

	if result.Fetched != 3 {
		t.Errorf("fetched = %d, want 3", result.Fetched)
	}
	if result.Ingested != 2 {
		t.Errorf("ingested = %d, want 2", result.Ingested)
	}
	if wm := env.mailboxes.watermark(1); wm != 105 {
		t.Errorf("watermark = %d, want 105", wm)
	}
	if _, dup := env.messages.byKey[msgKey{1, 98}]; dup {
		t.Error("message below watermark was ingested")
	}
}

func TestConcurrentPassObservesAlreadyRunning(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{rawMessage(1, "Hi", "Question about plans.")}

	// First pass holds the lock.
	if _, err := env.runs.Open(context.Background(), 1, 1); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	result, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if env.fetcher.callCount() != 0 {
		t.Errorf("fetcher called %d times while lock held, want 0", env.fetcher.callCount())
	}
}

func TestIngestionIsIdempotent(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{
		rawMessage(1, "Pricing", "How much?"),
		rawMessage(2, "Pricing", "For 10 seats?"),
	}

	first, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("first pass error = %v", err)
	}
	if first.Ingested != 2 {
		t.Fatalf("first pass ingested = %d, want 2", first.Ingested)
	}

	// The fetcher returns the same messages again; the watermark would
	// normally filter them, but even with a stale watermark the dedup
	// ledger must reject re-inserts.
	env.mailboxes.mailboxes[1].LastUID = 0
	second, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("second pass error = %v", err)
	}
	if second.Ingested != 0 {
		t.Errorf("second pass ingested = %d, want 0", second.Ingested)
	}
}

func TestAutoReplyEnqueuesDispatchJob(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{rawMessage(1, "Pro plan", "How much is it?")}

	if _, err := env.svc.RunTenantPass(context.Background(), 1); err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}

	if len(env.enqueuer.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(env.enqueuer.jobs))
	}
	job := env.enqueuer.jobs[0]
	if job.ToAddress != "customer@example.com" {
		t.Errorf("to = %q", job.ToAddress)
	}
	if job.Subject != "Re: Pro plan" {
		t.Errorf("subject = %q, want reply subject", job.Subject)
	}
	if job.Body == "" {
		t.Error("job body empty, reply must be composed at decision time")
	}
	if job.MessageID == nil || *job.MessageID != 1 {
		t.Errorf("job not linked to source message: %+v", job.MessageID)
	}
	if !env.messages.processed[1] || env.messages.human[1] {
		t.Errorf("message state processed=%v human=%v, want processed, not routed",
			env.messages.processed[1], env.messages.human[1])
	}
}

func TestComposerFailureRoutesToHuman(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{rawMessage(1, "Pro plan", "How much is it?")}
	env.composer.err = errors.New("inference timeout")

	if _, err := env.svc.RunTenantPass(context.Background(), 1); err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}

	if len(env.enqueuer.jobs) != 0 {
		t.Errorf("enqueued %d jobs, want 0", len(env.enqueuer.jobs))
	}
	if !env.messages.human[1] {
		t.Error("message not routed to human after composer failure")
	}
}

func TestSpamIsSuppressed(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "spam"})
	env.fetcher.messages = []*domain.RawMessage{rawMessage(1, "WIN NOW", "Claim your prize.")}

	if _, err := env.svc.RunTenantPass(context.Background(), 1); err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}

	if len(env.enqueuer.jobs) != 0 {
		t.Errorf("enqueued %d jobs for spam, want 0", len(env.enqueuer.jobs))
	}
	if !env.messages.processed[1] {
		t.Error("spam message not marked processed")
	}
	if env.messages.human[1] {
		t.Error("spam message routed to human")
	}
}

func TestDisabledAutomationRoutesToHuman(t *testing.T) {
	env := newTestEnv(testMailbox(0), nil, stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{rawMessage(1, "Pro plan", "How much is it?")}

	if _, err := env.svc.RunTenantPass(context.Background(), 1); err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}

	if len(env.enqueuer.jobs) != 0 {
		t.Errorf("enqueued %d jobs without settings, want 0", len(env.enqueuer.jobs))
	}
	if !env.messages.human[1] {
		t.Error("message not routed to human under default settings")
	}
}

func TestFetchFailureRecordsCooldown(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.err = apperr.ConnectionError("imap.tenant.example", errors.New("dial timeout"))

	result, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
	if result.Outcome != domain.SyncOutcomeFailed {
		t.Errorf("outcome = %q, want failed", result.Outcome)
	}

	until, ok := env.mailboxes.failures[1]
	if !ok {
		t.Fatal("failure not recorded")
	}
	if !until.After(time.Now().UTC()) {
		t.Errorf("cooldown %v not in the future", until)
	}

	// Mailbox in cooldown is skipped on the next pass.
	second, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("second pass error = %v", err)
	}
	if second.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 while cooling down", second.Skipped)
	}
}

func TestCleanPassClearsFailures(t *testing.T) {
	mb := testMailbox(0)
	mb.FailureCount = 3
	env := newTestEnv(mb, enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = nil

	if _, err := env.svc.RunTenantPass(context.Background(), 1); err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}
	if !env.mailboxes.cleared[1] {
		t.Error("failure count not cleared after clean pass")
	}
}

func TestSyncRunClosedWithCounters(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{
		rawMessage(1, "A", "First question."),
		rawMessage(2, "B", "Second question."),
	}

	if _, err := env.svc.RunTenantPass(context.Background(), 1); err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}

	env.runs.mu.Lock()
	defer env.runs.mu.Unlock()
	if len(env.runs.closed) != 1 {
		t.Fatalf("closed %d runs, want 1", len(env.runs.closed))
	}
	run := env.runs.closed[0]
	if run.Outcome != domain.SyncOutcomeOK {
		t.Errorf("outcome = %q, want ok", run.Outcome)
	}
	if run.Fetched != 2 || run.Ingested != 2 {
		t.Errorf("counters fetched=%d ingested=%d, want 2/2", run.Fetched, run.Ingested)
	}
	if len(env.runs.open) != 0 {
		t.Error("lock not released after pass")
	}
}

func TestUndecidedMessageReplaysNextPass(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "requires_human"})
	env.fetcher.messages = []*domain.RawMessage{rawMessage(1, "Chargeback", "I want my money back now.")}
	env.messages.setMarkErr(errors.New("connection reset"))

	first, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("first pass error = %v", err)
	}
	if first.Failed != 1 {
		t.Errorf("first pass failed = %d, want 1 when a decision did not land", first.Failed)
	}
	if first.Outcome == domain.SyncOutcomeOK {
		t.Error("pass closed ok with an undecided message")
	}
	if env.messages.processed[1] {
		t.Fatal("message marked processed despite the write failing")
	}

	// The watermark now hides the message from every future fetch; only
	// the replay can reach it.
	env.messages.setMarkErr(nil)
	env.mailboxes.mailboxes[1].FailureCount = 0
	env.mailboxes.mailboxes[1].CooldownUntil = nil
	env.fetcher.messages = nil

	second, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("second pass error = %v", err)
	}
	if second.Failed != 0 {
		t.Errorf("second pass failed = %d, want 0", second.Failed)
	}
	if !env.messages.processed[1] || !env.messages.human[1] {
		t.Error("replay did not route the stranded message to a human")
	}
}

func TestExpiredPassStillLandsDecision(t *testing.T) {
	env := newTestEnvWith(testMailbox(0), enabledSettings(), deadlineModel{}, Config{
		MailboxTimeout:     50 * time.Millisecond,
		MailboxConcurrency: 2,
		CooldownBase:       time.Minute,
		CooldownMax:        10 * time.Minute,
	})
	env.fetcher.messages = []*domain.RawMessage{rawMessage(1, "Help", "Cannot log in.")}

	result, err := env.svc.RunTenantPass(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunTenantPass() error = %v", err)
	}

	// The classifier burned the whole mailbox deadline, so the decision
	// writes ran on an expired parent context. They must land anyway.
	if !env.messages.processed[1] {
		t.Fatal("message stranded after the mailbox deadline expired")
	}
	if !env.messages.human[1] {
		t.Error("classification timeout did not route the message to a human")
	}
	if result.Failed != 0 {
		t.Errorf("failed = %d, want 0 once the fallback decision landed", result.Failed)
	}
}

func TestRunTickAggregates(t *testing.T) {
	env := newTestEnv(testMailbox(0), enabledSettings(), stubModel{token: "pricing"})
	env.fetcher.messages = []*domain.RawMessage{
		rawMessage(1, "Pricing", "How much?"),
		rawMessage(2, "Pricing", "For 10 seats?"),
	}

	tick, err := env.svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick() error = %v", err)
	}

	if tick.Tenants != 1 {
		t.Errorf("tenants = %d, want 1", tick.Tenants)
	}
	if tick.Mailboxes != 1 {
		t.Errorf("mailboxes = %d, want 1", tick.Mailboxes)
	}
	if tick.Messages != 2 {
		t.Errorf("messages = %d, want 2", tick.Messages)
	}
	if tick.Failed != 0 {
		t.Errorf("failed = %d, want 0", tick.Failed)
	}
}
