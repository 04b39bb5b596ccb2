package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"replyflow_server/core/domain"
	"replyflow_server/core/port/out"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeJobRepo struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*domain.DispatchJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[int64]*domain.DispatchJob)}
}

func (r *fakeJobRepo) Insert(ctx context.Context, job *domain.DispatchJob) (*domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *job
	cp.ID = r.nextID
	cp.CreatedAt = time.Now().UTC()
	r.jobs[cp.ID] = &cp
	res := cp
	return &res, nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id int64) (*domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, errors.New("not found")
}

func (r *fakeJobRepo) Claim(ctx context.Context, id int64) (*domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	claimable := j.Status == domain.JobPending || j.Status == domain.JobFailed
	if !claimable {
		return nil, nil
	}
	if j.NextAttemptAt != nil && j.NextAttemptAt.After(time.Now().UTC().Add(time.Hour)) {
		return nil, nil
	}
	j.Status = domain.JobSending
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) MarkSent(ctx context.Context, id int64, smtpResponse string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.Status = domain.JobSent
	now := time.Now().UTC()
	j.SentAt = &now
	j.SMTPResponse = smtpResponse
	return nil
}

func (r *fakeJobRepo) MarkFailed(ctx context.Context, id int64, attempt int, lastError string, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.Status = domain.JobFailed
	j.Attempts = attempt
	j.LastError = lastError
	j.NextAttemptAt = &nextAttemptAt
	return nil
}

func (r *fakeJobRepo) MarkDead(ctx context.Context, id int64, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.Status = domain.JobDead
	j.Attempts++
	j.LastError = lastError
	return nil
}

func (r *fakeJobRepo) Requeue(ctx context.Context, id int64) (*domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != domain.JobDead {
		return nil, errors.New("not requeueable")
	}
	j.Status = domain.JobPending
	j.Attempts = 0
	j.NextAttemptAt = nil
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.DispatchJob
	for _, j := range r.jobs {
		if j.Status != domain.JobPending && j.Status != domain.JobFailed {
			continue
		}
		if j.NextAttemptAt != nil && j.NextAttemptAt.After(now) {
			continue
		}
		cp := *j
		due = append(due, &cp)
	}
	return due, nil
}

func (r *fakeJobRepo) ListDead(ctx context.Context, tenantID int64, limit int) ([]*domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dead []*domain.DispatchJob
	for _, j := range r.jobs {
		if j.Status == domain.JobDead && j.TenantID == tenantID {
			cp := *j
			dead = append(dead, &cp)
		}
	}
	return dead, nil
}

type fakeMailboxRepo struct {
	mailbox *domain.Mailbox
}

func (r *fakeMailboxRepo) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*domain.Mailbox, error) {
	return []*domain.Mailbox{r.mailbox}, nil
}
func (r *fakeMailboxRepo) GetByID(ctx context.Context, id int64) (*domain.Mailbox, error) {
	return r.mailbox, nil
}
func (r *fakeMailboxRepo) AdvanceWatermark(ctx context.Context, mailboxID int64, uid uint32) error {
	return nil
}
func (r *fakeMailboxRepo) RecordFailure(ctx context.Context, mailboxID int64, until time.Time) error {
	return nil
}
func (r *fakeMailboxRepo) ClearFailures(ctx context.Context, mailboxID int64) error { return nil }

type fakeCredStore struct{}

func (fakeCredStore) Secret(mailbox *domain.Mailbox) (*domain.MailboxSecret, error) {
	return &domain.MailboxSecret{Username: mailbox.Username, Password: "pw"}, nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []*out.OutboundMail
	failures int // fail this many sends before succeeding
}

func (s *fakeSender) Send(ctx context.Context, mailbox *domain.Mailbox, secret *domain.MailboxSecret, mail *out.OutboundMail) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return "", errors.New("451 temporary failure")
	}
	s.sent = append(s.sent, mail)
	return "250 2.0.0 OK", nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeProducer struct {
	mu        sync.Mutex
	published []int64
	err       error
}

func (p *fakeProducer) PublishDispatch(ctx context.Context, jobID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, jobID)
	return nil
}

// =============================================================================
// Tests
// =============================================================================

func testMailbox() *domain.Mailbox {
	return &domain.Mailbox{
		ID:       1,
		TenantID: 1,
		Address:  "support@tenant.example",
		SMTPHost: "smtp.tenant.example",
		SMTPPort: 587,
		Username: "support@tenant.example",
		Active:   true,
	}
}

func newTestService(repo *fakeJobRepo, sender *fakeSender, producer *fakeProducer) *Service {
	return NewService(repo, &fakeMailboxRepo{mailbox: testMailbox()}, fakeCredStore{}, sender, producer, Config{
		MaxAttempts: 5,
		RetryBase:   time.Millisecond,
		RetryMax:    10 * time.Millisecond,
	}, nil)
}

func enqueueTestJob(t *testing.T, svc *Service) *domain.DispatchJob {
	t.Helper()
	job, err := svc.Enqueue(context.Background(), &domain.DispatchJob{
		TenantID:  1,
		MailboxID: 1,
		ToAddress: "customer@example.com",
		Subject:   "Re: Pricing",
		Body:      "Thanks for reaching out.",
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return job
}

func TestEnqueuePersistsAndPublishes(t *testing.T) {
	repo := newFakeJobRepo()
	producer := &fakeProducer{}
	svc := newTestService(repo, &fakeSender{}, producer)

	job := enqueueTestJob(t, svc)

	if job.Status != domain.JobPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", job.MaxAttempts)
	}
	if len(producer.published) != 1 || producer.published[0] != job.ID {
		t.Errorf("published = %v, want [%d]", producer.published, job.ID)
	}
}

func TestEnqueueSurvivesPublishFailure(t *testing.T) {
	repo := newFakeJobRepo()
	producer := &fakeProducer{err: errors.New("redis down")}
	svc := newTestService(repo, &fakeSender{}, producer)

	job := enqueueTestJob(t, svc)

	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.Status != domain.JobPending {
		t.Errorf("status = %q, want pending", stored.Status)
	}
}

func TestProcessSendsAndMarksSent(t *testing.T) {
	repo := newFakeJobRepo()
	sender := &fakeSender{}
	svc := newTestService(repo, sender, &fakeProducer{})
	job := enqueueTestJob(t, svc)

	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobSent {
		t.Errorf("status = %q, want sent", stored.Status)
	}
	if stored.SMTPResponse != "250 2.0.0 OK" {
		t.Errorf("smtp response = %q", stored.SMTPResponse)
	}
	if stored.SentAt == nil {
		t.Error("sent_at not recorded")
	}
	if sender.sentCount() != 1 {
		t.Errorf("sent %d mails, want 1", sender.sentCount())
	}
	if got := sender.sent[0]; got.From != "support@tenant.example" || got.To != "customer@example.com" {
		t.Errorf("wrong envelope: %+v", got)
	}
}

func TestConcurrentClaimSendsExactlyOnce(t *testing.T) {
	repo := newFakeJobRepo()
	sender := &fakeSender{}
	svc := newTestService(repo, sender, &fakeProducer{})
	job := enqueueTestJob(t, svc)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Process(context.Background(), job.ID)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Process() error = %v", err)
		}
	}
	if sender.sentCount() != 1 {
		t.Errorf("sent %d mails, want exactly 1", sender.sentCount())
	}
}

func TestRetriesThenDead(t *testing.T) {
	repo := newFakeJobRepo()
	sender := &fakeSender{failures: 100}
	svc := newTestService(repo, sender, &fakeProducer{})
	job := enqueueTestJob(t, svc)

	for i := 0; i < 5; i++ {
		if err := svc.Process(context.Background(), job.ID); err != nil {
			t.Fatalf("Process() attempt %d error = %v", i+1, err)
		}
	}

	stored, _ := repo.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobDead {
		t.Fatalf("status = %q, want dead", stored.Status)
	}
	if stored.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", stored.Attempts)
	}
	if stored.LastError == "" {
		t.Error("last error not recorded")
	}

	// A dead job is never claimed again.
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process() on dead job error = %v", err)
	}
	stored, _ = repo.GetByID(context.Background(), job.ID)
	if stored.Attempts != 5 {
		t.Errorf("dead job was retried, attempts = %d", stored.Attempts)
	}
}

func TestFailureSchedulesBackoff(t *testing.T) {
	repo := newFakeJobRepo()
	sender := &fakeSender{failures: 1}
	svc := newTestService(repo, sender, &fakeProducer{})
	job := enqueueTestJob(t, svc)

	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobFailed {
		t.Fatalf("status = %q, want failed", stored.Status)
	}
	if stored.NextAttemptAt == nil {
		t.Fatal("next attempt not scheduled")
	}

	// Second attempt succeeds.
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	stored, _ = repo.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobSent {
		t.Errorf("status = %q, want sent", stored.Status)
	}
}

func TestSweepDueRepublishes(t *testing.T) {
	repo := newFakeJobRepo()
	producer := &fakeProducer{err: errors.New("redis down")}
	svc := newTestService(repo, &fakeSender{}, producer)
	job := enqueueTestJob(t, svc)

	producer.err = nil
	n, err := svc.SweepDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("SweepDue() error = %v", err)
	}
	if n != 1 {
		t.Errorf("published %d jobs, want 1", n)
	}
	if len(producer.published) != 1 || producer.published[0] != job.ID {
		t.Errorf("published = %v, want [%d]", producer.published, job.ID)
	}
}

func TestRetryRequeuesDeadJob(t *testing.T) {
	repo := newFakeJobRepo()
	sender := &fakeSender{failures: 100}
	svc := newTestService(repo, sender, &fakeProducer{})
	job := enqueueTestJob(t, svc)

	for i := 0; i < 5; i++ {
		_ = svc.Process(context.Background(), job.ID)
	}

	dead, err := svc.ListDead(context.Background(), 1, 10)
	if err != nil || len(dead) != 1 {
		t.Fatalf("ListDead() = %v, %v; want one job", dead, err)
	}

	sender.failures = 0
	requeued, err := svc.Retry(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if requeued.Status != domain.JobPending {
		t.Errorf("status = %q, want pending", requeued.Status)
	}

	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process() after retry error = %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobSent {
		t.Errorf("status = %q, want sent", stored.Status)
	}
}
