package domain

import "time"

// =============================================================================
// Dispatch job lifecycle: pending -> sending -> sent | failed -> ... -> dead
// =============================================================================

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSending JobStatus = "sending"
	JobSent    JobStatus = "sent"
	JobFailed  JobStatus = "failed"
	JobDead    JobStatus = "dead"
)

// DispatchJob is one unit of outbound email work. Terminal transitions are
// owned exclusively by the dispatch worker that claimed the job.
type DispatchJob struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	MailboxID int64     `json:"mailbox_id"`
	MessageID *int64    `json:"message_id,omitempty"` // source InboundMessage, if any
	ToAddress string    `json:"to_address"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Status    JobStatus `json:"status"`

	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	// Send log for the successful attempt.
	SentAt       *time.Time `json:"sent_at,omitempty"`
	SMTPResponse string     `json:"smtp_response,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exhausted reports whether the job has used up its retry budget.
func (j *DispatchJob) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// RetryDelay returns the backoff before attempt n (1-based), doubling from
// base and capped at max.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
