package worker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParsePayload(t *testing.T) {
	msg := NewMessage(JobTenantSync, map[string]any{"tenant_id": 42})

	payload, err := ParsePayload[tenantSyncPayload](msg)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.TenantID != 42 {
		t.Errorf("TenantID = %d, want 42", payload.TenantID)
	}
}

func TestParsePayloadTypeMismatch(t *testing.T) {
	msg := NewMessage(JobDispatchSend, map[string]any{"job_id": "not-a-number"})

	if _, err := ParsePayload[dispatchSendPayload](msg); err == nil {
		t.Error("expected error for non-numeric job_id")
	}
}

func TestGetJobTimeout(t *testing.T) {
	p := &Pool{config: DefaultPoolConfig()}

	tests := []struct {
		jobType JobType
		want    time.Duration
	}{
		{JobTenantSync, 3 * time.Minute},
		{JobDispatchSend, 60 * time.Second},
		{"unknown.type", 60 * time.Second},
	}

	for _, tt := range tests {
		if got := p.getJobTimeout(tt.jobType); got != tt.want {
			t.Errorf("getJobTimeout(%s) = %v, want %v", tt.jobType, got, tt.want)
		}
	}
}

func TestSubmitRefusedWhenNotAccepting(t *testing.T) {
	p := NewPool(nil, DefaultPoolConfig(), zerolog.Nop())

	// A retry timer firing after Stop lands here: the refusal must be
	// visible to the caller so the drop gets logged.
	if p.Submit(NewMessage(JobDispatchSend, map[string]any{"job_id": 1})) {
		t.Error("Submit accepted a job while the pool is not running")
	}
}

func TestStreamJobMapping(t *testing.T) {
	if streamJobs["sync:tenant"] != JobTenantSync {
		t.Errorf("sync:tenant mapped to %s", streamJobs["sync:tenant"])
	}
	if streamJobs["dispatch:send"] != JobDispatchSend {
		t.Errorf("dispatch:send mapped to %s", streamJobs["dispatch:send"])
	}
}
