// Package reqqueue implements the admitted-request priority queue: the
// Request type, its validating constructor, and the max-heap ordered by
// (priority-bid desc, arrival-time asc).
package reqqueue

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultOutputTokensExpected is used when a caller does not specify an
// expected output token count (spec §3).
const DefaultOutputTokensExpected = 50

// Request is immutable after construction. It is created at admission and
// destroyed after the batch carrying it completes, or discarded immediately
// if rejected — rejected requests never reach NewRequest's caller as a
// queued entry.
type Request struct {
	ID                   string
	TenantID             string
	PromptTokens         int
	OutputTokensExpected int
	PriorityBid          int
	ArrivalTime          time.Time
}

// Params are the caller-supplied fields for NewRequest; every field the
// source system left dynamically-typed is declared explicitly here, with
// documented defaults for anything optional.
type Params struct {
	ID                   string
	TenantID             string
	PromptTokens         int
	OutputTokensExpected int // 0 means "use the default"
	PriorityBid          int
	ArrivalTime          time.Time
}

// NewRequest validates p and returns a fully-formed Request. It never
// returns a partially-valid zero value: invalid input is rejected here,
// before the request ever reaches the token bucket (spec §7:
// InvalidRequest is rejected before bucket consultation, not counted
// against the tenant).
func NewRequest(p Params) (Request, error) {
	if p.TenantID == "" {
		return Request{}, fmt.Errorf("invalid request: tenant_id must not be empty")
	}
	if p.PromptTokens <= 0 {
		return Request{}, fmt.Errorf("invalid request: prompt_tokens must be > 0, got %d", p.PromptTokens)
	}
	if p.OutputTokensExpected < 0 {
		return Request{}, fmt.Errorf("invalid request: output_tokens_expected must be >= 0, got %d", p.OutputTokensExpected)
	}
	if p.PriorityBid < 0 {
		return Request{}, fmt.Errorf("invalid request: priority_bid must be >= 0, got %d", p.PriorityBid)
	}

	out := p.OutputTokensExpected
	if out == 0 {
		out = DefaultOutputTokensExpected
	}
	id := p.ID
	if id == "" {
		var err error
		id, err = newRequestID()
		if err != nil {
			return Request{}, fmt.Errorf("invalid request: generating request_id: %w", err)
		}
	}
	arrival := p.ArrivalTime
	if arrival.IsZero() {
		arrival = time.Now()
	}

	return Request{
		ID:                   id,
		TenantID:             p.TenantID,
		PromptTokens:         p.PromptTokens,
		OutputTokensExpected: out,
		PriorityBid:          p.PriorityBid,
		ArrivalTime:          arrival,
	}, nil
}

// newRequestID generates an opaque unique identifier: 128 random bits from
// crypto/rand, hex-encoded.
func newRequestID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
