package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxTopicLen bounds the logical topic name stored per record.
const MaxTopicLen = 255

// MaxErrorLen bounds the last_error column; longer messages are truncated.
const MaxErrorLen = 1024

// DefaultTenantID is used when multi-tenancy is not in play.
const DefaultTenantID = "default"

// Status is the lifecycle state of an outbox record.
type Status string

const (
	// StatusNew indicates the record has been enqueued and never attempted.
	StatusNew Status = "NEW"
	// StatusSent indicates the record was delivered; terminal.
	StatusSent Status = "SENT"
	// StatusFailed indicates the last attempt failed and the record awaits retry.
	StatusFailed Status = "FAILED"
	// StatusDead indicates the record exhausted its retry budget; terminal.
	StatusDead Status = "DEAD"
)

// transitions is the closed set of allowed status changes.
var transitions = map[Status][]Status{
	StatusNew:    {StatusSent, StatusFailed, StatusDead},
	StatusFailed: {StatusFailed, StatusSent, StatusDead},
	StatusSent:   {},
	StatusDead:   {},
}

// ErrInvalidTransition is returned when a status change is not in the transition table.
var ErrInvalidTransition = errors.New("invalid outbox status transition")

// ErrTopicRequired is returned when a record is enqueued without a topic.
var ErrTopicRequired = errors.New("outbox record topic is required")

// ErrTopicTooLong is returned when the topic exceeds MaxTopicLen.
var ErrTopicTooLong = errors.New("outbox record topic exceeds maximum length")

// ErrPayloadRequired is returned when a record is enqueued without a payload.
var ErrPayloadRequired = errors.New("outbox record payload is required")

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusDead
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Record is one outbox row: an event awaiting reliable delivery.
type Record struct {
	ID             uuid.UUID
	TenantID       string
	AggregateType  string
	AggregateID    string
	Topic          string
	OccurredAt     time.Time
	Payload        json.RawMessage
	Metadata       map[string]string
	RoutingKey     string
	RoutingConfig  json.RawMessage
	RoutingVersion int
	Status         Status
	RetryCount     int
	RetryAfter     *time.Time
	ErrorMessage   string
	PublishedAt    *time.Time
}

// Validate checks the write-once fields required at enqueue time.
func (r *Record) Validate() error {
	if r.Topic == "" {
		return ErrTopicRequired
	}
	if len(r.Topic) > MaxTopicLen {
		return ErrTopicTooLong
	}
	if len(r.Payload) == 0 {
		return ErrPayloadRequired
	}

	return nil
}

// Transition moves the record to next, rejecting anything outside the table.
func (r *Record) Transition(next Status) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next

	return nil
}

// TruncateError bounds an error message to MaxErrorLen for storage.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLen {
		return msg
	}

	return msg[:MaxErrorLen]
}
