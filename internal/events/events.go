package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	TypeWakeWordDetected       = "wake_word_detected"
	TypeCommandTranscribed     = "command_transcribed"
	TypePlanStarted            = "plan_started"
	TypePlanCompleted          = "plan_completed"
	TypeActionStarted          = "action_started"
	TypeActionCompleted        = "action_completed"
	TypeActionRetry            = "action_retry"
	TypePolicyGateTriggered    = "policy_gate_triggered"
	TypeError                  = "error"
	TypeClarificationRequested = "clarification_requested"
	TypeCapabilityDetected     = "capability_detected"
	TypeStateChanged           = "state_changed"
	TypeCustom                 = "custom"
)

type Event interface {
	Type() string
}

type WakeWordDetected struct {
	Keyword    string  `json:"keyword"`
	Confidence float32 `json:"confidence"`
}

type CommandTranscribed struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

type PlanStarted struct {
	PlanID         uuid.UUID `json:"plan_id"`
	StepCount      int       `json:"step_count"`
	ParallelGroups int       `json:"parallel_groups"`
	DryRun         bool      `json:"dry_run"`
}

type PlanCompleted struct {
	PlanID          uuid.UUID `json:"plan_id"`
	Success         bool      `json:"success"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	StepsCompleted  int       `json:"steps_completed"`
	StepsFailed     int       `json:"steps_failed"`
}

type ActionStarted struct {
	PlanID     uuid.UUID         `json:"plan_id"`
	StepNumber int               `json:"step_number"`
	Action     string            `json:"action"`
	Params     map[string]string `json:"params,omitempty"`
	Attempt    int               `json:"attempt"`
}

type ActionCompleted struct {
	PlanID     uuid.UUID `json:"plan_id"`
	StepNumber int       `json:"step_number"`
	Action     string    `json:"action"`
	Success    bool      `json:"success"`
	Result     string    `json:"result"`
	DurationMs int64     `json:"duration_ms"`
}

type ActionRetry struct {
	PlanID      uuid.UUID `json:"plan_id"`
	StepNumber  int       `json:"step_number"`
	Action      string    `json:"action"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	Error       string    `json:"error"`
	BackoffMs   int64     `json:"backoff_ms"`
}

type PolicyGateTriggered struct {
	PlanID     uuid.UUID `json:"plan_id"`
	StepNumber int       `json:"step_number"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason"`
}

type Error struct {
	Error       string `json:"error"`
	ErrorCode   int    `json:"error_code"`
	Context     string `json:"context"`
	Recoverable bool   `json:"recoverable"`
}

type ClarificationRequested struct {
	Command      string   `json:"command"`
	Confidence   float32  `json:"confidence"`
	MissingSlots []string `json:"missing_slots"`
	Suggestions  []string `json:"suggestions"`
}

type CapabilityDetected struct {
	Capability string `json:"capability"`
	Available  bool   `json:"available"`
}

type StateChanged struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Custom struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (WakeWordDetected) Type() string       { return TypeWakeWordDetected }
func (CommandTranscribed) Type() string     { return TypeCommandTranscribed }
func (PlanStarted) Type() string            { return TypePlanStarted }
func (PlanCompleted) Type() string          { return TypePlanCompleted }
func (ActionStarted) Type() string          { return TypeActionStarted }
func (ActionCompleted) Type() string        { return TypeActionCompleted }
func (ActionRetry) Type() string            { return TypeActionRetry }
func (PolicyGateTriggered) Type() string    { return TypePolicyGateTriggered }
func (Error) Type() string                  { return TypeError }
func (ClarificationRequested) Type() string { return TypeClarificationRequested }
func (CapabilityDetected) Type() string     { return TypeCapabilityDetected }
func (StateChanged) Type() string           { return TypeStateChanged }
func (Custom) Type() string                 { return TypeCustom }

type Envelope struct {
	ID            uuid.UUID
	Timestamp     uint64 // microseconds
	CorrelationID uuid.NullUUID
	Event         Event
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            uuid.UUID     `json:"id"`
		Timestamp     uint64        `json:"timestamp"`
		CorrelationID uuid.NullUUID `json:"correlation_id"`
		Type          string        `json:"type"`
		Event         Event         `json:"event"`
	}{e.ID, e.Timestamp, e.CorrelationID, e.Event.Type(), e.Event})
}

var (
	clockBase = time.Now()
	lastStamp atomic.Uint64
)

// Now returns a monotonic microsecond timestamp anchored at the wall clock
// of process start. Successive calls never go backwards.
func Now() uint64 {
	ts := uint64(clockBase.UnixMicro() + time.Since(clockBase).Microseconds())
	for {
		prev := lastStamp.Load()
		if ts <= prev {
			ts = prev + 1
		}
		if lastStamp.CompareAndSwap(prev, ts) {
			return ts
		}
	}
}

func NewEnvelope(ev Event, correlation uuid.NullUUID) Envelope {
	return Envelope{
		ID:            uuid.New(),
		Timestamp:     Now(),
		CorrelationID: correlation,
		Event:         ev,
	}
}

func Correlated(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}

type correlationKey struct{}

// WithCorrelation tags ctx so that work started under it publishes with id.
func WithCorrelation(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(correlationKey{}).(uuid.UUID)
	return id, ok
}
