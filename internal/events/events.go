// Package events defines the domain events the engine emits for downstream
// consumers (report generation, dashboards) and the publishing fan-out.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
)

// Type discriminates the event family.
type Type string

const (
	TypeBatchStarted          Type = "batch.started"
	TypeBatchCompleted        Type = "batch.completed"
	TypeBatchFailed           Type = "batch.failed"
	TypeRiskParametersChanged Type = "risk-parameters.changed"
)

// Event is the wire shape for every emitted event. Payload fields are
// populated per type; unused fields stay empty.
type Event struct {
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	BankID string `json:"bank_id"`

	BatchID        string `json:"batch_id,omitempty"`
	ExposureCount  int    `json:"exposure_count,omitempty"`
	ProcessedCount int    `json:"processed_count,omitempty"`
	FailedCount    int    `json:"failed_count,omitempty"`
	ResultsURI     string `json:"results_uri,omitempty"`
	RegionHHI      string `json:"region_hhi,omitempty"`
	SectorHHI      string `json:"sector_hhi,omitempty"`
	Reason         string `json:"reason,omitempty"`

	ParameterGroup string `json:"parameter_group,omitempty"`
	Actor          string `json:"actor,omitempty"`

	At time.Time `json:"at"`
}

// BatchStarted is emitted when a batch enters PROCESSING.
func BatchStarted(batchID, bankID string, exposures int) Event {
	return Event{
		ID:            uuid.New().String(),
		Type:          TypeBatchStarted,
		BankID:        bankID,
		BatchID:       batchID,
		ExposureCount: exposures,
		At:            time.Now().UTC(),
	}
}

// BatchCompleted is emitted with the run summary when a batch completes.
func BatchCompleted(b *model.Batch, result *model.CalculationResult) Event {
	return Event{
		ID:             uuid.New().String(),
		Type:           TypeBatchCompleted,
		BankID:         b.BankID,
		BatchID:        b.ID,
		ExposureCount:  b.TotalExposures,
		ProcessedCount: result.ProcessedExposures,
		FailedCount:    len(result.Failures),
		ResultsURI:     b.ResultsURI,
		RegionHHI:      result.RegionHHI.String(),
		SectorHHI:      result.SectorHHI.String(),
		At:             time.Now().UTC(),
	}
}

// BatchFailed is emitted when a batch ends FAILED.
func BatchFailed(batchID, bankID, reason string) Event {
	return Event{
		ID:      uuid.New().String(),
		Type:    TypeBatchFailed,
		BankID:  bankID,
		BatchID: batchID,
		Reason:  reason,
		At:      time.Now().UTC(),
	}
}

// ParametersChanged lifts a params domain event onto the wire.
func ParametersChanged(e params.Event) Event {
	return Event{
		ID:             e.ID,
		Type:           TypeRiskParametersChanged,
		BankID:         e.BankID,
		ParameterGroup: string(e.Group),
		Actor:          e.Actor,
		Reason:         string(e.Kind),
		At:             e.At,
	}
}

// Publisher delivers events to one downstream sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// MemoryPublisher collects events in memory. Used in tests and as the
// fallback sink when no broker is configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher creates an empty in-memory sink.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Multi fans one event out to several publishers. The first error wins but
// every sink is attempted.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
