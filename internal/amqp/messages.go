package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"monity/internal/core"
)

// Op names the change a LedgerEvent reports.
type Op string

const (
	OpAppend Op = "append"
	OpDelete Op = "delete"
	OpEdit   Op = "edit"
	// OpResync asks the worker to rebuild a ledger without a local change.
	OpResync Op = "resync"
)

func (o Op) valid() bool {
	switch o {
	case OpAppend, OpDelete, OpEdit, OpResync:
		return true
	}
	return false
}

// LedgerEvent announces a committed change to one ledger. The worker reloads
// the whole ledger, so the event only carries what is useful for logging.
type LedgerEvent struct {
	ID        string    `json:"id"`
	Ledger    core.Kind `json:"ledger"`
	Op        Op        `json:"op"`
	Line      string    `json:"line,omitempty"`
	Affected  int       `json:"affected,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event with a fresh ID.
func NewLedgerEvent(kind core.Kind, op Op, line string, affected int) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Ledger:    kind,
		Op:        op,
		Line:      line,
		Affected:  affected,
		Timestamp: time.Now(),
	}
}

// Validate rejects events a worker cannot act on.
func (e *LedgerEvent) Validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("invalid event id %q: %w", e.ID, err)
	}
	if !e.Ledger.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidKind, e.Ledger)
	}
	if !e.Op.valid() {
		return fmt.Errorf("unknown op %q", e.Op)
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
