// bus.go - Opaque event stream for off-engine observers.
//
// Events carry account identities, timestamps and ciphertext handles, never
// plaintext magnitudes. Settlement-relevant events are mirrored to the audit
// log so external auditors can reconcile skipped transfers.

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Event types emitted by the engine.
const (
	TypeBidSubmitted      = "auction.bid_submitted"
	TypeAuctionCreated    = "auction.created"
	TypeAuctionFinalized  = "auction.finalized"
	TypeSettlementSkipped = "settlement.skipped"
	TypeDeposit           = "ledger.deposit"
	TypeWithdraw          = "ledger.withdraw"
	TypeTransfer          = "ledger.transfer"
	TypeMint              = "ledger.mint"
)

// Event is a single opaque engine event.
type Event struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	At     time.Time         `json:"at"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Bus fans events out to subscribers and the structured log.
type Bus struct {
	mu    sync.RWMutex
	subs  []func(Event)
	audit map[string]bool
}

// NewBus creates an event bus. Types listed in auditTypes are additionally
// logged at warn level for the audit stream.
func NewBus(auditTypes ...string) *Bus {
	audit := make(map[string]bool, len(auditTypes))
	for _, t := range auditTypes {
		audit[t] = true
	}
	return &Bus{audit: audit}
}

// Subscribe registers a callback invoked synchronously for every event.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Emit publishes an event. Payload values must be identities, timestamps or
// ciphertext handles; callers never pass plaintext amounts.
func (b *Bus) Emit(eventType string, fields map[string]string) Event {
	ev := Event{
		ID:     uuid.New().String(),
		Type:   eventType,
		At:     time.Now().UTC(),
		Fields: fields,
	}

	logFields := log.Fields{"event_id": ev.ID, "event_type": ev.Type}
	for k, v := range fields {
		logFields[k] = v
	}
	if b.isAudit(eventType) {
		log.WithFields(logFields).Warn("audit event")
	} else {
		log.WithFields(logFields).Info("engine event")
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
	return ev
}

func (b *Bus) isAudit(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.audit[eventType]
}
