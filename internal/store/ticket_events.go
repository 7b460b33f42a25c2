package store

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

const EventCreated = "created"

var ErrBrokenEventChain = errors.New("ticket event chain is broken")

// TicketEvent is one entry of a ticket's append-only status history.
type TicketEvent struct {
	TicketID  string    `json:"ticket_id"`
	Seq       int       `json:"seq"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

func ComputeTicketEventHash(prevHash, ticketID, eventType, status string, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, ticketID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, status)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// NextTicketEvent chains a new event after prev. A nil prev starts the chain.
// Timestamps are cut to microseconds, the precision postgres keeps.
func NextTicketEvent(prev *TicketEvent, ticketID, eventType, status string, at time.Time) TicketEvent {
	seq := 1
	prevHash := ""
	if prev != nil {
		seq = prev.Seq + 1
		prevHash = prev.Hash
	}
	at = at.UTC().Truncate(time.Microsecond)
	return TicketEvent{
		TicketID:  ticketID,
		Seq:       seq,
		Type:      eventType,
		Status:    status,
		CreatedAt: at,
		PrevHash:  prevHash,
		Hash:      ComputeTicketEventHash(prevHash, ticketID, eventType, status, at, seq),
	}
}

// ReplayStatus verifies the hash chain and returns the status the events lead to.
func ReplayStatus(events []TicketEvent) (string, error) {
	status := ""
	prevHash := ""
	for i, event := range events {
		if event.Seq != i+1 || event.PrevHash != prevHash {
			return "", fmt.Errorf("%w at seq %d", ErrBrokenEventChain, event.Seq)
		}
		want := ComputeTicketEventHash(event.PrevHash, event.TicketID, event.Type, event.Status, event.CreatedAt, event.Seq)
		if want != event.Hash {
			return "", fmt.Errorf("%w at seq %d", ErrBrokenEventChain, event.Seq)
		}
		prevHash = event.Hash
		status = event.Status
	}
	return status, nil
}
