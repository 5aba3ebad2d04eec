package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TicketTTL is how long an issued claim ticket stays valid.
const TicketTTL = 30 * time.Minute

// TicketStore issues and consumes single-use reconnect claim tickets.
// Consume is atomic read-and-delete: a token resolves at most once.
type TicketStore interface {
	Issue(ctx context.Context, mode, roomID, name string) (token string, err error)
	Consume(ctx context.Context, mode, roomID, token string) (name string, ok bool, err error)
}

type memoryTicket struct {
	name     string
	issuedAt time.Time
}

// MemoryTickets is the in-process ticket store used by default.
type MemoryTickets struct {
	mu      sync.Mutex
	tickets map[string]memoryTicket
	now     func() time.Time
}

// NewMemoryTickets creates an empty in-memory ticket store.
func NewMemoryTickets() *MemoryTickets {
	return &MemoryTickets{
		tickets: make(map[string]memoryTicket),
		now:     time.Now,
	}
}

func ticketKey(mode, roomID, token string) string {
	return fmt.Sprintf("ticket:%s:%s:%s", mode, roomID, token)
}

// Issue mints a single-use token bound to (mode, roomID, name). Expired
// tickets are swept here so the map does not grow without bound when
// tokens are issued but never claimed.
func (m *MemoryTickets) Issue(_ context.Context, mode, roomID, name string) (string, error) {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.tickets[ticketKey(mode, roomID, token)] = memoryTicket{name: name, issuedAt: m.now()}
	return token, nil
}

// sweep drops every expired ticket. Caller holds m.mu.
func (m *MemoryTickets) sweep() {
	now := m.now()
	for key, t := range m.tickets {
		if now.Sub(t.issuedAt) > TicketTTL {
			delete(m.tickets, key)
		}
	}
}

// Consume atomically returns-and-deletes the name bound to the token, or
// ok=false if the token is unknown, already used, or expired.
func (m *MemoryTickets) Consume(_ context.Context, mode, roomID, token string) (string, bool, error) {
	key := ticketKey(mode, roomID, token)
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[key]
	if !ok {
		return "", false, nil
	}
	delete(m.tickets, key)
	if m.now().Sub(t.issuedAt) > TicketTTL {
		return "", false, nil
	}
	return t.name, true, nil
}
