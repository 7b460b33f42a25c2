package models

import "time"

// Ticket is one person's place in one tenant's queue for one day.
type Ticket struct {
	ID        string
	TenantID  string
	UserID    string
	Tanggal   string
	Status    string
	CreatedAt time.Time
	Fields    map[string]interface{}
}

const (
	StatusWaiting   = "Menunggu"
	StatusActive    = "Aktif"
	StatusDone      = "Selesai"
	StatusCancelled = "Dibatalkan"
)

// Document keys owned by the service. Callers cannot smuggle them through Fields.
const (
	FieldID        = "id"
	FieldTenantID  = "tenant_id"
	FieldUserID    = "user_id"
	FieldTanggal   = "tanggal"
	FieldStatus    = "status"
	FieldCreatedAt = "created_at"
)

var ticketReserved = map[string]struct{}{
	FieldID:        {},
	FieldTenantID:  {},
	FieldUserID:    {},
	FieldTanggal:   {},
	FieldStatus:    {},
	FieldCreatedAt: {},
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusActive, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// IsTicketReserved reports whether key is a ticket column rather than a free document field.
func IsTicketReserved(key string) bool {
	_, ok := ticketReserved[key]
	return ok
}

// Document flattens the ticket into the shape callers created it with.
func (t Ticket) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(t.Fields)+4)
	for key, value := range t.Fields {
		if IsTicketReserved(key) {
			continue
		}
		doc[key] = value
	}
	doc[FieldTenantID] = t.TenantID
	doc[FieldUserID] = t.UserID
	doc[FieldTanggal] = t.Tanggal
	doc[FieldStatus] = t.Status
	return doc
}

// TicketDocument is the wire shape of a ticket: the store id next to the document body.
type TicketDocument struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

func (t Ticket) Wire() TicketDocument {
	return TicketDocument{ID: t.ID, Data: t.Document()}
}

func WireTickets(tickets []Ticket) []TicketDocument {
	out := make([]TicketDocument, 0, len(tickets))
	for _, ticket := range tickets {
		out = append(out, ticket.Wire())
	}
	return out
}
