package store

import (
	"context"
	"time"

	"antrian/antrian-service/internal/models"
)

type Order int

const (
	OrderNone Order = iota
	OrderTanggalAsc
	OrderTanggalDesc
)

// TicketQuery is the equality/range/order/limit primitive every ticket read is built from.
// Empty string filters are not applied. From is inclusive and To exclusive, both YYYY-MM-DD.
type TicketQuery struct {
	TenantID string
	UserID   string
	Status   string
	From     string
	To       string
	Order    Order
	Limit    int
}

// TransitionInput describes a guarded status change: the write only happens while the
// ticket's current status is one of From.
type TransitionInput struct {
	TicketID   string
	Action     string
	From       []string
	To         string
	OccurredAt time.Time
}

type Store interface {
	Ping(ctx context.Context) error
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (models.Tenant, error)
	InsertTicket(ctx context.Context, ticket models.Ticket) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	QueryTickets(ctx context.Context, query TicketQuery) ([]models.Ticket, error)
	TransitionTicket(ctx context.Context, input TransitionInput) (models.Ticket, error)
	ListTicketEvents(ctx context.Context, ticketID string) ([]TicketEvent, error)
	FindRecordByUser(ctx context.Context, userID string) (models.MedicalRecord, error)
	InsertRecord(ctx context.Context, record models.MedicalRecord) (models.MedicalRecord, error)
	UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}, nomorRekam *int64) (models.MedicalRecord, error)
	LastRecord(ctx context.Context) (models.MedicalRecord, error)
}
