package memory

import (
	"context"
	"sort"
	"sync"

	"antrian/antrian-service/internal/models"
	"antrian/antrian-service/internal/store"

	"github.com/google/uuid"
)

// Store keeps every collection in process. It follows the postgres store's semantics,
// including the single-active-ticket constraint, and serves local runs and tests.
type Store struct {
	mu sync.RWMutex

	tenants     map[string]models.Tenant
	tenantOrder []string

	tickets     map[string]*entry
	ticketOrder []string
	events      map[string][]store.TicketEvent

	records     map[string]*models.MedicalRecord
	recordOrder []string
}

type entry struct {
	ticket models.Ticket
	seq    int
}

func New() *Store {
	return &Store{
		tenants: make(map[string]models.Tenant),
		tickets: make(map[string]*entry),
		events:  make(map[string][]store.TicketEvent),
		records: make(map[string]*models.MedicalRecord),
	}
}

// PutTenant creates or replaces a tenant. Tenants are managed outside the API.
func (s *Store) PutTenant(tenant models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenant.TenantID]; !ok {
		s.tenantOrder = append(s.tenantOrder, tenant.TenantID)
	}
	tenant.Data = cloneFields(tenant.Data)
	s.tenants[tenant.TenantID] = tenant
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]models.Tenant, 0, len(s.tenantOrder))
	for _, id := range s.tenantOrder {
		tenant := s.tenants[id]
		tenant.Data = cloneFields(tenant.Data)
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return models.Tenant{}, store.ErrTenantNotFound
	}
	tenant.Data = cloneFields(tenant.Data)
	return tenant, nil
}

func (s *Store) InsertTicket(ctx context.Context, ticket models.Ticket) (models.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return models.Ticket{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket.ID = uuid.NewString()
	ticket.Fields = cloneFields(ticket.Fields)
	s.tickets[ticket.ID] = &entry{ticket: ticket, seq: len(s.ticketOrder)}
	s.ticketOrder = append(s.ticketOrder, ticket.ID)
	s.events[ticket.ID] = []store.TicketEvent{
		store.NextTicketEvent(nil, ticket.ID, store.EventCreated, ticket.Status, ticket.CreatedAt),
	}
	return copyTicket(ticket), nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return copyTicket(e.ticket), nil
}

func (s *Store) QueryTickets(ctx context.Context, query store.TicketQuery) ([]models.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*entry
	for _, id := range s.ticketOrder {
		e := s.tickets[id]
		if matches(e.ticket, query) {
			matched = append(matched, e)
		}
	}

	switch query.Order {
	case store.OrderTanggalAsc:
		sort.SliceStable(matched, func(i, j int) bool { return before(matched[i], matched[j]) })
	case store.OrderTanggalDesc:
		sort.SliceStable(matched, func(i, j int) bool { return before(matched[j], matched[i]) })
	}
	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}

	tickets := make([]models.Ticket, 0, len(matched))
	for _, e := range matched {
		tickets = append(tickets, copyTicket(e.ticket))
	}
	return tickets, nil
}

func (s *Store) TransitionTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return models.Ticket{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !contains(input.From, e.ticket.Status) {
		return models.Ticket{}, store.ErrInvalidTransition
	}
	if input.To == models.StatusActive {
		for _, other := range s.tickets {
			if other.ticket.ID != e.ticket.ID &&
				other.ticket.TenantID == e.ticket.TenantID &&
				other.ticket.Tanggal == e.ticket.Tanggal &&
				other.ticket.Status == models.StatusActive {
				return models.Ticket{}, store.ErrActiveExists
			}
		}
	}

	e.ticket.Status = input.To
	chain := s.events[e.ticket.ID]
	var prev *store.TicketEvent
	if len(chain) > 0 {
		prev = &chain[len(chain)-1]
	}
	s.events[e.ticket.ID] = append(chain, store.NextTicketEvent(prev, e.ticket.ID, input.Action, input.To, input.OccurredAt))
	return copyTicket(e.ticket), nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]store.TicketEvent, len(s.events[ticketID]))
	copy(events, s.events[ticketID])
	return events, nil
}

func (s *Store) FindRecordByUser(ctx context.Context, userID string) (models.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.recordOrder {
		if record := s.records[id]; record.UserID == userID {
			return copyRecord(*record), nil
		}
	}
	return models.MedicalRecord{}, store.ErrRecordNotFound
}

func (s *Store) InsertRecord(ctx context.Context, record models.MedicalRecord) (models.MedicalRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.MedicalRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.UserID == record.UserID {
			return models.MedicalRecord{}, store.ErrRecordExists
		}
	}
	record.ID = uuid.NewString()
	stored := copyRecord(record)
	s.records[record.ID] = &stored
	s.recordOrder = append(s.recordOrder, record.ID)
	return copyRecord(stored), nil
}

func (s *Store) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}, nomorRekam *int64) (models.MedicalRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.MedicalRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return models.MedicalRecord{}, store.ErrRecordNotFound
	}
	if record.Fields == nil {
		record.Fields = make(map[string]interface{}, len(fields))
	}
	for key, value := range fields {
		record.Fields[key] = value
	}
	if nomorRekam != nil {
		n := *nomorRekam
		record.NomorRekam = &n
	}
	return copyRecord(*record), nil
}

func (s *Store) LastRecord(ctx context.Context) (models.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.MedicalRecord
	for _, id := range s.recordOrder {
		record := s.records[id]
		if record.NomorRekam == nil {
			continue
		}
		if best == nil || *record.NomorRekam >= *best.NomorRekam {
			best = record
		}
	}
	if best == nil {
		return models.MedicalRecord{}, store.ErrRecordNotFound
	}
	return copyRecord(*best), nil
}

func matches(ticket models.Ticket, query store.TicketQuery) bool {
	if query.TenantID != "" && ticket.TenantID != query.TenantID {
		return false
	}
	if query.UserID != "" && ticket.UserID != query.UserID {
		return false
	}
	if query.Status != "" && ticket.Status != query.Status {
		return false
	}
	if query.From != "" && ticket.Tanggal < query.From {
		return false
	}
	if query.To != "" && ticket.Tanggal >= query.To {
		return false
	}
	return true
}

func before(a, b *entry) bool {
	if a.ticket.Tanggal != b.ticket.Tanggal {
		return a.ticket.Tanggal < b.ticket.Tanggal
	}
	if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
		return a.ticket.CreatedAt.Before(b.ticket.CreatedAt)
	}
	return a.seq < b.seq
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func copyTicket(ticket models.Ticket) models.Ticket {
	ticket.Fields = cloneFields(ticket.Fields)
	return ticket
}

func copyRecord(record models.MedicalRecord) models.MedicalRecord {
	record.Fields = cloneFields(record.Fields)
	if record.NomorRekam != nil {
		n := *record.NomorRekam
		record.NomorRekam = &n
	}
	return record
}

// cloneFields copies the top level of a document; nested values are shared.
func cloneFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		out[key] = value
	}
	return out
}
