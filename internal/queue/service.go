package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"antrian/antrian-service/internal/models"
	"antrian/antrian-service/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("antrian/queue")

// callNextAttempts bounds how often CallNext retries after losing the head of the queue
// to a concurrent cancel or promotion.
const callNextAttempts = 3

type Options struct {
	Location *time.Location
	Now      func() time.Time
}

// Service owns the ticket lifecycle and the day-window query contract on top of a store.
type Service struct {
	store    store.Store
	location *time.Location
	now      func() time.Time
}

func NewService(st store.Store, options Options) *Service {
	loc := options.Location
	if loc == nil {
		loc = time.UTC
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, location: loc, now: now}
}

// DayQuery carries the filters of the per-day read endpoints.
type DayQuery struct {
	TenantID string
	Date     string
	Status   string
	UserID   string
}

func (s *Service) Today() Day {
	return DayOf(s.now(), s.location)
}

func (s *Service) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	return s.store.ListTenants(ctx)
}

func (s *Service) GetTenant(ctx context.Context, tenantID string) (models.Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return models.Tenant{}, invalid("tenant id is required")
	}
	return s.store.GetTenant(ctx, tenantID)
}

// LastActive returns at most one ticket with the given status, newest first.
func (s *Service) LastActive(ctx context.Context, q DayQuery) ([]models.Ticket, error) {
	return s.dayQuery(ctx, "queue.LastActive", q, true, store.OrderTanggalDesc, 1)
}

// ActiveNow returns at most one ticket with the given status, in no particular order.
func (s *Service) ActiveNow(ctx context.Context, q DayQuery) ([]models.Ticket, error) {
	return s.dayQuery(ctx, "queue.ActiveNow", q, true, store.OrderNone, 1)
}

func (s *Service) AllInDay(ctx context.Context, q DayQuery) ([]models.Ticket, error) {
	q.Status = ""
	return s.dayQuery(ctx, "queue.AllInDay", q, false, store.OrderNone, 0)
}

func (s *Service) LastByStatus(ctx context.Context, q DayQuery) ([]models.Ticket, error) {
	return s.dayQuery(ctx, "queue.LastByStatus", q, true, store.OrderNone, 1)
}

func (s *Service) AllByStatus(ctx context.Context, q DayQuery) ([]models.Ticket, error) {
	return s.dayQuery(ctx, "queue.AllByStatus", q, true, store.OrderNone, 0)
}

// QueuedByStatus lists the day's tickets with the given status in queue order.
func (s *Service) QueuedByStatus(ctx context.Context, q DayQuery) ([]models.Ticket, error) {
	return s.dayQuery(ctx, "queue.QueuedByStatus", q, true, store.OrderTanggalAsc, 0)
}

func (s *Service) ExistsForUser(ctx context.Context, q DayQuery) ([]models.Ticket, error) {
	if strings.TrimSpace(q.UserID) == "" {
		return nil, invalid("user_id is required")
	}
	return s.dayQuery(ctx, "queue.ExistsForUser", q, true, store.OrderNone, 0)
}

// FirstWaiting returns the ticket that has waited longest on the given day.
func (s *Service) FirstWaiting(ctx context.Context, tenantID, date string) (models.Ticket, error) {
	tickets, err := s.dayQuery(ctx, "queue.FirstWaiting", DayQuery{
		TenantID: tenantID,
		Date:     date,
		Status:   models.StatusWaiting,
	}, true, store.OrderTanggalAsc, 1)
	if err != nil {
		return models.Ticket{}, err
	}
	if len(tickets) == 0 {
		return models.Ticket{}, ErrQueueEmpty
	}
	return tickets[0], nil
}

// TicketsForUser lists every ticket of a user, optionally narrowed to one status.
func (s *Service) TicketsForUser(ctx context.Context, userID, status string) ([]models.Ticket, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalid("user id is required")
	}
	status = strings.TrimSpace(status)
	if status != "" && !models.IsValidStatus(status) {
		return nil, invalid("unknown status " + status)
	}
	return s.store.QueryTickets(ctx, store.TicketQuery{UserID: userID, Status: status})
}

func (s *Service) dayQuery(ctx context.Context, span string, q DayQuery, needStatus bool, order store.Order, limit int) ([]models.Ticket, error) {
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()

	tenantID := strings.TrimSpace(q.TenantID)
	if tenantID == "" {
		return nil, invalid("id (tenant) is required")
	}
	day, err := ParseDay(q.Date)
	if err != nil {
		return nil, err
	}
	status := strings.TrimSpace(q.Status)
	if needStatus && status == "" {
		return nil, invalid("status is required")
	}
	if status != "" && !models.IsValidStatus(status) {
		return nil, invalid("unknown status " + status)
	}
	window := day.Window()
	sp.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("window.from", window.From),
		attribute.String("window.to", window.To),
	)

	tickets, err := s.store.QueryTickets(ctx, store.TicketQuery{
		TenantID: tenantID,
		UserID:   strings.TrimSpace(q.UserID),
		Status:   status,
		From:     window.From,
		To:       window.To,
		Order:    order,
		Limit:    limit,
	})
	if err != nil {
		sp.RecordError(err)
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}

// CreateTicket inserts a new waiting ticket for tenantID from caller-supplied document fields.
func (s *Service) CreateTicket(ctx context.Context, tenantID string, fields map[string]interface{}) (models.Ticket, error) {
	ctx, sp := tracer.Start(ctx, "queue.CreateTicket")
	defer sp.End()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return models.Ticket{}, invalid("tenant id is required")
	}
	if raw, ok := fields[models.FieldTenantID]; ok {
		value, isString := raw.(string)
		if !isString || strings.TrimSpace(value) != tenantID {
			return models.Ticket{}, invalid("tenant_id in body does not match path")
		}
	}
	userID, _ := fields[models.FieldUserID].(string)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.Ticket{}, invalid("user_id is required")
	}

	tanggal := s.Today().String()
	if raw, ok := fields[models.FieldTanggal]; ok && raw != nil {
		value, isString := raw.(string)
		if !isString {
			return models.Ticket{}, invalid("tanggal must be a string")
		}
		normalized, err := NormalizeTanggal(value, s.location)
		if err != nil {
			return models.Ticket{}, err
		}
		tanggal = normalized
	}

	if raw, ok := fields[models.FieldStatus]; ok && raw != nil {
		value, isString := raw.(string)
		if !isString || (value != "" && value != models.StatusWaiting) {
			return models.Ticket{}, invalid("new tickets must start as " + models.StatusWaiting)
		}
	}

	extra := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		if models.IsTicketReserved(key) {
			continue
		}
		extra[key] = value
	}

	sp.SetAttributes(attribute.String("tenant.id", tenantID), attribute.String("ticket.tanggal", tanggal))
	ticket, err := s.store.InsertTicket(ctx, models.Ticket{
		TenantID:  tenantID,
		UserID:    userID,
		Tanggal:   tanggal,
		Status:    models.StatusWaiting,
		CreatedAt: s.now().UTC(),
		Fields:    extra,
	})
	if err != nil {
		sp.RecordError(err)
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Service) PromoteNext(ctx context.Context, ticketID string) (models.Ticket, error) {
	return s.transition(ctx, ticketID, ActionPromote)
}

func (s *Service) MarkHandled(ctx context.Context, ticketID string) (models.Ticket, error) {
	return s.transition(ctx, ticketID, ActionHandle)
}

func (s *Service) Cancel(ctx context.Context, ticketID string) (models.Ticket, error) {
	return s.transition(ctx, ticketID, ActionCancel)
}

// CallNext promotes the first waiting ticket of the tenant's day.
func (s *Service) CallNext(ctx context.Context, tenantID, date string) (models.Ticket, error) {
	var lastErr error
	for attempt := 0; attempt < callNextAttempts; attempt++ {
		next, err := s.FirstWaiting(ctx, tenantID, date)
		if err != nil {
			return models.Ticket{}, err
		}
		ticket, err := s.PromoteNext(ctx, next.ID)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, store.ErrInvalidTransition) {
			return models.Ticket{}, err
		}
		lastErr = err
	}
	return models.Ticket{}, lastErr
}

func (s *Service) transition(ctx context.Context, ticketID, action string) (models.Ticket, error) {
	ctx, sp := tracer.Start(ctx, "queue.transition")
	defer sp.End()

	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return models.Ticket{}, invalid("ticket id is required")
	}
	target, ok := transitionTarget[action]
	if !ok {
		return models.Ticket{}, invalid("unknown action " + action)
	}
	sp.SetAttributes(attribute.String("ticket.id", ticketID), attribute.String("ticket.action", action))

	current, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		sp.RecordError(err)
		return models.Ticket{}, err
	}
	if !validTransition(action, current.Status) {
		return models.Ticket{}, rejectTransition(action, current.Status)
	}

	// The store re-checks From, so a concurrent transition between the read and the write
	// still fails with ErrInvalidTransition.
	ticket, err := s.store.TransitionTicket(ctx, store.TransitionInput{
		TicketID:   ticketID,
		Action:     action,
		From:       transitionMap[action],
		To:         target,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		sp.RecordError(err)
		return models.Ticket{}, err
	}
	return ticket, nil
}

// TicketHistory returns the ticket's event chain and the status the chain replays to.
func (s *Service) TicketHistory(ctx context.Context, ticketID string) ([]store.TicketEvent, string, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, "", invalid("ticket id is required")
	}
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return nil, "", err
	}
	events, err := s.store.ListTicketEvents(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	status, err := store.ReplayStatus(events)
	if err != nil {
		return events, "", err
	}
	return events, status, nil
}
