package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"antrian/antrian-service/internal/models"
	"antrian/antrian-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dateLayout = "2006-01-02"

	uniqueViolation      = "23505"
	oneActiveConstraint  = "antrian_one_active_per_day"
	recordUserConstraint = "rekam_medis_user_id_key"
	ticketColumns        = "id, tenant_id, user_id, tanggal, status, data, created_at"
	recordColumns        = "id, user_id, nomor_rekam, data, created_at"
)

// Store keeps tickets, tenants and medical records as JSONB documents next to the
// columns every query filters on.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return unavailable(s.pool.Ping(ctx))
}

func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, data
		FROM tenant
		ORDER BY created_at ASC, tenant_id ASC
	`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	tenants := []models.Tenant{}
	for rows.Next() {
		var tenant models.Tenant
		if err := rows.Scan(&tenant.TenantID, &tenant.Data); err != nil {
			return nil, unavailable(err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return tenants, nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (models.Tenant, error) {
	var tenant models.Tenant
	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, data
		FROM tenant
		WHERE tenant_id = $1
	`, tenantID)
	if err := row.Scan(&tenant.TenantID, &tenant.Data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Tenant{}, store.ErrTenantNotFound
		}
		return models.Tenant{}, unavailable(err)
	}
	return tenant, nil
}

func (s *Store) InsertTicket(ctx context.Context, ticket models.Ticket) (models.Ticket, error) {
	tanggal, err := parseDate(ticket.Tanggal)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	if ticket.Fields == nil {
		ticket.Fields = map[string]interface{}{}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ticket.ID = uuid.NewString()
	row := tx.QueryRow(ctx, `
		INSERT INTO antrian (id, tenant_id, user_id, tanggal, status, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ticketColumns,
		ticket.ID, ticket.TenantID, ticket.UserID, tanggal, ticket.Status, ticket.Fields, ticket.CreatedAt)
	inserted, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, unavailable(err)
	}

	event := store.NextTicketEvent(nil, inserted.ID, store.EventCreated, inserted.Status, inserted.CreatedAt)
	if err = insertTicketEvent(ctx, tx, event); err != nil {
		return models.Ticket{}, unavailable(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, unavailable(err)
	}
	return inserted, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if !isValidUUID(ticketID) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM antrian WHERE id = $1`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, unavailable(err)
	}
	return ticket, nil
}

func (s *Store) QueryTickets(ctx context.Context, query store.TicketQuery) ([]models.Ticket, error) {
	sql, args, err := buildTicketQuery(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return tickets, nil
}

func buildTicketQuery(query store.TicketQuery) (string, []interface{}, error) {
	var where []string
	var args []interface{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if query.TenantID != "" {
		add("tenant_id = $%d", query.TenantID)
	}
	if query.UserID != "" {
		add("user_id = $%d", query.UserID)
	}
	if query.Status != "" {
		add("status = $%d", query.Status)
	}
	if query.From != "" {
		from, err := parseDate(query.From)
		if err != nil {
			return "", nil, err
		}
		add("tanggal >= $%d", from)
	}
	if query.To != "" {
		to, err := parseDate(query.To)
		if err != nil {
			return "", nil, err
		}
		add("tanggal < $%d", to)
	}

	sql := "SELECT " + ticketColumns + " FROM antrian"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	switch query.Order {
	case store.OrderTanggalAsc:
		sql += " ORDER BY tanggal ASC, created_at ASC, seq ASC"
	case store.OrderTanggalDesc:
		sql += " ORDER BY tanggal DESC, created_at DESC, seq DESC"
	default:
		sql += " ORDER BY seq ASC"
	}
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return sql, args, nil
}

// TransitionTicket writes the new status only while the current one is allowed, so two
// callers racing on the same ticket cannot both succeed.
func (s *Store) TransitionTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	if !isValidUUID(input.TicketID) {
		return models.Ticket{}, store.ErrTicketNotFound
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE antrian
		SET status = $2
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+ticketColumns,
		input.TicketID, input.To, input.From)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, lookupErr := ticketExists(ctx, tx, input.TicketID)
			if lookupErr != nil {
				return models.Ticket{}, unavailable(lookupErr)
			}
			if !exists {
				return models.Ticket{}, store.ErrTicketNotFound
			}
			return models.Ticket{}, store.ErrInvalidTransition
		}
		if isUniqueViolation(err, oneActiveConstraint) {
			return models.Ticket{}, store.ErrActiveExists
		}
		return models.Ticket{}, unavailable(err)
	}

	prev, err := lastTicketEvent(ctx, tx, ticket.ID)
	if err != nil {
		return models.Ticket{}, unavailable(err)
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	event := store.NextTicketEvent(prev, ticket.ID, input.Action, ticket.Status, occurredAt)
	if err = insertTicketEvent(ctx, tx, event); err != nil {
		return models.Ticket{}, unavailable(err)
	}
	if err = tx.Commit(ctx); err != nil {
		if isUniqueViolation(err, oneActiveConstraint) {
			return models.Ticket{}, store.ErrActiveExists
		}
		return models.Ticket{}, unavailable(err)
	}
	return ticket, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	if !isValidUUID(ticketID) {
		return []store.TicketEvent{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, seq, type, status, created_at, prev_hash, hash
		FROM antrian_events
		WHERE ticket_id = $1
		ORDER BY seq ASC
	`, ticketID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	events := []store.TicketEvent{}
	for rows.Next() {
		var event store.TicketEvent
		if err := rows.Scan(&event.TicketID, &event.Seq, &event.Type, &event.Status, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, unavailable(err)
		}
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return events, nil
}

func (s *Store) FindRecordByUser(ctx context.Context, userID string) (models.MedicalRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM rekam_medis
		WHERE user_id = $1
		ORDER BY seq ASC
		LIMIT 1
	`, userID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MedicalRecord{}, store.ErrRecordNotFound
		}
		return models.MedicalRecord{}, unavailable(err)
	}
	return record, nil
}

func (s *Store) InsertRecord(ctx context.Context, record models.MedicalRecord) (models.MedicalRecord, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Fields == nil {
		record.Fields = map[string]interface{}{}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO rekam_medis (id, user_id, nomor_rekam, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+recordColumns,
		uuid.NewString(), record.UserID, record.NomorRekam, record.Fields, record.CreatedAt)
	inserted, err := scanRecord(row)
	if err != nil {
		if isUniqueViolation(err, recordUserConstraint) {
			return models.MedicalRecord{}, store.ErrRecordExists
		}
		return models.MedicalRecord{}, unavailable(err)
	}
	return inserted, nil
}

func (s *Store) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}, nomorRekam *int64) (models.MedicalRecord, error) {
	if !isValidUUID(recordID) {
		return models.MedicalRecord{}, store.ErrRecordNotFound
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE rekam_medis
		SET data = data || $2::jsonb,
			nomor_rekam = COALESCE($3, nomor_rekam)
		WHERE id = $1
		RETURNING `+recordColumns,
		recordID, fields, nomorRekam)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MedicalRecord{}, store.ErrRecordNotFound
		}
		return models.MedicalRecord{}, unavailable(err)
	}
	return record, nil
}

func (s *Store) LastRecord(ctx context.Context) (models.MedicalRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM rekam_medis
		WHERE nomor_rekam IS NOT NULL
		ORDER BY nomor_rekam DESC, seq DESC
		LIMIT 1
	`)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MedicalRecord{}, store.ErrRecordNotFound
		}
		return models.MedicalRecord{}, unavailable(err)
	}
	return record, nil
}

func ticketExists(ctx context.Context, tx pgx.Tx, ticketID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM antrian WHERE id = $1)`, ticketID).Scan(&exists)
	return exists, err
}

func lastTicketEvent(ctx context.Context, tx pgx.Tx, ticketID string) (*store.TicketEvent, error) {
	var event store.TicketEvent
	row := tx.QueryRow(ctx, `
		SELECT ticket_id, seq, type, status, created_at, prev_hash, hash
		FROM antrian_events
		WHERE ticket_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, ticketID)
	if err := row.Scan(&event.TicketID, &event.Seq, &event.Type, &event.Status, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func insertTicketEvent(ctx context.Context, tx pgx.Tx, event store.TicketEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO antrian_events (ticket_id, seq, type, status, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.TicketID, event.Seq, event.Type, event.Status, event.CreatedAt, event.PrevHash, event.Hash)
	return err
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var tanggal time.Time
	if err := row.Scan(&ticket.ID, &ticket.TenantID, &ticket.UserID, &tanggal, &ticket.Status, &ticket.Fields, &ticket.CreatedAt); err != nil {
		return models.Ticket{}, err
	}
	ticket.Tanggal = tanggal.Format(dateLayout)
	ticket.CreatedAt = ticket.CreatedAt.UTC()
	return ticket, nil
}

func scanRecord(row pgx.Row) (models.MedicalRecord, error) {
	var record models.MedicalRecord
	if err := row.Scan(&record.ID, &record.UserID, &record.NomorRekam, &record.Fields, &record.CreatedAt); err != nil {
		return models.MedicalRecord{}, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

// parseDate is the boundary between canonical YYYY-MM-DD strings and the DATE column.
func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("tanggal %q is not a calendar date: %w", value, err)
	}
	return t, nil
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

// unavailable marks driver failures so the HTTP layer can tell them apart from domain errors.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
