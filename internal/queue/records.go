package queue

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"antrian/antrian-service/internal/models"
)

func (s *Service) LookupRecord(ctx context.Context, userID string) (models.MedicalRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.MedicalRecord{}, invalid("user id is required")
	}
	return s.store.FindRecordByUser(ctx, userID)
}

// CreateRecord stores the first medical record of a user. The store rejects a second one.
func (s *Service) CreateRecord(ctx context.Context, userID string, fields map[string]interface{}) (models.MedicalRecord, error) {
	ctx, sp := tracer.Start(ctx, "queue.CreateRecord")
	defer sp.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.MedicalRecord{}, invalid("user id is required")
	}
	if err := checkBodyUser(fields, userID); err != nil {
		return models.MedicalRecord{}, err
	}
	nomor, err := nomorRekamFrom(fields)
	if err != nil {
		return models.MedicalRecord{}, err
	}
	record, err := s.store.InsertRecord(ctx, models.MedicalRecord{
		UserID:     userID,
		NomorRekam: nomor,
		CreatedAt:  s.now().UTC(),
		Fields:     recordExtra(fields),
	})
	if err != nil {
		sp.RecordError(err)
		return models.MedicalRecord{}, err
	}
	return record, nil
}

// UpdateRecord overwrites the named fields of the user's record and leaves the rest intact.
func (s *Service) UpdateRecord(ctx context.Context, userID string, fields map[string]interface{}) (models.MedicalRecord, error) {
	ctx, sp := tracer.Start(ctx, "queue.UpdateRecord")
	defer sp.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.MedicalRecord{}, invalid("user id is required")
	}
	if err := checkBodyUser(fields, userID); err != nil {
		return models.MedicalRecord{}, err
	}
	nomor, err := nomorRekamFrom(fields)
	if err != nil {
		return models.MedicalRecord{}, err
	}
	existing, err := s.store.FindRecordByUser(ctx, userID)
	if err != nil {
		return models.MedicalRecord{}, err
	}
	record, err := s.store.UpdateRecord(ctx, existing.ID, recordExtra(fields), nomor)
	if err != nil {
		sp.RecordError(err)
		return models.MedicalRecord{}, err
	}
	return record, nil
}

// NextRecordNumber returns the record holding the highest nomor_rekam issued so far.
// Incrementing it is left to the caller.
func (s *Service) NextRecordNumber(ctx context.Context) (models.MedicalRecord, error) {
	return s.store.LastRecord(ctx)
}

func checkBodyUser(fields map[string]interface{}, userID string) error {
	raw, ok := fields[models.FieldUserID]
	if !ok || raw == nil {
		return nil
	}
	value, _ := raw.(string)
	if strings.TrimSpace(value) != userID {
		return invalid("user_id in body does not match path")
	}
	return nil
}

func recordExtra(fields map[string]interface{}) map[string]interface{} {
	extra := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		if models.IsRecordReserved(key) {
			continue
		}
		extra[key] = value
	}
	return extra
}

func nomorRekamFrom(fields map[string]interface{}) (*int64, error) {
	raw, ok := fields[models.FieldNomorRekam]
	if !ok || raw == nil {
		return nil, nil
	}
	value, ok := asInt64(raw)
	if !ok || value < 0 {
		return nil, invalid("nomor_rekam must be a non-negative integer")
	}
	return &value, nil
}

func asInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}
