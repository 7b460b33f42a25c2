package models

import "time"

// MedicalRecord is the rekam_medis document kept for one user.
type MedicalRecord struct {
	ID         string
	UserID     string
	NomorRekam *int64
	CreatedAt  time.Time
	Fields     map[string]interface{}
}

const FieldNomorRekam = "nomor_rekam"

func IsRecordReserved(key string) bool {
	switch key {
	case FieldID, FieldUserID, FieldNomorRekam, FieldCreatedAt:
		return true
	}
	return false
}

func (r MedicalRecord) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(r.Fields)+3)
	for key, value := range r.Fields {
		if IsRecordReserved(key) {
			continue
		}
		doc[key] = value
	}
	doc[FieldID] = r.ID
	doc[FieldUserID] = r.UserID
	if r.NomorRekam != nil {
		doc[FieldNomorRekam] = *r.NomorRekam
	}
	return doc
}
