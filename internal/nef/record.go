package nef

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Table names. Every table key in the datastore document carries the
// "extranef_" prefix.
const (
	TableEmployees     = "extranef_employees"
	TableTeams         = "extranef_teams"
	TableRoles         = "extranef_roles"
	TableSchedules     = "extranef_schedules"
	TableContractTypes = "extranef_contract_types"
	TableAbsences      = "extranef_absences"
	TableVacations     = "extranef_vacations"
	TableCertificates  = "extranef_certificates"
)

// KnownTables lists every table the system persists, in hydration order.
var KnownTables = []string{
	TableEmployees,
	TableTeams,
	TableRoles,
	TableSchedules,
	TableContractTypes,
	TableAbsences,
	TableVacations,
	TableCertificates,
}

// Errors returned across the datastore boundary.
var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrInvalidDump   = errors.New("invalid dump")
	ErrNotConfigured = errors.New("not configured")
	ErrNotReady      = errors.New("datastore not ready")
)

// IsKnownTable reports whether name is one of KnownTables.
func IsKnownTable(name string) bool {
	for _, t := range KnownTables {
		if t == name {
			return true
		}
	}
	return false
}

// Record is one entity instance. It always carries an "id" field; the other
// fields are free-form scalars and strings.
type Record map[string]any

// ID returns the record id in canonical string form.
func (r Record) ID() string {
	return IDString(r["id"])
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the named field as a string, or "" if absent.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return IDString(v)
}

// CloneRows copies a row slice so callers cannot alias cached state.
func CloneRows(rows []Record) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// IDString converts an id value to its canonical string form. Numeric ids
// decoded from JSON (float64) and integer literals render without a decimal
// part, so 1, 1.0, json.Number("1") and "1" all compare equal.
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// SameID reports whether two id values refer to the same record.
func SameID(a, b any) bool {
	as, bs := IDString(a), IDString(b)
	return as != "" && as == bs
}

// FindIndex returns the position of the record with the given id, or -1.
func FindIndex(rows []Record, id any) int {
	for i, r := range rows {
		if SameID(r["id"], id) {
			return i
		}
	}
	return -1
}

// DecodeRows parses a JSON array of records.
func DecodeRows(data []byte) ([]Record, error) {
	var rows []Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}
