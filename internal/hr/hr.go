// Package hr implements the HR operations the UI performs on top of the
// storage adapter: employee and reference-table maintenance, event records,
// the employee summary and whole-dataset export, import and reset.
package hr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"extranef/internal/nef"
	"extranef/internal/report"
)

// Employee reference fields.
const (
	FieldTeamID     = "teamId"
	FieldRoleID     = "roleId"
	FieldScheduleID = "scheduleId"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// ReferencedError blocks deleting a reference row that employees still use.
type ReferencedError struct {
	Kind  string
	ID    string
	Count int
}

func (e *ReferencedError) Error() string {
	return fmt.Sprintf("cannot delete %s %s: %d employee(s) still linked to it", e.Kind, e.ID, e.Count)
}

// Store is the table access the service needs. storage.Adapter implements it.
type Store interface {
	GetTable(name string) []nef.Record
	Persist(ctx context.Context, name string, rows []nef.Record)
	Has(name string) bool
	Desktop() bool
}

// Service performs HR operations. Read-modify-write cycles are serialized so
// concurrent adds never drop each other's rows.
type Service struct {
	store Store
	clock nef.Clock
	ids   nef.IDGenerator

	mu sync.Mutex
}

// NewService creates a Service.
func NewService(store Store, clock nef.Clock, ids nef.IDGenerator) *Service {
	if clock == nil {
		clock = nef.RealClock{}
	}
	if ids == nil {
		ids = nef.UUIDGenerator{}
	}
	return &Service{store: store, clock: clock, ids: ids}
}

func (s *Service) stamp() string {
	return s.clock.Now().UTC().Format(time.RFC3339)
}

func (s *Service) list(table string) []nef.Record {
	return s.store.GetTable(table)
}

func (s *Service) get(table, id string) (nef.Record, error) {
	rows := s.store.GetTable(table)
	i := nef.FindIndex(rows, id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return rows[i], nil
}

// add stores a copy of rec under a fresh id. Extra fields are set on top.
func (s *Service) add(ctx context.Context, table string, rec nef.Record, extra nef.Record) nef.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := rec.Clone()
	if row == nil {
		row = nef.Record{}
	}
	for k, v := range extra {
		row[k] = v
	}
	row["id"] = s.ids.New()

	rows := append(s.store.GetTable(table), row)
	s.store.Persist(ctx, table, rows)
	return row.Clone()
}

// update merges patch into the row with id, keeping the id, and stamps
// updatedAt.
func (s *Service) update(ctx context.Context, table, id string, patch nef.Record) (nef.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.store.GetTable(table)
	i := nef.FindIndex(rows, id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	row := rows[i]
	for k, v := range patch {
		if k != "id" {
			row[k] = v
		}
	}
	row["updatedAt"] = s.stamp()
	s.store.Persist(ctx, table, rows)
	return row.Clone(), nil
}

// remove deletes the row with id. guardField, when set, names the employee
// field whose references block the delete.
func (s *Service) remove(ctx context.Context, table, kind, id, guardField string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if guardField != "" {
		count := 0
		for _, e := range s.store.GetTable(nef.TableEmployees) {
			if nef.SameID(e[guardField], id) {
				count++
			}
		}
		if count > 0 {
			return &ReferencedError{Kind: kind, ID: id, Count: count}
		}
	}

	rows := s.store.GetTable(table)
	i := nef.FindIndex(rows, id)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	rows = append(rows[:i], rows[i+1:]...)
	s.store.Persist(ctx, table, rows)
	return nil
}

// ListEmployees returns every employee.
func (s *Service) ListEmployees() []nef.Record { return s.list(nef.TableEmployees) }

// GetEmployee returns the employee with id.
func (s *Service) GetEmployee(id string) (nef.Record, error) {
	return s.get(nef.TableEmployees, id)
}

// AddEmployee stores a new active employee stamped with createdAt.
func (s *Service) AddEmployee(ctx context.Context, rec nef.Record) nef.Record {
	return s.add(ctx, nef.TableEmployees, rec, nef.Record{"active": true, "createdAt": s.stamp()})
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, patch nef.Record) (nef.Record, error) {
	return s.update(ctx, nef.TableEmployees, id, patch)
}

func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	return s.remove(ctx, nef.TableEmployees, "employee", id, "")
}

func (s *Service) ListTeams() []nef.Record { return s.list(nef.TableTeams) }

func (s *Service) AddTeam(ctx context.Context, rec nef.Record) nef.Record {
	return s.add(ctx, nef.TableTeams, rec, nil)
}

func (s *Service) UpdateTeam(ctx context.Context, id string, patch nef.Record) (nef.Record, error) {
	return s.update(ctx, nef.TableTeams, id, patch)
}

// DeleteTeam fails with *ReferencedError while any employee is in the team.
func (s *Service) DeleteTeam(ctx context.Context, id string) error {
	return s.remove(ctx, nef.TableTeams, "team", id, FieldTeamID)
}

func (s *Service) ListRoles() []nef.Record { return s.list(nef.TableRoles) }

func (s *Service) AddRole(ctx context.Context, rec nef.Record) nef.Record {
	return s.add(ctx, nef.TableRoles, rec, nil)
}

func (s *Service) UpdateRole(ctx context.Context, id string, patch nef.Record) (nef.Record, error) {
	return s.update(ctx, nef.TableRoles, id, patch)
}

// DeleteRole fails with *ReferencedError while any employee has the role.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	return s.remove(ctx, nef.TableRoles, "role", id, FieldRoleID)
}

func (s *Service) ListSchedules() []nef.Record { return s.list(nef.TableSchedules) }

func (s *Service) AddSchedule(ctx context.Context, rec nef.Record) nef.Record {
	return s.add(ctx, nef.TableSchedules, rec, nil)
}

func (s *Service) UpdateSchedule(ctx context.Context, id string, patch nef.Record) (nef.Record, error) {
	return s.update(ctx, nef.TableSchedules, id, patch)
}

// DeleteSchedule fails with *ReferencedError while any employee works it.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	return s.remove(ctx, nef.TableSchedules, "schedule", id, FieldScheduleID)
}

func (s *Service) ListContractTypes() []nef.Record { return s.list(nef.TableContractTypes) }

func (s *Service) ListAbsences() []nef.Record { return s.list(nef.TableAbsences) }

// AddAbsence stores an absence stamped with createdAt.
func (s *Service) AddAbsence(ctx context.Context, rec nef.Record) nef.Record {
	return s.add(ctx, nef.TableAbsences, rec, nef.Record{"createdAt": s.stamp()})
}

func (s *Service) ListVacations() []nef.Record { return s.list(nef.TableVacations) }

// AddVacation stores a vacation stamped with createdAt.
func (s *Service) AddVacation(ctx context.Context, rec nef.Record) nef.Record {
	return s.add(ctx, nef.TableVacations, rec, nef.Record{"createdAt": s.stamp()})
}

func (s *Service) ListCertificates() []nef.Record { return s.list(nef.TableCertificates) }

// AddCertificate stores a certificate record stamped with createdAt. The
// attachment itself is saved separately.
func (s *Service) AddCertificate(ctx context.Context, rec nef.Record) nef.Record {
	return s.add(ctx, nef.TableCertificates, rec, nef.Record{"createdAt": s.stamp()})
}

// EmployeeReport returns one summary row per employee.
func (s *Service) EmployeeReport() []nef.Record {
	return report.EmployeeSummary(
		s.list(nef.TableEmployees),
		s.list(nef.TableAbsences),
		s.list(nef.TableCertificates),
		s.list(nef.TableVacations),
	)
}

// Export snapshots every known table as seen through the store.
func (s *Service) Export() *nef.Dump {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := nef.NewDump()
	d.Meta = nef.Meta{Version: nef.DocumentVersion, UpdatedAt: s.clock.Now().UTC()}
	for _, name := range nef.KnownTables {
		d.Tables[name] = s.store.GetTable(name)
	}
	return d
}

// Import replaces every known table present in dump. Tables missing from the
// dump are left untouched.
func (s *Service) Import(ctx context.Context, dump *nef.Dump) error {
	if dump == nil {
		return nef.ErrInvalidDump
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range nef.KnownTables {
		if rows, ok := dump.Tables[name]; ok {
			s.store.Persist(ctx, name, nef.CloneRows(rows))
		}
	}
	return nil
}

// ClearAll empties the employee and event tables and restores the default
// reference rows.
func (s *Service) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range nef.KnownTables {
		rows := nef.SeedRows(name)
		if rows == nil {
			rows = []nef.Record{}
		}
		s.store.Persist(ctx, name, rows)
	}
}

// EnsureSeeded writes the default rows of every reference table that was
// never stored. A table the user emptied stays empty. Nothing is seeded when
// a desktop datastore backs the store; it seeds on first open.
func (s *Service) EnsureSeeded(ctx context.Context) {
	if s.store.Desktop() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range nef.SeededTables {
		if !s.store.Has(name) {
			s.store.Persist(ctx, name, nef.SeedRows(name))
		}
	}
}
