package hr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"extranef/internal/kvstore"
	"extranef/internal/nef"
	"extranef/internal/storage"
	"extranef/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *storage.Adapter) {
	t.Helper()
	clock := testutil.FixedClock()
	obs := testutil.NewRecordingObserver()
	local := storage.NewTableStore(kvstore.NewMemoryStore(0), obs, clock)
	adapter := storage.NewAdapter(local, storage.LocalOnlyBackend{}, obs, clock)
	svc := NewService(adapter, clock, testutil.NewStubIDGenerator())
	svc.EnsureSeeded(context.Background())
	return svc, adapter
}

func TestService_AddEmployee(t *testing.T) {
	svc, adapter := newTestService(t)
	ctx := context.Background()

	emp := svc.AddEmployee(ctx, nef.Record{"id": "ignored", "name": "Ana", FieldTeamID: 2})
	if emp.ID() != "id-1" {
		t.Errorf("id = %q, want id-1", emp.ID())
	}
	if emp["active"] != true || emp["createdAt"] != "2024-01-15T10:30:00Z" {
		t.Errorf("employee = %v", emp)
	}

	rows := adapter.GetTable(nef.TableEmployees)
	if len(rows) != 1 || rows[0].String("name") != "Ana" {
		t.Errorf("stored employees = %v", rows)
	}

	got, err := svc.GetEmployee("id-1")
	if err != nil || got.String("name") != "Ana" {
		t.Errorf("GetEmployee() = %v, %v", got, err)
	}
	if _, err := svc.GetEmployee("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEmployee(missing) error = %v, want ErrNotFound", err)
	}
}

func TestService_UpdateEmployee(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	emp := svc.AddEmployee(ctx, nef.Record{"name": "Ana"})

	updated, err := svc.UpdateEmployee(ctx, emp.ID(), nef.Record{"id": "hijack", "name": "Ana Souza", "active": false})
	if err != nil {
		t.Fatalf("UpdateEmployee() error = %v", err)
	}
	if updated.ID() != emp.ID() || updated["name"] != "Ana Souza" || updated["active"] != false {
		t.Errorf("updated = %v", updated)
	}
	if updated["updatedAt"] != "2024-01-15T10:30:00Z" {
		t.Errorf("updatedAt = %v", updated["updatedAt"])
	}
	if _, err := svc.UpdateEmployee(ctx, "missing", nef.Record{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestService_DeleteGuards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		field  string
		id     any
		delete func(*Service, string) error
		kind   string
	}{
		{"team", FieldTeamID, float64(2), func(s *Service, id string) error { return s.DeleteTeam(ctx, id) }, "team"},
		{"role", FieldRoleID, 3, func(s *Service, id string) error { return s.DeleteRole(ctx, id) }, "role"},
		{"schedule", FieldScheduleID, "1", func(s *Service, id string) error { return s.DeleteSchedule(ctx, id) }, "schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			a := svc.AddEmployee(ctx, nef.Record{"name": "Ana", tt.field: tt.id})
			svc.AddEmployee(ctx, nef.Record{"name": "Bruno", tt.field: tt.id})

			id := nef.IDString(tt.id)
			err := tt.delete(svc, id)
			var refErr *ReferencedError
			if !errors.As(err, &refErr) {
				t.Fatalf("delete error = %v, want *ReferencedError", err)
			}
			if refErr.Count != 2 || refErr.Kind != tt.kind {
				t.Errorf("ReferencedError = %+v", refErr)
			}
			if !strings.Contains(err.Error(), "2 employee(s)") {
				t.Errorf("message %q does not state the count", err.Error())
			}

			if err := svc.DeleteEmployee(ctx, a.ID()); err != nil {
				t.Fatal(err)
			}
			if _, err := svc.UpdateEmployee(ctx, "id-2", nef.Record{tt.field: "other"}); err != nil {
				t.Fatal(err)
			}
			if err := tt.delete(svc, id); err != nil {
				t.Errorf("delete after unlinking error = %v", err)
			}
		})
	}
}

func TestService_DeleteMissing(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.DeleteTeam(context.Background(), "99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestService_ReferenceTables(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if len(svc.ListTeams()) != 5 || len(svc.ListRoles()) != 6 || len(svc.ListSchedules()) != 3 || len(svc.ListContractTypes()) != 3 {
		t.Fatal("reference tables not seeded")
	}

	team := svc.AddTeam(ctx, nef.Record{"name": "Suporte"})
	if len(svc.ListTeams()) != 6 {
		t.Errorf("teams = %d, want 6", len(svc.ListTeams()))
	}
	if _, err := svc.UpdateTeam(ctx, team.ID(), nef.Record{"description": "N1"}); err != nil {
		t.Fatal(err)
	}
	role := svc.AddRole(ctx, nef.Record{"name": "Estagiário", "level": 0})
	if _, err := svc.UpdateRole(ctx, role.ID(), nef.Record{"level": 1}); err != nil {
		t.Fatal(err)
	}
	sched := svc.AddSchedule(ctx, nef.Record{"name": "Noturno"})
	if _, err := svc.UpdateSchedule(ctx, sched.ID(), nef.Record{"start": "22:00"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSchedule(ctx, sched.ID()); err != nil {
		t.Errorf("DeleteSchedule() error = %v", err)
	}
}

func TestService_EventsAndReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	emp := svc.AddEmployee(ctx, nef.Record{"name": "Ana"})
	abs := svc.AddAbsence(ctx, nef.Record{"employeeId": emp.ID(), "date": "2024-01-10"})
	svc.AddVacation(ctx, nef.Record{"employeeId": emp.ID(), "startDate": "2024-02-01", "endDate": "2024-02-10"})
	svc.AddCertificate(ctx, nef.Record{"employeeId": emp.ID(), "absenceId": abs.ID()})

	if abs["createdAt"] != "2024-01-15T10:30:00Z" {
		t.Errorf("absence createdAt = %v", abs["createdAt"])
	}
	if len(svc.ListAbsences()) != 1 || len(svc.ListVacations()) != 1 || len(svc.ListCertificates()) != 1 {
		t.Fatal("events not stored")
	}

	rep := svc.EmployeeReport()
	if len(rep) != 1 {
		t.Fatalf("report = %v", rep)
	}
	if rep[0]["totalAbsences"] != 1 || rep[0]["totalVacations"] != 1 || rep[0]["totalCertificates"] != 1 {
		t.Errorf("report row = %v", rep[0])
	}
}

func TestService_ExportImport(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestService(t)
	src.AddEmployee(ctx, nef.Record{"name": "Ana"})

	dump := src.Export()
	if dump.Meta.Version != nef.DocumentVersion {
		t.Errorf("version = %q", dump.Meta.Version)
	}
	if len(dump.Tables) != len(nef.KnownTables) {
		t.Errorf("tables = %d, want %d", len(dump.Tables), len(nef.KnownTables))
	}

	dst, _ := newTestService(t)
	dst.AddAbsence(ctx, nef.Record{"date": "2024-01-01"})
	delete(dump.Tables, nef.TableAbsences)
	if err := dst.Import(ctx, dump); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got := dst.ListEmployees(); len(got) != 1 || got[0].String("name") != "Ana" {
		t.Errorf("employees = %v", got)
	}
	if len(dst.ListAbsences()) != 1 {
		t.Error("table missing from dump was overwritten")
	}
	if err := dst.Import(ctx, nil); !errors.Is(err, nef.ErrInvalidDump) {
		t.Errorf("Import(nil) error = %v, want ErrInvalidDump", err)
	}
}

func TestService_ClearAll(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.AddEmployee(ctx, nef.Record{"name": "Ana"})
	svc.AddAbsence(ctx, nef.Record{"date": "2024-01-01"})
	svc.AddTeam(ctx, nef.Record{"name": "Extra"})

	svc.ClearAll(ctx)
	if len(svc.ListEmployees()) != 0 || len(svc.ListAbsences()) != 0 {
		t.Error("ClearAll() left employee data behind")
	}
	if len(svc.ListTeams()) != 5 {
		t.Errorf("teams = %d, want the 5 defaults", len(svc.ListTeams()))
	}
}

func TestService_ConcurrentAdds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.AddAbsence(ctx, nef.Record{"date": "2024-01-01"})
		}()
	}
	wg.Wait()
	if got := len(svc.ListAbsences()); got != 20 {
		t.Errorf("absences = %d, want 20", got)
	}
}

func TestService_EnsureSeeded(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()

	open := func(kv nef.KVStore, backend storage.TableBackend) (*Service, *storage.Adapter) {
		local := storage.NewTableStore(kv, nil, clock)
		adapter := storage.NewAdapter(local, backend, nil, clock)
		adapter.Hydrate(ctx)
		svc := NewService(adapter, clock, testutil.NewStubIDGenerator())
		svc.EnsureSeeded(ctx)
		return svc, adapter
	}

	t.Run("first run seeds reference tables", func(t *testing.T) {
		svc, _ := open(kvstore.NewMemoryStore(0), storage.LocalOnlyBackend{})
		if got := len(svc.ListTeams()); got != 5 {
			t.Errorf("teams = %d, want 5", got)
		}
		if got := len(svc.ListEmployees()); got != 0 {
			t.Errorf("employees = %d, want 0", got)
		}
	})

	t.Run("emptied table stays empty after restart", func(t *testing.T) {
		kv := kvstore.NewMemoryStore(0)
		svc, _ := open(kv, storage.LocalOnlyBackend{})
		for _, team := range svc.ListTeams() {
			if err := svc.DeleteTeam(ctx, team.ID()); err != nil {
				t.Fatalf("DeleteTeam(%s) error = %v", team.ID(), err)
			}
		}

		restarted, _ := open(kv, storage.LocalOnlyBackend{})
		if got := restarted.ListTeams(); len(got) != 0 {
			t.Errorf("teams after restart = %v, want none", got)
		}
		if got, want := len(restarted.ListRoles()), len(nef.SeedRows(nef.TableRoles)); got != want {
			t.Errorf("roles after restart = %d, want %d", got, want)
		}
	})

	t.Run("desktop datastore is never seeded from the client", func(t *testing.T) {
		bridge := testutil.NewFakeBridge()
		svc, adapter := open(kvstore.NewMemoryStore(0), storage.NewDesktopBackedBackend(bridge))
		adapter.Flush()

		if got := svc.ListTeams(); len(got) != 0 {
			t.Errorf("teams = %v, want the empty desktop table", got)
		}
		if saves := bridge.Saves(); len(saves) != 0 {
			t.Errorf("saves = %v, want none", saves)
		}
	})
}
