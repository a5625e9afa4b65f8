package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"extranef/internal/nef"
	"extranef/internal/testutil"
)

type recordingBackuper struct {
	mu        sync.Mutex
	snapshots [][]byte
	runNow    int
}

func (b *recordingBackuper) AfterPersist(ctx context.Context, snapshot []byte) nef.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, append([]byte(nil), snapshot...))
	return nef.Outcome{Operation: "backup", Status: nef.StatusSuccess}
}

func (b *recordingBackuper) RunNow(ctx context.Context, snapshot []byte) nef.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runNow++
	return nef.Outcome{Operation: "backup", Status: nef.StatusSuccess}
}

func (b *recordingBackuper) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.snapshots)
}

func openTestStore(t *testing.T, path string, backuper nef.Backuper) *Store {
	t.Helper()
	s, err := Open(path, backuper, nil, nef.NewNopLogger(), testutil.FixedClock())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func readFileDoc(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading datastore: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding datastore: %v", err)
	}
	return doc
}

func TestOpen_SeedsEmptyDatastore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "extranef-data.json")
	s := openTestStore(t, path, nil)

	ready, err := s.IsReady(ctx)
	if err != nil || !ready {
		t.Fatalf("IsReady() = %v, %v; want true", ready, err)
	}

	teams, err := s.GetTable(ctx, nef.TableTeams)
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	if len(teams) != 5 {
		t.Fatalf("len(teams) = %d, want 5", len(teams))
	}
	for i, team := range teams {
		if want := []string{"1", "2", "3", "4", "5"}[i]; team.ID() != want {
			t.Errorf("teams[%d].id = %s, want %s", i, team.ID(), want)
		}
	}

	teams = append(teams, nef.Record{"id": 6, "name": "QA"})
	if err := s.SaveTable(ctx, nef.TableTeams, teams); err != nil {
		t.Fatalf("SaveTable() error = %v", err)
	}

	got, err := s.GetTable(ctx, nef.TableTeams)
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("len(teams) = %d, want 6", len(got))
	}
	if last := got[5]; last.ID() != "6" || last.String("name") != "QA" {
		t.Errorf("last team = %v, want QA with id 6", last)
	}

	// Survives a restart.
	reopened := openTestStore(t, path, nil)
	got, _ = reopened.GetTable(ctx, nef.TableTeams)
	if len(got) != 6 || got[5].String("name") != "QA" {
		t.Errorf("after reopen teams = %v", got)
	}
}

func TestOpen_SeededTables(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "extranef-data.json"), nil)

	want := map[string]int{
		nef.TableTeams:         5,
		nef.TableRoles:         6,
		nef.TableSchedules:     3,
		nef.TableContractTypes: 3,
		nef.TableEmployees:     0,
		nef.TableAbsences:      0,
		nef.TableVacations:     0,
		nef.TableCertificates:  0,
	}
	for table, n := range want {
		rows, err := s.GetTable(ctx, table)
		if err != nil {
			t.Errorf("GetTable(%s) error = %v", table, err)
			continue
		}
		if len(rows) != n {
			t.Errorf("len(%s) = %d, want %d", table, len(rows), n)
		}
	}
}

func TestOpen_PersistsSeededDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extranef-data.json")
	openTestStore(t, path, nil)

	doc := readFileDoc(t, path)
	var meta nef.Meta
	if err := json.Unmarshal(doc["meta"], &meta); err != nil {
		t.Fatalf("decoding meta: %v", err)
	}
	if meta.Version != nef.DocumentVersion {
		t.Errorf("meta.version = %q, want %q", meta.Version, nef.DocumentVersion)
	}
	if !meta.UpdatedAt.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("meta.updatedAt = %v, want clock time", meta.UpdatedAt)
	}
	for _, table := range nef.KnownTables {
		if _, ok := doc[table]; !ok {
			t.Errorf("table %s missing from file", table)
		}
	}
}

func TestOpen_CorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extranef-data.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0600); err != nil {
		t.Fatal(err)
	}

	s := openTestStore(t, path, nil)

	teams, err := s.GetTable(context.Background(), nef.TableTeams)
	if err != nil || len(teams) != 5 {
		t.Fatalf("GetTable() = %d rows, %v; want 5 seeded rows", len(teams), err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var aside string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "extranef-data.json.corrupt-") {
			aside = e.Name()
		}
	}
	if aside == "" {
		t.Fatal("corrupt file was not moved aside")
	}
	data, err := os.ReadFile(filepath.Join(dir, aside))
	if err != nil || string(data) != "{truncated" {
		t.Errorf("moved file content = %q, %v", data, err)
	}
	readFileDoc(t, path)
}

func TestOpen_FillsMissingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extranef-data.json")
	content := `{"meta":{"version":"1.0.0"},"extranef_teams":[{"id":1,"name":"RH"}]}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	s := openTestStore(t, path, nil)

	rows, err := s.GetTable(context.Background(), nef.TableVacations)
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(vacations) = %d, want 0", len(rows))
	}
	teams, _ := s.GetTable(context.Background(), nef.TableTeams)
	if len(teams) != 1 {
		t.Errorf("len(teams) = %d, want the 1 stored row", len(teams))
	}
}

func TestStore_UnknownTable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "extranef-data.json"), nil)

	if _, err := s.GetTable(ctx, "extranef_payroll"); !errors.Is(err, nef.ErrUnknownTable) {
		t.Errorf("GetTable() error = %v, want ErrUnknownTable", err)
	}
	if err := s.SaveTable(ctx, "payroll", nil); !errors.Is(err, nef.ErrUnknownTable) {
		t.Errorf("SaveTable() error = %v, want ErrUnknownTable", err)
	}
}

func TestStore_ImportMergesOnlyKnownArrays(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "extranef-data.json")
	content := `{
		"meta": {"version": "1.0.0"},
		"extranef_teams": [{"id": 1, "name": "RH"}],
		"extranef_roles": [{"id": 1, "name": "Auxiliar"}],
		"settings": {"theme": "dark"}
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	s := openTestStore(t, path, nil)

	var dump nef.Dump
	if err := json.Unmarshal([]byte(`{"extranef_teams":[{"id":10,"name":"QA"}],"settings":"overwritten","extranef_roles":"not an array"}`), &dump); err != nil {
		t.Fatalf("decoding dump: %v", err)
	}
	if err := s.ImportAll(ctx, &dump); err != nil {
		t.Fatalf("ImportAll() error = %v", err)
	}

	teams, _ := s.GetTable(ctx, nef.TableTeams)
	if len(teams) != 1 || teams[0].ID() != "10" {
		t.Errorf("teams = %v, want only QA", teams)
	}
	roles, _ := s.GetTable(ctx, nef.TableRoles)
	if len(roles) != 1 || roles[0].String("name") != "Auxiliar" {
		t.Errorf("roles = %v, want untouched", roles)
	}

	doc := readFileDoc(t, path)
	var settings map[string]string
	if err := json.Unmarshal(doc["settings"], &settings); err != nil {
		t.Fatalf("settings on disk = %s, want original object: %v", doc["settings"], err)
	}
	if settings["theme"] != "dark" {
		t.Errorf("settings.theme = %q, want dark", settings["theme"])
	}
}

func TestStore_ImportNilDump(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "extranef-data.json"), nil)
	if err := s.ImportAll(context.Background(), nil); !errors.Is(err, nef.ErrInvalidDump) {
		t.Errorf("ImportAll(nil) error = %v, want ErrInvalidDump", err)
	}
}

func TestStore_ExportAllIsACopy(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "extranef-data.json"), nil)

	dump, err := s.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if len(dump.Tables) != len(nef.KnownTables) {
		t.Errorf("exported %d tables, want %d", len(dump.Tables), len(nef.KnownTables))
	}
	dump.Tables[nef.TableTeams][0]["name"] = "mutated"

	teams, _ := s.GetTable(ctx, nef.TableTeams)
	if teams[0].String("name") == "mutated" {
		t.Error("ExportAll() aliases the live document")
	}
}

func TestStore_PersistTriggersBackup(t *testing.T) {
	ctx := context.Background()
	b := &recordingBackuper{}
	obs := testutil.NewRecordingObserver()
	path := filepath.Join(t.TempDir(), "extranef-data.json")

	s, err := Open(path, b, obs, nef.NewNopLogger(), testutil.FixedClock())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if b.count() != 1 {
		t.Fatalf("backups after seeding = %d, want 1", b.count())
	}

	if err := s.SaveTable(ctx, nef.TableAbsences, []nef.Record{{"id": "a1"}}); err != nil {
		t.Fatalf("SaveTable() error = %v", err)
	}
	if b.count() != 2 {
		t.Fatalf("backups after save = %d, want 2", b.count())
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	last := string(b.snapshots[len(b.snapshots)-1])
	b.mu.Unlock()
	if last != string(onDisk) {
		t.Error("backup snapshot differs from the bytes written to disk")
	}
	if len(obs.Find("backup", "")) != 2 {
		t.Errorf("observed %d backup outcomes, want 2", len(obs.Find("backup", "")))
	}
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "extranef-data.json")
	s := openTestStore(t, path, nil)

	if err := s.SaveTable(ctx, nef.TableEmployees, []nef.Record{{"id": "e1"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTable(ctx, nef.TableTeams, []nef.Record{{"id": 1}}); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	employees, _ := s.GetTable(ctx, nef.TableEmployees)
	if len(employees) != 0 {
		t.Errorf("len(employees) = %d, want 0", len(employees))
	}
	teams, _ := s.GetTable(ctx, nef.TableTeams)
	if len(teams) != 5 {
		t.Errorf("len(teams) = %d, want 5 seeded", len(teams))
	}
}

func TestStore_BackupNow(t *testing.T) {
	ctx := context.Background()

	t.Run("without backuper", func(t *testing.T) {
		s := openTestStore(t, filepath.Join(t.TempDir(), "extranef-data.json"), nil)
		if o := s.BackupNow(ctx); o.Status != nef.StatusNotConfigured {
			t.Errorf("BackupNow().Status = %q, want not_configured", o.Status)
		}
	})

	t.Run("with backuper", func(t *testing.T) {
		b := &recordingBackuper{}
		s := openTestStore(t, filepath.Join(t.TempDir(), "extranef-data.json"), b)
		if o := s.BackupNow(ctx); !o.OK() {
			t.Errorf("BackupNow() = %+v, want success", o)
		}
		if b.runNow != 1 {
			t.Errorf("RunNow calls = %d, want 1", b.runNow)
		}
	})
}

func TestStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "extranef-data.json"), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table := nef.KnownTables[i%len(nef.KnownTables)]
			if err := s.SaveTable(ctx, table, []nef.Record{{"id": i}}); err != nil {
				t.Errorf("SaveTable() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := s.ExportAll(ctx); err != nil {
		t.Errorf("ExportAll() error = %v", err)
	}
}
