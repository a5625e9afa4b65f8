package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"extranef/internal/attachment"
	"extranef/internal/backup"
	"extranef/internal/cloud"
	"extranef/internal/cloudsync"
	"extranef/internal/config"
	"extranef/internal/datastore"
	"extranef/internal/kvstore"
	"extranef/internal/nef"
	"extranef/internal/storage"
	"extranef/internal/testutil"
)

type testEnv struct {
	store    *datastore.Store
	settings *config.UserConfigStore
	cloud    *cloud.MemoryStore
	client   *Client
	dir      string
}

func newTestEnv(t *testing.T, mutate func(*Services)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	clock := testutil.FixedClock()

	settings := config.NewUserConfigStore(filepath.Join(dir, "user-config.json"), config.DefaultUserConfig())
	engine := backup.NewEngine(settings, 0, nil, clock)
	store, err := datastore.Open(filepath.Join(dir, "extranef-db.json"), engine, nil, nil, clock)
	if err != nil {
		t.Fatalf("datastore.Open() error = %v", err)
	}
	mem := cloud.NewMemoryStore()
	saver := attachment.NewSaver(settings, nil, clock)

	svc := Services{
		Datastore: store,
		Settings:  settings,
		Saver:     saver,
		Uploader:  cloudsync.NewPipeline(cloud.StaticProvider{Store: mem}, store, saver, nil, nil, clock),
	}
	if mutate != nil {
		mutate(&svc)
	}

	srv := httptest.NewServer(NewServer(svc, nil).Router())
	t.Cleanup(srv.Close)

	return &testEnv{store: store, settings: settings, cloud: mem, client: NewClient(srv.URL, srv.Client()), dir: dir}
}

func TestBridge_Tables(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	ready, err := env.client.IsReady(ctx)
	if err != nil || !ready {
		t.Fatalf("IsReady() = %v, %v", ready, err)
	}

	teams, err := env.client.GetTable(ctx, nef.TableTeams)
	if err != nil || len(teams) != 5 {
		t.Fatalf("GetTable(teams) = %d rows, %v", len(teams), err)
	}

	rows := []nef.Record{{"id": "e1", "name": "Ana"}}
	if err := env.client.SaveTable(ctx, nef.TableEmployees, rows); err != nil {
		t.Fatalf("SaveTable() error = %v", err)
	}
	got, err := env.store.GetTable(ctx, nef.TableEmployees)
	if err != nil || len(got) != 1 || got[0].String("name") != "Ana" {
		t.Errorf("server rows = %v, %v", got, err)
	}

	if _, err := env.client.GetTable(ctx, "bogus"); !errors.Is(err, nef.ErrUnknownTable) {
		t.Errorf("GetTable(bogus) error = %v, want ErrUnknownTable", err)
	}
	if err := env.client.SaveTable(ctx, "bogus", nil); !errors.Is(err, nef.ErrUnknownTable) {
		t.Errorf("SaveTable(bogus) error = %v, want ErrUnknownTable", err)
	}
}

func TestBridge_ExportImportReset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	dump, err := env.client.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if len(dump.Tables[nef.TableRoles]) != 6 {
		t.Errorf("exported roles = %d, want 6", len(dump.Tables[nef.TableRoles]))
	}

	in := nef.NewDump()
	in.Tables[nef.TableAbsences] = []nef.Record{{"id": "a1", "date": "2024-01-02"}}
	in.Extra["settings"] = json.RawMessage(`{"theme":"dark"}`)
	if err := env.client.ImportAll(ctx, in); err != nil {
		t.Fatalf("ImportAll() error = %v", err)
	}
	absences, _ := env.store.GetTable(ctx, nef.TableAbsences)
	if len(absences) != 1 {
		t.Errorf("absences after import = %v", absences)
	}
	teams, _ := env.store.GetTable(ctx, nef.TableTeams)
	if len(teams) != 5 {
		t.Errorf("teams touched by import: %d", len(teams))
	}

	if err := env.client.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	absences, _ = env.store.GetTable(ctx, nef.TableAbsences)
	if len(absences) != 0 {
		t.Errorf("absences after reset = %v", absences)
	}
}

func TestBridge_ImportInvalid(t *testing.T) {
	env := newTestEnv(t, nil)
	req, err := http.NewRequest(http.MethodPost, env.client.baseURL+"/db/import", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := env.client.http.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	var env2 Response
	if err := json.NewDecoder(resp.Body).Decode(&env2); err != nil {
		t.Fatal(err)
	}
	if env2.Success || env2.Code != CodeInvalidDump {
		t.Errorf("response = %+v", env2)
	}
}

func TestBridge_Backup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	res, err := env.client.RunBackup(ctx)
	if err != nil || !res.NotConfigured {
		t.Fatalf("RunBackup() = %+v, %v; want NotConfigured", res, err)
	}

	backupDir := filepath.Join(env.dir, "backups", "nef")
	dirRes, err := env.client.SetBackupDir(ctx, backupDir)
	if err != nil {
		t.Fatalf("SetBackupDir() error = %v", err)
	}
	if dirRes.Backup.Status != nef.StatusSuccess {
		t.Errorf("initial backup = %+v", dirRes.Backup)
	}
	if _, err := os.Stat(filepath.Join(backupDir, backup.LatestFileName)); err != nil {
		t.Errorf("latest backup missing: %v", err)
	}

	cfg, err := env.client.BackupConfig(ctx)
	if err != nil || cfg.BackupDirPath() != backupDir || !cfg.AutoBackup {
		t.Errorf("BackupConfig() = %+v, %v", cfg, err)
	}

	off := false
	cfg, err = env.client.PatchBackupConfig(ctx, config.BackupPatch{AutoBackup: &off})
	if err != nil || cfg.AutoBackup || cfg.BackupDirPath() != backupDir {
		t.Errorf("PatchBackupConfig() = %+v, %v", cfg, err)
	}

	res, err = env.client.RunBackup(ctx)
	if err != nil || res.NotConfigured || res.Path == "" {
		t.Errorf("RunBackup() = %+v, %v", res, err)
	}
}

func TestBridge_SaveCertificate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	req := attachment.Request{
		EmployeeName:     "Ana",
		OriginalFileName: "a.pdf",
		EncodedPayload:   "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF")),
		RecordID:         "c1",
	}

	res, err := env.client.SaveCertificate(ctx, req)
	if err != nil || !res.NotConfigured {
		t.Fatalf("SaveCertificate() = %+v, %v; want NotConfigured", res, err)
	}

	dir := t.TempDir()
	if _, err := env.settings.ApplyBackupPatch(config.BackupPatch{BackupDir: &dir}); err != nil {
		t.Fatal(err)
	}
	res, err = env.client.SaveCertificate(ctx, req)
	if err != nil || res.Path == "" {
		t.Fatalf("SaveCertificate() = %+v, %v", res, err)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("saved file missing: %v", err)
	}

	req.EncodedPayload = "nope"
	if _, err := env.client.SaveCertificate(ctx, req); !errors.Is(err, attachment.ErrInvalidPayload) {
		t.Errorf("error = %v, want ErrInvalidPayload", err)
	}
}

func TestBridge_Uploads(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	if err := env.store.SaveTable(ctx, nef.TableVacations, []nef.Record{
		{"id": "v1", "employeeId": "e1", "startDate": "2024-01-10", "endDate": "2024-01-20"},
	}); err != nil {
		t.Fatal(err)
	}

	rep, err := env.client.UploadReport(ctx, cloudsync.ReportRequest{Entity: "vacations", Format: "json"})
	if err != nil {
		t.Fatalf("UploadReport() error = %v", err)
	}
	if rep.Count != 1 || rep.FileID != "Backups/Vacations/vacations-month-2024-01-15.json" {
		t.Errorf("UploadReport() = %+v", rep)
	}

	if _, err := env.client.UploadReport(ctx, cloudsync.ReportRequest{Entity: "payroll"}); err == nil {
		t.Error("UploadReport(payroll) expected error")
	}

	cert, err := env.client.UploadCertificate(ctx, attachment.Request{
		EmployeeName:   "Ana",
		EncodedPayload: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png")),
		RecordID:       7,
	})
	if err != nil || cert.FileID == "" {
		t.Errorf("UploadCertificate() = %+v, %v", cert, err)
	}
}

func TestBridge_NotConfiguredServices(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(s *Services) {
		s.Uploader = nil
		s.Auth = nil
	})

	rep, err := env.client.UploadReport(ctx, cloudsync.ReportRequest{Entity: "absences"})
	if err != nil || !rep.NotConfigured {
		t.Errorf("UploadReport() = %+v, %v; want NotConfigured", rep, err)
	}
	if _, err := env.client.GoogleStatus(ctx); !errors.Is(err, nef.ErrNotConfigured) {
		t.Errorf("GoogleStatus() error = %v, want ErrNotConfigured", err)
	}
	if _, err := env.client.History(ctx, 10); !errors.Is(err, nef.ErrNotConfigured) {
		t.Errorf("History() error = %v, want ErrNotConfigured", err)
	}
}

type panickyStore struct{ *datastore.Store }

func (panickyStore) IsReady(context.Context) (bool, error) { panic("boom") }

func TestBridge_RecoversPanics(t *testing.T) {
	env := newTestEnv(t, func(s *Services) {
		s.Datastore = panickyStore{s.Datastore.(*datastore.Store)}
	})
	_, err := env.client.IsReady(context.Background())
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Status != http.StatusInternalServerError {
		t.Errorf("IsReady() error = %v, want 500 RemoteError", err)
	}
}

type fakeHistory []nef.Outcome

func (h fakeHistory) List(_ context.Context, limit int) ([]nef.Outcome, error) {
	if limit < len(h) {
		return h[:limit], nil
	}
	return h, nil
}

func TestBridge_History(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	env := newTestEnv(t, func(s *Services) {
		s.History = fakeHistory{
			{Operation: "backup", Status: nef.StatusError, Err: errors.New("disk full"), At: at},
			{Operation: "forward", Target: nef.TableTeams, Status: nef.StatusSuccess, At: at},
		}
	})

	got, err := env.client.History(context.Background(), 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 || got[0].ErrorMessage() != "disk full" || !got[0].At.Equal(at) {
		t.Errorf("History() = %+v", got)
	}
}

func TestBridge_AdapterOverTransport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	clock := testutil.FixedClock()
	obs := testutil.NewRecordingObserver()

	backend := storage.SelectBackend(ctx, env.client, nil)
	if !backend.Desktop() {
		t.Fatal("SelectBackend() chose local-only with a reachable server")
	}
	local := storage.NewTableStore(kvstore.NewMemoryStore(0), obs, clock)
	adapter := storage.NewAdapter(local, backend, obs, clock)
	adapter.Hydrate(ctx)
	<-adapter.Ready()

	if got := adapter.GetTable(nef.TableTeams); len(got) != 5 {
		t.Errorf("hydrated teams = %d, want 5", len(got))
	}

	adapter.Persist(ctx, nef.TableEmployees, []nef.Record{{"id": "e1", "name": "Ana"}})
	if err := adapter.Close(); err != nil {
		t.Fatal(err)
	}
	rows, _ := env.store.GetTable(ctx, nef.TableEmployees)
	if len(rows) != 1 {
		t.Errorf("server employees = %v", rows)
	}
}

func TestSelectBackend_Unreachable(t *testing.T) {
	client := NewClient("127.0.0.1:1", &http.Client{Timeout: time.Second})
	if storage.SelectBackend(context.Background(), client, nil).Desktop() {
		t.Error("SelectBackend() chose desktop for an unreachable server")
	}
}
