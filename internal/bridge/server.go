// Package bridge exposes the privileged process's datastore, backup,
// attachment and cloud operations over a loopback HTTP JSON transport, and
// provides the matching client.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"extranef/internal/attachment"
	"extranef/internal/cloudsync"
	"extranef/internal/config"
	"extranef/internal/gauth"
	"extranef/internal/nef"
	"extranef/internal/report"
)

// MaxBodyBytes bounds request bodies; attachments travel base64-encoded.
const MaxBodyBytes = 64 << 20

// Datastore is the privileged datastore. datastore.Store implements it.
type Datastore interface {
	nef.Bridge
	Reset(ctx context.Context) error
	BackupNow(ctx context.Context) nef.Outcome
	AutoBackup(ctx context.Context) nef.Outcome
}

// Settings reads and patches the user's backup settings.
type Settings interface {
	Get() config.UserConfig
	ApplyBackupPatch(p config.BackupPatch) (config.UserConfig, error)
}

// CertificateSaver writes certificate attachments to the backup directory.
type CertificateSaver interface {
	SaveCertificate(ctx context.Context, req attachment.Request) (*attachment.Result, error)
}

// Uploader sends certificates and reports to the cloud.
type Uploader interface {
	UploadCertificate(ctx context.Context, req attachment.Request) (*cloudsync.CertificateUpload, error)
	UploadReport(ctx context.Context, req cloudsync.ReportRequest) (*cloudsync.ReportUpload, error)
}

// GoogleAuth runs the Google sign-in.
type GoogleAuth interface {
	State() gauth.State
	Configure(g config.GoogleConfig) error
	Login(ctx context.Context, open func(url string) error) error
}

// History lists recorded outcomes, newest first.
type History interface {
	List(ctx context.Context, limit int) ([]nef.Outcome, error)
}

// Services groups the components the server fronts. Nil optional members
// make their routes answer not configured.
type Services struct {
	Datastore Datastore
	Settings  Settings
	Saver     CertificateSaver
	Uploader  Uploader
	Auth      GoogleAuth
	History   History
	// OpenURL opens the consent page in a browser.
	OpenURL func(url string) error
}

// Server handles bridge requests.
type Server struct {
	svc    Services
	logger nef.Logger
}

// NewServer creates a Server.
func NewServer(svc Services, logger nef.Logger) *Server {
	if logger == nil {
		logger = nef.NewNopLogger()
	}
	return &Server{svc: svc, logger: logger}
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer, s.requestLogger)

	r.Route("/db", func(r chi.Router) {
		r.Get("/ready", s.handleReady)
		r.Get("/tables/{name}", s.handleGetTable)
		r.Put("/tables/{name}", s.handleSaveTable)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Post("/reset", s.handleReset)
	})
	r.Route("/backup", func(r chi.Router) {
		r.Get("/config", s.handleGetBackupConfig)
		r.Patch("/config", s.handlePatchBackupConfig)
		r.Post("/dir", s.handleSetBackupDir)
		r.Post("/run", s.handleRunBackup)
	})
	r.Post("/attachments/certificates", s.handleSaveCertificate)
	r.Route("/gdrive", func(r chi.Router) {
		r.Get("/status", s.handleGoogleStatus)
		r.Post("/configure", s.handleGoogleConfigure)
		r.Post("/login", s.handleGoogleLogin)
		r.Post("/certificates", s.handleUploadCertificate)
		r.Post("/reports", s.handleUploadReport)
	})
	r.Get("/history", s.handleHistory)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, fmt.Errorf("%w: no route %s %s", errBadRequest, r.Method, r.URL.Path))
	})
	return r
}

// ListenAndServe serves the router on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("bridge listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("bridge handler panicked", "path", r.URL.Path, "panic", rec)
				s.fail(w, fmt.Errorf("internal error: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("bridge request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("writing bridge response", "error", err)
	}
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	resp := Response{Success: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			s.fail(w, fmt.Errorf("encoding response: %w", err))
			return
		}
		resp.Data = raw
	}
	s.write(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := classify(err)
	s.write(w, status, Response{
		Error:         err.Error(),
		Code:          code,
		NotConfigured: code == CodeNotConfigured,
	})
}

// notConfigured answers a call whose prerequisites are missing. data may
// carry the operation's result.
func (s *Server) notConfigured(w http.ResponseWriter, what string, data any) {
	resp := Response{
		Error:         what + " not configured",
		Code:          CodeNotConfigured,
		NotConfigured: true,
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			resp.Data = raw
		}
	}
	s.write(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready, err := s.svc.Datastore.IsReady(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, ReadyResult{Ready: ready})
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.Datastore.GetTable(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, rows)
}

func (s *Server) handleSaveTable(w http.ResponseWriter, r *http.Request) {
	var rows []nef.Record
	if err := decode(w, r, &rows); err != nil {
		s.fail(w, err)
		return
	}
	if rows == nil {
		rows = []nef.Record{}
	}
	if err := s.svc.Datastore.SaveTable(r.Context(), chi.URLParam(r, "name"), rows); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	dump, err := s.svc.Datastore.ExportAll(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, dump)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var dump nef.Dump
	if err := decode(w, r, &dump); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", nef.ErrInvalidDump, err))
		return
	}
	if err := s.svc.Datastore.ImportAll(r.Context(), &dump); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Datastore.Reset(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handleGetBackupConfig(w http.ResponseWriter, r *http.Request) {
	s.ok(w, s.svc.Settings.Get())
}

// handlePatchBackupConfig applies a partial update. Turning autoBackup on
// runs a backup right away.
func (s *Server) handlePatchBackupConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.BackupPatch
	if err := decode(w, r, &patch); err != nil {
		s.fail(w, err)
		return
	}
	cfg, err := s.svc.Settings.ApplyBackupPatch(patch)
	if err != nil {
		s.fail(w, err)
		return
	}
	if patch.AutoBackup != nil && *patch.AutoBackup {
		s.svc.Datastore.AutoBackup(r.Context())
	}
	s.ok(w, cfg)
}

// handleSetBackupDir creates the directory if needed, stores it and runs an
// initial backup.
func (s *Server) handleSetBackupDir(w http.ResponseWriter, r *http.Request) {
	var req BackupDirRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Path == "" {
		s.fail(w, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}
	if err := os.MkdirAll(req.Path, 0755); err != nil {
		s.fail(w, fmt.Errorf("creating backup directory: %w", err))
		return
	}
	if _, err := s.svc.Settings.ApplyBackupPatch(config.BackupPatch{BackupDir: &req.Path}); err != nil {
		s.fail(w, err)
		return
	}
	o := s.svc.Datastore.AutoBackup(r.Context())
	s.ok(w, BackupDirResult{Path: req.Path, Backup: NewOutcomeDTO(o)})
}

func (s *Server) handleRunBackup(w http.ResponseWriter, r *http.Request) {
	o := s.svc.Datastore.BackupNow(r.Context())
	switch o.Status {
	case nef.StatusNotConfigured:
		s.notConfigured(w, "backup directory", BackupRunResult{NotConfigured: true})
	case nef.StatusSuccess:
		s.ok(w, BackupRunResult{Path: o.Detail})
	default:
		err := o.Err
		if err == nil {
			err = fmt.Errorf("backup %s", o.Status)
		}
		s.fail(w, err)
	}
}

func (s *Server) handleSaveCertificate(w http.ResponseWriter, r *http.Request) {
	var req attachment.Request
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if s.svc.Saver == nil {
		s.notConfigured(w, "attachments", &attachment.Result{NotConfigured: true})
		return
	}
	res, err := s.svc.Saver.SaveCertificate(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if res.NotConfigured {
		s.notConfigured(w, "backup directory", res)
		return
	}
	s.ok(w, res)
}

func (s *Server) handleGoogleStatus(w http.ResponseWriter, r *http.Request) {
	if s.svc.Auth == nil {
		s.notConfigured(w, "google drive", nil)
		return
	}
	s.ok(w, GoogleStatus{State: string(s.svc.Auth.State())})
}

func (s *Server) handleGoogleConfigure(w http.ResponseWriter, r *http.Request) {
	var g config.GoogleConfig
	if err := decode(w, r, &g); err != nil {
		s.fail(w, err)
		return
	}
	if s.svc.Auth == nil {
		s.notConfigured(w, "google drive", nil)
		return
	}
	if err := s.svc.Auth.Configure(g); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.ok(w, GoogleStatus{State: string(s.svc.Auth.State())})
}

// handleGoogleLogin blocks until the consent flow completes or the request
// is cancelled.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.svc.Auth == nil {
		s.notConfigured(w, "google drive", nil)
		return
	}
	if err := s.svc.Auth.Login(r.Context(), s.svc.OpenURL); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, GoogleStatus{State: string(s.svc.Auth.State())})
}

func (s *Server) handleUploadCertificate(w http.ResponseWriter, r *http.Request) {
	var req attachment.Request
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if s.svc.Uploader == nil {
		s.notConfigured(w, "google drive", &cloudsync.CertificateUpload{NotConfigured: true})
		return
	}
	res, err := s.svc.Uploader.UploadCertificate(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if res.NotConfigured {
		s.notConfigured(w, "google drive", res)
		return
	}
	s.ok(w, res)
}

func (s *Server) handleUploadReport(w http.ResponseWriter, r *http.Request) {
	var req cloudsync.ReportRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := validateReport(req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if s.svc.Uploader == nil {
		s.notConfigured(w, "google drive", &cloudsync.ReportUpload{NotConfigured: true})
		return
	}
	res, err := s.svc.Uploader.UploadReport(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if res.NotConfigured {
		s.notConfigured(w, "google drive", res)
		return
	}
	s.ok(w, res)
}

func validateReport(req cloudsync.ReportRequest) error {
	if _, err := report.ParseEntity(req.Entity); err != nil {
		return err
	}
	if _, err := report.ParsePeriod(req.Period); err != nil {
		return err
	}
	_, err := report.ParseFormat(req.Format)
	return err
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.svc.History == nil {
		s.notConfigured(w, "journal", nil)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, v))
			return
		}
		limit = n
	}
	outcomes, err := s.svc.History.List(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]OutcomeDTO, len(outcomes))
	for i, o := range outcomes {
		out[i] = NewOutcomeDTO(o)
	}
	s.ok(w, out)
}
