package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"extranef/internal/attachment"
	"extranef/internal/cloudsync"
	"extranef/internal/config"
	"extranef/internal/nef"
)

// Client talks to a bridge Server. It implements nef.Bridge so the storage
// adapter can use the privileged process as its canonical store.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at addr ("host:port" or a full
// URL). A nil httpClient uses one with a 30 second timeout.
func NewClient(addr string, httpClient *http.Client) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(addr, "/"), http: httpClient}
}

// RemoteError is a failure reported by the server. It unwraps to the
// matching sentinel error when the server sent a known code.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: %s (%d)", e.Message, e.Status)
}

func (e *RemoteError) Unwrap() error {
	return codeErrors[e.Code]
}

// do sends body as JSON and decodes the envelope's data into out. A
// not-configured reply still decodes its data and returns an error wrapping
// nef.ErrNotConfigured.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding bridge response (%d): %w", resp.StatusCode, err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding bridge data: %w", err)
		}
	}
	if env.Success {
		return nil
	}
	code := env.Code
	if env.NotConfigured {
		code = CodeNotConfigured
	}
	return &RemoteError{Status: resp.StatusCode, Code: code, Message: env.Error}
}

func (c *Client) IsReady(ctx context.Context) (bool, error) {
	var res ReadyResult
	if err := c.do(ctx, http.MethodGet, "/db/ready", nil, &res); err != nil {
		return false, err
	}
	return res.Ready, nil
}

func (c *Client) GetTable(ctx context.Context, name string) ([]nef.Record, error) {
	var rows []nef.Record
	if err := c.do(ctx, http.MethodGet, "/db/tables/"+url.PathEscape(name), nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []nef.Record{}
	}
	return rows, nil
}

func (c *Client) SaveTable(ctx context.Context, name string, rows []nef.Record) error {
	if rows == nil {
		rows = []nef.Record{}
	}
	return c.do(ctx, http.MethodPut, "/db/tables/"+url.PathEscape(name), rows, nil)
}

func (c *Client) ExportAll(ctx context.Context) (*nef.Dump, error) {
	dump := nef.NewDump()
	if err := c.do(ctx, http.MethodGet, "/db/export", nil, dump); err != nil {
		return nil, err
	}
	return dump, nil
}

func (c *Client) ImportAll(ctx context.Context, dump *nef.Dump) error {
	if dump == nil {
		return nef.ErrInvalidDump
	}
	return c.do(ctx, http.MethodPost, "/db/import", dump, nil)
}

// Reset clears the datastore and restores the seeded reference rows.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/db/reset", nil, nil)
}

// BackupConfig returns the user's backup settings.
func (c *Client) BackupConfig(ctx context.Context) (*config.UserConfig, error) {
	var cfg config.UserConfig
	if err := c.do(ctx, http.MethodGet, "/backup/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PatchBackupConfig applies a partial update and returns the new settings.
func (c *Client) PatchBackupConfig(ctx context.Context, p config.BackupPatch) (*config.UserConfig, error) {
	var cfg config.UserConfig
	if err := c.do(ctx, http.MethodPatch, "/backup/config", p, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetBackupDir sets the backup directory and runs an initial backup.
func (c *Client) SetBackupDir(ctx context.Context, path string) (*BackupDirResult, error) {
	var res BackupDirResult
	if err := c.do(ctx, http.MethodPost, "/backup/dir", BackupDirRequest{Path: path}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RunBackup writes backup copies now. NotConfigured is set when no backup
// directory is configured.
func (c *Client) RunBackup(ctx context.Context) (*BackupRunResult, error) {
	var res BackupRunResult
	err := c.do(ctx, http.MethodPost, "/backup/run", nil, &res)
	if errors.Is(err, nef.ErrNotConfigured) {
		return &BackupRunResult{NotConfigured: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SaveCertificate saves an attachment in the backup directory.
func (c *Client) SaveCertificate(ctx context.Context, req attachment.Request) (*attachment.Result, error) {
	var res attachment.Result
	err := c.do(ctx, http.MethodPost, "/attachments/certificates", req, &res)
	if errors.Is(err, nef.ErrNotConfigured) {
		return &attachment.Result{NotConfigured: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GoogleStatus returns the sign-in state.
func (c *Client) GoogleStatus(ctx context.Context) (string, error) {
	var st GoogleStatus
	if err := c.do(ctx, http.MethodGet, "/gdrive/status", nil, &st); err != nil {
		return "", err
	}
	return st.State, nil
}

// ConfigureGoogle stores the OAuth client and Drive folder.
func (c *Client) ConfigureGoogle(ctx context.Context, g config.GoogleConfig) (string, error) {
	var st GoogleStatus
	if err := c.do(ctx, http.MethodPost, "/gdrive/configure", g, &st); err != nil {
		return "", err
	}
	return st.State, nil
}

// GoogleLogin runs the consent flow on the server's machine and waits for
// it to finish.
func (c *Client) GoogleLogin(ctx context.Context) (string, error) {
	var st GoogleStatus
	if err := c.do(ctx, http.MethodPost, "/gdrive/login", nil, &st); err != nil {
		return "", err
	}
	return st.State, nil
}

// UploadCertificate uploads an attachment to the cloud.
func (c *Client) UploadCertificate(ctx context.Context, req attachment.Request) (*cloudsync.CertificateUpload, error) {
	var res cloudsync.CertificateUpload
	err := c.do(ctx, http.MethodPost, "/gdrive/certificates", req, &res)
	if errors.Is(err, nef.ErrNotConfigured) {
		return &cloudsync.CertificateUpload{NotConfigured: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadReport uploads a period report to the cloud.
func (c *Client) UploadReport(ctx context.Context, req cloudsync.ReportRequest) (*cloudsync.ReportUpload, error) {
	var res cloudsync.ReportUpload
	err := c.do(ctx, http.MethodPost, "/gdrive/reports", req, &res)
	if errors.Is(err, nef.ErrNotConfigured) {
		return &cloudsync.ReportUpload{NotConfigured: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// History returns up to limit recorded outcomes, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]nef.Outcome, error) {
	var dtos []OutcomeDTO
	if err := c.do(ctx, http.MethodGet, "/history?limit="+strconv.Itoa(limit), nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]nef.Outcome, len(dtos))
	for i, d := range dtos {
		out[i] = d.Outcome()
	}
	return out, nil
}

var _ nef.Bridge = (*Client)(nil)
