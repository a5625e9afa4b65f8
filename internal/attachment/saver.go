package attachment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"extranef/internal/fsutil"
	"extranef/internal/nef"
)

// CertificatesDir is the folder under the backup directory that holds
// certificate attachments, one subfolder per employee.
const CertificatesDir = "Certificates"

// Request describes one attachment to store. RecordID accepts numeric and
// string ids.
type Request struct {
	EmployeeName     string `json:"employeeName"`
	OriginalFileName string `json:"originalFileName"`
	EncodedPayload   string `json:"encodedPayload"`
	RecordID         any    `json:"recordId"`
}

// Result is the outcome of a filesystem save. NotConfigured is set, with no
// error, when no backup directory is configured.
type Result struct {
	Path          string `json:"path,omitempty"`
	NotConfigured bool   `json:"notConfigured,omitempty"`
}

// Settings supplies the backup directory.
type Settings interface {
	BackupSettings() (dir string, autoBackup bool)
}

// Saver writes certificate attachments into the backup directory.
type Saver struct {
	settings Settings
	logger   nef.Logger
	clock    nef.Clock
}

// NewSaver creates a Saver.
func NewSaver(settings Settings, logger nef.Logger, clock nef.Clock) *Saver {
	if logger == nil {
		logger = nef.NewNopLogger()
	}
	if clock == nil {
		clock = nef.RealClock{}
	}
	return &Saver{settings: settings, logger: logger, clock: clock}
}

// SaveCertificate decodes req's payload and writes it to
// <backupDir>/Certificates/<employee>/<ts>-<id>-<name><ext>.
func (s *Saver) SaveCertificate(ctx context.Context, req Request) (*Result, error) {
	dir, _ := s.settings.BackupSettings()
	if dir == "" {
		return &Result{NotConfigured: true}, nil
	}

	payload, err := ParsePayload(req.EncodedPayload)
	if err != nil {
		return nil, err
	}

	folder := filepath.Join(dir, CertificatesDir, FolderName(req.EmployeeName))
	name := BuildFileName(s.clock.Now(), nef.IDString(req.RecordID), req.OriginalFileName, payload.MediaType)
	path := filepath.Join(folder, name)

	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("attachment path %s escapes backup directory", path)
	}

	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("creating attachment folder: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, payload.Data, 0644); err != nil {
		return nil, fmt.Errorf("writing attachment: %w", err)
	}

	s.logger.Info("certificate saved", "path", path, "bytes", len(payload.Data))
	return &Result{Path: path}, nil
}
