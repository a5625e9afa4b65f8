// Package cloudsync uploads certificate attachments and period reports to
// the configured cloud store.
package cloudsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"extranef/internal/attachment"
	"extranef/internal/nef"
	"extranef/internal/report"
)

// Outcome operations reported by the pipeline.
const (
	OpCloudCertificate = "cloud_certificate"
	OpCloudReport      = "cloud_report"
	OpAttachmentSave   = "attachment_save"
)

// BackupsFolder holds report exports under the cloud root.
const BackupsFolder = "Backups"

// TableReader reads datastore tables.
type TableReader interface {
	GetTable(ctx context.Context, name string) ([]nef.Record, error)
}

// CertificateUpload is the result of a certificate upload.
type CertificateUpload struct {
	FileID        string `json:"fileId,omitempty"`
	WebViewLink   string `json:"webViewLink,omitempty"`
	NotConfigured bool   `json:"notConfigured,omitempty"`
}

// ReportUpload is the result of a report upload.
type ReportUpload struct {
	FileID        string `json:"fileId,omitempty"`
	WebViewLink   string `json:"webViewLink,omitempty"`
	Count         int    `json:"count"`
	NotConfigured bool   `json:"notConfigured,omitempty"`
}

// ReportRequest selects a report to upload. Empty period and format mean
// month and csv.
type ReportRequest struct {
	Entity string `json:"entity"`
	Period string `json:"period"`
	Format string `json:"format"`
}

// Pipeline uploads attachments and reports. Missing configuration is never
// retried: the call returns a NotConfigured result straight away.
type Pipeline struct {
	provider nef.CloudProvider
	tables   TableReader
	saver    *attachment.Saver
	observer nef.Observer
	logger   nef.Logger
	clock    nef.Clock
}

// NewPipeline creates a Pipeline. saver may be nil when only cloud uploads
// are needed.
func NewPipeline(provider nef.CloudProvider, tables TableReader, saver *attachment.Saver, observer nef.Observer, logger nef.Logger, clock nef.Clock) *Pipeline {
	if observer == nil {
		observer = nef.NopObserver{}
	}
	if logger == nil {
		logger = nef.NewNopLogger()
	}
	if clock == nil {
		clock = nef.RealClock{}
	}
	return &Pipeline{
		provider: provider,
		tables:   tables,
		saver:    saver,
		observer: observer,
		logger:   logger,
		clock:    clock,
	}
}

// store resolves the cloud store. notConfigured is true when the provider
// reported missing prerequisites.
func (p *Pipeline) store(ctx context.Context) (store nef.CloudStore, root string, notConfigured bool, err error) {
	store, root, err = p.provider.CloudStore(ctx)
	if errors.Is(err, nef.ErrNotConfigured) {
		return nil, "", true, nil
	}
	return store, root, false, err
}

func (p *Pipeline) report(op, target, status, detail string, err error) {
	if err != nil {
		status = nef.StatusError
	}
	p.observer.Observe(nef.Outcome{
		Operation: op,
		Target:    target,
		Status:    status,
		Detail:    detail,
		Err:       err,
		At:        p.clock.Now(),
	})
}

// UploadCertificate uploads req's payload to <root>/<employee>/ as
// <ts>-<id>-<base><ext>.
func (p *Pipeline) UploadCertificate(ctx context.Context, req attachment.Request) (*CertificateUpload, error) {
	target := attachment.FolderName(req.EmployeeName)

	store, root, notConfigured, err := p.store(ctx)
	if notConfigured {
		p.report(OpCloudCertificate, target, nef.StatusNotConfigured, "", nil)
		return &CertificateUpload{NotConfigured: true}, nil
	}
	if err != nil {
		p.report(OpCloudCertificate, target, "", "", err)
		return nil, err
	}

	obj, err := p.uploadCertificate(ctx, store, root, req)
	if err != nil {
		p.report(OpCloudCertificate, target, "", "", err)
		return nil, err
	}
	p.report(OpCloudCertificate, target, nef.StatusSuccess, obj.Link, nil)
	return &CertificateUpload{FileID: obj.ID, WebViewLink: obj.Link}, nil
}

func (p *Pipeline) uploadCertificate(ctx context.Context, store nef.CloudStore, root string, req attachment.Request) (*nef.RemoteObject, error) {
	payload, err := attachment.ParsePayload(req.EncodedPayload)
	if err != nil {
		return nil, err
	}
	folderID, err := store.EnsureFolder(ctx, root, attachment.FolderName(req.EmployeeName))
	if err != nil {
		return nil, fmt.Errorf("ensuring employee folder: %w", err)
	}
	name := attachment.BuildFileName(p.clock.Now(), nef.IDString(req.RecordID), req.OriginalFileName, payload.MediaType)
	return store.Upload(ctx, folderID, name, attachment.MimeType(payload.MediaType), bytes.NewReader(payload.Data))
}

// UploadReport filters the entity's rows to the period containing now,
// encodes them and uploads the file to <root>/Backups/<Absences|Vacations>/.
func (p *Pipeline) UploadReport(ctx context.Context, req ReportRequest) (*ReportUpload, error) {
	entity, err := report.ParseEntity(req.Entity)
	if err != nil {
		return nil, err
	}
	period, err := report.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	target := string(entity)

	store, root, notConfigured, err := p.store(ctx)
	if notConfigured {
		p.report(OpCloudReport, target, nef.StatusNotConfigured, "", nil)
		return &ReportUpload{NotConfigured: true}, nil
	}
	if err != nil {
		p.report(OpCloudReport, target, "", "", err)
		return nil, err
	}

	res, err := p.uploadReport(ctx, store, root, entity, period, format)
	if err != nil {
		p.report(OpCloudReport, target, "", "", err)
		return nil, err
	}
	p.report(OpCloudReport, target, nef.StatusSuccess, fmt.Sprintf("%d rows", res.Count), nil)
	return res, nil
}

func (p *Pipeline) uploadReport(ctx context.Context, store nef.CloudStore, root string, entity report.Entity, period report.Period, format report.Format) (*ReportUpload, error) {
	entityRows, err := p.tables.GetTable(ctx, entity.Table())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", entity.Table(), err)
	}
	employees, err := p.tables.GetTable(ctx, nef.TableEmployees)
	if err != nil {
		return nil, fmt.Errorf("reading employees: %w", err)
	}

	now := p.clock.Now()
	rows := report.Rows(entity, period, now, entityRows, employees)
	data, err := report.Encode(rows, format)
	if err != nil {
		return nil, err
	}

	backups, err := store.EnsureFolder(ctx, root, BackupsFolder)
	if err != nil {
		return nil, fmt.Errorf("ensuring backups folder: %w", err)
	}
	folderID, err := store.EnsureFolder(ctx, backups, entity.FolderName())
	if err != nil {
		return nil, fmt.Errorf("ensuring %s folder: %w", entity.FolderName(), err)
	}

	obj, err := store.Upload(ctx, folderID, report.FileName(entity, period, format, now), format.MimeType(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	p.logger.Info("report uploaded", "entity", entity, "period", period, "rows", len(rows), "id", obj.ID)
	return &ReportUpload{FileID: obj.ID, WebViewLink: obj.Link, Count: len(rows)}, nil
}

// EverywhereResult carries the independent results of a filesystem save and
// a cloud upload of the same certificate.
type EverywhereResult struct {
	Local    *attachment.Result `json:"local,omitempty"`
	LocalErr string             `json:"localError,omitempty"`
	Cloud    *CertificateUpload `json:"cloud,omitempty"`
	CloudErr string             `json:"cloudError,omitempty"`
}

// SaveCertificateEverywhere saves the certificate to the backup directory
// and uploads it to the cloud concurrently. A failure of one never affects
// the other.
func (p *Pipeline) SaveCertificateEverywhere(ctx context.Context, req attachment.Request) EverywhereResult {
	var (
		res EverywhereResult
		wg  sync.WaitGroup
	)

	if p.saver != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local, err := p.saver.SaveCertificate(ctx, req)
			target := attachment.FolderName(req.EmployeeName)
			switch {
			case err != nil:
				res.LocalErr = err.Error()
				p.report(OpAttachmentSave, target, "", "", err)
			case local.NotConfigured:
				res.Local = local
				p.report(OpAttachmentSave, target, nef.StatusNotConfigured, "", nil)
			default:
				res.Local = local
				p.report(OpAttachmentSave, target, nef.StatusSuccess, local.Path, nil)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		cloud, err := p.UploadCertificate(ctx, req)
		if err != nil {
			res.CloudErr = err.Error()
			return
		}
		res.Cloud = cloud
	}()

	wg.Wait()
	return res
}
