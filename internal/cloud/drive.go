package cloud

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"extranef/internal/nef"
)

// FolderMimeType marks a Drive file as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// DriveStore stores objects in Google Drive. Ids are Drive file ids.
type DriveStore struct {
	svc *drive.Service
}

// NewDriveStore creates a DriveStore. Callers pass option.WithHTTPClient with
// an authorized client.
func NewDriveStore(ctx context.Context, opts ...option.ClientOption) (*DriveStore, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &DriveStore{svc: svc}, nil
}

// EnsureFolder looks up a non-trashed folder named exactly name in parentID
// and creates it when none exists.
func (d *DriveStore) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	list, err := d.svc.Files.List().
		Q(folderQuery(parentID, name)).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("listing drive folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	created, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	}).Fields("id, name").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating drive folder %q: %w", name, err)
	}
	return created.Id, nil
}

// Upload creates a new file in parentID with the content of r.
func (d *DriveStore) Upload(ctx context.Context, parentID, name, mimeType string, r io.Reader) (*nef.RemoteObject, error) {
	f, err := d.svc.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).Media(r, googleapi.ContentType(mimeType)).
		Fields("id, name, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("uploading %q to drive: %w", name, err)
	}
	return &nef.RemoteObject{ID: f.Id, Name: f.Name, Link: f.WebViewLink}, nil
}

func folderQuery(parentID, name string) string {
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), FolderMimeType, escapeQuery(parentID))
}

// escapeQuery escapes a value for a single-quoted Drive query literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

var _ nef.CloudStore = (*DriveStore)(nil)
