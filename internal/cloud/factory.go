package cloud

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"

	"extranef/internal/config"
	"extranef/internal/nef"
)

// GoogleSettings supplies the user's Google Drive settings.
type GoogleSettings interface {
	Google() *config.GoogleConfig
}

// HTTPClientSource returns an HTTP client authorized for Google APIs, or an
// error wrapping nef.ErrNotConfigured when the user has not signed in.
type HTTPClientSource interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// StaticProvider always resolves to the same store and root folder.
type StaticProvider struct {
	Store nef.CloudStore
	Root  string
}

func (p StaticProvider) CloudStore(context.Context) (nef.CloudStore, string, error) {
	return p.Store, p.Root, nil
}

// DisabledProvider never resolves a store.
type DisabledProvider struct{}

func (DisabledProvider) CloudStore(context.Context) (nef.CloudStore, string, error) {
	return nil, "", fmt.Errorf("cloud uploads disabled: %w", nef.ErrNotConfigured)
}

// DriveProvider builds a DriveStore per call from the current credentials,
// rooted at the folder id in the user's Google settings.
type DriveProvider struct {
	settings GoogleSettings
	auth     HTTPClientSource
	opts     []option.ClientOption
}

// NewDriveProvider creates a DriveProvider. Extra options are passed to the
// Drive service after the authorized client.
func NewDriveProvider(settings GoogleSettings, auth HTTPClientSource, opts ...option.ClientOption) *DriveProvider {
	return &DriveProvider{settings: settings, auth: auth, opts: opts}
}

func (p *DriveProvider) CloudStore(ctx context.Context) (nef.CloudStore, string, error) {
	g := p.settings.Google()
	if g == nil || g.FolderID == "" {
		return nil, "", fmt.Errorf("google drive folder: %w", nef.ErrNotConfigured)
	}
	client, err := p.auth.HTTPClient(ctx)
	if err != nil {
		return nil, "", err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, p.opts...)
	store, err := NewDriveStore(ctx, opts...)
	if err != nil {
		return nil, "", err
	}
	return store, g.FolderID, nil
}

// NewProviderFromConfig creates a CloudProvider based on the cloud config
// type. settings and auth are only used by the gdrive type.
func NewProviderFromConfig(ctx context.Context, cfg config.CloudConfig, settings GoogleSettings, auth HTTPClientSource) (nef.CloudProvider, error) {
	switch cfg.Type {
	case "gdrive", "":
		if settings == nil || auth == nil {
			return nil, fmt.Errorf("gdrive cloud store requires google settings and credentials")
		}
		return NewDriveProvider(settings, auth), nil
	case "s3":
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return StaticProvider{Store: store, Root: store.Root()}, nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem cloud store requires fs_root to be set")
		}
		store, err := NewFileSystemStore(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return StaticProvider{Store: store}, nil
	case "memory":
		return StaticProvider{Store: NewMemoryStore()}, nil
	case "none":
		return DisabledProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown cloud store type: %s", cfg.Type)
	}
}
