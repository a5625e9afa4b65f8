package nef

import (
	"context"
	"io"
)

// RemoteObject identifies an uploaded cloud object.
type RemoteObject struct {
	ID   string
	Name string
	Link string
}

// CloudStore provides an interface for cloud object storage backends
// organized in folders.
type CloudStore interface {
	// EnsureFolder returns the id of the folder named name directly under
	// parentID, creating it if no folder with exactly that name exists.
	EnsureFolder(ctx context.Context, parentID, name string) (string, error)

	// Upload stores the content of r as a new object named name in folder
	// parentID.
	Upload(ctx context.Context, parentID, name, mimeType string, r io.Reader) (*RemoteObject, error)
}

// CloudProvider resolves the cloud store to upload to at call time, together
// with the id of the root folder uploads are organized under. It returns
// ErrNotConfigured when credentials or the root folder are missing.
type CloudProvider interface {
	CloudStore(ctx context.Context) (store CloudStore, rootID string, err error)
}
