package cloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
)

// fakeDrive serves the subset of the Drive v3 files API the store uses.
type fakeDrive struct {
	mu       sync.Mutex
	existing map[string]string // folder name -> id
	queries  []string
	created  []string
	uploaded string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.Contains(r.URL.Path, "/upload/"):
		body, _ := io.ReadAll(r.Body)
		f.uploaded = string(body)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":          "file-1",
			"name":        "report.csv",
			"webViewLink": "https://drive.example/file-1",
		})
	case r.Method == http.MethodGet:
		q := r.URL.Query().Get("q")
		f.queries = append(f.queries, q)
		files := []map[string]string{}
		for name, id := range f.existing {
			if strings.Contains(q, "name = '"+name+"'") {
				files = append(files, map[string]string{"id": id, "name": name})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})
	case r.Method == http.MethodPost:
		var file struct {
			Name     string   `json:"name"`
			MimeType string   `json:"mimeType"`
			Parents  []string `json:"parents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&file)
		f.created = append(f.created, file.Name)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "new-" + file.Name, "name": file.Name})
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func newTestDriveStore(t *testing.T, fake *fakeDrive) *DriveStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewDriveStore(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewDriveStore() error = %v", err)
	}
	return store
}

func TestDriveStore_EnsureFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses existing folder", func(t *testing.T) {
		fake := &fakeDrive{existing: map[string]string{"Backups": "folder-9"}}
		store := newTestDriveStore(t, fake)

		id, err := store.EnsureFolder(ctx, "root-1", "Backups")
		if err != nil {
			t.Fatalf("EnsureFolder() error = %v", err)
		}
		if id != "folder-9" {
			t.Errorf("id = %q, want folder-9", id)
		}
		if len(fake.created) != 0 {
			t.Errorf("created = %v, want none", fake.created)
		}
		if len(fake.queries) != 1 || !strings.Contains(fake.queries[0], "'root-1' in parents") {
			t.Errorf("queries = %v", fake.queries)
		}
	})

	t.Run("creates missing folder", func(t *testing.T) {
		fake := &fakeDrive{existing: map[string]string{}}
		store := newTestDriveStore(t, fake)

		id, err := store.EnsureFolder(ctx, "root-1", "Ana")
		if err != nil {
			t.Fatalf("EnsureFolder() error = %v", err)
		}
		if id != "new-Ana" {
			t.Errorf("id = %q, want new-Ana", id)
		}
	})
}

func TestDriveStore_Upload(t *testing.T) {
	fake := &fakeDrive{}
	store := newTestDriveStore(t, fake)

	obj, err := store.Upload(context.Background(), "folder-1", "report.csv", "text/csv", strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if obj.ID != "file-1" || obj.Link != "https://drive.example/file-1" {
		t.Errorf("object = %+v", obj)
	}
	if !strings.Contains(fake.uploaded, "a,b\n1,2\n") {
		t.Errorf("uploaded body missing content: %q", fake.uploaded)
	}
}

func TestFolderQuery(t *testing.T) {
	got := folderQuery("p1", "D'Ávila")
	want := `name = 'D\'Ávila' and mimeType = 'application/vnd.google-apps.folder' and 'p1' in parents and trashed = false`
	if got != want {
		t.Errorf("folderQuery() =\n%s\nwant\n%s", got, want)
	}
}
