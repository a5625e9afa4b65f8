package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"extranef/internal/config"
	"extranef/internal/nef"
)

func TestSQLiteJournal_ObserveAndList(t *testing.T) {
	j, err := NewSQLiteJournal(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteJournal() error = %v", err)
	}
	defer j.Close()

	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	j.Observe(nef.Outcome{Operation: "backup", Target: "/b", Status: nef.StatusSuccess, At: at})
	j.Observe(nef.Outcome{Operation: "forward", Target: "employees", Status: nef.StatusError, Err: errors.New("desktop unreachable"), At: at.Add(time.Second)})
	j.Observe(nef.Outcome{Operation: "cloud_report", Status: nef.StatusNotConfigured, Detail: "no folder", At: at.Add(2 * time.Second)})

	got, err := j.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List() len = %d, want 3", len(got))
	}
	if got[0].Operation != "cloud_report" || got[0].Detail != "no folder" {
		t.Errorf("newest = %+v, want cloud_report", got[0])
	}
	if got[1].Err == nil || got[1].Err.Error() != "desktop unreachable" {
		t.Errorf("forward error = %v", got[1].Err)
	}
	if !got[2].At.Equal(at) || got[2].Err != nil {
		t.Errorf("oldest = %+v", got[2])
	}

	limited, err := j.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List(1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].Operation != "cloud_report" {
		t.Errorf("List(1) = %+v", limited)
	}
}

func TestSQLiteJournal_ReopensFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	j, err := NewSQLiteJournal(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteJournal() error = %v", err)
	}
	j.Observe(nef.Outcome{Operation: "hydrate", Status: nef.StatusSuccess})
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j, err = NewSQLiteJournal(path, nil)
	if err != nil {
		t.Fatalf("reopening journal: %v", err)
	}
	defer j.Close()
	got, err := j.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Operation != "hydrate" {
		t.Errorf("List() after reopen = %+v", got)
	}
	if got[0].At.IsZero() {
		t.Error("zero At was not stamped")
	}
}

func TestNewJournalFromConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.JournalConfig
		wantErr bool
	}{
		{name: "sqlite", cfg: config.JournalConfig{Type: "sqlite", DataDir: dir}},
		{name: "sqlite without dir", cfg: config.JournalConfig{Type: "sqlite"}, wantErr: true},
		{name: "memory", cfg: config.JournalConfig{Type: "memory"}},
		{name: "none", cfg: config.JournalConfig{Type: "none"}},
		{name: "unknown", cfg: config.JournalConfig{Type: "postgres"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := NewJournalFromConfig(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewJournalFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				j.Close()
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("sqlite journal file not created: %v", err)
	}
}

func TestNopJournal(t *testing.T) {
	var j NopJournal
	j.Observe(nef.Outcome{Operation: "backup"})
	got, err := j.List(context.Background(), 5)
	if err != nil || len(got) != 0 {
		t.Errorf("List() = %v, %v; want empty", got, err)
	}
}
