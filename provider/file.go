package provider

import (
	"context"
	"os"
	"sync"
	"time"
)

// FileProvider serves the snapshot held in a document on disk.
// The file is re-read whenever its modification time changes.
type FileProvider struct {
	path string

	mu       sync.Mutex
	modTime  time.Time
	snapshot *Snapshot
}

// NewFileProvider creates a Provider reading path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snapshot != nil && info.ModTime().Equal(p.modTime) {
		return p.snapshot, nil
	}

	doc, err := ReadFile(p.path)
	if err != nil {
		return nil, err
	}

	p.snapshot = doc.Snapshot()
	p.modTime = info.ModTime()
	return p.snapshot, nil
}
