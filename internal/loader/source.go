package loader

import (
	"context"

	"github.com/frederic-klein/stickler/internal/index"
)

// Source hands out the index a request should be answered from.
type Source interface {
	Snapshot(ctx context.Context) (*index.Index, error)
}

// Rescan is a Source that rebuilds the index on every call.
type Rescan struct {
	loader *Loader
	dirs   []string
}

// NewRescan creates a Source that loads dirs on every Snapshot.
func NewRescan(l *Loader, dirs []string) *Rescan {
	return &Rescan{loader: l, dirs: append([]string(nil), dirs...)}
}

// Snapshot loads a fresh index.
func (s *Rescan) Snapshot(ctx context.Context) (*index.Index, error) {
	return s.loader.Load(ctx, s.dirs)
}
