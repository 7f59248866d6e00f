package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/frederic-klein/stickler/internal/index"
	"github.com/frederic-klein/stickler/internal/spec"
)

const archiveContentType = "application/x-tar"

type archiveNotFoundError struct {
	FileName string
}

func (e *archiveNotFoundError) Error() string {
	return fmt.Sprintf("Gem %s is not found", e.FileName)
}

func (e *archiveNotFoundError) Unwrap() error {
	return index.ErrNotFound
}

// archive streams a package archive from the archive root.
func (s *Server) archive(w http.ResponseWriter, r *http.Request, _ *index.Index, m []string) error {
	ref, err := spec.ParseFullName(m[1])
	if err != nil {
		return &archiveNotFoundError{FileName: m[1] + spec.ArchiveExt}
	}
	name := ref.FullName() + spec.ArchiveExt

	file, err := os.Open(filepath.Join(s.archiveRoot, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &archiveNotFoundError{FileName: name}
		}
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	if info.IsDir() {
		return &archiveNotFoundError{FileName: name}
	}

	w.Header().Set("Content-Type", archiveContentType)
	http.ServeContent(w, r, name, info.ModTime(), file)
	return nil
}
