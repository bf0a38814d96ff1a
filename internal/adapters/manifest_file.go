package adapters

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"depmend/internal/ports"
	"depmend/internal/types"
)

// FileManifestStore reads and writes the live dependency manifest
// (newline-delimited package==version pairs).
type FileManifestStore struct {
	Path string
}

func NewFileManifestStore(path string) FileManifestStore {
	return FileManifestStore{Path: path}
}

func (s FileManifestStore) Read() (types.Manifest, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Manifest{}, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cannot read manifest %s", s.Path)).
			WithCause(err)
	}
	manifest, err := types.ParseManifest(data)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("manifest is malformed").
			WithCause(err)
	}
	return manifest, nil
}

// WriteAtomic replaces the manifest without ever exposing a
// half-written file: the new content goes to a temp file in the same
// directory, is verified re-readable, then renamed over the old file.
func (s FileManifestStore) WriteAtomic(manifest types.Manifest) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cannot create manifest directory %s", dir)).
			WithCause(err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot create temporary manifest").
			WithCause(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	rendered := manifest.Render()
	if _, err := tmp.Write(rendered); err != nil {
		tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot write temporary manifest").
			WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot sync temporary manifest").
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot close temporary manifest").
			WithCause(err)
	}

	// Verify re-readability before the swap.
	written, err := os.ReadFile(tmpPath)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot re-read temporary manifest").
			WithCause(err)
	}
	if _, err := types.ParseManifest(written); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("temporary manifest failed verification").
			WithCause(err)
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cannot replace manifest %s", s.Path)).
			WithCause(err)
	}
	return nil
}

var _ ports.ManifestStorePort = FileManifestStore{}
