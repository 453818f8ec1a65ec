package rag

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is bumped whenever the artifact layout changes; older
// artifacts must be rebuilt.
const FormatVersion = 1

var artifactMagic = []byte("LCTNIDX1")

var errArtifactMissing = errors.New("index artifact does not exist")

// artifact is the persisted form of an index.
type artifact struct {
	Manifest Manifest          `msgpack:"manifest"`
	Titles   map[string]string `msgpack:"titles"`
	Chunks   []EmbeddedChunk   `msgpack:"chunks"`
}

// writeArtifact persists a to path through a temp file in the same
// directory and a rename, so readers see either the old file or the new one.
func writeArtifact(path string, a *artifact) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".lectern-index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(artifactMagic); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	gz := gzip.NewWriter(w)
	if err := msgpack.NewEncoder(gz).Encode(a); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress index: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to publish index: %w", err)
	}

	// Persist the rename itself. Not every platform supports syncing a directory.
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// readArtifact loads and validates the artifact at path. A missing file
// returns errArtifactMissing.
func readArtifact(path string) (*artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errArtifactMissing
		}
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := make([]byte, len(artifactMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if !bytes.Equal(header, artifactMagic) {
		return nil, errors.New("file is not a lectern index")
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress index: %w", err)
	}
	defer gz.Close()

	var a artifact
	if err := msgpack.NewDecoder(gz).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *artifact) validate() error {
	m := a.Manifest
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: format version %d, expected %d", ErrIndexIncompatible, m.FormatVersion, FormatVersion)
	}
	if m.ChunkCount != len(a.Chunks) {
		return fmt.Errorf("manifest lists %d chunks, artifact holds %d", m.ChunkCount, len(a.Chunks))
	}
	for i, ec := range a.Chunks {
		if len(ec.Vector) != m.Dimension {
			return fmt.Errorf("chunk %d has dimension %d, expected %d", i, len(ec.Vector), m.Dimension)
		}
	}
	return nil
}
