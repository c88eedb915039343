package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// FSStore keeps zstd-compressed blobs under a directory, fanned out by the
// first two hex characters of the digest.
type FSStore struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *zap.Logger
}

// NewFSStore creates a store rooted at dir, creating it if needed. level is
// a zstd compression level (1 to 22).
func NewFSStore(dir string, level int, logger *zap.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder initialization failed: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder initialization failed: %w", err)
	}

	return &FSStore{
		dir:     dir,
		encoder: encoder,
		decoder: decoder,
		logger:  logger,
	}, nil
}

func (s *FSStore) path(digest string) string {
	return filepath.Join(s.dir, digest[:2], digest[2:]+".zst")
}

// Put stores data and returns its reference. Writing a blob that already
// exists is a no-op.
func (s *FSStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := Reference(data)
	digest, _ := parseReference(ref)
	path := s.path(digest)

	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("creating temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(s.encoder.EncodeAll(data, nil)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publishing blob: %w", err)
	}

	s.logger.Debug("blob stored", zap.String("ref", ref), zap.Int("size", len(data)))
	return ref, nil
}

// Get returns the bytes stored under ref, verifying them against it
func (s *FSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	digest, err := parseReference(ref)
	if err != nil {
		return nil, err
	}

	compressed, err := os.ReadFile(s.path(digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading blob: %w", err)
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if Reference(data) != ref {
		s.logger.Error("blob digest mismatch", zap.String("ref", ref))
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, ref)
	}
	return data, nil
}

// Close releases the zstd encoder and decoder
func (s *FSStore) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}
