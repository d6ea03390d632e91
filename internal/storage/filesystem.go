package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/pkg/crypto"
)

// FilesystemBackend stores images below a base directory.
// Writes go to a temporary file first and are renamed into place, so a
// reader never observes a partially written image.
type FilesystemBackend struct {
	baseDir string
	tempDir string
	paths   PathConfig
	logger  zerolog.Logger
}

// NewFilesystemBackend creates the base and temp directories if needed.
func NewFilesystemBackend(baseDir string, logger zerolog.Logger) (*FilesystemBackend, error) {
	tempDir := filepath.Join(baseDir, ".tmp")
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FilesystemBackend{
		baseDir: baseDir,
		tempDir: tempDir,
		paths:   DefaultPathConfig(),
		logger:  logger.With().Str("component", "storage").Str("backend", "filesystem").Logger(),
	}, nil
}

// Store implements Backend.
func (b *FilesystemBackend) Store(ctx context.Context, reader io.Reader, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(b.tempDir, uuid.NewString()+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	hr := crypto.NewHashReader(io.LimitReader(reader, MaxImageSize+1))
	_, copyErr := io.Copy(tmp, hr)
	closeErr := tmp.Close()
	if copyErr != nil {
		return "", fmt.Errorf("failed to write ticket image: %w", copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to write ticket image: %w", closeErr)
	}
	if hr.Size() == 0 {
		return "", ErrEmptyImage
	}
	if hr.Size() > MaxImageSize {
		return "", ErrTooLarge
	}

	key := ComputeKey(b.paths, hr.SHA256(), ext)
	dest := b.fullPath(key)

	if _, err := os.Stat(dest); err == nil {
		b.logger.Debug().Str("key", key).Msg("ticket image already stored")
		return key, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to move ticket image into place: %w", err)
	}
	committed = true

	b.logger.Debug().Str("key", key).Int64("size", hr.Size()).Msg("ticket image stored")
	return key, nil
}

// Retrieve implements Backend.
func (b *FilesystemBackend) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	if !ValidateKey(b.paths, key) {
		return nil, ErrInvalidKey
	}
	f, err := os.Open(b.fullPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open ticket image: %w", err)
	}
	return f, nil
}

// Delete implements Backend.
func (b *FilesystemBackend) Delete(ctx context.Context, key string) error {
	if !ValidateKey(b.paths, key) {
		return ErrInvalidKey
	}
	if err := os.Remove(b.fullPath(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete ticket image: %w", err)
	}
	return nil
}

// Exists implements Backend.
func (b *FilesystemBackend) Exists(ctx context.Context, key string) (bool, error) {
	if !ValidateKey(b.paths, key) {
		return false, ErrInvalidKey
	}
	_, err := os.Stat(b.fullPath(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat ticket image: %w", err)
}

func (b *FilesystemBackend) fullPath(key string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(key))
}

var _ Backend = (*FilesystemBackend)(nil)
