// Package storage persists ticket images.
// Images are content addressed: the key of a stored image is derived from the
// SHA-256 of its bytes, so storing the same image twice yields the same key.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/prn-tf/cinelog/internal/domain"
)

// MaxImageSize is the largest ticket image accepted, in bytes.
const MaxImageSize = 10 << 20

var (
	// ErrNotFound indicates no image is stored under the key.
	ErrNotFound = domain.ErrTicketNotFound

	// ErrTooLarge indicates the image exceeds MaxImageSize.
	ErrTooLarge = errors.New("ticket image too large")

	// ErrInvalidKey indicates a key that was not produced by ComputeKey.
	ErrInvalidKey = errors.New("invalid ticket image key")

	// ErrEmptyImage indicates the reader produced no bytes.
	ErrEmptyImage = errors.New("ticket image is empty")
)

// Backend defines the interface for ticket image backends.
// Implementations include the local filesystem and S3-compatible object stores.
type Backend interface {
	// Store reads the image from reader and returns its storage key.
	// ext is the file extension ("png", ".jpg"); it is normalised and kept
	// in the key so the image can be served with a sensible content type.
	// If the content already exists, no new copy is written.
	Store(ctx context.Context, reader io.Reader, ext string) (key string, err error)

	// Retrieve returns the stored image. The caller must close it.
	// Returns ErrNotFound if nothing is stored under key.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the image. Returns ErrNotFound if nothing is stored under key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an image is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}
