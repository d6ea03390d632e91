package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cinelog/internal/pkg/crypto"
)

func TestComputeKey(t *testing.T) {
	hash := crypto.ComputeSHA256([]byte("ticket"))
	key := ComputeKey(DefaultPathConfig(), hash, ".PNG")

	require.Equal(t, hash[0:2]+"/"+hash[2:4]+"/"+hash+".png", key)
	require.True(t, ValidateKey(DefaultPathConfig(), key))
	require.Equal(t, "abc", ComputeKey(DefaultPathConfig(), "abc", ""))
}

func TestNormalizeExt(t *testing.T) {
	require.Equal(t, ".jpg", NormalizeExt("JPG"))
	require.Equal(t, ".jpeg", NormalizeExt(".jpeg"))
	require.Empty(t, NormalizeExt(""))
	require.Empty(t, NormalizeExt("../x"))
	require.Empty(t, NormalizeExt("waytoolongext"))
}

func TestValidateKey(t *testing.T) {
	hash := crypto.ComputeSHA256([]byte("x"))
	cfg := DefaultPathConfig()

	require.True(t, ValidateKey(cfg, ComputeKey(cfg, hash, "")))
	require.False(t, ValidateKey(cfg, hash+".png"), "missing shards")
	require.False(t, ValidateKey(cfg, "../../etc/passwd"))
	require.False(t, ValidateKey(cfg, "zz/zz/"+hash+".png"))
	require.False(t, ValidateKey(cfg, ""))
}

func TestFilesystemBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFilesystemBackend(dir, zerolog.Nop())
	require.NoError(t, err)

	key, err := b.Store(ctx, strings.NewReader("admit one"), "png")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(key, ".png"))

	again, err := b.Store(ctx, strings.NewReader("admit one"), "png")
	require.NoError(t, err)
	require.Equal(t, key, again, "same content yields same key")

	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	rc, err := b.Retrieve(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "admit one", string(data))

	// temp files never linger
	entries, err := os.ReadDir(filepath.Join(dir, ".tmp"))
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, b.Delete(ctx, key))
	require.ErrorIs(t, b.Delete(ctx, key), ErrNotFound)

	_, err = b.Retrieve(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemBackend_Rejects(t *testing.T) {
	ctx := context.Background()
	b, err := NewFilesystemBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = b.Store(ctx, strings.NewReader(""), "png")
	require.ErrorIs(t, err, ErrEmptyImage)

	_, err = b.Store(ctx, bytes.NewReader(make([]byte, MaxImageSize+1)), "png")
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = b.Retrieve(ctx, "../secret")
	require.ErrorIs(t, err, ErrInvalidKey)
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	b := NewS3Backend(client, "tickets", "cinelog", zerolog.Nop())

	key, err := b.Store(ctx, strings.NewReader("stub"), "JPG")
	require.NoError(t, err)
	_, err = b.Store(ctx, strings.NewReader("stub"), "jpg")
	require.NoError(t, err)
	require.Equal(t, 1, client.puts, "existing content is not uploaded again")

	objectKey := "cinelog/" + key
	require.Contains(t, client.objects, objectKey)
	require.Equal(t, "image/jpeg", client.types[objectKey])

	rc, err := b.Retrieve(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	require.Equal(t, "stub", string(data))

	require.NoError(t, b.Delete(ctx, key))
	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = b.Retrieve(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, b.Delete(ctx, key), ErrNotFound)
}
