package s3

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/pkg/errors"
)

// fakeS3 is an in-memory S3 API double
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type stringCodec struct{}

func (stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (stringCodec) Decode(d []byte) (string, error) { return string(d), nil }

func TestWriterLoaderRoundTrip(t *testing.T) {
	api := newFakeS3()
	store := NewWithClient[string, string](api, Config{Bucket: "b", Prefix: "cache"}, stringCodec{})

	ctx := context.Background()
	require.NoError(t, store.Writer()(ctx, "user:1", "alice"))

	v, err := store.Loader()(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	// The key is namespaced under the prefix.
	api.mu.Lock()
	_, ok := api.objects["cache/user:1"]
	api.mu.Unlock()
	assert.True(t, ok, "object should live under the configured prefix")
}

func TestLoaderMissingObject(t *testing.T) {
	store := NewWithClient[string, string](newFakeS3(), Config{Bucket: "b"}, stringCodec{})

	_, err := store.Loader()(context.Background(), "absent")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeObjectNotFound, errors.GetCode(err))
}

func TestDelete(t *testing.T) {
	api := newFakeS3()
	store := NewWithClient[string, string](api, Config{Bucket: "b"}, stringCodec{})

	ctx := context.Background()
	require.NoError(t, store.Writer()(ctx, "k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Loader()(ctx, "k")
	assert.Equal(t, errors.ErrCodeObjectNotFound, errors.GetCode(err))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New[string, string](context.Background(), Config{}, stringCodec{})
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.GetCode(err))
}
