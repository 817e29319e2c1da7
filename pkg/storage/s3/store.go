// Package s3 provides an S3-backed persistent store collaborator for
// the cache manager: a Loader that reads objects and a StoreWriter
// that writes them, with values serialized through the cache codec.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// api is the slice of the S3 client the store uses
type api interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config represents S3 store configuration
type Config struct {
	Region string `yaml:"region"`
	Bucket string `yaml:"bucket"`

	// Prefix namespaces every object key, e.g. "cache/"
	Prefix string `yaml:"prefix"`

	// Endpoint overrides the S3 endpoint for S3-compatible stores
	Endpoint string `yaml:"endpoint"`
}

// Store reads and writes cache values as S3 objects
type Store[K comparable, V any] struct {
	client api
	config Config
	codec  types.Codec[V]
	keyFn  types.KeyFunc[K]
}

// New creates a store using the default AWS credential chain
func New[K comparable, V any](ctx context.Context, config Config, codec types.Codec[V]) (*Store[K, V], error) {
	if config.Bucket == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to load AWS configuration", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient[K, V](client, config, codec), nil
}

// NewWithClient creates a store over an existing S3 client
func NewWithClient[K comparable, V any](client api, config Config, codec types.Codec[V]) *Store[K, V] {
	return &Store[K, V]{
		client: client,
		config: config,
		codec:  codec,
		keyFn:  types.DefaultKeyFunc[K](),
	}
}

// Writer returns a StoreWriter persisting values as objects
func (s *Store[K, V]) Writer() types.StoreWriter[K, V] {
	return func(ctx context.Context, key K, value V) error {
		data, err := s.codec.Encode(value)
		if err != nil {
			return errors.Wrap(errors.ErrCodeEncodeFailed, "value encode failed", err).
				WithComponent("s3-store")
		}

		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(s.objectKey(key)),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return errors.Wrap(errors.ErrCodePersistenceFailed, "s3 put failed", err).
				WithComponent("s3-store").WithKey(s.keyFn(key))
		}
		return nil
	}
}

// Loader returns a Loader reading values back from objects
func (s *Store[K, V]) Loader() types.Loader[K, V] {
	return func(ctx context.Context, key K) (V, error) {
		var zero V

		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			var noKey *s3types.NoSuchKey
			if errors.As(err, &noKey) {
				return zero, errors.Newf(errors.ErrCodeObjectNotFound, "object not found: %s", s.keyFn(key))
			}
			return zero, errors.Wrap(errors.ErrCodeLoaderFailed, "s3 get failed", err).
				WithComponent("s3-store").WithKey(s.keyFn(key))
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return zero, errors.Wrap(errors.ErrCodeLoaderFailed, "s3 body read failed", err).
				WithComponent("s3-store")
		}

		value, err := s.codec.Decode(data)
		if err != nil {
			return zero, errors.Wrap(errors.ErrCodeDecodeFailed, "value decode failed", err).
				WithComponent("s3-store")
		}
		return value, nil
	}
}

// Delete removes the object for key
func (s *Store[K, V]) Delete(ctx context.Context, key K) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailed, "s3 delete failed", err).
			WithComponent("s3-store")
	}
	return nil
}

func (s *Store[K, V]) objectKey(key K) string {
	k := s.keyFn(key)
	if s.config.Prefix == "" {
		return k
	}
	return path.Join(s.config.Prefix, k)
}

// String describes the store target for logs
func (s *Store[K, V]) String() string {
	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, s.config.Prefix)
}
