// Package media bridges stored media locators to the object store. The core
// never touches file bytes; it holds a storage key per item and hands out
// short-lived presigned URLs for upload and download.
package media

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Signer struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewSigner(endpoint, accessKey, secretKey, bucket string, useSSL bool, expiry time.Duration) (*Signer, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Signer{client: client, bucket: bucket, expiry: expiry}, nil
}

// EnsureBucket creates the media bucket when it does not exist yet.
func (s *Signer) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// PresignGet returns a short-lived download URL for a storage key.
func (s *Signer) PresignGet(ctx context.Context, storageKey string) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, storageKey, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", storageKey, err)
	}
	return signed.String(), nil
}

// PresignPut returns a short-lived upload URL for a storage key. The caller
// uploads directly to the object store; the API only records the locator.
func (s *Signer) PresignPut(ctx context.Context, storageKey string) (string, error) {
	signed, err := s.client.PresignedPutObject(ctx, s.bucket, storageKey, s.expiry)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", storageKey, err)
	}
	return signed.String(), nil
}

// ObjectKey builds the canonical storage key for a media item. Keys are
// prefixed by tenant so bucket policies can reinforce tenant isolation.
func ObjectKey(tenantID, collectionID, fileName string) string {
	return tenantID + "/" + collectionID + "/" + fileName
}
