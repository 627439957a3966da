package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"lifeguard_mailbox/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOClient definition minio client
type MinIOClient struct {
	Client     *minio.Client
	BucketName string
}

// NewMinIOConnection create a new minio connection have retry
func NewMinIOConnection(d MinIOConnection) (*MinIOClient, error) {
	var mc *MinIOClient
	var err error

	for i := 1; i <= attempts(d.RetryCount); i++ {
		mc, err = NewMinioClient(d.Endpoint, d.User, d.Password, d.BucketName, d.UseSSL)
		if err == nil {
			logger.Log.Info("minIO connected", zap.String("endpoint", d.Endpoint), zap.Int("attempt", i))
			return mc, nil
		}

		logger.Log.Warn("minIO connect failed, retrying...", zap.String("endpoint", d.Endpoint), zap.Int("attempt", i), zap.Error(err))
		if i < attempts(d.RetryCount) {
			time.Sleep(d.RetryInterval * time.Second)
		}
	}

	return nil, fmt.Errorf("failed to connect to minIO after %d attempts: %w", attempts(d.RetryCount), err)
}

// NewMinioClient create a new minio client, bucket must already exist
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	minioClient, err := minio.New(endpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
			Secure: useSSL,
		})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	exists, err := minioClient.BucketExists(context.Background(), bucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket [%s]: %w", bucketName, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket [%s] does not exist", bucketName)
	}

	return &MinIOClient{
		Client:     minioClient,
		BucketName: bucketName,
	}, nil
}

// PresignGetURL 生成一個 Presigned URL 用來獲取指定的 object
func (m *MinIOClient) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if m == nil || m.Client == nil {
		return "", errors.New("minIO client not connected")
	}
	presignedURL, err := m.Client.PresignedGetObject(ctx, m.BucketName, objectName, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign [%s]: %w", objectName, err)
	}
	return presignedURL.String(), nil
}
