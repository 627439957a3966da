package repository

import (
	"context"
	"strings"
	"time"

	"lifeguard_mailbox/pkg/logger"

	"go.uber.org/zap"
)

// AvatarSigner turn an avatar object key into a downloadable url
type AvatarSigner interface {
	PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// avatarURLs presign avatar keys; absolute urls and a nil signer pass through
type avatarURLs struct {
	signer AvatarSigner
	expiry time.Duration
}

func (a avatarURLs) url(ctx context.Context, key string) string {
	if key == "" || a.signer == nil {
		return key
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	u, err := a.signer.PresignGetURL(ctx, key, a.expiry)
	if err != nil {
		logger.Log.Warn("presign avatar failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return u
}
