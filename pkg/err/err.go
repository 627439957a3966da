package errprocess

import (
	"errors"
	"fmt"

	"lifeguard_mailbox/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap log the failed operation and return err wrapped with op
func Wrap(op string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(op, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", op, err)
}
