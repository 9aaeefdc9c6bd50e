package local

import (
	"errors"
	"fmt"

	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"gorm.io/gorm"
)

// mapErr turns repository failures into typed errors. Missing rows become
// NotFound; everything else the database reports is BackendUnavailable.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if apierr.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierr.New(apierr.CodeNotFound, op, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apierr.New(apierr.CodeConflict, op, err)
	}
	return apierr.New(apierr.CodeBackendUnavailable, op, fmt.Errorf("database: %w", err))
}
