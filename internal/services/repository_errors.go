package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/partner-scorecard/api/internal/repositories"
)

// ErrRepositoryUnavailable indicates the backing store could not be reached.
var ErrRepositoryUnavailable = errors.New("services: repository unavailable")

// mapRepositoryError converts repository failures into service sentinels. notFound and conflict may
// be nil when the operation cannot produce that outcome.
func mapRepositoryError(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return notFound
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
