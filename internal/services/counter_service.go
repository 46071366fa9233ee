package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/partner-scorecard/api/internal/repositories"
)

// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
var ErrCounterInvalidInput = errors.New("counter: invalid input")

const evaluationCounterScope = "evaluations"

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository
}

var _ CounterService = (*counterService)(nil)

// NewCounterService constructs a service that hands out sequence numbers from the counter repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{repo: deps.Repository}, nil
}

// NextEvaluationVersion returns the next version for the partner. floor is the highest version
// already stored, so a counter that lags behind the history never reissues a taken number.
func (s *counterService) NextEvaluationVersion(ctx context.Context, partnerID string, floor int) (int, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return 0, fmt.Errorf("%w: partner id is required", ErrCounterInvalidInput)
	}
	if floor < 0 {
		floor = 0
	}

	value, err := s.repo.Next(ctx, evaluationCounterScope+":"+partnerID, int64(floor))
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Reason)
		}
		return 0, mapRepositoryError(err, nil, nil)
	}
	return int(value), nil
}
