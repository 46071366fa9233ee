package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/partner-scorecard/api/internal/platform/firestore"
	"github.com/partner-scorecard/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterDocument]
	now      func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterDocument](provider, countersCollection, nil, nil),
		now:      time.Now,
	}, nil
}

// Next atomically advances the counter and returns max(current, floor)+1. The floor lets callers
// resume a sequence whose highest value is already recorded elsewhere.
func (r *CounterRepository) Next(ctx context.Context, counterID string, floor int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.InvalidCounter("", "id is required")
	}
	if floor < 0 {
		return 0, repositories.InvalidCounter(id, "floor must not be negative, got %d", floor)
	}

	ref, err := r.counters.Doc(ctx, id)
	if err != nil {
		return 0, err
	}

	var nextValue int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current := int64(0)
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			var doc counterDocument
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore counters decode %s: %w", id, err)
			}
			current = doc.CurrentValue
		case codes.NotFound:
		default:
			return err
		}

		if floor > current {
			current = floor
		}
		nextValue = current + 1
		return tx.Set(ref, counterDocument{CurrentValue: nextValue, UpdatedAt: r.now().UTC()})
	})
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidCounter) {
			return 0, err
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return nextValue, nil
}
