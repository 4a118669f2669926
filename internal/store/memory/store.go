// Package memory is an in-process delivery store. It backs tests and
// single-instance deployments that run without Postgres; records do not
// survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cbwinslow/crawl4ai/internal/domain"
)

type Store struct {
	mu          sync.Mutex
	deliveries  map[string]domain.Delivery
	transitions map[string][]domain.Transition
	order       []string // delivery ids in first-seen order
}

func New() *Store {
	return &Store{
		deliveries:  make(map[string]domain.Delivery),
		transitions: make(map[string][]domain.Transition),
	}
}

func (s *Store) UpsertDelivery(_ context.Context, d domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.deliveries[d.DeliveryID]; !seen {
		s.order = append(s.order, d.DeliveryID)
	}
	s.deliveries[d.DeliveryID] = d
	return nil
}

func (s *Store) AppendTransition(_ context.Context, tr domain.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr.Seq = len(s.transitions[tr.DeliveryID]) + 1
	s.transitions[tr.DeliveryID] = append(s.transitions[tr.DeliveryID], tr)
	return nil
}

// ListDeliveries returns delivery head states, newest first.
func (s *Store) ListDeliveries(_ context.Context, limit, offset int) ([]domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Delivery
	for i := len(s.order) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.deliveries[s.order[i]])
	}
	return result, nil
}

func (s *Store) ListTransitions(_ context.Context, deliveryID string, limit, offset int) ([]domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.transitions[deliveryID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	result := make([]domain.Transition, end-offset)
	copy(result, all[offset:end])
	return result, nil
}

func (s *Store) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	kept := s.order[:0]
	for _, id := range s.order {
		d := s.deliveries[id]
		// In-flight deliveries are never pruned, whatever their age.
		if d.Status.Terminal() && d.RecordedAt.Before(cutoff) {
			delete(s.deliveries, id)
			delete(s.transitions, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return pruned, nil
}

// GetDelivery returns the head state for a delivery id. Test helper.
func (s *Store) GetDelivery(deliveryID string) (domain.Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[deliveryID]
	return d, ok
}
