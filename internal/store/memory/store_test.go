package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cbwinslow/crawl4ai/internal/domain"
)

func TestUpsertDelivery_InsertThenUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	d := domain.Delivery{
		DeliveryID: "d1",
		Event:      domain.EventPing,
		Status:     domain.StatusReceived,
		RecordedAt: time.Now().UTC(),
	}
	if err := s.UpsertDelivery(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Status = domain.StatusProcessed
	if err := s.UpsertDelivery(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := s.GetDelivery("d1")
	if !ok {
		t.Fatal("expected delivery to exist")
	}
	if got.Status != domain.StatusProcessed {
		t.Errorf("expected status processed, got %s", got.Status)
	}

	list, err := s.ListDeliveries(ctx, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one head row after upsert, got %d", len(list))
	}
}

func TestAppendTransition_AssignsSequence(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, status := range []domain.DeliveryStatus{domain.StatusReceived, domain.StatusProcessed} {
		err := s.AppendTransition(ctx, domain.Transition{
			ID:         uuid.New(),
			DeliveryID: "d1",
			Status:     status,
			RecordedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	trs, err := s.ListTransitions(ctx, "d1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trs) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(trs))
	}
	if trs[0].Seq != 1 || trs[1].Seq != 2 {
		t.Errorf("expected seq 1,2, got %d,%d", trs[0].Seq, trs[1].Seq)
	}
	if trs[0].Status != domain.StatusReceived {
		t.Errorf("expected first transition received, got %s", trs[0].Status)
	}
}

func TestListDeliveries_NewestFirstPagination(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		s.UpsertDelivery(ctx, domain.Delivery{DeliveryID: id, Status: domain.StatusReceived})
	}

	list, err := s.ListDeliveries(ctx, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(list))
	}
	if list[0].DeliveryID != "d3" || list[1].DeliveryID != "d2" {
		t.Errorf("expected newest first (d3, d2), got (%s, %s)", list[0].DeliveryID, list[1].DeliveryID)
	}

	list, _ = s.ListDeliveries(ctx, 2, 2)
	if len(list) != 1 || list[0].DeliveryID != "d1" {
		t.Errorf("expected offset page with d1, got %v", list)
	}
}

func TestPruneBefore(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	s.UpsertDelivery(ctx, domain.Delivery{DeliveryID: "old", Status: domain.StatusProcessed, RecordedAt: now.Add(-48 * time.Hour)})
	s.AppendTransition(ctx, domain.Transition{ID: uuid.New(), DeliveryID: "old", Status: domain.StatusReceived})
	s.UpsertDelivery(ctx, domain.Delivery{DeliveryID: "fresh", Status: domain.StatusProcessed, RecordedAt: now})

	pruned, err := s.PruneBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned delivery, got %d", pruned)
	}

	if _, ok := s.GetDelivery("old"); ok {
		t.Error("expected old delivery removed")
	}
	if _, ok := s.GetDelivery("fresh"); !ok {
		t.Error("expected fresh delivery retained")
	}
	if trs, _ := s.ListTransitions(ctx, "old", 10, 0); len(trs) != 0 {
		t.Errorf("expected transitions pruned with delivery, got %d", len(trs))
	}
}

func TestPruneBefore_KeepsInFlightDeliveries(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	s.UpsertDelivery(ctx, domain.Delivery{DeliveryID: "stuck", Status: domain.StatusReceived, RecordedAt: now.Add(-48 * time.Hour)})

	pruned, err := s.PruneBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("expected no pruned deliveries, got %d", pruned)
	}
	if _, ok := s.GetDelivery("stuck"); !ok {
		t.Error("expected in-flight delivery retained past the cutoff")
	}
}
