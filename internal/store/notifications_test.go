package store

import (
	"context"
	"testing"
)

func TestConsumePendingNotificationsDeliversOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddNotification(ctx, "p1", "first"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddNotification(ctx, "p1", "second"); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.ConsumePendingNotifications(ctx, "p1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}

	again, err := s.ConsumePendingNotifications(ctx, "p1")
	if err != nil {
		t.Fatalf("consume again: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected notifications consumed exactly once, got %d on second read", len(again))
	}
}
