package repository

import (
	"context"
	"testing"

	"deliveryTracking/internal/testutil"
	"deliveryTracking/models"
)

func TestFeedbackCreate_OnePerDelivery(t *testing.T) {
	db := testutil.OpenInMemoryDB(t, "feedback_once")
	repo := NewFeedbackRepository(db)
	ctx := context.Background()

	rating := 5
	f := &models.DeliveryFeedback{
		DeliveryID: "d1",
		OrderID:    "order-1",
		UserID:     "user-1",
		Rating:     &rating,
		Categories: []string{"speed", "care"},
	}
	dup, err := repo.Create(ctx, f)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dup {
		t.Fatalf("first feedback reported duplicate")
	}

	rating2 := 1
	dup, err = repo.Create(ctx, &models.DeliveryFeedback{
		DeliveryID: "d1",
		OrderID:    "order-1",
		UserID:     "user-1",
		Rating:     &rating2,
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !dup {
		t.Fatalf("second feedback for the same delivery should report duplicate")
	}

	got, err := repo.GetByDeliveryID(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Rating == nil || *got.Rating != 5 {
		t.Fatalf("stored feedback = %+v, want the first submission", got)
	}
	if len(got.Categories) != 2 {
		t.Errorf("categories = %v, want two entries", got.Categories)
	}
}

func TestFeedbackGet_Missing(t *testing.T) {
	db := testutil.OpenInMemoryDB(t, "feedback_missing")
	repo := NewFeedbackRepository(db)
	got, err := repo.GetByDeliveryID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
