package services_test

import (
	"context"
	"testing"

	"dcmrelay/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRoute(ctx, "ct-scanner")
	ctx = services.WithBatchID(ctx, "batch-123")

	if route, ok := services.RouteFromContext(ctx); !ok || route != "ct-scanner" {
		t.Fatalf("unexpected route: %v %v", route, ok)
	}
	if id, ok := services.BatchIDFromContext(ctx); !ok || id != "batch-123" {
		t.Fatalf("unexpected batch id: %v %v", id, ok)
	}
}

func TestRouteBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRoute(ctx, "")
	if _, ok := services.RouteFromContext(ctx); ok {
		t.Fatal("expected no route value")
	}
}
