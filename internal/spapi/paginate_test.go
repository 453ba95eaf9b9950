package spapi

import (
	"context"
	"errors"
	"testing"
)

func TestPaginate_FollowsTokens(t *testing.T) {
	pagesServed := map[string][]any{
		"":   {"a", "b"},
		"t1": {"c"},
		"t2": {"d", "e"},
	}
	next := map[string]string{"": "t1", "t1": "t2", "t2": ""}

	items, pages, err := Paginate(context.Background(), 0, func(_ context.Context, token string) ([]any, string, error) {
		return pagesServed[token], next[token], nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if pages != 3 || len(items) != 5 {
		t.Errorf("pages=%d items=%v", pages, items)
	}
	if items[0] != "a" || items[4] != "e" {
		t.Errorf("order lost: %v", items)
	}
}

func TestPaginate_MaxItemsTruncates(t *testing.T) {
	calls := 0
	items, pages, err := Paginate(context.Background(), 3, func(_ context.Context, token string) ([]any, string, error) {
		calls++
		return []any{1, 2}, "more", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Errorf("items = %v", items)
	}
	// stops as soon as the cap is covered
	if calls != 2 || pages != 2 {
		t.Errorf("calls=%d pages=%d", calls, pages)
	}
}

func TestPaginate_DefaultCap(t *testing.T) {
	calls := 0
	items, _, err := Paginate(context.Background(), 0, func(_ context.Context, token string) ([]any, string, error) {
		calls++
		return []any{1, 2, 3}, "forever", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != DefaultMaxItems {
		t.Errorf("uncapped call returned %d items, want default %d", len(items), DefaultMaxItems)
	}
	if calls != 34 {
		t.Errorf("calls = %d", calls)
	}
}

func TestPaginate_PageGuard(t *testing.T) {
	// empty pages with endless tokens never satisfy the cap; the guard stops
	// the loop
	calls := 0
	_, pages, err := Paginate(context.Background(), 0, func(_ context.Context, token string) ([]any, string, error) {
		calls++
		return nil, "forever", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if pages != maxPageGuard || calls != maxPageGuard {
		t.Errorf("pages=%d calls=%d, want guard %d", pages, calls, maxPageGuard)
	}
}

func TestPaginate_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := Paginate(context.Background(), 0, func(_ context.Context, token string) ([]any, string, error) {
		if token == "" {
			return []any{1}, "t1", nil
		}
		return nil, "", boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestPaginate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Paginate(ctx, 0, func(_ context.Context, token string) ([]any, string, error) {
		return []any{1}, "", nil
	})
	if err == nil || AsError(err).Kind != KindTimeout {
		t.Errorf("err = %v", err)
	}
}
