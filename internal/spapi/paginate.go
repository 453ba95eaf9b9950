package spapi

import "context"

// PageFetcher fetches one page for a paginated operation. It receives the
// continuation token ("" for the first page) and returns the page's items
// and the next token ("" when exhausted).
type PageFetcher func(ctx context.Context, nextToken string) (items []any, next string, err error)

const (
	// DefaultMaxItems caps a paginated result when the caller supplies no cap.
	DefaultMaxItems = 100
	// maxPageGuard bounds runaway pagination on servers that keep handing
	// out tokens over empty pages.
	maxPageGuard = 100
)

// Paginate drives a NextToken loop, concatenating items in server order.
// maxItems > 0 caps the result (the final page is truncated to fit);
// maxItems <= 0 applies DefaultMaxItems. The page count is returned
// alongside the items.
func Paginate(ctx context.Context, maxItems int, fetch PageFetcher) ([]any, int, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	var all []any
	token := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, pages, NewError(KindTimeout, "cancelled during pagination", err)
		}
		items, next, err := fetch(ctx, token)
		if err != nil {
			return nil, pages, err
		}
		pages++
		all = append(all, items...)

		if len(all) >= maxItems {
			return all[:maxItems], pages, nil
		}
		if next == "" || pages >= maxPageGuard {
			return all, pages, nil
		}
		token = next
	}
}
