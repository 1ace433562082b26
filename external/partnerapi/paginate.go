package partnerapi

import (
	"context"
	"fmt"
	"time"

	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"golang.org/x/time/rate"
)

const (
	// MaxPageSize is the largest page the partner API serves.
	MaxPageSize = 100
	// MaxPages bounds the page count accepted from page 1.
	MaxPages = 10000
)

type Page[T any] struct {
	Items []T
	Page  int
	Pages int
	Total int
	// FailedPages lists page numbers that errored and were skipped.
	FailedPages []int
}

type PageFunc[T any] func(ctx context.Context, page, pageSize int) (Page[T], error)

type PageOptions struct {
	// Endpoint names the paged endpoint in classified errors.
	Endpoint  string
	PageSize  int
	PageDelay time.Duration
	// Abort, when it returns true for a page error, stops fetching and marks
	// every remaining page as failed.
	Abort  func(err error) bool
	Logger *logging.Logger
}

func ClampPageSize(size int) int {
	if size <= 0 || size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// FetchAllPages loads page 1 to learn the page count, then the remaining
// pages one at a time, at most one request per PageDelay. A page 1 failure is
// returned; later failures are logged and skipped. The result is normalized to
// Page=1, Pages=1 since it already holds every fetched item.
func FetchAllPages[T any](ctx context.Context, fetch PageFunc[T], opts PageOptions) (Page[T], error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	pageSize := ClampPageSize(opts.PageSize)

	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}
	pacer := rate.NewLimiter(limit, 1)

	if err := pacer.Wait(ctx); err != nil {
		return Page[T]{}, fmt.Errorf("wait for page 1: %w", err)
	}
	first, err := fetch(ctx, 1, pageSize)
	if err != nil {
		return Page[T]{}, fmt.Errorf("fetch page 1: %w", err)
	}
	if err := checkPageCount(first, pageSize, opts.Endpoint); err != nil {
		return Page[T]{}, err
	}

	out := Page[T]{
		Items: append([]T(nil), first.Items...),
		Page:  1,
		Pages: 1,
		Total: first.Total,
	}

	for page := 2; page <= first.Pages; page++ {
		if err := pacer.Wait(ctx); err != nil {
			return out, fmt.Errorf("wait for page %d: %w", page, err)
		}

		next, err := fetch(ctx, page, pageSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, fmt.Errorf("fetch page %d: %w", page, ctxErr)
			}
			if opts.Abort != nil && opts.Abort(err) {
				for rest := page; rest <= first.Pages; rest++ {
					out.FailedPages = append(out.FailedPages, rest)
				}
				logger.WarnContext(ctx, "paginated fetch aborted", "page", page, "pages", first.Pages, "error", err)
				break
			}
			out.FailedPages = append(out.FailedPages, page)
			logger.WarnContext(ctx, "paginated fetch skipped page", "page", page, "pages", first.Pages, "error", err)
			continue
		}
		out.Items = append(out.Items, next.Items...)
	}

	return out, nil
}

// checkPageCount rejects a page count the reported total cannot explain. One
// extra page is tolerated for rows added between the count and the fetch.
func checkPageCount[T any](first Page[T], pageSize int, endpoint string) error {
	if endpoint == "" {
		endpoint = "paged"
	}
	invalid := func(msg string) error {
		return &RequestError{
			Kind:     KindInvalidPayload,
			Endpoint: endpoint,
			Message:  msg,
		}
	}

	if first.Total < 0 || first.Total > MaxPages*MaxPageSize {
		return invalid(fmt.Sprintf("total %d out of range", first.Total))
	}
	if first.Pages < 0 || first.Pages > MaxPages {
		return invalid(fmt.Sprintf("page count %d out of range [0, %d]", first.Pages, MaxPages))
	}
	expected := (first.Total + pageSize - 1) / pageSize
	if first.Pages > expected+1 {
		return invalid(fmt.Sprintf("page count %d inconsistent with total %d at page size %d", first.Pages, first.Total, pageSize))
	}
	return nil
}
