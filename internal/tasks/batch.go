package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/pulsemix/internal/shared"
	"golang.org/x/time/rate"
)

// BatchOpts contains configuration for multi-user provider syncs.
type BatchOpts struct {
	NumWorkers int     // Concurrent workers (default: 3, max: 10)
	RateLimit  float64 // Fetches started per second (default: 2)
	Sync       SyncOptions
}

// UserSyncResult is the outcome of syncing one user.
type UserSyncResult struct {
	UserID string
	Result *SyncResult
	Error  error
}

// BatchResult summarizes a [Engine.FetchAll] run.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []UserSyncResult
}

// FetchAll runs [Engine.FetchProviderData] for every user on a rate-limited worker pool.
//
// Users share the provider's single aggregate slot, so the last finished sync wins the
// current mood. A failed user never stops the batch; errors are reported per user.
func (e *Engine) FetchAll(ctx context.Context, prog chan<- ProgressUpdate, userIDs []string, opts BatchOpts) (*BatchResult, error) {
	if e.provider == nil || e.provider.Source == nil {
		return nil, fmt.Errorf("%w: no metric provider configured", shared.ErrServiceUnavailable)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 3
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2.0
	}

	result := &BatchResult{
		Total:   len(userIDs),
		Results: make([]UserSyncResult, 0, len(userIDs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan string, len(userIDs))
	results := make(chan UserSyncResult, len(userIDs))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.syncWorker(ctx, &wg, jobs, results, opts.Sync)
	}

	go func() {
		defer close(jobs)
		for i, userID := range userIDs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			sendProgress(prog, fetchProviderUpdate(i+1, len(userIDs), userID))
			jobs <- userID
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Error == nil {
			result.Succeeded++
			sendProgress(prog, syncedUserUpdate(completed, len(userIDs), res))
		} else {
			result.Failed++
			sendProgress(prog, syncFailedUpdate(completed, len(userIDs), res))
		}
	}

	sendProgress(prog, completeUpdate(result))

	if err := ctx.Err(); err != nil && completed < len(userIDs) {
		return result, fmt.Errorf("%w: batch interrupted after %d/%d users: %w", shared.ErrTimeout, completed, len(userIDs), err)
	}
	return result, nil
}

// syncWorker is a worker goroutine that syncs users from the jobs channel.
func (e *Engine) syncWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan string, results chan<- UserSyncResult, opts SyncOptions) {
	defer wg.Done()

	for userID := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := e.FetchProviderData(ctx, userID, opts)
		results <- UserSyncResult{UserID: userID, Result: res, Error: err}
	}
}
