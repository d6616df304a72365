// Package resilience groups the fault tolerance building blocks used by the
// health pipeline and its provider adapters.
//
//   - retry: classified retries with bounded exponential backoff
//   - circuitbreaker: gobreaker wrappers for the Oura, OpenAI and Claude APIs
//
// Usage Example:
//
//	record, attempts, err := retry.Do(ctx, retry.FetchPolicy(), classifyFetch,
//	    func(ctx context.Context) (*entity.HealthRecord, error) {
//	        return fetcher.FetchDailyData(ctx, targetDate)
//	    })
//
//	cb := circuitbreaker.New(circuitbreaker.OuraAPIConfig())
//	body, err := circuitbreaker.Call(cb, func() ([]byte, error) {
//	    return get(ctx, url)
//	})
package resilience
