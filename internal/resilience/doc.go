// Package resilience groups the fault tolerance helpers used around the LLM
// providers and the user database.
//
//   - circuitbreaker wraps sony/gobreaker with per-dependency presets.
//   - retry implements exponential backoff with jitter.
//
// Usage example:
//
//	cb := circuitbreaker.New(circuitbreaker.AnalyserConfig("openai"))
//	err := retry.WithBackoff(ctx, retry.AnalyserConfig(), func() error {
//	    _, err := cb.Execute(func() (any, error) { return nil, openStream(ctx) })
//	    return err
//	})
package resilience
