package ocr

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles a remote extractor to a fixed request rate shared by
// all workers of a run.
type RateLimited struct {
	Extractor
	limiter *rate.Limiter
}

// NewRateLimited wraps next so that at most perSecond requests start each
// second. A non-positive rate returns next unchanged.
func NewRateLimited(next Extractor, perSecond float64, burst int) Extractor {
	if perSecond <= 0 {
		return next
	}
	return &RateLimited{
		Extractor: next,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), max(1, burst)),
	}
}

// ExtractText waits for a token before calling the wrapped extractor.
func (r *RateLimited) ExtractText(ctx context.Context, imageData []byte, lang string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.Extractor.ExtractText(ctx, imageData, lang)
}

// GetUsage forwards to the wrapped extractor when it tracks usage.
func (r *RateLimited) GetUsage() Usage {
	if u, ok := r.Extractor.(UsageReporter); ok {
		return u.GetUsage()
	}
	return Usage{}
}

// ResetUsage forwards to the wrapped extractor when it tracks usage.
func (r *RateLimited) ResetUsage() {
	if u, ok := r.Extractor.(UsageReporter); ok {
		u.ResetUsage()
	}
}
