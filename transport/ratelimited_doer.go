package transport

import (
	"net/http"

	"github.com/goliatone/go-certidigital/ratelimit"
)

// RateLimitedDoer paces requests through an adaptive policy keyed by host and
// path, and feeds every response back so 429s open a throttle window.
type RateLimitedDoer struct {
	Next   HTTPDoer
	Policy *ratelimit.AdaptivePolicy
}

func NewRateLimitedDoer(next HTTPDoer, policy *ratelimit.AdaptivePolicy) *RateLimitedDoer {
	if next == nil {
		next = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RateLimitedDoer{Next: next, Policy: policy}
}

func (d *RateLimitedDoer) Do(req *http.Request) (*http.Response, error) {
	if d.Policy == nil {
		return d.Next.Do(req)
	}
	key := ratelimit.Key{Host: req.URL.Host, Bucket: req.URL.Path}
	if err := d.Policy.Wait(req.Context(), key); err != nil {
		return nil, err
	}
	res, err := d.Next.Do(req)
	if err != nil {
		return nil, err
	}
	if err := d.Policy.AfterCall(req.Context(), key, ratelimit.ResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    flattenHeaders(res.Header),
	}); err != nil {
		res.Body.Close()
		return nil, err
	}
	return res, nil
}

var _ HTTPDoer = (*RateLimitedDoer)(nil)
