package application

import (
	"strconv"
	"time"

	"accessrl/middleware/ratelimit/domain"
)

// statusOK and statusTooManyRequests mirror net/http's constants by
// value, so this package can shape a response without importing
// net/http (the same boundary domain.RequestView draws for inbound
// requests). The top-level ratelimit package is the only place that
// writes these onto an http.ResponseWriter.
const (
	statusOK              = 200
	statusTooManyRequests = 429
)

// RejectionBody is the denial response body: a content type and raw
// bytes. ShaperOptions may carry both OnRejected and
// DefaultRejectionBody; a non-nil OnRejected always wins, so only one
// of them is ever used for a given response.
type RejectionBody struct {
	ContentType string
	Body        []byte
}

// ShaperOptions configures the Response Shaper's presentational
// choices. None of it affects the decision itself.
type ShaperOptions struct {
	// AddHeaders controls whether X-RateLimit-* headers are attached
	// on an allowed response. Retry-After and X-RateLimit-* are always
	// attached on denial regardless of this flag (spec §4.E).
	AddHeaders bool

	DefaultRejectionBody RejectionBody
	// OnRejected computes a custom denial body from the decision that
	// produced it. When set, it is used instead of
	// DefaultRejectionBody.
	OnRejected func(domain.Decision) RejectionBody
}

// ShapedResponse is what the top-level HTTP adapter writes onto the
// wire: a status code, a stable-ordered header list, and (for denials)
// a body. Headers is a slice, not a map, so the caller can write them
// in this exact order — header writes must precede any body write
// (spec §4.E).
type ShapedResponse struct {
	Status  int
	Headers []Header
	Body    RejectionBody
	Allowed bool
}

// Header is a single response header name/value pair.
type Header struct {
	Name  string
	Value string
}

// Shape translates a domain.Decision into everything the HTTP adapter
// needs to write, without touching net/http itself.
func Shape(decision domain.Decision, opts ShaperOptions) ShapedResponse {
	if decision.Allowed {
		resp := ShapedResponse{Status: statusOK, Allowed: true}
		if opts.AddHeaders {
			resp.Headers = rateLimitHeaders(decision)
		}
		return resp
	}

	resp := ShapedResponse{Status: statusTooManyRequests, Allowed: false}
	resp.Headers = append(resp.Headers, Header{Name: "Retry-After", Value: strconv.FormatInt(ceilSeconds(decision.RetryAfter), 10)})
	resp.Headers = append(resp.Headers, rateLimitHeaders(decision)...)

	if opts.OnRejected != nil {
		resp.Body = opts.OnRejected(decision)
	} else {
		resp.Body = opts.DefaultRejectionBody
	}
	return resp
}

func rateLimitHeaders(decision domain.Decision) []Header {
	return []Header{
		{Name: "X-RateLimit-Limit", Value: strconv.FormatInt(decision.EffectiveLimit, 10)},
		{Name: "X-RateLimit-Remaining", Value: strconv.FormatInt(decision.Remaining, 10)},
		{Name: "X-RateLimit-Reset", Value: strconv.FormatInt(decision.Reset.Unix(), 10)},
	}
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return int64(secs)
}
