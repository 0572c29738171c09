package web

import (
	"net"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/limiter"
	"github.com/Shugur-Network/dmsync/internal/logger"
	"github.com/Shugur-Network/dmsync/internal/metrics"
)

// SecurityHeaders defines the security headers to be applied to responses
type SecurityHeaders struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
}

// APISecurityHeaders returns the headers for JSON endpoints. The API serves
// no scripts or styles.
func APISecurityHeaders() *SecurityHeaders {
	return &SecurityHeaders{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
	}
}

// Apply applies the security headers directly to a ResponseWriter
func (sh *SecurityHeaders) Apply(w http.ResponseWriter) {
	set := func(name, value string) {
		if value != "" {
			w.Header().Set(name, value)
		}
	}
	set("Content-Security-Policy", sh.CSP)
	set("X-Frame-Options", sh.XFrameOptions)
	set("X-Content-Type-Options", sh.XContentTypeOptions)
	set("Referrer-Policy", sh.ReferrerPolicy)
}

// SecurityMiddleware wraps an http.Handler with security headers
func SecurityMiddleware(headers *SecurityHeaders) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers.Apply(w)
			next.ServeHTTP(w, r)
		})
	}
}

// InputValidation rejects requests outside the API surface before routing.
type InputValidation struct {
	MaxPathLength      int
	MaxQueryLength     int
	MaxHeaderLength    int
	AllowedQueryParams map[string]bool
	PathPatterns       []*regexp.Regexp
}

// APIInputValidation returns the validation rules of the read API.
func APIInputValidation(metricsPath string) *InputValidation {
	return &InputValidation{
		MaxPathLength:   1024,
		MaxQueryLength:  1024,
		MaxHeaderLength: 8192,
		AllowedQueryParams: map[string]bool{
			"q":     true,
			"limit": true,
			"ready": true,
		},
		PathPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^/api/(status|conversations|participants|search|resync)$`),
			regexp.MustCompile(`^/api/conversations/[^/]{1,700}/messages$`),
			regexp.MustCompile(`^/(health|ws)$`),
			regexp.MustCompile(`^` + regexp.QuoteMeta(metricsPath) + `$`),
		},
	}
}

// ValidateRequest validates an HTTP request against the input validation rules
func (iv *InputValidation) ValidateRequest(r *http.Request) error {
	if len(r.URL.Path) > iv.MaxPathLength {
		return errors.Validation("PATH_TOO_LONG", "Request path too long")
	}
	if len(r.URL.RawQuery) > iv.MaxQueryLength {
		return errors.Validation("QUERY_TOO_LONG", "Query string too long")
	}

	pathValid := false
	for _, pattern := range iv.PathPatterns {
		if pattern.MatchString(r.URL.Path) {
			pathValid = true
			break
		}
	}
	if !pathValid {
		return errors.NotFound("route", r.URL.Path)
	}

	for param := range r.URL.Query() {
		if !iv.AllowedQueryParams[param] {
			return errors.Validation("INVALID_QUERY_PARAM", "Invalid query parameter").WithDetails(param)
		}
	}

	for name, values := range r.Header {
		for _, value := range values {
			if len(value) > iv.MaxHeaderLength {
				return errors.Validation("HEADER_TOO_LONG", "Header value too long").WithDetails(name)
			}
		}
	}
	for _, name := range []string{"Host", "X-Forwarded-For", "User-Agent", "Referer"} {
		if v := r.Header.Get(name); v != "" {
			if !utf8.ValidString(v) || strings.ContainsAny(v, "\x00\r\n") {
				return errors.Validation("HEADER_INJECTION", "Invalid header value").WithDetails(name)
			}
		}
	}
	return nil
}

// ValidationMiddleware wraps an http.Handler with input validation
func ValidationMiddleware(validation *InputValidation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := validation.ValidateRequest(r); err != nil {
				logger.Debug("Input validation failed",
					zap.String("path", r.URL.Path),
					zap.String("client_ip", clientIP(r)),
					zap.Error(err))
				errors.HandleHTTPError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(rl *limiter.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				errors.HandleHTTPError(w, r,
					errors.New(errors.ErrorTypeRateLimit, "RATE_LIMITED", "Too many requests").
						WithSeverity(errors.SeverityLow).
						WithUserMessage("Too many requests, slow down."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CountRequests records every request by its route pattern.
func CountRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route).Inc()
	})
}

// Chain applies middlewares so that the first one runs outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
