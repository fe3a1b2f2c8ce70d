// Package proxy is a passive capture proxy: it forwards traffic unchanged and
// scans each completed exchange with the route's project rules.
package proxy

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rulescan/rulescan/internal/config"
	"github.com/rulescan/rulescan/internal/logging"
	"github.com/rulescan/rulescan/internal/observability"
	"github.com/rulescan/rulescan/internal/rules"
)

// Scanner evaluates one exchange. *composer.Composer satisfies it.
type Scanner interface {
	DetectExchange(ex rules.Exchange) []rules.Finding
}

// project serializes access to a scanner, which does no locking of its own.
type project struct {
	mu      sync.Mutex
	scanner Scanner
}

func (p *project) detect(ex rules.Exchange) []rules.Finding {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanner.DetectExchange(ex)
}

type Proxy struct {
	router   *Router
	proxies  map[string]*httputil.ReverseProxy
	projects map[string]*project

	maxBodyBytes int64
	timeout      time.Duration

	findingLog *logging.FindingLogger
	metrics    *observability.Metrics
	log        logrus.FieldLogger
}

// New builds a proxy for cfg. Every route's project must have a scanner.
func New(cfg config.ProxyConfig, scanners map[string]Scanner) (*Proxy, error) {
	router := NewRouter(cfg.Routes)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}
	transport := newTransport(timeout)

	proxies := make(map[string]*httputil.ReverseProxy)
	projects := make(map[string]*project)
	for _, route := range router.Routes() {
		if _, ok := proxies[route.Upstream]; !ok {
			target, err := url.Parse(route.Upstream)
			if err != nil {
				return nil, fmt.Errorf("parse upstream for %s: %w", route.ID, err)
			}
			proxies[route.Upstream] = newReverseProxy(target, transport)
		}

		if _, ok := projects[route.Project]; ok {
			continue
		}
		scanner, ok := scanners[route.Project]
		if !ok || scanner == nil {
			return nil, fmt.Errorf("%s: no rules loaded for project %q", route.ID, route.Project)
		}
		projects[route.Project] = &project{scanner: scanner}
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	return &Proxy{
		router:       router,
		proxies:      proxies,
		projects:     projects,
		maxBodyBytes: maxBody,
		timeout:      timeout,
		log:          quiet,
	}, nil
}

func newReverseProxy(target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		case errors.As(err, &maxErr):
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		default:
			http.Error(w, "upstream error", http.StatusBadGateway)
		}
	}
	return proxy
}

func (p *Proxy) SetFindingLogger(logger *logging.FindingLogger) {
	p.findingLog = logger
}

func (p *Proxy) SetMetrics(metrics *observability.Metrics) {
	p.metrics = metrics
}

func (p *Proxy) SetLogger(logger logrus.FieldLogger) {
	if logger != nil {
		p.log = logger
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := p.router.Match(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	proxy := p.proxies[route.Upstream]

	if r.ContentLength > p.maxBodyBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodyBytes)

	reqBody, err := readBody(r)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	rec := &captureRecorder{ResponseWriter: w, status: http.StatusOK, limit: p.maxBodyBytes}
	proxy.ServeHTTP(rec, r.WithContext(ctx))

	ex := buildExchange(r, reqBody, rec)
	findings := p.projects[route.Project].detect(ex)
	p.metrics.ExchangeCaptured(route.Project, rec.status)
	p.record(route, r, findings)
}

func (p *Proxy) record(route Route, r *http.Request, findings []rules.Finding) {
	for i := range findings {
		findings[i].Meta.RequestSnippet = redactSecrets(findings[i].Meta.RequestSnippet)
		p.log.WithFields(logrus.Fields{
			"project":    route.Project,
			"route":      route.ID,
			"rule_id":    findings[i].DetectorID,
			"severity":   findings[i].Severity,
			"confidence": findings[i].Confidence,
			"client_ip":  clientIP(r),
		}).Info("finding")
	}
	if p.findingLog == nil || len(findings) == 0 {
		return
	}
	if err := p.findingLog.WriteAll(route.Project, r.Host, findings); err != nil {
		p.log.WithError(err).Error("write findings")
	}
}

func buildExchange(r *http.Request, reqBody []byte, rec *captureRecorder) rules.Exchange {
	req := rules.Request{
		Method:  r.Method,
		URL:     requestURL(r),
		Headers: flattenHeaders(r.Header, "Cookie"),
		Cookies: map[string]string{},
		Query:   map[string]any{},
	}
	for _, c := range r.Cookies() {
		req.Cookies[c.Name] = c.Value
	}
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			req.Query[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		req.Query[key] = list
	}
	if len(reqBody) > 0 {
		if value, ok := decodeJSON(r.Header.Get("Content-Type"), reqBody); ok {
			req.JSON = value
		} else {
			req.Data = string(reqBody)
		}
	}

	headers := rec.Header()
	return rules.Exchange{
		Request: req,
		Response: rules.Response{
			Status:  rec.status,
			Headers: flattenHeaders(headers),
			Body:    responseBody(headers.Get("Content-Encoding"), rec.body.Bytes()),
		},
	}
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func flattenHeaders(h http.Header, skip ...string) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		canon := http.CanonicalHeaderKey(name)
		skipped := false
		for _, s := range skip {
			if strings.EqualFold(canon, s) {
				skipped = true
			}
		}
		if !skipped {
			out[canon] = strings.Join(values, ", ")
		}
	}
	return out
}

func decodeJSON(contentType string, body []byte) (any, bool) {
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, false
	}
	return value, true
}

func responseBody(encoding string, body []byte) string {
	if !strings.EqualFold(strings.TrimSpace(encoding), "gzip") {
		return string(body)
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil && len(plain) == 0 {
		return string(body)
	}
	return string(plain)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	return body, nil
}

var (
	secretKVPattern     = regexp.MustCompile(`(?i)\b(password|passwd|token|api[_-]?key|secret)("?\s*[:=]\s*"?)([^\s&",}]+)`)
	secretBearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+\-/]+=*`)
)

func redactSecrets(input string) string {
	if input == "" {
		return input
	}
	redacted := secretKVPattern.ReplaceAllString(input, `$1$2<redacted>`)
	redacted = secretBearerPattern.ReplaceAllString(redacted, "bearer <redacted>")
	return redacted
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// captureRecorder forwards the upstream response and keeps a bounded copy of
// the body for scanning.
type captureRecorder struct {
	http.ResponseWriter
	status int
	limit  int64
	body   bytes.Buffer
}

func (r *captureRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *captureRecorder) Write(p []byte) (int, error) {
	if room := r.limit - int64(r.body.Len()); room > 0 {
		if int64(len(p)) > room {
			r.body.Write(p[:room])
		} else {
			r.body.Write(p)
		}
	}
	return r.ResponseWriter.Write(p)
}

func (r *captureRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
