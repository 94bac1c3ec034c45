// Package relay forwards caller-specified HTTP requests under a bounded
// timeout, normalizes the response regardless of content type, and records
// the exchange in history on behalf of authenticated callers.
package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/pretty"

	"github.com/serdar/relayd/internal/history"
	"github.com/serdar/relayd/internal/identity"
	"github.com/serdar/relayd/internal/logger"
	"github.com/serdar/relayd/internal/metrics"
)

// DefaultTimeout bounds the wall-clock duration of an outbound call.
const DefaultTimeout = 30 * time.Second

// Validation errors. All of them are detected before any network or storage
// I/O happens.
var (
	ErrMissingURL    = errors.New("url is required")
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidMethod = errors.New("unsupported method")
	ErrInvalidBody   = errors.New("request body is not serializable")
)

//nolint:gochecknoglobals // Fixed method whitelist.
var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Header is one caller-supplied header pair. Duplicates are allowed;
// later pairs win when the set is materialized.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Spec describes the outbound request to relay.
type Spec struct {
	URL     string   `json:"url"`
	Method  string   `json:"method"`
	Headers []Header `json:"headers"`
	Body    any      `json:"body"`
}

// Capture is the normalized response of an outbound call. Transport
// failures are represented as a synthetic status-500 capture so callers
// always see what happened as data.
type Capture struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body"`
}

// RequestEcho reflects the request actually sent: the final header set and
// the body, empty for GET.
type RequestEcho struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// Result is the caller-visible outcome of one relay call.
type Result struct {
	Request        RequestEcho
	Response       Capture
	SavedToHistory bool
	Duration       time.Duration
}

// HistoryWriter persists one exchange. Failures are tolerated by the relay.
type HistoryWriter interface {
	Append(ctx context.Context, e *history.Entry) (string, error)
}

// Service relays outbound HTTP requests.
type Service struct {
	client  *http.Client
	store   HistoryWriter
	timeout time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithTimeout overrides the outbound call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification on outbound calls.
func WithInsecureTLS() Option {
	return func(s *Service) {
		if transport, ok := s.client.Transport.(*http.Transport); ok {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Opt-in via config for testing against self-signed targets.
		}
	}
}

// WithTransport replaces the outbound round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Service) {
		s.client.Transport = rt
	}
}

// NewService creates a relay writing exchanges to store. A nil store
// disables persistence entirely.
func NewService(store HistoryWriter, opts ...Option) *Service {
	s := &Service{
		store:   store,
		timeout: DefaultTimeout,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Validate checks the request description without touching the network.
func Validate(spec *Spec) error {
	if strings.TrimSpace(spec.URL) == "" {
		return ErrMissingURL
	}

	u, err := url.Parse(spec.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, spec.URL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	if !allowedMethods[spec.Method] {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, spec.Method)
	}

	return nil
}

// Do relays the request described by spec and returns the normalized
// outcome. When ident is non-nil the exchange is appended to history
// best-effort; a failed write never fails the relay call.
func (s *Service) Do(ctx context.Context, spec *Spec, ident *identity.Identity) (*Result, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	headers := materializeHeaders(spec.Headers)

	var payload []byte

	bodyAllowed := spec.Method != http.MethodGet && spec.Method != http.MethodHead
	if bodyAllowed && spec.Body != nil {
		var err error

		payload, err = json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(callCtx, spec.Method, spec.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()

	var (
		captured Capture
		size     int64
	)

	resp, err := s.client.Do(req)
	if err != nil {
		captured = failureCapture(callCtx, err)
	} else {
		captured, size = capture(resp)
	}

	duration := time.Since(start)

	metrics.ObserveRelay(spec.Method, captured.Status, duration)
	logger.Infof(ctx, "Relayed %s %s -> %d in %s (%s)",
		spec.Method, spec.URL, captured.Status,
		duration.Round(time.Millisecond), humanize.Bytes(uint64(size))) //nolint:gosec // size is never negative

	saved := false
	if ident != nil && s.store != nil {
		saved = s.persist(ctx, spec, headers, captured, ident)
	}

	echoBody := spec.Body
	if spec.Method == http.MethodGet {
		echoBody = ""
	}

	return &Result{
		Request: RequestEcho{
			URL:     spec.URL,
			Method:  spec.Method,
			Headers: headers,
			Body:    echoBody,
		},
		Response:       captured,
		SavedToHistory: saved,
		Duration:       duration,
	}, nil
}

// persist appends the exchange to history, reporting success. The write
// runs on a cancellation-free context so a caller hangup cannot tear it.
func (s *Service) persist(ctx context.Context, spec *Spec, headers map[string]string, captured Capture, ident *identity.Identity) bool {
	entry := &history.Entry{
		OwnerID:  ident.ID,
		Endpoint: spec.URL,
		Method:   spec.Method,
		Request: history.RequestData{
			Headers: headers,
			Body:    spec.Body,
		},
		Response: history.ResponseData{
			Status:     captured.Status,
			StatusText: captured.StatusText,
			Headers:    captured.Headers,
			Body:       captured.Body,
		},
	}

	if _, err := s.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Errorf(ctx, "Failed to save request to history: %v", err)
		metrics.HistoryWriteFailures.Inc()

		return false
	}

	return true
}

// materializeHeaders flattens the ordered pair list into a map,
// last-write-wins, skipping pairs with an empty key or value.
func materializeHeaders(headers []Header) map[string]string {
	out := make(map[string]string, len(headers))

	for _, h := range headers {
		if h.Key == "" || h.Value == "" {
			continue
		}

		out[h.Key] = h.Value
	}

	return out
}

// capture reads the response and normalizes it. A body read failure is a
// transport failure and degrades to the synthetic 500 capture.
func capture(resp *http.Response) (Capture, int64) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Capture{
			Status:     http.StatusInternalServerError,
			StatusText: "Request Failed",
			Headers:    map[string]string{},
			Body:       map[string]any{"error": fmt.Sprintf("reading response: %v", err)},
		}, 0
	}

	statusText := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}

	return Capture{
		Status:     resp.StatusCode,
		StatusText: statusText,
		Headers:    flattenHeaders(resp.Header),
		Body:       normalizeBody(resp.Header.Get("Content-Type"), raw),
	}, int64(len(raw))
}

// failureCapture converts a transport failure into response data. Callers
// of an API-testing tool need to see what happened, not an opaque error.
func failureCapture(callCtx context.Context, err error) Capture {
	message := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		message = "request timeout - the server took too long to respond"
	}

	return Capture{
		Status:     http.StatusInternalServerError,
		StatusText: "Request Failed",
		Headers:    map[string]string{},
		Body:       map[string]any{"error": message},
	}
}

// normalizeBody parses declared-JSON bodies, keeping raw text otherwise.
// A JSON parse failure degrades to compacted raw text rather than failing
// the relay.
func normalizeBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return ""
	}

	if strings.Contains(strings.ToLower(contentType), "json") {
		var value any
		if err := json.Unmarshal(raw, &value); err == nil {
			return value
		}

		return string(pretty.Ugly(raw))
	}

	return string(raw)
}

// flattenHeaders joins multi-valued headers with ", ".
func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))

	for key, values := range header {
		out[key] = strings.Join(values, ", ")
	}

	return out
}
