package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
)

const defaultResponseBodyLimit int64 = 1 << 20 // 1 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts signed JSON payloads to webhook endpoints. Connection level
// failures are reported in DeliveryResponse.ConnectionError; an error return
// means the request could not be built at all.
type Client struct {
	doer                 HTTPDoer
	maxResponseBodyBytes int64

	mu      sync.Mutex
	proxied map[string]*http.Client
}

type ClientOption func(*Client)

// WithHTTPClient forces every delivery through doer. Per-request proxies are
// ignored when set.
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

func WithMaxResponseBodyBytes(limit int64) ClientOption {
	return func(c *Client) {
		if limit > 0 {
			c.maxResponseBodyBytes = limit
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		maxResponseBodyBytes: defaultResponseBodyLimit,
		proxied:              map[string]*http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

func (c *Client) Deliver(ctx context.Context, req core.DeliveryRequest) (core.DeliveryResponse, error) {
	if c == nil {
		return core.DeliveryResponse{}, transportError(
			"transport: delivery client is not configured",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || target.Host == "" || (target.Scheme != "http" && target.Scheme != "https") {
		return core.DeliveryResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid delivery url",
			http.StatusBadRequest,
			map[string]any{"url": strings.TrimSpace(req.URL), "job_id": req.JobID},
		)
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.DeliveryResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: encode payload",
			http.StatusBadRequest,
			map[string]any{"job_id": req.JobID, "event_type": req.EventType},
		)
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return core.DeliveryResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"url": target.String(), "job_id": req.JobID},
		)
	}
	httpReq.Header.Set(headerContentType, contentTypeJSON)
	if ua := strings.TrimSpace(req.UserAgent); ua != "" {
		httpReq.Header.Set(headerUserAgent, ua)
	}
	if req.JobID != "" {
		httpReq.Header.Set(HeaderDeliveryID, req.JobID)
	}
	if req.EventType != "" {
		httpReq.Header.Set(HeaderEventType, req.EventType)
	}
	if req.Secret != "" {
		httpReq.Header.Set(HeaderSignature, Sign(req.Secret, body))
	}

	doer, err := c.doerFor(req.Proxy)
	if err != nil {
		return core.DeliveryResponse{}, err
	}
	httpRes, err := doer.Do(httpReq)
	if err != nil {
		return core.DeliveryResponse{ConnectionError: connectionErrorMessage(err)}, nil
	}
	defer httpRes.Body.Close()

	// A body over the limit is truncated; the status code is what counts.
	responseBody, err := io.ReadAll(io.LimitReader(httpRes.Body, c.maxResponseBodyBytes))
	if err != nil {
		responseBody = nil
	}
	return core.DeliveryResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       responseBody,
	}, nil
}

func (c *Client) doerFor(proxy string) (HTTPDoer, error) {
	if c.doer != nil {
		return c.doer, nil
	}
	proxy = strings.TrimSpace(proxy)
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.proxied[proxy]; ok {
		return client, nil
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, transportWrapError(
				err,
				goerrors.CategoryBadInput,
				"transport: invalid http proxy",
				http.StatusBadRequest,
				map[string]any{"proxy": proxy},
			)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{
		Transport: transport,
		// Redirects are reported back as the delivery's status code.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	c.proxied[proxy] = client
	return client, nil
}

func connectionErrorMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return err.Error()
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.DeliveryClient = (*Client)(nil)
