package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	httpclient "github.com/natserract/recommend/pkg/http"
	"github.com/natserract/recommend/pkg/metrics"
	"go.uber.org/zap"
)

// Request describes one API call. Path is relative to the account URL.
type Request struct {
	Method  string
	Path    string
	Body    any
	Query   url.Values
	Headers map[string]string
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Body       []byte
	Data       map[string]any
}

// Result returns the "result" member of the envelope, or nil.
func (r *Response) Result() any {
	return r.Data["result"]
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Send issues req without running the token guard and classifies the
// response. Use it for calls that do not need a token.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, req)
	metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues(req.Method, metrics.OutcomeTransport).Inc()
		return nil, err
	}

	out, err := classify(resp.StatusCode, resp.Body)
	metrics.Requests.WithLabelValues(req.Method, outcome(err)).Inc()

	c.logger.Debug("Recommend API request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status_code", resp.StatusCode),
		zap.String("outcome", outcome(err)),
		zap.Duration("elapsed", time.Since(start)))

	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendRaw issues req and returns the transport response untouched.
func (c *Client) SendRaw(ctx context.Context, req Request) (*httpclient.Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, req)
	metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues(req.Method, metrics.OutcomeTransport).Inc()
		return nil, err
	}
	metrics.Requests.WithLabelValues(req.Method, metrics.OutcomeRaw).Inc()

	c.logger.Debug("Recommend API raw request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status_code", resp.StatusCode),
		zap.ByteString("response", resp.Body))
	return resp, nil
}

// Call runs the token guard and then Send.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// CallRaw runs the token guard and then SendRaw.
func (c *Client) CallRaw(ctx context.Context, req Request) (*httpclient.Response, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}
	return c.SendRaw(ctx, req)
}

func (c *Client) do(ctx context.Context, req Request) (*httpclient.Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target, err := httpclient.BuildURL(c.apiURL, []string{c.accountID, req.Path}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	resp, err := c.httpClient.Do(httpclient.RequestOptions{
		Method:  req.Method,
		URL:     target,
		Query:   req.Query,
		Headers: c.headers(req.Headers),
		Body:    req.Body,
		Context: ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	return resp, nil
}

// classify maps a response to a result or an error. The first matching rule
// wins.
func classify(status int, body []byte) (*Response, error) {
	var parsed any
	if err := unmarshalNumbers(body, &parsed); err != nil {
		// 404 and 401 keep their kind whatever the body holds.
		switch status {
		case http.StatusNotFound:
			return nil, newAPIError(ErrNotFound, status, body, nil)
		case http.StatusUnauthorized:
			return nil, newAPIError(ErrUnauthorized, status, body, nil)
		}
		e := newAPIError(ErrAPI, status, body, nil)
		e.Message = "response body is not valid JSON"
		e.Cause = err
		return nil, e
	}
	envelope, _ := parsed.(map[string]any)

	switch {
	case status == http.StatusNotFound:
		return nil, newAPIError(ErrNotFound, status, body, envelope)
	case status == http.StatusUnauthorized:
		return nil, newAPIError(ErrUnauthorized, status, body, envelope)
	case status >= http.StatusBadRequest:
		return nil, newAPIError(ErrAPI, status, body, envelope)
	case !truthy(parsed):
		e := newAPIError(ErrAPI, status, body, envelope)
		e.Message = "empty response"
		return nil, e
	case envelope == nil:
		e := newAPIError(ErrAPI, status, body, nil)
		e.Message = "response is not an object"
		return nil, e
	case truthy(envelope["success"]):
		return &Response{StatusCode: status, Body: body, Data: envelope}, nil
	case truthy(envelope["batch_error_list"]):
		return nil, newBatchErrorListError(status, body, envelope)
	}
	// newAPIError picks up a truthy error_message.
	return nil, newAPIError(ErrAPI, status, body, envelope)
}

func outcome(err error) string {
	var batchErr *BatchErrorListError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &batchErr):
		return metrics.OutcomeBatchErrorList
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrUnauthorized):
		return metrics.OutcomeUnauthorized
	}
	return metrics.OutcomeAPIError
}

// unmarshalNumbers decodes exactly one JSON value, keeping numbers as
// json.Number.
func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
