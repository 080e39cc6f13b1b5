package recommend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Capability is the set of operations a Resource supports.
type Capability uint8

const (
	CapList Capability = 1 << iota
	CapGet
	CapCreate
	CapUpdate
	CapDelete

	CapRead = CapList | CapGet
	CapCRUD = CapRead | CapCreate | CapUpdate | CapDelete
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapList, "list"},
	{CapGet, "get"},
	{CapCreate, "create"},
	{CapUpdate, "update"},
	{CapDelete, "delete"},
}

func (c Capability) String() string {
	var names []string
	for _, cn := range capabilityNames {
		if c&cn.cap != 0 {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// CallOption adjusts a single resource call.
type CallOption func(*callOptions)

type callOptions struct {
	query   url.Values
	headers map[string]string
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) CallOption {
	return func(o *callOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		o.query.Add(key, value)
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// Resource is a CRUD endpoint. Operations outside its capability set fail
// with ErrUnsupportedOperation before any request is made.
type Resource struct {
	client   *Client
	endpoint string
	caps     Capability
}

func newResource(c *Client, endpoint string, caps Capability) *Resource {
	return &Resource{client: c, endpoint: endpoint, caps: caps}
}

// Endpoint returns the path of the resource relative to the account URL.
func (r *Resource) Endpoint() string {
	return r.endpoint
}

// Capabilities returns the supported operations.
func (r *Resource) Capabilities() Capability {
	return r.caps
}

// Supports reports whether every operation in op is supported.
func (r *Resource) Supports(op Capability) bool {
	return r.caps&op == op
}

func (r *Resource) require(op Capability) error {
	if !r.Supports(op) {
		return fmt.Errorf("%w: %s does not support %s", ErrUnsupportedOperation, r.endpoint, op)
	}
	return nil
}

func (r *Resource) List(ctx context.Context, opts ...CallOption) (*Response, error) {
	if err := r.require(CapList); err != nil {
		return nil, err
	}
	return r.send(ctx, http.MethodGet, r.path(), nil, opts)
}

func (r *Resource) Get(ctx context.Context, id string, opts ...CallOption) (*Response, error) {
	if err := r.require(CapGet); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	return r.send(ctx, http.MethodGet, r.path(id), nil, opts)
}

// Create posts data to the resource, under id when one is given.
func (r *Resource) Create(ctx context.Context, id string, data any, opts ...CallOption) (*Response, error) {
	if err := r.require(CapCreate); err != nil {
		return nil, err
	}
	return r.send(ctx, http.MethodPost, r.path(id), data, opts)
}

func (r *Resource) Update(ctx context.Context, id string, data any, opts ...CallOption) (*Response, error) {
	if err := r.require(CapUpdate); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	return r.send(ctx, http.MethodPut, r.path(id), data, opts)
}

func (r *Resource) Delete(ctx context.Context, id string, opts ...CallOption) (*Response, error) {
	if err := r.require(CapDelete); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	return r.send(ctx, http.MethodDelete, r.path(id), nil, opts)
}

// path joins the endpoint with the non-empty parts.
func (r *Resource) path(parts ...string) string {
	return joinPath(r.endpoint, parts...)
}

func (r *Resource) send(ctx context.Context, method, path string, body any, opts []CallOption) (*Response, error) {
	return r.client.call(ctx, method, path, body, opts)
}

// call builds a guarded request from resource call options.
func (c *Client) call(ctx context.Context, method, path string, body any, opts []CallOption) (*Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return c.Call(ctx, Request{
		Method:  method,
		Path:    path,
		Body:    body,
		Query:   o.query,
		Headers: o.headers,
	})
}

func joinPath(endpoint string, parts ...string) string {
	segments := []string{endpoint}
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return strings.Join(segments, "/")
}

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidArgument)
	}
	return nil
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
