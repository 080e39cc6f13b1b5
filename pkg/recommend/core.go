package recommend

import (
	"context"
	"net/http"
)

// OrderAPI is the order resource. Orders cannot be listed.
type OrderAPI struct {
	*Resource
}

// Batch upserts orders in bulk.
func (a *OrderAPI) Batch(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.send(ctx, http.MethodPost, a.path("batch"), data, opts)
}

// ConfigAPI reads and updates the account configuration.
type ConfigAPI struct {
	client   *Client
	endpoint string
}

// AccountConfig holds the account defaults.
type AccountConfig struct {
	DefaultStore     string `json:"default_store"`
	DefaultCurrency  string `json:"default_currency"`
	DefaultPriceList string `json:"default_price_list"`
}

func (a *ConfigAPI) Get(ctx context.Context, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodGet, a.endpoint, nil, opts)
}

func (a *ConfigAPI) Update(ctx context.Context, cfg AccountConfig, opts ...CallOption) (*Response, error) {
	if cfg.DefaultStore == "" || cfg.DefaultCurrency == "" || cfg.DefaultPriceList == "" {
		return nil, invalidArgument("default store, currency and price list are required")
	}
	return a.client.call(ctx, http.MethodPut, a.endpoint, cfg, opts)
}
