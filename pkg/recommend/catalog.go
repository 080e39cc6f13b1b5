package recommend

import (
	"context"
	"net/http"
)

// UploadMode controls how a catalog upload replaces existing data.
type UploadMode string

const (
	UploadBlock             UploadMode = "block"
	UploadAppend            UploadMode = "append"
	UploadAppendByTimestamp UploadMode = "append_by_timestamp"
)

// Upload levels.
const (
	LevelAccount = "account"
	LevelStore   = "store"
)

// UploadLevel scopes an upload to the account or one store.
type UploadLevel struct {
	Mode      string `json:"mode"`
	StoreCode string `json:"store_code,omitempty"`
}

// CatalogUploadAPI drives catalog uploads: start an upload, send list,
// product and variation batches, then commit or roll back.
type CatalogUploadAPI struct {
	client   *Client
	endpoint string
}

// Start opens a new upload.
func (a *CatalogUploadAPI) Start(ctx context.Context, mode UploadMode, level UploadLevel, opts ...CallOption) (*Response, error) {
	switch mode {
	case UploadBlock, UploadAppend, UploadAppendByTimestamp:
	default:
		return nil, invalidArgument("incorrect upload mode %q", mode)
	}
	switch level.Mode {
	case LevelAccount:
		level.StoreCode = ""
	case LevelStore:
		if level.StoreCode == "" {
			return nil, invalidArgument("store code is required for store level uploads")
		}
	default:
		return nil, invalidArgument("incorrect level mode %q", level.Mode)
	}

	data := map[string]any{
		"mode":  mode,
		"level": level,
	}
	return a.client.call(ctx, http.MethodPost, a.endpoint, data, opts)
}

// Get returns the state of upload id.
func (a *CatalogUploadAPI) Get(ctx context.Context, id string, opts ...CallOption) (*Response, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	return a.client.call(ctx, http.MethodGet, joinPath(a.endpoint, id), nil, opts)
}

func (a *CatalogUploadAPI) ListBatch(ctx context.Context, id string, data any, opts ...CallOption) (*Response, error) {
	return a.batch(ctx, id, "list_batch", data, opts)
}

func (a *CatalogUploadAPI) ProductBatch(ctx context.Context, id string, data any, opts ...CallOption) (*Response, error) {
	return a.batch(ctx, id, "product_batch", data, opts)
}

func (a *CatalogUploadAPI) VariationBatch(ctx context.Context, id string, data any, opts ...CallOption) (*Response, error) {
	return a.batch(ctx, id, "variation_batch", data, opts)
}

// SimpleListBatch uploads lists without opening an upload first.
func (a *CatalogUploadAPI) SimpleListBatch(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, "list_batch"), data, opts)
}

// SimpleProductBatch uploads products without opening an upload first.
func (a *CatalogUploadAPI) SimpleProductBatch(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, "product_batch"), data, opts)
}

// SimpleVariationBatch uploads variations without opening an upload first.
func (a *CatalogUploadAPI) SimpleVariationBatch(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, "variation_batch"), data, opts)
}

// Commit completes upload id.
func (a *CatalogUploadAPI) Commit(ctx context.Context, id string, opts ...CallOption) (*Response, error) {
	return a.batch(ctx, id, "commit", nil, opts)
}

// Rollback discards upload id.
func (a *CatalogUploadAPI) Rollback(ctx context.Context, id string, opts ...CallOption) (*Response, error) {
	return a.batch(ctx, id, "rollback", nil, opts)
}

func (a *CatalogUploadAPI) batch(ctx context.Context, id, action string, data any, opts []CallOption) (*Response, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, id, action), data, opts)
}
