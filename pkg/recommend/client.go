// Package recommend provides a client for the Recommend e-commerce and
// marketing REST API.
//
// Every resource call runs through the same pipeline: the client makes sure a
// usable auth token is attached (refreshing it when it is expired or past half
// of its lifetime), sends the request, and classifies the response envelope
// into a result or one of the typed errors in errors.go.
//
// Tokens are kept per Client in a Store. They can be persisted through one of
// the backends in the persist subpackage or through caller-supplied load and
// save functions.
package recommend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/natserract/recommend/pkg/config"
	httpclient "github.com/natserract/recommend/pkg/http"
	"github.com/natserract/recommend/pkg/recommend/persist"
	"go.uber.org/zap"
)

// Client is the main client for the Recommend API.
type Client struct {
	apiURL        string
	accountID     string
	apiKey        string
	refreshPolicy string

	httpClient *httpclient.Client
	store      *Store
	logger     *zap.Logger
	now        func() time.Time

	persister persist.Persister
	loadFunc  LoadFunc
	saveFunc  SaveFunc
	initial   *Token

	sessionMu sync.RWMutex
	authToken *Token

	guardMu sync.Mutex

	Authenticate  *AuthenticateAPI
	Contact       *ContactAPI
	Messaging     *MessagingAPI
	Order         *OrderAPI
	Config        *ConfigAPI
	Store         *Resource
	Webhook       *Resource
	Currency      *Resource
	Environment   *Resource
	PriceList     *Resource
	CatalogUpload *CatalogUploadAPI
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport built from the config.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPersister sets where tokens are persisted. It overrides the file
// persister derived from Config.CredentialPath.
func WithPersister(p persist.Persister) Option {
	return func(c *Client) {
		c.persister = p
	}
}

// WithTokenFuncs makes the Store load and save tokens through the given
// functions instead of a persister.
func WithTokenFuncs(load LoadFunc, save SaveFunc) Option {
	return func(c *Client) {
		c.loadFunc = load
		c.saveFunc = save
	}
}

// WithClock replaces time.Now for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithRefreshPolicy selects what happens when a proactive refresh fails:
// config.RefreshPolicySoft logs and continues, config.RefreshPolicyHard fails
// the call.
func WithRefreshPolicy(policy string) Option {
	return func(c *Client) {
		c.refreshPolicy = policy
	}
}

// WithAuthToken attaches tok from the start.
func WithAuthToken(tok *Token) Option {
	return func(c *Client) {
		c.initial = tok
	}
}

// NewClient creates a new client with default production logger
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	logger, _ := zap.NewProduction()
	return NewClientWithLogger(cfg, logger, opts...)
}

// NewClientWithLogger creates a new client with a custom logger
func NewClientWithLogger(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrConfiguration)
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = config.DefaultAPIURL
	}

	c := &Client{
		apiURL:        apiURL,
		accountID:     cfg.AccountID,
		apiKey:        cfg.APIKey,
		refreshPolicy: cfg.RefreshPolicy,
		logger:        logger,
		now:           time.Now,
	}
	if cfg.CredentialPath != "" && (cfg.TokenBackend == "" || cfg.TokenBackend == config.BackendFile) {
		c.persister = persist.NewFile(cfg.CredentialPath)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.refreshPolicy == "" {
		c.refreshPolicy = config.RefreshPolicySoft
	}
	if c.refreshPolicy != config.RefreshPolicySoft && c.refreshPolicy != config.RefreshPolicyHard {
		return nil, fmt.Errorf("%w: unknown refresh policy %q", ErrConfiguration, c.refreshPolicy)
	}

	if c.httpClient == nil {
		var httpOpts []httpclient.Option
		if cfg.HTTP.Timeout > 0 {
			httpOpts = append(httpOpts, httpclient.WithTimeout(cfg.HTTP.Timeout))
		}
		if cfg.HTTP.RetryMaxElapsed > 0 {
			httpOpts = append(httpOpts, httpclient.WithMaxElapsed(cfg.HTTP.RetryMaxElapsed))
		}
		c.httpClient = httpclient.NewClientWithLogger(logger, httpOpts...)
	}

	c.store = NewStore(c.persister, logger)
	c.store.SetFuncs(c.loadFunc, c.saveFunc)

	if c.initial != nil {
		c.store.cache(KindAuth, c.initial)
		c.attach(c.initial)
	}

	c.mapAPIs()
	return c, nil
}

func (c *Client) mapAPIs() {
	c.Authenticate = &AuthenticateAPI{client: c, endpoint: "authenticate"}

	c.Contact = newContactAPI(c)
	c.Messaging = newMessagingAPI(c)
	c.Order = &OrderAPI{Resource: newResource(c, "order", CapGet|CapCreate|CapUpdate|CapDelete)}

	c.Config = &ConfigAPI{client: c, endpoint: "config"}
	c.Store = newResource(c, "store", CapCRUD)
	c.Webhook = newResource(c, "webhook", CapCRUD&^CapUpdate)

	c.Currency = newResource(c, "currency", CapList|CapCreate|CapDelete)
	c.Environment = newResource(c, "environment", CapList|CapCreate|CapDelete)
	c.PriceList = newResource(c, "price_list", CapCRUD&^CapUpdate)
	c.CatalogUpload = &CatalogUploadAPI{client: c, endpoint: "catalog/upload"}
}

// AccountID returns the account the client is bound to.
func (c *Client) AccountID() string {
	return c.accountID
}

// Tokens returns the client's token store.
func (c *Client) Tokens() *Store {
	return c.store
}

// SetAuthToken attaches tok to subsequent requests. A nil tok attaches the
// stored auth token.
func (c *Client) SetAuthToken(ctx context.Context, tok *Token) error {
	if tok == nil {
		stored, err := c.store.Get(ctx, KindAuth)
		if err != nil {
			return err
		}
		tok = stored
	}
	c.attach(tok)
	return nil
}

// AuthTokenAttached reports whether requests carry a bearer token.
func (c *Client) AuthTokenAttached() bool {
	return c.attached() != nil
}

func (c *Client) attach(tok *Token) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.authToken = tok
}

func (c *Client) attached() *Token {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.authToken
}

// headers returns the default headers merged with extra.
func (c *Client) headers(extra map[string]string) map[string]string {
	h := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if tok := c.attached(); tok != nil {
		h["Authorization"] = "Bearer " + tok.Value
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}
