package recommend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// AuthenticateAPI exchanges API keys and refresh tokens for token pairs.
type AuthenticateAPI struct {
	client   *Client
	endpoint string
}

// Call exchanges apiKey for a fresh auth and refresh token pair.
func (a *AuthenticateAPI) Call(ctx context.Context, apiKey string) (*Response, error) {
	return a.client.Send(ctx, Request{
		Method: http.MethodPost,
		Path:   a.endpoint,
		Body:   map[string]any{"key": apiKey},
	})
}

// RefreshOptions configures AuthenticateAPI.Refresh.
type RefreshOptions struct {
	// RefreshToken overrides the stored refresh token.
	RefreshToken *Token
	// UpdateRefreshToken asks the server to issue a new refresh token too.
	UpdateRefreshToken bool
}

// Refresh exchanges a refresh token for a new auth token.
func (a *AuthenticateAPI) Refresh(ctx context.Context, opts RefreshOptions) (*Response, error) {
	tok := opts.RefreshToken
	if tok == nil {
		stored, err := a.client.store.Get(ctx, KindRefresh)
		if err != nil {
			e := authError("refresh token unavailable")
			e.Cause = err
			return nil, e
		}
		tok = stored
	}
	if tok.ExpiredAt(a.client.now()) {
		return nil, authError("refresh token expired at %s", tok.ExpireAt)
	}

	return a.client.Send(ctx, Request{
		Method: http.MethodPost,
		Path:   a.endpoint + "/refresh",
		Body: map[string]any{
			"refresh_token":        tok.Value,
			"update_refresh_token": opts.UpdateRefreshToken,
		},
	})
}

// UpdateTokens stores the tokens of an authenticate or refresh response. The
// auth token is always required, the refresh token only when
// updateRefreshToken is set.
func (c *Client) UpdateTokens(ctx context.Context, resp *Response, updateRefreshToken bool) error {
	if resp == nil {
		return authError("empty authentication response")
	}

	data := resp.Data
	if result, ok := data["result"]; ok && truthy(result) {
		inner, ok := result.(map[string]any)
		if !ok {
			return authError("unexpected authentication result of type %T", result)
		}
		data = inner
	}

	required := map[Kind]bool{KindAuth: true, KindRefresh: updateRefreshToken}
	now := c.now()

	for _, kind := range []Kind{KindAuth, KindRefresh} {
		raw, ok := data[string(kind)]
		if !ok || !truthy(raw) {
			if required[kind] {
				return authError("unable to get %s token", kind)
			}
			continue
		}

		tok, err := TokenFromRemote(raw, now)
		if err != nil {
			e := authError("invalid %s token", kind)
			e.Cause = err
			return e
		}
		if err := c.store.Set(ctx, kind, tok); err != nil {
			return fmt.Errorf("failed to store %s token: %w", kind, err)
		}
		c.logger.Debug("Updated token",
			zap.String("kind", string(kind)),
			zap.Time("expire_at", tok.ExpireAt))
	}
	return nil
}

// Login exchanges apiKey, or the configured key when apiKey is empty, for a
// token pair, stores both tokens and attaches the auth token.
func (c *Client) Login(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey == "" {
		return fmt.Errorf("%w: api key is required", ErrConfiguration)
	}

	c.logger.Info("Authenticating with Recommend", zap.String("account_id", c.accountID))

	resp, err := c.Authenticate.Call(ctx, apiKey)
	if err != nil {
		return asAuthError("authentication request failed", err)
	}
	if err := c.UpdateTokens(ctx, resp, true); err != nil {
		return err
	}
	if err := c.SetAuthToken(ctx, nil); err != nil {
		return err
	}

	c.logger.Info("Successfully authenticated", zap.String("account_id", c.accountID))
	return nil
}

// RefreshTokens runs the refresh exchange and stores the new tokens.
func (c *Client) RefreshTokens(ctx context.Context, updateRefreshToken bool) error {
	resp, err := c.Authenticate.Refresh(ctx, RefreshOptions{UpdateRefreshToken: updateRefreshToken})
	if err != nil {
		return asAuthError("token refresh failed", err)
	}
	return c.UpdateTokens(ctx, resp, updateRefreshToken)
}

// asAuthError reports err as an authentication failure, keeping the status
// and body of a remote error.
func asAuthError(msg string, err error) error {
	if errors.Is(err, ErrAuthentication) {
		return err
	}
	e := authError("%s", msg)
	e.Cause = err
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		e.StatusCode = apiErr.StatusCode
		e.ErrorCode = apiErr.ErrorCode
		e.Body = apiErr.Body
	}
	return e
}
