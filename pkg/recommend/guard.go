package recommend

import (
	"context"

	"github.com/natserract/recommend/pkg/config"
	"github.com/natserract/recommend/pkg/metrics"
	"go.uber.org/zap"
)

const (
	refreshTriggerExpired = "expired"
	refreshTriggerDue     = "due"
)

// guard makes sure a usable auth token is attached before a call. An expired
// token must be refreshed; a token past its refresh point is refreshed if
// possible and otherwise used as is, unless the refresh policy is hard.
func (c *Client) guard(ctx context.Context) error {
	c.guardMu.Lock()
	defer c.guardMu.Unlock()

	if c.attached() == nil {
		if tok, err := c.store.Get(ctx, KindAuth); err == nil {
			c.attach(tok)
		} else {
			c.logger.Debug("No stored auth token", zap.Error(err))
		}
	}

	if tok := c.attached(); tok != nil {
		now := c.now()
		switch {
		case tok.ExpiredAt(now):
			if err := c.refreshAndAttach(ctx, refreshTriggerExpired); err != nil {
				return err
			}
		case tok.NeedsRefreshAt(now):
			if err := c.refreshAndAttach(ctx, refreshTriggerDue); err != nil {
				if c.refreshPolicy == config.RefreshPolicyHard {
					return err
				}
				c.logger.Warn("Proactive token refresh failed, using current token",
					zap.Error(err),
					zap.Time("expire_at", tok.ExpireAt))
			}
		}
	}

	if c.attached() == nil {
		return &APIError{Kind: ErrUnauthorized, Message: "no auth token attached"}
	}
	return nil
}

func (c *Client) refreshAndAttach(ctx context.Context, trigger string) error {
	c.logger.Info("Refreshing auth token", zap.String("trigger", trigger))

	if err := c.RefreshTokens(ctx, false); err != nil {
		metrics.TokenRefreshes.WithLabelValues(trigger, "failure").Inc()
		return err
	}
	metrics.TokenRefreshes.WithLabelValues(trigger, "success").Inc()

	return c.SetAuthToken(ctx, nil)
}
