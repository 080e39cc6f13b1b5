package recommend

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshLifetimePercent is the share of a token's lifetime after which it
// should be refreshed.
const RefreshLifetimePercent = 50

// Kind names a token slot in the Store.
type Kind string

const (
	KindAuth    Kind = "auth"
	KindRefresh Kind = "refresh"
)

// Token is an auth or refresh credential. Tokens are never mutated; a refresh
// replaces them.
type Token struct {
	Value     string
	ExpireAt  time.Time
	CreatedAt time.Time
}

// NewToken builds a token created now.
func NewToken(value string, expireAt time.Time) *Token {
	return newToken(value, expireAt, time.Now())
}

func newToken(value string, expireAt, createdAt time.Time) *Token {
	expireAt = expireAt.Truncate(time.Microsecond)
	createdAt = createdAt.Truncate(time.Microsecond)
	if createdAt.After(expireAt) {
		createdAt = expireAt
	}
	return &Token{Value: value, ExpireAt: expireAt, CreatedAt: createdAt}
}

// ExpiredAt reports whether the token is expired at now.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpireAt)
}

func (t *Token) IsExpired() bool {
	return t.ExpiredAt(time.Now())
}

func (t *Token) LifeTime() time.Duration {
	return t.ExpireAt.Sub(t.CreatedAt)
}

func (t *Token) RefreshLifeTime() time.Duration {
	return t.LifeTime() * RefreshLifetimePercent / 100
}

// NeedsRefreshAt reports whether the refresh point has passed at now. A token
// that needs a refresh stays usable until it expires.
func (t *Token) NeedsRefreshAt(now time.Time) bool {
	return !now.Before(t.CreatedAt.Add(t.RefreshLifeTime()))
}

func (t *Token) NeedsRefresh() bool {
	return t.NeedsRefreshAt(time.Now())
}

// Equal compares value and both timestamps.
func (t *Token) Equal(o *Token) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Value == o.Value && t.ExpireAt.Equal(o.ExpireAt) && t.CreatedAt.Equal(o.CreatedAt)
}

// Claims decodes the JWT payload of the token without verifying it.
func (t *Token) Claims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.Value, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}
	return claims, nil
}

// Record is the persisted form of a token. Times are seconds since the epoch.
type Record struct {
	Token     string  `json:"token"`
	ExpireAt  float64 `json:"expire_at"`
	CreatedAt float64 `json:"created_at"`
}

// Record converts the token to its persisted form.
func (t *Token) Record() Record {
	return Record{
		Token:     t.Value,
		ExpireAt:  toSeconds(t.ExpireAt),
		CreatedAt: toSeconds(t.CreatedAt),
	}
}

// TokenFromRecord decodes a persisted record. token and expire_at are
// required; a missing created_at means now.
func TokenFromRecord(raw json.RawMessage) (*Token, error) {
	var fields map[string]any
	if err := unmarshalNumbers(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: record is not an object", ErrInvalidTokenData)
	}

	value, err := requireString(fields, "token")
	if err != nil {
		return nil, err
	}
	expireAt, err := requireTime(fields, "expire_at")
	if err != nil {
		return nil, err
	}

	createdAt := time.Now()
	if v, ok := fields["created_at"]; ok && v != nil {
		createdAt, err = parseTime("created_at", v)
		if err != nil {
			return nil, err
		}
	}
	return newToken(value, expireAt, createdAt), nil
}

// TokenFromRemote decodes a token returned by the authenticate endpoints.
// token and expire_date are required; the token is created at now.
func TokenFromRemote(raw any, now time.Time) (*Token, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: token is not an object", ErrInvalidTokenData)
	}

	value, err := requireString(fields, "token")
	if err != nil {
		return nil, err
	}
	expireAt, err := requireTime(fields, "expire_date")
	if err != nil {
		return nil, err
	}
	return newToken(value, expireAt, now), nil
}

func requireString(fields map[string]any, key string) (string, error) {
	v, ok := fields[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidTokenData, key)
	}
	return v, nil
}

func requireTime(fields map[string]any, key string) (time.Time, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrInvalidTokenData, key)
	}
	return parseTime(key, v)
}

// parseTime accepts epoch seconds or an RFC 3339 string.
func parseTime(key string, v any) (time.Time, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidTokenData, key, err)
		}
		return fromSeconds(f), nil
	case float64:
		return fromSeconds(t), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidTokenData, key, err)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s has type %T", ErrInvalidTokenData, key, v)
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}
