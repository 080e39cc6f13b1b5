package recommend

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/natserract/recommend/pkg/config"
	"github.com/natserract/recommend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var guardBase = time.Unix(1_700_000_000, 0)

// guardFixture is a client holding an auth token valid for 100s from
// guardBase and a refresh token valid for a day.
type guardFixture struct {
	api    *fakeAPI
	clock  *fixedClock
	client *Client
	logs   *observer.ObservedLogs
}

func newGuardFixture(t *testing.T, refreshOK bool, opts ...Option) *guardFixture {
	t.Helper()
	api := newFakeAPI(t)
	clock := newFixedClock(guardBase)

	api.handle(http.MethodPost, "authenticate/refresh", func(w http.ResponseWriter, r *http.Request) {
		if !refreshOK {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error_message": "refresh rejected"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"result":  map[string]any{"auth": remoteToken("auth-2", clock.Now().Add(time.Hour))},
		})
	})

	core, logs := observer.New(zapcore.DebugLevel)
	c := newTestClientWithLogger(t, api, zap.New(core), append([]Option{WithClock(clock.Now)}, opts...)...)

	ctx := context.Background()
	require.NoError(t, c.Tokens().Set(ctx, KindAuth, newToken("auth-1", guardBase.Add(100*time.Second), guardBase)))
	require.NoError(t, c.Tokens().Set(ctx, KindRefresh, newToken("refresh-1", guardBase.Add(24*time.Hour), guardBase)))

	return &guardFixture{api: api, clock: clock, client: c, logs: logs}
}

func (f *guardFixture) refreshes() int {
	return f.api.calls(http.MethodPost, "authenticate/refresh")
}

func (f *guardFixture) storeCalls() int {
	return f.api.calls(http.MethodGet, "store")
}

func TestGuardValidTokenNeverRefreshes(t *testing.T) {
	f := newGuardFixture(t, true)
	f.clock.Set(guardBase.Add(10 * time.Second))

	for i := 0; i < 2; i++ {
		_, err := f.client.Store.List(context.Background())
		require.NoError(t, err)
	}

	assert.Zero(t, f.refreshes())
	assert.Equal(t, 2, f.storeCalls())
	assert.Equal(t, "Bearer auth-1", f.api.last().Auth)
}

func TestGuardExpiredTokenRefreshesOnce(t *testing.T) {
	f := newGuardFixture(t, true)
	f.clock.Set(guardBase.Add(100 * time.Second))

	before := testutil.ToFloat64(metrics.TokenRefreshes.WithLabelValues(refreshTriggerExpired, "success"))

	_, err := f.client.Store.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.refreshes())
	assert.Equal(t, 1, f.storeCalls())

	reqs := f.api.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "authenticate/refresh", reqs[0].Path, "refresh happens before the call")
	assert.Equal(t, map[string]any{"refresh_token": "refresh-1", "update_refresh_token": false}, reqs[0].Body)
	assert.Equal(t, "Bearer auth-2", reqs[1].Auth)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TokenRefreshes.WithLabelValues(refreshTriggerExpired, "success")))

	// The new token is fresh, so the next call does not refresh again.
	_, err = f.client.Store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.refreshes())
}

func TestGuardExpiredTokenRefreshFailureBlocksCall(t *testing.T) {
	f := newGuardFixture(t, false)
	f.clock.Set(guardBase.Add(101 * time.Second))

	_, err := f.client.Store.List(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, 1, f.refreshes())
	assert.Zero(t, f.storeCalls(), "wrapped call must not run")
}

func TestGuardExpiredWithoutRefreshToken(t *testing.T) {
	api := newFakeAPI(t)
	clock := newFixedClock(guardBase.Add(time.Hour))
	c := newTestClient(t, api, WithClock(clock.Now), WithAuthToken(newToken("auth-1", guardBase.Add(time.Minute), guardBase)))

	_, err := c.Store.List(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Empty(t, api.all())
}

func TestGuardSoftRefreshFailureContinues(t *testing.T) {
	f := newGuardFixture(t, false)
	f.clock.Set(guardBase.Add(60 * time.Second))

	_, err := f.client.Store.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.refreshes())
	assert.Equal(t, 1, f.storeCalls())
	assert.Equal(t, "Bearer auth-1", f.api.last().Auth, "still-valid token is used")

	warnings := f.logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("Proactive token refresh failed, using current token")
	assert.Equal(t, 1, warnings.Len())
}

func TestGuardHardRefreshPolicyPropagates(t *testing.T) {
	f := newGuardFixture(t, false, WithRefreshPolicy(config.RefreshPolicyHard))
	f.clock.Set(guardBase.Add(60 * time.Second))

	_, err := f.client.Store.List(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Zero(t, f.storeCalls())
}

func TestGuardProactiveRefreshSucceeds(t *testing.T) {
	f := newGuardFixture(t, true)
	f.clock.Set(guardBase.Add(50 * time.Second))

	_, err := f.client.Store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.refreshes())
	assert.Equal(t, "Bearer auth-2", f.api.last().Auth)
}

func TestGuardWithoutTokenIsUnauthorized(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api)

	_, err := c.Store.List(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, api.all())
}

func TestGuardConcurrentCallersRefreshOnce(t *testing.T) {
	f := newGuardFixture(t, true)
	f.clock.Set(guardBase.Add(200 * time.Second))

	done := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := f.client.Store.List(context.Background())
			done <- err
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-done)
	}

	assert.Equal(t, 1, f.refreshes())
	assert.Equal(t, 5, f.storeCalls())
}
