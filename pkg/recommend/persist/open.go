package persist

import (
	"context"
	"fmt"

	"github.com/natserract/recommend/pkg/config"
	"go.uber.org/zap"
)

// Persister is implemented by every backend in this package.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}

// Open builds the backend selected by cfg.TokenBackend. The memory backend
// yields a nil Persister. The returned close func is never nil.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Persister, func(), error) {
	noop := func() {}

	switch cfg.TokenBackend {
	case config.BackendMemory:
		return nil, noop, nil

	case config.BackendFile:
		return NewFile(cfg.CredentialPath), noop, nil

	case config.BackendRedis:
		r, err := NewRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key + ":" + cfg.AccountID,
		})
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Using redis token backend", zap.String("addr", cfg.Redis.Addr))
		return r, func() { _ = r.Close() }, nil

	case config.BackendPostgres:
		db, err := NewDB(ctx, NewDBConfig(), logger)
		if err != nil {
			return nil, noop, err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return NewPostgres(db.Pool(), cfg.AccountID), db.Close, nil

	case config.BackendKeyring:
		return NewKeyring(cfg.Keyring.Service, cfg.Keyring.User+":"+cfg.AccountID), noop, nil
	}

	return nil, noop, fmt.Errorf("unknown token backend %q", cfg.TokenBackend)
}
