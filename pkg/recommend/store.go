package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/natserract/recommend/pkg/recommend/persist"
	"go.uber.org/zap"
)

// LoadFunc returns the token of the given kind from caller-managed storage.
type LoadFunc func(ctx context.Context, kind Kind) (*Token, error)

// SaveFunc stores the token of the given kind in caller-managed storage.
type SaveFunc func(ctx context.Context, kind Kind, tok *Token) error

// Store holds the auth and refresh tokens of one Client. Tokens come from an
// injected LoadFunc/SaveFunc pair or from a persist.Persister; with neither
// configured the store is in-memory only.
type Store struct {
	mu        sync.RWMutex
	tokens    map[Kind]*Token
	load      LoadFunc
	save      SaveFunc
	persister persist.Persister
	logger    *zap.Logger
}

// NewStore creates a store. p may be nil.
func NewStore(p persist.Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tokens:    make(map[Kind]*Token),
		persister: p,
		logger:    logger,
	}
}

// SetFuncs installs caller-managed load and save functions. Either may be nil.
func (s *Store) SetFuncs(load LoadFunc, save SaveFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load = load
	s.save = save
}

// Get returns the token of the given kind. On a cache miss it asks the
// LoadFunc, or loads everything from the persister once and looks again.
func (s *Store) Get(ctx context.Context, kind Kind) (*Token, error) {
	s.mu.RLock()
	tok, ok := s.tokens[kind]
	load, p := s.load, s.persister
	s.mu.RUnlock()
	if ok {
		return tok, nil
	}

	if load != nil {
		tok, err := load(ctx, kind)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, kind)
		}
		s.mu.Lock()
		s.tokens[kind] = tok
		s.mu.Unlock()
		return tok, nil
	}

	if p != nil {
		if err := s.LoadAll(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		tok, ok = s.tokens[kind]
		s.mu.RUnlock()
		if ok {
			return tok, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, kind)
}

// Set stores tok under kind. A SaveFunc runs without the store lock held, so
// it may call back into the store. With a persister the persisted map is
// re-read, merged with the cached tokens and written back in one transaction.
func (s *Store) Set(ctx context.Context, kind Kind, tok *Token) error {
	s.mu.RLock()
	save := s.save
	s.mu.RUnlock()

	if save != nil {
		if err := save(ctx, kind, tok); err != nil {
			return err
		}
		s.cache(kind, tok)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persister == nil {
		s.tokens[kind] = tok
		return nil
	}

	var merged map[Kind]*Token
	err := s.persister.Update(ctx, func(current []byte) ([]byte, error) {
		stored, err := decodeTokens(current)
		if err != nil {
			return nil, err
		}
		merged = stored
		for k, t := range s.tokens {
			merged[k] = t
		}
		merged[kind] = tok
		return encodeTokens(merged)
	})
	if err != nil {
		if errors.Is(err, ErrTokenStoreCorrupt) {
			return err
		}
		return fmt.Errorf("%w: failed to save %s token: %v", ErrTokenStoreCorrupt, kind, err)
	}

	s.tokens = merged
	s.logger.Debug("Saved token", zap.String("kind", string(kind)), zap.Time("expire_at", tok.ExpireAt))
	return nil
}

// LoadAll replaces cached tokens with the persisted ones. A missing blob
// yields no tokens.
func (s *Store) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persister == nil {
		return fmt.Errorf("%w: no token persistence configured", ErrConfiguration)
	}

	data, err := s.persister.Load(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("No persisted tokens yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreCorrupt, err)
	}

	stored, err := decodeTokens(data)
	if err != nil {
		return err
	}
	for k, t := range stored {
		s.tokens[k] = t
	}
	s.logger.Debug("Loaded persisted tokens", zap.Int("count", len(stored)))
	return nil
}

// cache stores tok in memory only.
func (s *Store) cache(kind Kind, tok *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[kind] = tok
}

// Kinds returns the cached token kinds.
func (s *Store) Kinds() []Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]Kind, 0, len(s.tokens))
	for _, k := range []Kind{KindAuth, KindRefresh} {
		if _, ok := s.tokens[k]; ok {
			kinds = append(kinds, k)
		}
	}
	for k := range s.tokens {
		if k != KindAuth && k != KindRefresh {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func decodeTokens(data []byte) (map[Kind]*Token, error) {
	tokens := make(map[Kind]*Token)
	if len(data) == 0 {
		return tokens, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreCorrupt, err)
	}
	for k, rec := range raw {
		tok, err := TokenFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTokenStoreCorrupt, k, err)
		}
		tokens[Kind(k)] = tok
	}
	return tokens, nil
}

func encodeTokens(tokens map[Kind]*Token) ([]byte, error) {
	records := make(map[string]Record, len(tokens))
	for k, t := range tokens {
		records[string(k)] = t.Record()
	}
	return json.Marshal(records)
}
