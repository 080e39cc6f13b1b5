package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/zalando/go-keyring"
)

// Keyring persists the token blob in the OS keychain. The keychain has no
// cross-process locking, so Update is only safe with a single writer process.
type Keyring struct {
	service string
	user    string
	mu      sync.Mutex
}

// NewKeyring stores the blob under service/user.
func NewKeyring(service, user string) *Keyring {
	return &Keyring{service: service, user: user}
}

// Load reads the blob.
func (k *Keyring) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("keyring entry %s/%s: %w", k.service, k.user, fs.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// Update serializes writers within this process only.
func (k *Keyring) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	current, err := k.Load(ctx)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, string(next))
}

// Delete removes the entry.
func (k *Keyring) Delete() error {
	err := keyring.Delete(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
