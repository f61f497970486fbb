package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/postdeck/postdeck/internal/models"
	"github.com/postdeck/postdeck/internal/repository"
	"github.com/postdeck/postdeck/pkg/utils"
)

// ErrNoCredentials means the account has no credential reference, or the
// reference points at nothing.
var ErrNoCredentials = errors.New("no credentials linked to account")

type cachedToken struct {
	token    string
	cachedAt time.Time
}

// TokenCache is a process-local cache of decrypted access tokens keyed by
// credential reference. Lost on restart; credentials are durably stored in
// the credentials table.
type TokenCache struct {
	cr        repository.CredentialRepository
	secretKey []byte
	ttl       time.Duration

	mu      sync.Mutex
	entries map[int64]cachedToken
}

func NewTokenCache(cr repository.CredentialRepository, secretKey []byte, ttl time.Duration) *TokenCache {
	return &TokenCache{
		cr:        cr,
		secretKey: secretKey,
		ttl:       ttl,
		entries:   make(map[int64]cachedToken),
	}
}

func (tc *TokenCache) GetToken(ctx context.Context, account *models.SocialAccount) (string, error) {
	if account == nil || account.CredentialRef == nil {
		return "", ErrNoCredentials
	}
	ref := *account.CredentialRef

	tc.mu.Lock()
	entry, ok := tc.entries[ref]
	tc.mu.Unlock()

	if ok && time.Since(entry.cachedAt) < tc.ttl {
		return entry.token, nil
	}

	cred, err := tc.cr.GetByRef(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("fetch credential %d: %w", ref, err)
	}
	if cred == nil {
		return "", ErrNoCredentials
	}

	token, err := utils.Decrypt(cred.AccessToken, tc.secretKey)
	if err != nil {
		return "", fmt.Errorf("decrypt token for credential %d: %w", ref, err)
	}

	tc.mu.Lock()
	tc.entries[ref] = cachedToken{token: token, cachedAt: time.Now()}
	tc.mu.Unlock()

	return token, nil
}

// Invalidate drops a cached token, forcing the next lookup to hit the store.
func (tc *TokenCache) Invalidate(ref int64) {
	tc.mu.Lock()
	delete(tc.entries, ref)
	tc.mu.Unlock()
}
