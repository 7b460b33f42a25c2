package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/square/go-jose/v3"
	"golang.org/x/time/rate"
)

var errKeyNotFound = errors.New("signing key not found")

// KeySet fetches a JSON Web Key Set, caches it for ttl and refetches it at most
// fetchesPerMinute times a minute when a token names a key id it does not hold.
type KeySet struct {
	url     string
	ttl     time.Duration
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time

	mu        sync.Mutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
}

type KeySetOptions struct {
	TTL              time.Duration
	FetchesPerMinute int
	Client           *http.Client
}

func NewKeySet(url string, options KeySetOptions) *KeySet {
	ttl := options.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	perMinute := options.FetchesPerMinute
	if perMinute <= 0 {
		perMinute = 5
	}
	client := options.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &KeySet{
		url:     url,
		ttl:     ttl,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		now:     time.Now,
	}
}

// Key returns the public key published under kid.
func (k *KeySet) Key(ctx context.Context, kid string) (interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	stale := k.fetchedAt.IsZero() || k.now().Sub(k.fetchedAt) > k.ttl
	if !stale {
		if key, ok := k.lookup(kid); ok {
			return key, nil
		}
	}
	if !k.limiter.Allow() {
		if key, ok := k.lookup(kid); ok {
			return key, nil
		}
		return nil, fmt.Errorf("jwks refetch rate limited: %w", errKeyNotFound)
	}
	if err := k.refresh(ctx); err != nil {
		if key, ok := k.lookup(kid); ok {
			return key, nil
		}
		return nil, err
	}
	if key, ok := k.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("kid %q: %w", kid, errKeyNotFound)
}

func (k *KeySet) lookup(kid string) (interface{}, bool) {
	for _, key := range k.keys.Key(kid) {
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		return key.Key, true
	}
	return nil, false
}

func (k *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}
	var keys jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&keys); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	k.keys = keys
	k.fetchedAt = k.now()
	return nil
}
