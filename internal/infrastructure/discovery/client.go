// Package discovery talks to the persistence-discovery service: the
// component that knows, for a given worker address and a batch of
// outstanding subgraph uuids, which ones already finished writing their
// output to durable storage before the worker died. The discovery service
// itself is out of scope here — this package is only its client.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dspash/dspash-go/internal/infrastructure/cache"
	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// Client is what the coordinator's recovery path needs from the discovery
// service. Exposed as an interface so tests can fake it without a live
// HTTP server.
type Client interface {
	// FindPersistedOptimized returns the indexes into uuids whose subgraph
	// output is already durably persisted for addr, and therefore does not
	// need to be re-executed.
	FindPersistedOptimized(ctx context.Context, addr string, uuids []uuid.UUID) ([]int, error)
}

// findPersistedRequest is the body FindPersistedOptimized posts.
type findPersistedRequest struct {
	Addr  string      `json:"addr"`
	UUIDs []uuid.UUID `json:"uuids"`
}

type findPersistedResponse struct {
	PersistedIndexes []int `json:"indexes"`
}

// HTTPClient is the real discovery client: a plain HTTP/JSON POST to the
// discovery service's /v1/find-persisted-optimized endpoint, with a
// short-TTL Redis cache in front so a recovery storm (many workers dying in
// quick succession, each querying overlapping uuid sets) doesn't hammer the
// discovery service with duplicate requests. The upstream dspash project
// exposes this as a method on a gRPC-style stub; nothing else in this
// module's dependency surface uses gRPC, so this ships it as HTTP/JSON
// instead, matching how the rest of the coordinator's infrastructure talks
// to peer services.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	cache   *cache.RedisCache
	cacheTTL time.Duration
}

// NewHTTPClient builds a discovery client. cache may be nil, in which case
// every call goes straight to the discovery service.
func NewHTTPClient(baseURL string, httpClient *http.Client, redisCache *cache.RedisCache) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPClient{
		baseURL:  baseURL,
		http:     httpClient,
		cache:    redisCache,
		cacheTTL: 10 * time.Second,
	}
}

func (c *HTTPClient) FindPersistedOptimized(ctx context.Context, addr string, uuids []uuid.UUID) ([]int, error) {
	if len(uuids) == 0 {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("discovery:persisted:%s:%d", addr, hashUUIDs(uuids))
	if c.cache != nil {
		if cached, err := c.cache.Client().Get(ctx, cacheKey).Bytes(); err == nil {
			var resp findPersistedResponse
			if jsonErr := json.Unmarshal(cached, &resp); jsonErr == nil {
				return resp.PersistedIndexes, nil
			}
		}
	}

	body, err := json.Marshal(findPersistedRequest{Addr: addr, UUIDs: uuids})
	if err != nil {
		return nil, dserrors.Internal("discovery: encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/find-persisted-optimized", bytes.NewReader(body))
	if err != nil {
		return nil, dserrors.Internal("discovery: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dserrors.Internal("discovery: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dserrors.Internal(fmt.Sprintf("discovery: unexpected status %d", resp.StatusCode), nil)
	}

	var out findPersistedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, dserrors.Internal("discovery: decode response", err)
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(out); err == nil {
			_ = c.cache.Client().Set(ctx, cacheKey, encoded, c.cacheTTL).Err()
		}
	}

	return out.PersistedIndexes, nil
}

func hashUUIDs(uuids []uuid.UUID) uint64 {
	var h uint64 = 14695981039346656037
	for _, u := range uuids {
		for _, b := range u {
			h ^= uint64(b)
			h *= 1099511628211
		}
	}
	return h
}
