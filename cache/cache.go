// Package cache is the short-TTL download-token accelerator. It is strictly a
// non-authoritative optimization: the metadata store remains the source of
// truth and every miss falls through to it.
package cache

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type TokenCache struct {
	lru *expirable.LRU[string, uuid.UUID]
}

func New(size int, ttl time.Duration) *TokenCache {
	return &TokenCache{lru: expirable.NewLRU[string, uuid.UUID](size, nil, ttl)}
}

func (c *TokenCache) Get(token string) (uuid.UUID, bool) {
	if c == nil {
		return uuid.Nil, false
	}
	return c.lru.Get(token)
}

func (c *TokenCache) Put(token string, archiveID uuid.UUID) {
	if c == nil {
		return
	}
	c.lru.Add(token, archiveID)
}

func (c *TokenCache) Forget(token string) {
	if c == nil {
		return
	}
	c.lru.Remove(token)
}
