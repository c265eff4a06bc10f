// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pool is the connection pool collaborator (spec.md §6): one
// *http.Client per upstream URL, so forwarded requests reuse keep-alive
// connections to each backend instead of dialing fresh ones. The package
// hands out plain *http.Client values, not httputil.ReverseProxy instances.
// The per-upstream reuse is grounded on other_examples's
// c3ca1e12_Polqt-golang-journey service-mesh-proxy proxy.go (its
// per-upstream *httputil.ReverseProxy field); its circuit breaker and TCP
// tunnel are not part of this package, those concerns belong to presence
// detection (registry) and the pipeline's forwarding step, respectively.
//
// Clients are sharded across N independent locks via rendezvous hashing
// (spec.md §4.C "Connection pool sharding") so idle-eviction bookkeeping
// for one upstream never blocks a lookup for another, and so adding or
// removing an upstream during a metamorphic transition reshuffles at most
// 1/N of the existing shard assignments instead of none or all of them.
package pool

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

const defaultShardCount = 16

// entry is one pooled client plus its last-use clock for idle eviction.
type entry struct {
	client   *http.Client
	lastUsed atomic.Int64 // unix nanos
}

type shard struct {
	mu      sync.Mutex
	clients map[string]*entry
}

// Pool hands out one *http.Client per upstream URL, sharded for low lock
// contention, and evicts clients idle longer than IdleTimeout.
type Pool struct {
	shards        []*shard
	shardIndex    map[string]int
	rendezvous    *rendezvous.Rendezvous
	idleTimeout   time.Duration
	maxIdlePerURL int

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

func hashString(s string) uint64 { return xxhash.Sum64String(s) }

// New builds a Pool with shardCount shards (defaulting to 16 when <= 0),
// an idle timeout after which an unused client's connections are closed
// and the entry dropped (default 90s per spec.md §5's background-task
// table), and maxIdlePerURL controlling each client's
// Transport.MaxIdleConnsPerHost.
func New(shardCount int, idleTimeout time.Duration, maxIdlePerURL int) *Pool {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}
	if maxIdlePerURL <= 0 {
		maxIdlePerURL = 8
	}

	names := make([]string, shardCount)
	shards := make([]*shard, shardCount)
	shardIndex := make(map[string]int, shardCount)
	for i := 0; i < shardCount; i++ {
		name := fmt.Sprintf("shard-%d", i)
		names[i] = name
		shards[i] = &shard{clients: make(map[string]*entry)}
		shardIndex[name] = i
	}

	return &Pool{
		shards:        shards,
		shardIndex:    shardIndex,
		rendezvous:    rendezvous.New(names, hashString),
		idleTimeout:   idleTimeout,
		maxIdlePerURL: maxIdlePerURL,
		stopChan:      make(chan struct{}),
	}
}

func (p *Pool) shardFor(upstreamURL string) *shard {
	name := p.rendezvous.Lookup(upstreamURL)
	return p.shards[p.shardIndex[name]]
}

// Client returns the pooled *http.Client for upstreamURL, constructing one
// on first use.
func (p *Pool) Client(upstreamURL string) *http.Client {
	s := p.shardFor(upstreamURL)

	s.mu.Lock()
	e, ok := s.clients[upstreamURL]
	if !ok {
		e = &entry{client: p.newClient()}
		s.clients[upstreamURL] = e
	}
	e.lastUsed.Store(time.Now().UnixNano())
	s.mu.Unlock()

	return e.client
}

func (p *Pool) newClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: p.maxIdlePerURL,
			IdleConnTimeout:     p.idleTimeout,
		},
	}
}

// Start launches the idle-eviction loop.
func (p *Pool) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.idleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.evictIdle()
			case <-p.stopChan:
				return
			}
		}
	}()
}

// Stop halts the idle-eviction loop. Safe to call more than once.
func (p *Pool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) evictIdle() {
	now := time.Now()
	for _, s := range p.shards {
		s.mu.Lock()
		for url, e := range s.clients {
			if now.Sub(time.Unix(0, e.lastUsed.Load())) > p.idleTimeout {
				if t, ok := e.client.Transport.(*http.Transport); ok {
					t.CloseIdleConnections()
				}
				delete(s.clients, url)
			}
		}
		s.mu.Unlock()
	}
}

// Len returns the total number of pooled clients across all shards, for
// tests and debug introspection.
func (p *Pool) Len() int {
	total := 0
	for _, s := range p.shards {
		s.mu.Lock()
		total += len(s.clients)
		s.mu.Unlock()
	}
	return total
}
