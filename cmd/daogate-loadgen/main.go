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

// daogate-loadgen is a tiny, dependency-free HTTP load generator tailored
// for exercising a running daogate instance. It reuses HTTP connections
// (keep-alive) and supports concurrency so it can push enough RPS to move
// the Liminal Controller's consciousness level and ritual phase.
//
// Modes:
//   - single: every request carries the same intent header value
//   - mixed:  approximate 80/20 skew without a PRNG — send the hot intent
//     4/5 of the time, round-robining across a pool of cold intents the
//     rest of the time, so Policy's intent-affinity scoring sees both a
//     dominant and a long tail of intents
//
// Usage examples:
//
//	daogate-loadgen -base=http://127.0.0.1:8080 -path=/v1/widgets -mode=single -intent=checkout -n=5000 -c=16
//	daogate-loadgen -base=http://127.0.0.1:8080 -path=/v1/widgets -mode=mixed -hot_intent=checkout -cold_intents=8 -n=20000 -c=32
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeSingle modeType = "single"
	modeMixed  modeType = "mixed"
)

func main() {
	var (
		base        = flag.String("base", "http://127.0.0.1:8080", "daogate base URL including scheme and host")
		path        = flag.String("path", "/", "request path, matched against a route's path_prefix")
		host        = flag.String("host", "", "Host header to send, for host-based route matching (empty uses -base's host)")
		intentHdr   = flag.String("intent_header", "X-Dao-Intent", "header name the gateway reads for intent classification")
		modeS       = flag.String("mode", string(modeSingle), "Mode: single|mixed")
		intent      = flag.String("intent", "default", "intent value for single mode")
		hotIntent   = flag.String("hot_intent", "checkout", "hot intent for mixed mode")
		coldIntents = flag.Int("cold_intents", 8, "number of cold intents to round-robin in mixed mode")
		N           = flag.Int("n", 5000, "total requests to send")
		conc        = flag.Int("c", 8, "number of concurrent workers")
		// Deterministic skew: hotEvery=5 means 4/5 go to the hot intent.
		hotEvery = flag.Int("hot_every", 5, "mixed-mode skew period (4 of this period go to the hot intent; minimum 2)")
		// Timeouts & transport tuning, mirroring daogate's own connection pool knobs.
		timeout    = flag.Duration("timeout", 60*time.Second, "overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 90*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "max idle connections per host")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeSingle && m != modeMixed {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want single|mixed)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if m == modeMixed {
		if *coldIntents <= 0 {
			fmt.Fprintln(os.Stderr, "-cold_intents must be > 0 in mixed mode")
			os.Exit(2)
		}
		if *hotEvery < 2 {
			*hotEvery = 2
		}
	}

	baseURL := strings.TrimRight(*base, "/")
	p := *path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	fullURL := baseURL + p

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 10 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var done, status2xx, status5xx int64

	worker := func(id, count int) {
		defer atomic.AddInt64(&done, int64(count))
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var iv string
			if m == modeSingle {
				iv = *intent
			} else if ((i + id) % *hotEvery) != 0 {
				iv = *hotIntent
			} else {
				idx := ((i + id) % *coldIntents) + 1
				iv = fmt.Sprintf("cold-intent-%d", idx)
			}

			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
			req.Header.Set(*intentHdr, iv)
			if *host != "" {
				req.Host = *host
			}
			resp, err := client.Do(req)
			if err == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				switch resp.StatusCode / 100 {
				case 2:
					atomic.AddInt64(&status2xx, 1)
				case 5:
					atomic.AddInt64(&status5xx, 1)
				}
			} else {
				time.Sleep(200 * time.Microsecond)
			}
		}
	}

	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("daogate-loadgen: mode=%s N=%d c=%d go=%d duration=%s throughput=%.0f req/s 2xx=%d 5xx=%d\n",
		m, *N, *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), ops, status2xx, status5xx)
}
