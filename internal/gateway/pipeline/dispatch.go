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

package pipeline

import (
	"sync"
)

// DispatchPoolOptions configures the bounded background worker pool that
// runs shadow-async attempts without spawning an unbounded number of
// goroutines under load. Quantum hedges do not go through it.
type DispatchPoolOptions struct {
	// Buffer is the bounded capacity of the ingress channel. Default 4096.
	Buffer int
	// Workers is the number of goroutines draining the ingress channel.
	// Default 8.
	Workers int
}

// DispatchPool is a fixed-size worker pool for fire-and-forget background
// work items (shadow-async dispatch).
// Grounded on plugin/tfd/sservice.go's bounded-ingress-channel,
// Start/Stop-lifecycle shape, trimmed to plain task execution since
// dispatch work here has no accumulate-then-flush batching step.
type DispatchPool struct {
	in     chan func()
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
	opts   DispatchPoolOptions
}

// NewDispatchPool constructs a DispatchPool with the given options.
func NewDispatchPool(opts DispatchPoolOptions) *DispatchPool {
	if opts.Buffer <= 0 {
		opts.Buffer = 4096
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &DispatchPool{
		in:     make(chan func(), opts.Buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		opts:   opts,
	}
}

// Start launches the pool's worker goroutines.
func (p *DispatchPool) Start() {
	p.once.Do(func() {
		var wg sync.WaitGroup
		wg.Add(p.opts.Workers)
		for i := 0; i < p.opts.Workers; i++ {
			go func() {
				defer wg.Done()
				p.runWorker()
			}()
		}
		go func() {
			wg.Wait()
			close(p.doneCh)
		}()
	})
}

// Stop requests every worker to drain and exit, then waits for them.
func (p *DispatchPool) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// Submit enqueues a task, blocking if the pool is saturated. The pipeline
// itself does not call it: shadow-sync runs inline and shadow-async uses
// TrySubmit.
func (p *DispatchPool) Submit(task func()) {
	select {
	case p.in <- task:
	case <-p.stopCh:
	}
}

// TrySubmit enqueues a task without blocking, returning false if the pool
// is saturated. Used for shadow-async dispatch, where dropping an
// occasional shadow attempt under overload is preferable to blocking the
// primary request path.
func (p *DispatchPool) TrySubmit(task func()) bool {
	select {
	case p.in <- task:
		return true
	default:
		return false
	}
}

func (p *DispatchPool) runWorker() {
	for {
		select {
		case task := <-p.in:
			task()
		case <-p.stopCh:
			// Drain whatever is already queued without blocking further.
			for {
				select {
				case task := <-p.in:
					task()
				default:
					return
				}
			}
		}
	}
}
