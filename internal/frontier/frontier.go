// Package frontier owns the breadth-first work queue of a crawl job, the set
// of visited addresses and the admission policy for discovered links.
//
// A Frontier is scoped to one job. It knows nothing about fetching or
// extraction.
package frontier

import (
	"net/url"
	"sync"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Policy is the subset of job parameters that governs admission.
type Policy struct {
	Seed           *url.URL
	MaxDepth       int
	MaxPages       int
	SameOriginOnly bool
}

// Frontier is a FIFO of pending entries backed by a live membership set,
// plus the VisitedSet of already popped addresses. It is safe for concurrent
// use.
type Frontier struct {
	mu      sync.Mutex
	policy  Policy
	queue   *FIFOQueue[crawler.FrontierEntry]
	queued  Set[string]
	visited Set[string]
}

// New creates an empty Frontier for policy.
func New(policy Policy) *Frontier {
	return &Frontier{
		policy:  policy,
		queue:   NewFIFOQueue[crawler.FrontierEntry](),
		queued:  NewSet[string](),
		visited: NewSet[string](),
	}
}

// Seed enqueues the job's starting address at depth zero.
func (f *Frontier) Seed() {
	if f.policy.Seed == nil {
		return
	}
	f.push(crawler.FrontierEntry{URL: f.policy.Seed.String(), Depth: 0})
}

func (f *Frontier) push(entry crawler.FrontierEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.queued.Add(entry.URL) {
		return
	}
	f.queue.Enqueue(entry)
}

// Pop removes the head entry. The second value is false when empty.
func (f *Frontier) Pop() (crawler.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.queue.Dequeue()
	if !ok {
		return crawler.FrontierEntry{}, false
	}
	f.queued.Remove(entry.URL)
	return entry, true
}

// Len returns the number of pending entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Size()
}

// MarkVisited inserts addr into the VisitedSet. It returns false when addr
// was already visited; check and insert happen under one lock.
func (f *Frontier) MarkVisited(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Add(addr)
}

// Visited reports whether addr has been popped before.
func (f *Frontier) Visited(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Contains(addr)
}

// VisitedCount returns the size of the VisitedSet.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}

// Queued reports whether addr is currently pending.
func (f *Frontier) Queued(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued.Contains(addr)
}

// Admit enqueues candidate at fromDepth+1 when the policy allows it and
// reports whether it did. produced is the number of page results recorded so
// far.
func (f *Frontier) Admit(candidate *url.URL, fromDepth int, produced int) bool {
	if fromDepth >= f.policy.MaxDepth {
		return false
	}
	if produced >= f.policy.MaxPages {
		return false
	}
	if !crawler.IsWebAddress(candidate) {
		return false
	}
	if f.policy.SameOriginOnly && !crawler.SameHost(candidate, f.policy.Seed) {
		return false
	}
	addr := candidate.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visited.Contains(addr) || f.queued.Contains(addr) {
		return false
	}
	f.queued.Add(addr)
	f.queue.Enqueue(crawler.FrontierEntry{URL: addr, Depth: fromDepth + 1})
	return true
}
