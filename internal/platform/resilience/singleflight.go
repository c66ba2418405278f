package resilience

import "sync"

// SingleFlight collapses concurrent calls for the same key into one
// execution. Followers block until the leader finishes and receive the
// leader's result.
type SingleFlight struct {
	mu      sync.Mutex
	inFlight map[string]*flightCall
}

type flightCall struct {
	done   sync.WaitGroup
	result any
	err    error
}

// Do runs fn once per key among concurrent callers. The bool result is
// true when the value came from another caller's execution.
func (g *SingleFlight) Do(key string, fn func() (any, error)) (any, error, bool) {
	g.mu.Lock()
	if g.inFlight == nil {
		g.inFlight = make(map[string]*flightCall)
	}

	if c, ok := g.inFlight[key]; ok {
		g.mu.Unlock()
		c.done.Wait()
		return c.result, c.err, true
	}

	c := &flightCall{}
	c.done.Add(1)
	g.inFlight[key] = c
	g.mu.Unlock()

	c.result, c.err = fn()
	c.done.Done()

	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()

	return c.result, c.err, false
}
