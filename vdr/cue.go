package vdr

import "sync"

// Cue is a notice a Tever or Tevery queues for its caller to act on: a
// query to issue against a missing anchor, or a replay to send back in
// response to a tels query.
type Cue struct {
	Kind string // "query" or "replay"
	Pre  string
	Sn   uint64
	Dest string
	Msgs []byte
}

// cueSink accumulates cues under its own lock. Tever and Tevery embed
// it and reach it from different call paths (event validation, escrow
// replay, query handling), so the slice needs its own synchronization
// independent of Tevery.mu.
type cueSink struct {
	cuesMu sync.Mutex
	cues   []Cue
}

func (c *cueSink) cue(kin, pre string, sn uint64) {
	c.queue(Cue{Kind: kin, Pre: pre, Sn: sn})
}

func (c *cueSink) queue(cu Cue) {
	c.cuesMu.Lock()
	defer c.cuesMu.Unlock()
	c.cues = append(c.cues, cu)
}

// Cues drains and returns the notices queued so far.
func (c *cueSink) Cues() []Cue {
	c.cuesMu.Lock()
	defer c.cuesMu.Unlock()
	out := c.cues
	c.cues = nil
	return out
}
