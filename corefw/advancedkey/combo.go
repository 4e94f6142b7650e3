package advancedkey

import (
	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/hid"
	"github.com/hallcore/corefw/corefw/profile"
)

const (
	comboQueueCap        = 16
	comboOutputSlot      = 255 // synthetic key index for the combo's HID report bit
	defaultComboTermMS   = 50
)

// comboQueueEvent is one captured press waiting to be matched against a
// combo's required key set.
type comboQueueEvent struct {
	Key      int
	Time     uint32
	Consumed bool
}

// comboEngine implements the combo queue and longest-match arbitration of
// §4.3.5. It is embedded (not pointer-held) in advancedkey.Engine.
type comboEngine struct {
	keys []profile.AdvancedKey

	queue []comboQueueEvent

	cacheValid   bool
	cacheLayer   int
	participates map[int]bool

	reentrant  bool
	processKey ProcessKeyFunc
}

func (c *comboEngine) invalidateCache() {
	c.cacheValid = false
}

func (c *comboEngine) rebuildCache(layer int) {
	if c.cacheValid && c.cacheLayer == layer {
		return
	}
	c.participates = make(map[int]bool)
	for _, ak := range c.keys {
		if ak.Type != profile.AKCombo || ak.Combo.Layer != layer {
			continue
		}
		for _, k := range ak.Combo.Keys {
			c.participates[k] = true
		}
	}
	c.cacheLayer = layer
	c.cacheValid = true
}

// offer gives the combo queue first refusal on an event. Releases never
// get captured (they pass straight back to the layout dispatcher) but can
// retroactively invalidate a queued candidate for the same key. A press
// for a non-participating key flushes any pending queue first, preserving
// chronological order, before the layout engine dispatches it normally.
func (c *comboEngine) offer(key int, pressed bool, layer int, now uint32) bool {
	if !pressed {
		c.invalidateQueuedKey(key)
		return false
	}

	c.rebuildCache(layer)
	if !c.participates[key] {
		if len(c.queue) > 0 {
			c.flushAll()
		}
		return false
	}

	if len(c.queue) >= comboQueueCap {
		c.flushOldest()
	}
	c.queue = append(c.queue, comboQueueEvent{Key: key, Time: now})
	return true
}

// invalidateQueuedKey marks any still-pending queue entry for key as
// consumed when that key is released before being matched into a combo —
// it can no longer participate in a future match since it is no longer
// held.
func (c *comboEngine) invalidateQueuedKey(key int) {
	for i := range c.queue {
		if c.queue[i].Key == key {
			c.queue[i].Consumed = true
		}
	}
}

func (c *comboEngine) flushOldest() {
	if len(c.queue) == 0 {
		return
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	if !ev.Consumed {
		c.replay(ev.Key)
	}
}

func (c *comboEngine) flushAll() {
	if c.reentrant {
		return
	}
	c.reentrant = true
	defer func() { c.reentrant = false }()

	pending := c.queue
	c.queue = nil
	for _, ev := range pending {
		if !ev.Consumed {
			c.replay(ev.Key)
		}
	}
}

func (c *comboEngine) replay(key int) {
	if c.processKey != nil {
		c.processKey(key, true)
	}
}

type comboMatchStatus uint8

const (
	comboNoMatch comboMatchStatus = iota
	comboCandidate
	comboFull
)

// task progresses time-based combo decisions: for each combo bound to the
// current layer, classify the live queue against its required key set,
// then commit the longest full match once no still-growing candidate
// could beat it.
func (c *comboEngine) task(sink hid.Sink, deferAction DeferFunc, now uint32) {
	if len(c.queue) == 0 {
		return
	}

	type candidate struct {
		idx    int
		status comboMatchStatus
	}
	var fulls, candidates []candidate

	for i, ak := range c.keys {
		if ak.Type != profile.AKCombo || ak.Combo.Layer != c.cacheLayer {
			continue
		}
		status := c.classify(ak.Combo, now)
		switch status {
		case comboFull:
			fulls = append(fulls, candidate{i, status})
		case comboCandidate:
			candidates = append(candidates, candidate{i, status})
		}
	}

	if len(fulls) == 0 {
		if len(candidates) == 0 {
			// No match and nothing left that could still grow into
			// one: release the queue back to normal dispatch FIFO.
			c.flushAll()
		} else if len(c.queue) > 0 {
			oldest := c.queue[0]
			term := uint32(defaultComboTermMS)
			if int32(now-oldest.Time) > int32(term) {
				c.flushOldest()
			}
		}
		return
	}

	best := fulls[0]
	for _, f := range fulls[1:] {
		if len(c.keys[f.idx].Combo.Keys) > len(c.keys[best.idx].Combo.Keys) {
			best = f
		}
	}

	for _, cand := range candidates {
		if len(c.keys[cand.idx].Combo.Keys) > len(c.keys[best.idx].Combo.Keys) {
			term := c.keys[cand.idx].Combo.TermMS
			if term == 0 {
				term = defaultComboTermMS
			}
			if len(c.queue) > 0 && int32(now-c.queue[0].Time) <= int32(term) {
				return // a longer match might still complete; wait
			}
		}
	}

	c.commit(best.idx, sink, deferAction, now)
}

// classify compares the live queue against one combo's required keys.
func (c *comboEngine) classify(cfg profile.ComboConfig, now uint32) comboMatchStatus {
	term := cfg.TermMS
	if term == 0 {
		term = defaultComboTermMS
	}

	present := 0
	var minTime, maxTime uint32
	first := true
	for _, ev := range c.queue {
		if ev.Consumed {
			continue
		}
		if !containsKey(cfg.Keys, ev.Key) {
			return comboNoMatch // a foreign key press interleaved: disqualified
		}
		present++
		if first {
			minTime, maxTime = ev.Time, ev.Time
			first = false
		} else {
			if ev.Time < minTime {
				minTime = ev.Time
			}
			if ev.Time > maxTime {
				maxTime = ev.Time
			}
		}
	}
	if present == 0 {
		return comboNoMatch
	}
	if present == len(cfg.Keys) {
		if maxTime-minTime <= term {
			return comboFull
		}
		return comboNoMatch
	}
	if now-minTime <= term {
		return comboCandidate
	}
	return comboNoMatch
}

func (c *comboEngine) commit(idx int, sink hid.Sink, deferAction DeferFunc, now uint32) {
	cfg := c.keys[idx].Combo
	for i := range c.queue {
		if !c.queue[i].Consumed && containsKey(cfg.Keys, c.queue[i].Key) {
			c.queue[i].Consumed = true
		}
	}

	sink.Register(comboOutputSlot, uint8(cfg.OutputKeycode))
	deferAction(deferred.Action{Type: deferred.Release, Key: comboOutputSlot, Keycode: uint8(cfg.OutputKeycode)})

	// Anything left unconsumed (foreign presses that arrived after the
	// winning combo's keys but before this tick's task() call) replays in
	// FIFO order once the winner's keys are pulled out.
	var toReplay []int
	for _, ev := range c.queue {
		if !ev.Consumed {
			toReplay = append(toReplay, ev.Key)
		}
	}
	c.queue = nil
	for _, k := range toReplay {
		c.replay(k)
	}
}

func containsKey(keys []int, key int) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
