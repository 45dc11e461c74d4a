package client

import (
	"sync"
	"time"
)

// PreviewLock bounds how long a locked item may be previewed before the
// paywall closes over it. Switching to another item resets the window;
// returning to a previously locked-out item locks immediately.
type PreviewLock struct {
	window time.Duration
	onLock func(feature, featureID string)

	mu        sync.Mutex
	current   featureKey
	timer     *time.Timer
	lockedOut map[featureKey]struct{}

	afterFunc func(time.Duration, func()) *time.Timer
}

func NewPreviewLock(window time.Duration, onLock func(feature, featureID string)) *PreviewLock {
	if onLock == nil {
		onLock = func(string, string) {}
	}
	return &PreviewLock{
		window:    window,
		onLock:    onLock,
		lockedOut: make(map[featureKey]struct{}),
		afterFunc: time.AfterFunc,
	}
}

// Start begins (or restarts) the preview window for an item. It
// reports whether previewing is allowed; an item that already burned
// its window this session locks immediately.
func (p *PreviewLock) Start(feature, featureID string) bool {
	fk := featureKey{Feature: feature, FeatureID: featureID}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, out := p.lockedOut[fk]; out {
		return false
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	p.current = fk
	p.timer = p.afterFunc(p.window, func() { p.expire(fk) })
	return true
}

// Stop cancels the running window, e.g. when the item was unlocked or
// navigated away from.
func (p *PreviewLock) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.current = featureKey{}
}

// LockedOut reports whether the item's preview window already elapsed
// this session.
func (p *PreviewLock) LockedOut(feature, featureID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, out := p.lockedOut[featureKey{Feature: feature, FeatureID: featureID}]
	return out
}

// Release forgets a lockout, e.g. after the item was granted.
func (p *PreviewLock) Release(feature, featureID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.lockedOut, featureKey{Feature: feature, FeatureID: featureID})
}

func (p *PreviewLock) expire(fk featureKey) {
	p.mu.Lock()
	if p.current != fk {
		// The viewer moved on before the window elapsed.
		p.mu.Unlock()
		return
	}
	p.lockedOut[fk] = struct{}{}
	p.current = featureKey{}
	p.timer = nil
	p.mu.Unlock()

	p.onLock(fk.Feature, fk.FeatureID)
}
