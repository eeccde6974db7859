// Package coordinator schedules on-demand page builds. EnsurePage guarantees
// a compiled artifact exists for a page, coalescing concurrent requests for
// the same page into a single compilation pass.
package coordinator

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/ondemand/internal/builder"
	oerrors "git.home.luguber.info/inful/ondemand/internal/errors"
	"git.home.luguber.info/inful/ondemand/internal/logfields"
	"git.home.luguber.info/inful/ondemand/internal/metrics"
	"git.home.luguber.info/inful/ondemand/internal/registry"
	"git.home.luguber.info/inful/ondemand/internal/resolver"
)

// Coordinator owns the pending-request fan-out and implements the pass
// claim/complete hooks the batcher drives. It is the only component that
// creates Entries.
type Coordinator struct {
	log *slog.Logger
	reg *registry.Registry
	res resolver.Resolver
	rec metrics.Recorder

	mu      sync.Mutex
	waiters map[string][]chan error
	inv     builder.Invalidator

	touchOnce sync.Once
}

func New(log *slog.Logger, reg *registry.Registry, res resolver.Resolver, rec metrics.Recorder) *Coordinator {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Coordinator{
		log:     log,
		reg:     reg,
		res:     res,
		rec:     rec,
		waiters: make(map[string][]chan error),
	}
}

// SetInvalidator wires the build-system invalidation hook. Must be called
// before the first EnsurePage.
func (c *Coordinator) SetInvalidator(inv builder.Invalidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inv = inv
}

// EnsurePage guarantees a compiled artifact exists for rawPageID, triggering
// a compilation pass if needed. Concurrent callers for the same page share
// one build. Fails only when resolution or the compilation pass fails.
func (c *Coordinator) EnsurePage(ctx context.Context, rawPageID string) error {
	page := registry.NormalizePageID(rawPageID)

	entry, exists := c.reg.Lookup(page)
	if exists {
		switch entry.Status {
		case registry.StatusBuilt:
			return nil
		case registry.StatusAdded, registry.StatusBuilding:
			// Fall through to subscribe; a page may sit in Added across
			// pass boundaries before the batcher claims it.
		}
		ch, pending := c.subscribe(page)
		if !pending {
			return nil
		}
		return c.wait(ctx, page, ch)
	}

	artifact, err := c.res.Resolve(page)
	if err != nil {
		return err
	}

	inserted := c.reg.Insert(registry.Entry{
		PageID:       page,
		TargetName:   targetName(page),
		Request:      artifact,
		ArtifactPath: artifact,
	})

	ch, pending := c.subscribe(page)
	if !pending {
		return nil
	}

	if inserted {
		c.log.Info("page registered for build", logfields.Page(page), logfields.Artifact(artifact))
		c.rec.SetTrackedPages(c.reg.Len())
		c.invalidate()
	}

	return c.wait(ctx, page, ch)
}

// subscribe registers a completion waiter for page. It re-checks the registry
// under the waiter lock so a completion racing with the caller's status read
// cannot strand the waiter; pending=false means the page is already Built.
func (c *Coordinator) subscribe(page string) (chan error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.reg.Lookup(page); ok && e.Status == registry.StatusBuilt {
		return nil, false
	}
	ch := make(chan error, 1)
	c.waiters[page] = append(c.waiters[page], ch)
	return ch, true
}

func (c *Coordinator) wait(ctx context.Context, page string, ch chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		// The subscription stays referenced until the page builds; the
		// release into the buffered channel never blocks.
		c.log.Debug("ensure abandoned by caller", logfields.Page(page))
		return ctx.Err()
	}
}

func (c *Coordinator) invalidate() {
	c.mu.Lock()
	inv := c.inv
	c.mu.Unlock()
	if inv == nil {
		c.log.Warn("no invalidator wired, pending pages will not build")
		return
	}
	inv.Invalidate()
}

// ClaimPending atomically transitions every Added entry to Building and
// returns its build targets. Called by the batcher at pass start.
func (c *Coordinator) ClaimPending(passID string) []builder.EntryTarget {
	entries := c.reg.ClaimAdded()
	targets := make([]builder.EntryTarget, len(entries))
	for i, e := range entries {
		targets[i] = builder.EntryTarget{
			PageID:       e.PageID,
			TargetName:   e.TargetName,
			Request:      e.Request,
			ArtifactPath: e.ArtifactPath,
		}
		c.log.Debug("entry claimed by pass", logfields.Page(e.PageID), logfields.PassID(passID))
	}
	return targets
}

// CompletePass transitions every claimed entry to Built, stamps its liveness
// timestamp, and releases all waiters. On a failed pass every waiter across
// all pages receives the same build error. No waiter is released before its
// entry reached Built.
func (c *Coordinator) CompletePass(passID string, targets []builder.EntryTarget, passErr error) {
	pages := make([]string, len(targets))
	for i, t := range targets {
		pages[i] = t.PageID
	}

	now := time.Now()
	c.reg.MarkBuilt(pages, now)

	var result error
	if passErr != nil {
		result = oerrors.BuildError(passErr, passID)
	}

	c.mu.Lock()
	released := 0
	for _, page := range pages {
		for _, ch := range c.waiters[page] {
			ch <- result
			released++
		}
		delete(c.waiters, page)
	}
	c.mu.Unlock()

	c.log.Debug("pass waiters released", logfields.PassID(passID), logfields.Waiters(released))
	c.rec.SetTrackedPages(c.reg.Len())

	if passErr == nil && len(targets) > 0 {
		c.primeWatcher(targets[0].ArtifactPath)
	}
}

// primeWatcher performs the one-shot deferred touch of a built artifact so the
// build system's file watcher caches its directory. Best effort, at most once
// per process, and allowed to race with subsequent passes.
func (c *Coordinator) primeWatcher(artifactPath string) {
	c.touchOnce.Do(func() {
		go func() {
			now := time.Now()
			if err := os.Chtimes(artifactPath, now, now); err != nil {
				c.log.Debug("watcher prime touch failed", logfields.Artifact(artifactPath), logfields.Error(err))
				return
			}
			c.log.Debug("watcher prime touch done", logfields.Artifact(artifactPath))
		}()
	})
}

// targetName derives the build target name for a normalized page id, e.g.
// "/foo/" -> "pages/foo/index".
func targetName(page string) string {
	p := strings.Trim(page, "/")
	if p == "" {
		return "pages/index"
	}
	if strings.HasSuffix(page, "/") {
		return "pages/" + p + "/index"
	}
	return "pages/" + p
}
