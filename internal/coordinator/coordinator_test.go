package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ondemand/internal/builder"
	oerrors "git.home.luguber.info/inful/ondemand/internal/errors"
	"git.home.luguber.info/inful/ondemand/internal/registry"
)

type fakeResolver struct {
	files map[string]string // normalized page id -> artifact path
}

func (f *fakeResolver) Resolve(pageID string) (string, error) {
	if path, ok := f.files[pageID]; ok {
		return path, nil
	}
	return "", oerrors.ResolutionError(pageID)
}

type signalInvalidator struct {
	ch chan struct{}
}

func newSignalInvalidator() *signalInvalidator {
	return &signalInvalidator{ch: make(chan struct{}, 16)}
}

func (s *signalInvalidator) Invalidate() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signalInvalidator) await(t *testing.T) {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for invalidation")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestCoordinator(files map[string]string) (*Coordinator, *registry.Registry, *signalInvalidator) {
	reg := registry.New()
	coord := New(testLogger(), reg, &fakeResolver{files: files}, nil)
	inv := newSignalInvalidator()
	coord.SetInvalidator(inv)
	return coord, reg, inv
}

func TestEnsurePage_ConcurrentCallersShareOneBuild(t *testing.T) {
	coord, reg, inv := newTestCoordinator(map[string]string{"/x": "/tmp/pages/x.js"})

	results := make(chan error, 2)
	for range 2 {
		go func() {
			results <- coord.EnsurePage(context.Background(), "/x")
		}()
	}

	inv.await(t)

	// Both callers are suspended until the pass completes.
	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.waiters["/x"]) == 2
	}, time.Second, 5*time.Millisecond)
	select {
	case err := <-results:
		t.Fatalf("caller resolved before pass completion: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	targets := coord.ClaimPending("pass-1")
	require.Len(t, targets, 1)
	assert.Equal(t, "/x", targets[0].PageID)

	// A second claim registers nothing: exactly one build cycle processes /x.
	assert.Empty(t, coord.ClaimPending("pass-1"))

	coord.CompletePass("pass-1", targets, nil)

	for range 2 {
		select {
		case err := <-results:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for waiter release")
		}
	}

	e, ok := reg.Lookup("/x")
	require.True(t, ok)
	assert.Equal(t, registry.StatusBuilt, e.Status)

	// A third call after Built resolves immediately without a pass.
	require.NoError(t, coord.EnsurePage(context.Background(), "/x"))
}

func TestEnsurePage_ResolutionErrorPropagates(t *testing.T) {
	coord, reg, _ := newTestCoordinator(map[string]string{})

	err := coord.EnsurePage(context.Background(), "/missing")
	require.Error(t, err)
	assert.True(t, oerrors.IsCategory(err, oerrors.CategoryResolution))
	assert.Equal(t, 0, reg.Len())
}

func TestEnsurePage_NormalizationConflatesIndexVariants(t *testing.T) {
	coord, reg, inv := newTestCoordinator(map[string]string{"/foo/": "/tmp/pages/foo/index.js"})

	done := make(chan error, 2)
	go func() { done <- coord.EnsurePage(context.Background(), "/foo/index") }()
	go func() { done <- coord.EnsurePage(context.Background(), "/foo/") }()

	inv.await(t)
	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.waiters["/foo/"]) == 2
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, reg.Len())

	targets := coord.ClaimPending("pass-1")
	require.Len(t, targets, 1)
	coord.CompletePass("pass-1", targets, nil)

	for range 2 {
		require.NoError(t, <-done)
	}
}

func TestCompletePass_FailureReachesAllWaitersAcrossPages(t *testing.T) {
	coord, reg, inv := newTestCoordinator(map[string]string{
		"/a": "/tmp/pages/a.js",
		"/b": "/tmp/pages/b.js",
	})

	done := make(chan error, 2)
	go func() { done <- coord.EnsurePage(context.Background(), "/a") }()
	go func() { done <- coord.EnsurePage(context.Background(), "/b") }()

	inv.await(t)
	require.Eventually(t, func() bool { return reg.Len() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.waiters["/a"]) == 1 && len(coord.waiters["/b"]) == 1
	}, time.Second, 5*time.Millisecond)

	targets := coord.ClaimPending("pass-1")
	require.Len(t, targets, 2)
	coord.CompletePass("pass-1", targets, fmt.Errorf("webpack exploded"))

	for range 2 {
		err := <-done
		require.Error(t, err)
		assert.True(t, oerrors.IsCategory(err, oerrors.CategoryBuild))
	}
}

func TestEnsurePage_AbandonedCallerDoesNotBlockCompletion(t *testing.T) {
	coord, _, inv := newTestCoordinator(map[string]string{"/x": "/tmp/pages/x.js"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.EnsurePage(ctx, "/x") }()

	inv.await(t)
	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.waiters["/x"]) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The stranded subscription is released into its buffered channel
	// without blocking the pass.
	targets := coord.ClaimPending("pass-1")
	coord.CompletePass("pass-1", targets, nil)
}

func TestCompletePass_PrimesWatcherOnce(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.js")
	second := filepath.Join(dir, "b.js")
	past := time.Now().Add(-time.Hour)
	for _, path := range []string{first, second} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, past, past))
	}

	coord, reg, _ := newTestCoordinator(map[string]string{"/a": first, "/b": second})

	require.True(t, reg.Insert(registry.Entry{PageID: "/a", TargetName: "pages/a", Request: first, ArtifactPath: first}))
	targets := coord.ClaimPending("pass-1")
	coord.CompletePass("pass-1", targets, nil)

	require.Eventually(t, func() bool {
		info, err := os.Stat(first)
		return err == nil && info.ModTime().After(past.Add(time.Minute))
	}, time.Second, 10*time.Millisecond)

	// The touch is one-shot: a second pass does not touch its artifact.
	require.True(t, reg.Insert(registry.Entry{PageID: "/b", TargetName: "pages/b", Request: second, ArtifactPath: second}))
	targets = coord.ClaimPending("pass-2")
	coord.CompletePass("pass-2", targets, nil)

	time.Sleep(100 * time.Millisecond)
	info, err := os.Stat(second)
	require.NoError(t, err)
	assert.WithinDuration(t, past, info.ModTime(), time.Minute)
}

func TestEnsurePage_ReaddAfterEvictionIsFreshCycle(t *testing.T) {
	coord, reg, inv := newTestCoordinator(map[string]string{"/x": "/tmp/pages/x.js"})

	// First full cycle.
	done := make(chan error, 1)
	go func() { done <- coord.EnsurePage(context.Background(), "/x") }()
	inv.await(t)
	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.waiters["/x"]) == 1
	}, time.Second, 5*time.Millisecond)
	coord.CompletePass("pass-1", coord.ClaimPending("pass-1"), nil)
	require.NoError(t, <-done)

	// Evict.
	evicted := reg.SweepIdle(time.Now().Add(time.Hour), time.Minute)
	require.Equal(t, []string{"/x"}, evicted)

	// Second cycle is indistinguishable from the first.
	go func() { done <- coord.EnsurePage(context.Background(), "/x") }()
	inv.await(t)
	require.Eventually(t, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.waiters["/x"]) == 1
	}, time.Second, 5*time.Millisecond)

	targets := coord.ClaimPending("pass-2")
	require.Len(t, targets, 1)
	coord.CompletePass("pass-2", targets, nil)
	require.NoError(t, <-done)

	e, _ := reg.Lookup("/x")
	assert.Equal(t, registry.StatusBuilt, e.Status)
}

func TestTargetName(t *testing.T) {
	tests := []struct {
		page string
		want string
	}{
		{"/", "pages/index"},
		{"/foo", "pages/foo"},
		{"/foo/", "pages/foo/index"},
		{"/a/b", "pages/a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, targetName(tt.page), tt.page)
	}
}

var _ builder.Invalidator = (*signalInvalidator)(nil)
