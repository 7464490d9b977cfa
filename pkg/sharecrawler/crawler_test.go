package sharecrawler_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/sharelease/internal/clock"
	"github.com/marmos91/sharelease/pkg/sharecrawler"
)

// recordingHooks counts callbacks and lets FinishedCycle trigger cancellation
// so a test can observe exactly one completed cycle deterministically.
type recordingHooks struct {
	started  []int64
	finished []int64
	prefixes []string
	cancel   context.CancelFunc
}

func (h *recordingHooks) StartedCycle(cycle int64) {
	h.started = append(h.started, cycle)
}

func (h *recordingHooks) ProcessPrefixdir(ctx context.Context, cycle int64, prefix string) error {
	h.prefixes = append(h.prefixes, prefix)
	return nil
}

func (h *recordingHooks) FinishedCycle(cycle int64) {
	h.finished = append(h.finished, cycle)
	h.cancel()
}

// writeResumableState pre-seeds a statefile whose LastCycleFinished is
// already set, so Run skips the slow-start wait (it only applies to a truly
// fresh install) and proceeds straight into the next cycle.
func writeResumableState(t *testing.T, path string) {
	t.Helper()
	zero := int64(0)
	state := sharecrawler.State{
		LastCompletePrefixIndex: -1,
		CurrentCycle:            0,
		LastCycleFinished:       &zero,
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal seed state: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write seed state: %v", err)
	}
}

func TestCrawler_OneFullCycle_VisitsEveryPrefix(t *testing.T) {
	dir := t.TempDir()
	statefile := filepath.Join(dir, "crawler.json")
	writeResumableState(t, statefile)

	ctx, cancel := context.WithCancel(context.Background())
	hooks := &recordingHooks{cancel: cancel}

	c := sharecrawler.New(sharecrawler.Config{
		StatefilePath:    statefile,
		MinimumCycleTime: 1,
		Clock:            clock.Fixed(1000),
	}, hooks)

	err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled after one cycle, got %v", err)
	}

	if len(hooks.started) != 1 || hooks.started[0] != 1 {
		t.Fatalf("expected exactly one StartedCycle(1), got %v", hooks.started)
	}
	if len(hooks.finished) != 1 || hooks.finished[0] != 1 {
		t.Fatalf("expected exactly one FinishedCycle(1), got %v", hooks.finished)
	}
	if want := len(sharecrawler.Prefixes()); len(hooks.prefixes) != want {
		t.Fatalf("expected every one of %d prefixes visited, got %d", want, len(hooks.prefixes))
	}
	if hooks.prefixes[0] != "aa" || hooks.prefixes[len(hooks.prefixes)-1] != "77" {
		t.Fatalf("expected prefixes in stable lexicographic order, got first=%q last=%q", hooks.prefixes[0], hooks.prefixes[len(hooks.prefixes)-1])
	}
}

func TestCrawler_ResumesAtLastCompletePrefixIndex(t *testing.T) {
	dir := t.TempDir()
	statefile := filepath.Join(dir, "crawler.json")

	mid := 10
	state := sharecrawler.State{
		LastCompletePrefixIndex: mid,
		CurrentCycle:            1,
		CurrentCycleStartTime:   0,
		LastCycleFinished:       nil,
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal seed state: %v", err)
	}
	if err := os.WriteFile(statefile, data, 0o644); err != nil {
		t.Fatalf("write seed state: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	hooks := &recordingHooks{cancel: cancel}

	c := sharecrawler.New(sharecrawler.Config{
		StatefilePath:    statefile,
		MinimumCycleTime: 1,
		Clock:            clock.Fixed(1000),
	}, hooks)

	err = c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled after resumed cycle, got %v", err)
	}

	if len(hooks.started) != 0 {
		t.Fatalf("expected StartedCycle not to be called again when resuming mid-cycle, got %v", hooks.started)
	}
	allPrefixes := sharecrawler.Prefixes()
	wantCount := len(allPrefixes) - (mid + 1)
	if len(hooks.prefixes) != wantCount {
		t.Fatalf("expected %d remaining prefixes processed, got %d", wantCount, len(hooks.prefixes))
	}
	if hooks.prefixes[0] != allPrefixes[mid+1] {
		t.Fatalf("expected resumption at prefix %q, got %q", allPrefixes[mid+1], hooks.prefixes[0])
	}
}
