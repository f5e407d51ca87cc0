package index_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/predicate"
)

var (
	fileA = handle.Identity{Path: "a.oap", Format: handle.FormatNative}
	fileB = handle.Identity{Path: "b.oap", Format: handle.FormatNative}
	ageIx = handle.IndexDescriptor{Name: "age", Attributes: []string{"age"}, Kind: handle.KindBTree}
)

type stubScanner struct{ d handle.IndexDescriptor }

func (s stubScanner) Descriptor() handle.IndexDescriptor { return s.d }
func (s stubScanner) Lookup(context.Context, []predicate.Expr) (iter.Seq[uint64], error) {
	return func(func(uint64) bool) {}, nil
}

func TestBuildHelperDeduplication(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	build := func(ctx context.Context) (index.Scanner, error) {
		calls.Add(1)
		close(started)
		<-release
		return stubScanner{ageIx}, nil
	}

	helper := index.NewBuildHelper()

	const n = 10
	var wg sync.WaitGroup
	got := make([]index.Scanner, n)
	errs := make([]error, n)

	// Launch first caller to establish the in-flight build.
	wg.Go(func() {
		got[0], errs[0] = helper.Build(context.Background(), fileA, ageIx, build)
	})

	// Wait for the build to start, then launch remaining callers.
	<-started
	if !helper.InFlight(fileA, ageIx) {
		t.Error("build not reported in flight")
	}
	for i := 1; i < n; i++ {
		wg.Go(func() {
			got[i], errs[i] = helper.Build(context.Background(), fileA, ageIx, build)
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d got error: %v", i, err)
		}
		if got[i] == nil || got[i].Descriptor().Name != "age" {
			t.Errorf("caller %d got scanner %v", i, got[i])
		}
	}
	if c := calls.Load(); c != 1 {
		t.Errorf("build invoked %d times, want 1", c)
	}
}

func TestBuildHelperDistinctFiles(t *testing.T) {
	var calls atomic.Int32
	build := func(ctx context.Context) (index.Scanner, error) {
		calls.Add(1)
		return stubScanner{ageIx}, nil
	}
	helper := index.NewBuildHelper()
	for _, id := range []handle.Identity{fileA, fileB, fileA} {
		if _, err := helper.Build(context.Background(), id, ageIx, build); err != nil {
			t.Fatal(err)
		}
	}
	// Finished builds are not remembered.
	if c := calls.Load(); c != 3 {
		t.Errorf("build invoked %d times, want 3", c)
	}
}

func TestBuildHelperErrorPropagation(t *testing.T) {
	sentinel := errors.New("build failed")
	helper := index.NewBuildHelper()
	_, err := helper.Build(context.Background(), fileA, ageIx, func(context.Context) (index.Scanner, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}

func TestBuildHelperCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var buildCtxErr atomic.Value

	helper := index.NewBuildHelper()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := helper.Build(ctx, fileA, ageIx, func(bctx context.Context) (index.Scanner, error) {
			close(started)
			<-release
			if err := bctx.Err(); err != nil {
				buildCtxErr.Store(err)
			}
			return stubScanner{ageIx}, nil
		})
		done <- err
	}()

	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	close(release)

	// The build itself is detached and finishes normally.
	deadline := time.Now().Add(time.Second)
	for helper.InFlight(fileA, ageIx) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if v := buildCtxErr.Load(); v != nil {
		t.Errorf("build saw cancelled context: %v", v)
	}
}

func TestBuildHelperCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	helper := index.NewBuildHelper()
	_, err := helper.Build(ctx, fileA, ageIx, func(context.Context) (index.Scanner, error) {
		t.Error("build ran for a cancelled caller")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
