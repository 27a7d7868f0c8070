package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/featureflow/internal/runtime/config"
)

func noteAction(order *[]string, name string) Action {
	return func(ctx context.Context, impl any) error {
		*order = append(*order, name)
		return nil
	}
}

func TestDispatchToLiveImplementation(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := KeyFor[greeterService]()
	impl := &stubGreeter{}
	fx.scope.Register(key, impl)

	var gotCtx context.Context
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		gotCtx = ctx
		impl.(greeterService).Greet("direct")
		return nil
	})

	assert.NotNil(t, gotCtx)
	assert.Equal(t, []string{"direct"}, impl.Seen())
	assert.Equal(t, 0, fx.scope.PendingCount(key))

	fm := fx.scope.Metrics().GetFeatureMetrics(key.String())
	require.NotNil(t, fm)
	assert.Equal(t, uint64(1), fm.Dispatched)
	assert.Equal(t, uint64(0), fm.Queued)

	events := fx.hooks.events()
	assert.Equal(t, []string{
		"register:" + key.String() + ":0",
		"deliver:" + key.String(),
		"complete:" + key.String(),
	}, events)
}

func TestDispatchRejectsZeroKey(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())

	fx.scope.Dispatch(FeatureKey{}, func(ctx context.Context, impl any) error {
		t.Error("action must not run for a zero key")
		return nil
	})

	assert.True(t, fx.logger.recorder.hasMessage("error", "Dispatch rejected"))
	assert.Empty(t, fx.hooks.events())
}

func TestDispatchRejectsNilAction(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())

	fx.scope.Dispatch(NewFeatureKey("greeter"), nil)

	assert.True(t, fx.logger.recorder.hasMessage("error", "Dispatch rejected"))
	assert.Empty(t, fx.hooks.events())
	assert.Equal(t, 0, fx.scope.PendingCount(NewFeatureKey("greeter")))
}

func TestDispatchQueuesWhenAbsent(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error { return nil })

	assert.Equal(t, 1, fx.scope.PendingCount(key))
	assert.Equal(t, []string{"enqueue:greeter"}, fx.hooks.events())

	enqueued := fx.hooks.enqueuedInfos()
	require.Len(t, enqueued, 1)
	assert.Equal(t, "test", enqueued[0].Scope)
	assert.Equal(t, "greeter", enqueued[0].Feature)
	assert.NotEmpty(t, enqueued[0].ActionID)
	assert.Equal(t, PriorityNormal, enqueued[0].Priority)
	assert.Equal(t, fx.clk.Now(), enqueued[0].EnqueuedAt)

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(1), fm.Queued)
	assert.Equal(t, uint64(1), fm.Pending)
	assert.Equal(t, uint64(0), fm.Dispatched)
}

func TestRegisterReplaysInPriorityOrder(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "low"), WithPriority(PriorityLow))
	fx.scope.Dispatch(key, noteAction(&order, "critical"), WithPriority(PriorityCritical))
	fx.scope.Dispatch(key, noteAction(&order, "normal"))
	fx.scope.Dispatch(key, noteAction(&order, "high"), WithPriority(PriorityHigh))

	fx.scope.Register(key, &stubGreeter{})

	assert.Equal(t, []string{"critical", "high", "normal", "low"}, order)
	assert.Equal(t, 0, fx.scope.PendingCount(key))

	delivered := fx.hooks.deliveredInfos()
	require.Len(t, delivered, 4)
	for _, info := range delivered {
		assert.True(t, info.Replayed)
		assert.False(t, info.EnqueuedAt.IsZero())
	}

	events := fx.hooks.events()
	assert.Contains(t, events, "register:greeter:4")

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(4), fm.Replayed)
	assert.Equal(t, uint64(0), fm.Pending)
}

func TestRegisterReplaysFIFOWithinPriority(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "first"))
	fx.scope.Dispatch(key, noteAction(&order, "second"))
	fx.scope.Dispatch(key, noteAction(&order, "third"))

	fx.scope.Register(key, &stubGreeter{})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatchInvalidPriorityFallsBackToNormal(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "bogus"), WithPriority(Priority(9)))
	fx.scope.Dispatch(key, noteAction(&order, "high"), WithPriority(PriorityHigh))

	fx.scope.Register(key, &stubGreeter{})

	assert.Equal(t, []string{"high", "bogus"}, order)
}

func TestRegisterWithEmptyQueue(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	fx.scope.Register(key, &stubGreeter{})

	assert.Equal(t, []string{"register:greeter:0"}, fx.hooks.events())
}

func TestDispatchAfterRegistrationDeliversDirectly(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "queued"))
	fx.scope.Register(key, &stubGreeter{})
	fx.scope.Dispatch(key, noteAction(&order, "direct"))

	assert.Equal(t, []string{"queued", "direct"}, order)
	assert.Equal(t, 0, fx.scope.PendingCount(key))

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(1), fm.Replayed)
	assert.Equal(t, uint64(1), fm.Dispatched)
}

func TestReRegisterReplacesImplementation(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := KeyFor[greeterService]()

	first := &stubGreeter{}
	second := &stubGreeter{}
	fx.scope.Register(key, first)
	fx.scope.Register(key, second)

	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		impl.(greeterService).Greet("replaced")
		return nil
	})

	assert.Empty(t, first.Seen())
	assert.Equal(t, []string{"replaced"}, second.Seen())
}

func TestQueuedActionReplaysToReplacement(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := KeyFor[greeterService]()

	first := &stubGreeter{}
	second := &stubGreeter{}

	fx.scope.Register(key, first)
	fx.scope.Unregister(key)

	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		impl.(greeterService).Greet("handover")
		return nil
	})
	require.Equal(t, 1, fx.scope.PendingCount(key))

	fx.scope.Register(key, second)

	assert.Empty(t, first.Seen())
	assert.Equal(t, []string{"handover"}, second.Seen())
	assert.Equal(t, 0, fx.scope.PendingCount(key))
}

func TestRegisterRejectsNilImpl(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())

	fx.scope.Register(NewFeatureKey("greeter"), nil)

	assert.True(t, fx.logger.recorder.hasMessage("error", "Register rejected"))
	assert.False(t, fx.scope.IsRegistered(NewFeatureKey("greeter")))
}

func TestRegisterHandleRejectsZeroKeyAndNilHandle(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())

	fx.scope.RegisterHandle(FeatureKey{}, NewPinHandle(&stubGreeter{}))
	fx.scope.RegisterHandle(NewFeatureKey("greeter"), nil)

	assert.True(t, fx.logger.recorder.hasMessage("error", "Register rejected"))
	assert.Empty(t, fx.hooks.events())
}

func TestQueueCapEvictsOldestLowestPriority(t *testing.T) {
	conf := configpkg.DefaultConfig()
	conf.MaxQueueSize = 2
	fx := newTestScope(t, conf)
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "low"), WithPriority(PriorityLow))
	fx.scope.Dispatch(key, noteAction(&order, "high"), WithPriority(PriorityHigh))
	fx.scope.Dispatch(key, noteAction(&order, "normal"))

	dropped := fx.hooks.droppedEvents()
	require.Len(t, dropped, 1)
	assert.Equal(t, DropEvicted, dropped[0].reason)
	assert.Equal(t, PriorityLow, dropped[0].info.Priority)

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(3), fm.Queued)
	assert.Equal(t, uint64(1), fm.Evicted)
	assert.Equal(t, uint64(2), fm.Pending)

	fx.scope.Register(key, &stubGreeter{})
	assert.Equal(t, []string{"high", "normal"}, order)
}

func TestZeroCapacityRefusesActions(t *testing.T) {
	conf := configpkg.DefaultConfig()
	conf.MaxQueueSize = 0
	fx := newTestScope(t, conf)
	key := NewFeatureKey("greeter")

	ran := false
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		ran = true
		return nil
	})

	assert.False(t, ran)
	assert.Equal(t, 0, fx.scope.PendingCount(key))

	dropped := fx.hooks.droppedEvents()
	require.Len(t, dropped, 1)
	assert.Equal(t, DropUnqueued, dropped[0].reason)

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(1), fm.Evicted)
	assert.Equal(t, uint64(0), fm.Queued)
	assert.Equal(t, uint64(0), fm.Pending)

	// Registration still works; there is just nothing to replay.
	fx.scope.Register(key, &stubGreeter{})
	assert.False(t, ran)
	assert.Contains(t, fx.hooks.events(), "register:greeter:0")
}

func TestExpiryDropsStaleActions(t *testing.T) {
	conf := configpkg.DefaultConfig()
	conf.ActionExpiry = time.Minute
	fx := newTestScope(t, conf)
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "stale"))
	fx.clk.Add(61 * time.Second)
	fx.scope.Dispatch(key, noteAction(&order, "fresh"))

	dropped := fx.hooks.droppedEvents()
	require.Len(t, dropped, 1)
	assert.Equal(t, DropExpired, dropped[0].reason)

	fx.scope.Register(key, &stubGreeter{})
	assert.Equal(t, []string{"fresh"}, order)

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(1), fm.Expired)
	assert.Equal(t, uint64(1), fm.Replayed)
}

func TestExpiryBoundaryStillDelivers(t *testing.T) {
	conf := configpkg.DefaultConfig()
	conf.ActionExpiry = time.Minute
	fx := newTestScope(t, conf)
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "edge"))
	fx.clk.Add(time.Minute)

	fx.scope.Register(key, &stubGreeter{})

	assert.Equal(t, []string{"edge"}, order, "an action aged exactly to the expiry is still deliverable")
	assert.Empty(t, fx.hooks.droppedEvents())
}

func TestActionErrorIsContained(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")
	fx.scope.Register(key, &stubGreeter{})

	boom := errors.New("boom")
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error { return boom })

	completed := fx.hooks.completedEvents()
	require.Len(t, completed, 1)
	assert.ErrorIs(t, completed[0].err, boom)

	assert.True(t, fx.logger.recorder.hasMessage("error", "Action failed"))

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(1), fm.Failed)
	assert.Equal(t, uint64(1), fm.Dispatched)
}

func TestActionPanicIsContained(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")
	fx.scope.Register(key, &stubGreeter{})

	require.NotPanics(t, func() {
		fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
			panic("kaboom")
		})
	})

	completed := fx.hooks.completedEvents()
	require.Len(t, completed, 1)
	require.Error(t, completed[0].err)
	assert.Contains(t, completed[0].err.Error(), "action panicked: kaboom")

	assert.True(t, fx.logger.recorder.hasMessage("error", "Action panicked"))

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(1), fm.Failed)
}

func TestReplayBatchSurvivesFailures(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "first"))
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		order = append(order, "failing")
		panic("mid-batch")
	})
	fx.scope.Dispatch(key, noteAction(&order, "last"))

	fx.scope.Register(key, &stubGreeter{})

	assert.Equal(t, []string{"first", "failing", "last"}, order)

	fm := fx.scope.Metrics().GetFeatureMetrics("greeter")
	require.NotNil(t, fm)
	assert.Equal(t, uint64(3), fm.Replayed)
	assert.Equal(t, uint64(1), fm.Failed)
}

func TestActionCanDispatchReentrantly(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")
	fx.scope.Register(key, &stubGreeter{})

	inner := false
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
			inner = true
			return nil
		})
		return nil
	})

	assert.True(t, inner, "actions must be able to dispatch into their own scope")
}

func TestActionCanRegisterReentrantly(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	trigger := NewFeatureKey("trigger")
	other := NewFeatureKey("other")

	var order []string
	fx.scope.Dispatch(other, noteAction(&order, "queued-on-other"))

	fx.scope.Register(trigger, &stubGreeter{})
	fx.scope.Dispatch(trigger, func(ctx context.Context, impl any) error {
		fx.scope.Register(other, &stubGreeter{})
		return nil
	})

	assert.Equal(t, []string{"queued-on-other"}, order)
	assert.True(t, fx.scope.IsRegistered(other))
}

func TestDispatchDuringReplayStaysOutOfBatch(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "batch-1"))
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		order = append(order, "batch-2")
		fx.scope.Dispatch(key, noteAction(&order, "late"))
		return nil
	})
	fx.scope.Dispatch(key, noteAction(&order, "batch-3"))

	fx.scope.Register(key, &stubGreeter{})

	// The replay batch is fixed when the queue is drained. The mid-batch
	// dispatch sees a live registration and runs directly, exactly once; it
	// is never appended to the in-flight batch.
	assert.Equal(t, []string{"batch-1", "batch-2", "late", "batch-3"}, order)
	assert.Equal(t, 0, fx.scope.PendingCount(key))
	assert.Contains(t, fx.hooks.events(), "register:greeter:3")

	delivered := fx.hooks.deliveredInfos()
	require.Len(t, delivered, 4)
	assert.True(t, delivered[0].Replayed)
	assert.True(t, delivered[1].Replayed)
	assert.False(t, delivered[2].Replayed, "the mid-batch dispatch is a direct delivery")
	assert.True(t, delivered[3].Replayed)
}

func TestWeakHandleCollectionQueuesAgain(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("weak-greeter")

	func() {
		impl := &stubGreeter{}
		fx.scope.RegisterHandle(key, NewWeakHandle(impl))
		fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
			impl.(*stubGreeter).Greet("while-alive")
			return nil
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for fx.scope.IsRegistered(key) {
		if time.Now().After(deadline) {
			t.Fatal("weak registration still resolves after the implementation became unreachable")
		}
		runtime.GC()
	}

	ran := false
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		ran = true
		return nil
	})

	assert.False(t, ran, "a collected implementation must not receive actions")
	assert.Equal(t, 1, fx.scope.PendingCount(key))
}

func TestRegisterHandleDeadOnArrivalKeepsQueue(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")

	var order []string
	fx.scope.Dispatch(key, noteAction(&order, "parked"))

	fx.scope.RegisterHandle(key, HandleFunc(func() (any, bool) { return nil, false }))

	assert.Empty(t, order, "a dead handle must not trigger a replay")
	assert.Equal(t, 1, fx.scope.PendingCount(key))
	assert.False(t, fx.scope.IsRegistered(key))

	fx.scope.Register(key, &stubGreeter{})
	assert.Equal(t, []string{"parked"}, order)
}

func TestDispatchWithSerialExecutor(t *testing.T) {
	exec := NewSerialExecutor()
	require.NoError(t, exec.Start())
	defer func() { _ = exec.Stop(context.Background()) }()

	scope, err := TryNewScope("serial", configpkg.DefaultConfig(), ScopeDependencies{
		Executor:          exec,
		Logger:            newTestLogger(),
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	key := NewFeatureKey("greeter")

	results := make(chan string, 3)
	scope.Dispatch(key, func(ctx context.Context, impl any) error {
		results <- "queued-1"
		return nil
	})
	scope.Dispatch(key, func(ctx context.Context, impl any) error {
		results <- "queued-2"
		return nil
	})
	scope.Register(key, &stubGreeter{})

	affinity := make(chan bool, 1)
	scope.Dispatch(key, func(ctx context.Context, impl any) error {
		affinity <- exec.IsOnAffinityContext()
		return nil
	})

	collect := func() string {
		select {
		case got := <-results:
			return got
		case <-time.After(2 * time.Second):
			t.Fatal("action never ran on the executor")
			return ""
		}
	}
	assert.Equal(t, "queued-1", collect())
	assert.Equal(t, "queued-2", collect())

	select {
	case onWorker := <-affinity:
		assert.True(t, onWorker, "actions must run on the executor's context")
	case <-time.After(2 * time.Second):
		t.Fatal("direct dispatch never ran on the executor")
	}
}

func TestCompleteInfoCarriesDuration(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	key := NewFeatureKey("greeter")
	fx.scope.Register(key, &stubGreeter{})

	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		fx.clk.Add(50 * time.Millisecond)
		return nil
	})

	completed := fx.hooks.completedEvents()
	require.Len(t, completed, 1)
	assert.Equal(t, 50*time.Millisecond, completed[0].info.Duration)
	assert.False(t, completed[0].info.Replayed)
	assert.False(t, completed[0].info.StartedAt.IsZero())
}

func TestTracingEnabledDeliveryStillWorks(t *testing.T) {
	conf := configpkg.DefaultConfig()
	conf.TracingEnabled = true
	fx := newTestScope(t, conf)
	key := NewFeatureKey("greeter")
	fx.scope.Register(key, &stubGreeter{})

	ran := false
	fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
		ran = true
		assert.NotNil(t, ctx)
		return errors.New("traced failure")
	})

	assert.True(t, ran)
}

func TestCrossFeatureIsolation(t *testing.T) {
	fx := newTestScope(t, configpkg.DefaultConfig())
	live := NewFeatureKey("live")
	parked := NewFeatureKey("parked")
	fx.scope.Register(live, &stubGreeter{})

	var order []string
	fx.scope.Dispatch(live, noteAction(&order, "live"))
	fx.scope.Dispatch(parked, noteAction(&order, "parked"))

	assert.Equal(t, []string{"live"}, order)
	assert.Equal(t, 0, fx.scope.PendingCount(live))
	assert.Equal(t, 1, fx.scope.PendingCount(parked))
}

func TestCrossScopeIsolation(t *testing.T) {
	conf := configpkg.DefaultConfig()
	key := NewFeatureKey("shared-key")

	a, err := TryNewScope("iso-a", conf, ScopeDependencies{
		Logger:            newRecordingLogger(),
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	b, err := TryNewScope("iso-b", conf, ScopeDependencies{
		Logger:            newRecordingLogger(),
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	implA := &stubGreeter{}
	implB := &stubGreeter{}
	a.Register(key, implA)
	b.Register(key, implB)

	a.Dispatch(key, func(ctx context.Context, impl any) error {
		impl.(greeterService).Greet("to-a")
		return nil
	})
	b.Dispatch(key, func(ctx context.Context, impl any) error {
		impl.(greeterService).Greet("to-b")
		return nil
	})

	assert.Equal(t, []string{"to-a"}, implA.Seen())
	assert.Equal(t, []string{"to-b"}, implB.Seen())

	// Work queued on one scope never appears in the other's snapshot.
	parked := NewFeatureKey("parked-on-a")
	a.Dispatch(parked, func(ctx context.Context, impl any) error { return nil })

	assert.Equal(t, 1, a.PendingCount(parked))
	assert.Equal(t, 0, b.PendingCount(parked))
	assert.NotContains(t, b.DebugInfo().PerFeaturePending, parked.String())
	assert.Contains(t, a.DebugInfo().PerFeaturePending, parked.String())
}

func TestConcurrentDispatchRegisterNoDoubleDelivery(t *testing.T) {
	conf := configpkg.DefaultConfig()
	conf.MaxQueueSize = 4096
	fx := newTestScope(t, conf)
	key := KeyFor[greeterService]()

	const dispatchers = 8
	const perDispatcher = 200
	const registerCycles = 200

	var mu sync.Mutex
	counts := make(map[string]int, dispatchers*perDispatcher)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < registerCycles; i++ {
			fx.scope.Register(key, &stubGreeter{})
			fx.scope.Unregister(key)
		}
	}()

	for d := 0; d < dispatchers; d++ {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perDispatcher; i++ {
				id := fmt.Sprintf("%d/%d", d, i)
				fx.scope.Dispatch(key, func(ctx context.Context, impl any) error {
					mu.Lock()
					counts[id]++
					mu.Unlock()
					return nil
				})
			}
		}()
	}

	wg.Wait()

	// Flush whatever the register/unregister toggling left queued. With the
	// queue sized above the dispatch volume and the clock frozen, nothing
	// can be evicted or expire, so every action must run exactly once.
	fx.scope.Register(key, &stubGreeter{})

	assert.Len(t, counts, dispatchers*perDispatcher)
	for id, n := range counts {
		require.Equalf(t, 1, n, "action %s delivered %d times", id, n)
	}
	assert.Equal(t, 0, fx.scope.PendingCount(key))
}

func TestRegisterAcrossScopesLogsDebugDiagnostic(t *testing.T) {
	conf := configpkg.DefaultConfig()
	conf.DebugMode = true
	key := NewFeatureKey("multi-scope-feature")

	firstLog := newRecordingLogger()
	first, err := TryNewScope("multi-reg-a", conf, ScopeDependencies{
		Logger:            firstLog,
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	secondLog := newRecordingLogger()
	second, err := TryNewScope("multi-reg-b", conf, ScopeDependencies{
		Logger:            secondLog,
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	first.Register(key, &stubGreeter{})
	assert.False(t, firstLog.recorder.hasMessage("info", "Feature key registered in multiple scopes"))

	second.Register(key, &stubGreeter{})
	assert.True(t, secondLog.recorder.hasMessage("info", "Feature key registered in multiple scopes"))
}
