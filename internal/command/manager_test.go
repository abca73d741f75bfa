package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

func TestManager_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("executes, undoes and redoes a property change", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)

		inst, err := m.Execute(ctx, "Inc", ObjectID("a"))
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, inst.Status())
		assert.Equal(t, CodeOK, inst.ErrorCode())
		assert.Equal(t, 1, inst.Result())
		assert.Equal(t, 1, store.get("a", "count"))

		assert.Len(t, m.History(ctx), 1)
		assert.Equal(t, 0, m.CommandIndex(ctx))
		assert.True(t, m.CanUndo(ctx))
		assert.False(t, m.CanRedo(ctx))

		require.NoError(t, m.Undo(ctx))
		assert.Nil(t, store.get("a", "count"))
		assert.Equal(t, -1, m.CommandIndex(ctx))
		assert.False(t, m.CanUndo(ctx))
		assert.True(t, m.CanRedo(ctx))

		require.NoError(t, m.Redo(ctx))
		assert.Equal(t, 1, store.get("a", "count"))
		assert.Equal(t, 0, m.CommandIndex(ctx))
	})

	t.Run("unknown command fails without an instance", func(t *testing.T) {
		m := newTestManager(t, newMemStore())

		inst, err := m.Queue(ctx, "Nope", nil)
		assert.Nil(t, inst)
		assert.ErrorIs(t, err, errors.ErrInvalidArguments)
		assert.Empty(t, m.History(ctx))
	})

	t.Run("rejected arguments fail with invalid arguments", func(t *testing.T) {
		m := newTestManager(t, newMemStore("a"))

		_, err := m.Queue(ctx, "Set", setArgs{Object: "a"})
		assert.ErrorIs(t, err, errors.ErrInvalidArguments)
		assert.ErrorIs(t, err, errors.ErrInvalidValue)
		assert.Equal(t, CodeInvalidArguments, Code(err))
	})

	t.Run("undo and redo on empty history report no history", func(t *testing.T) {
		m := newTestManager(t, newMemStore())

		assert.ErrorIs(t, m.Undo(ctx), errors.ErrNoHistory)
		assert.ErrorIs(t, m.Redo(ctx), errors.ErrNoHistory)
	})

	t.Run("a new action truncates the redo tail", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)

		first, err := m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: 1})
		require.NoError(t, err)
		_, err = m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: 2})
		require.NoError(t, err)
		require.NoError(t, m.Undo(ctx))

		third, err := m.Execute(ctx, "Set", setArgs{Object: "a", Path: "y", Value: 3})
		require.NoError(t, err)

		history := m.History(ctx)
		require.Len(t, history, 2)
		assert.Same(t, first, history[0])
		assert.Same(t, third, history[1])
		assert.Equal(t, 1, m.CommandIndex(ctx))
		assert.False(t, m.CanRedo(ctx))
		assert.Equal(t, 1, store.get("a", "x"))
	})

	t.Run("failed command is rolled back and inert", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Broken",
			Thread: AffinityUI,
			Run: func(ctx context.Context, args any) (any, error) {
				if err := store.SetValue(ctx, "a", "x", 5); err != nil {
					return nil, err
				}
				return nil, errors.Wrap(errors.ErrInvalidValue, "rejected")
			},
		}))

		inst, err := m.Execute(ctx, "Broken", nil)
		assert.ErrorIs(t, err, errors.ErrInvalidValue)
		require.NotNil(t, inst)
		assert.Equal(t, CodeInvalidValue, inst.ErrorCode())
		assert.Nil(t, store.get("a", "x"))

		rec, ok := inst.Record().(*DiffRecord)
		require.True(t, ok)
		assert.True(t, rec.Inert())

		store.objects["a"]["x"] = 9
		require.NoError(t, m.Undo(ctx))
		assert.Equal(t, 9, store.get("a", "x"))
	})

	t.Run("children replay around custom undo in execution order", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Spawn",
			Thread: AffinityUI,
			Run: func(ctx context.Context, args any) (any, error) {
				created, err := m.Execute(ctx, "Create", nil)
				if err != nil {
					return nil, err
				}
				id := created.Result().(ObjectID)
				if _, err := m.Execute(ctx, "Set", setArgs{Object: id, Path: "x", Value: "v"}); err != nil {
					return nil, err
				}
				return id, store.SetValue(ctx, "a", "last", id)
			},
		}))

		inst, err := m.Execute(ctx, "Spawn", nil)
		require.NoError(t, err)
		id := inst.Result().(ObjectID)
		require.Len(t, inst.Children(), 2)
		assert.Equal(t, "v", store.get(id, "x"))

		require.NoError(t, m.Undo(ctx))
		assert.False(t, store.Exists(id))
		assert.Nil(t, store.get("a", "last"))

		require.NoError(t, m.Redo(ctx))
		require.True(t, store.Exists(id))
		assert.Equal(t, "v", store.get(id, "x"))
		assert.Equal(t, id, store.get("a", "last"))
	})

	t.Run("parent writes around a child keep their order", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Sandwich",
			Thread: AffinityUI,
			Run: func(ctx context.Context, args any) (any, error) {
				if err := store.SetValue(ctx, "a", "x", 1); err != nil {
					return nil, err
				}
				if _, err := m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: 2}); err != nil {
					return nil, err
				}
				return nil, store.SetValue(ctx, "a", "x", 3)
			},
		}))

		_, err := m.Execute(ctx, "Sandwich", nil)
		require.NoError(t, err)
		assert.Equal(t, 3, store.get("a", "x"))

		require.NoError(t, m.Undo(ctx))
		assert.Nil(t, store.get("a", "x"))
		require.NoError(t, m.Redo(ctx))
		assert.Equal(t, 3, store.get("a", "x"))
	})

	t.Run("undo restores map values unchanged", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		store.objects["a"]["x"] = map[string]any{"n": 1, "tags": []any{"p"}}

		_, err := m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: 2})
		require.NoError(t, err)
		require.NoError(t, m.Undo(ctx))
		want := map[string]any{"n": 1, "tags": []any{"p"}}
		assert.Equal(t, want, store.get("a", "x"))

		store.get("a", "x").(map[string]any)["n"] = 7
		require.NoError(t, m.Redo(ctx))
		require.NoError(t, m.Undo(ctx))
		assert.Equal(t, want, store.get("a", "x"))
	})

	t.Run("panicking command fails", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		require.NoError(t, m.Register(&Definition{
			Name:   "Panic",
			Thread: AffinityUI,
			Run:    func(ctx context.Context, args any) (any, error) { panic("boom") },
		}))

		inst, err := m.Execute(ctx, "Panic", nil)
		assert.ErrorIs(t, err, errors.ErrFailed)
		assert.Equal(t, CodeFailed, inst.ErrorCode())
	})

	t.Run("commands that cannot undo stay out of the history", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		require.NoError(t, m.Register(&Definition{
			Name:        "Query",
			Thread:      AffinityAny,
			Run:         func(ctx context.Context, args any) (any, error) { return "ok", nil },
			CanUndoFunc: func(args any) bool { return false },
		}))

		inst, err := m.Execute(ctx, "Query", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", inst.Result())
		assert.Empty(t, m.History(ctx))
	})

	t.Run("method invocations are undone through the accessor", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)

		_, err := m.Execute(ctx, "Add", 5)
		require.NoError(t, err)
		assert.Equal(t, 5, store.get("a", "count"))

		require.NoError(t, m.Undo(ctx))
		assert.Equal(t, 0, store.get("a", "count"))
		require.NoError(t, m.Redo(ctx))
		assert.Equal(t, 5, store.get("a", "count"))
	})

	t.Run("queue after close fails", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		require.NoError(t, m.Close())

		_, err := m.Queue(ctx, "Inc", ObjectID("a"))
		assert.ErrorIs(t, err, errors.ErrManagerClosed)
	})
}

func TestManager_Threads(t *testing.T) {
	ctx := context.Background()

	t.Run("worker commands run on the worker and enter the history", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		onWorker := make(chan bool, 1)
		require.NoError(t, m.Register(&Definition{
			Name:   "Where",
			Thread: AffinityWorker,
			Run: func(ctx context.Context, args any) (any, error) {
				onWorker <- OnWorker(ctx)
				return nil, store.SetValue(ctx, "a", "x", "w")
			},
		}))

		_, err := m.Execute(ctx, "Where", nil)
		require.NoError(t, err)
		assert.True(t, <-onWorker)
		assert.Equal(t, "w", store.get("a", "x"))
		require.Len(t, m.History(ctx), 1)

		require.NoError(t, m.Undo(ctx))
		assert.Nil(t, store.get("a", "x"))
	})

	t.Run("worker command waiting on a ui child does not deadlock", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Outer",
			Thread: AffinityWorker,
			Run: func(ctx context.Context, args any) (any, error) {
				if err := store.SetValue(ctx, "a", "outer", true); err != nil {
					return nil, err
				}
				child, err := m.Queue(ctx, "Set", setArgs{Object: "a", Path: "inner", Value: 1})
				if err != nil {
					return nil, err
				}
				if err := m.WaitFor(ctx, child); err != nil {
					return nil, err
				}
				return child.Result(), child.Err()
			},
		}))

		inst, err := m.Execute(ctx, "Outer", nil)
		require.NoError(t, err)
		assert.Len(t, inst.Children(), 1)
		assert.Len(t, m.History(ctx), 1)
		assert.Equal(t, 1, store.get("a", "inner"))

		require.NoError(t, m.Undo(ctx))
		assert.Nil(t, store.get("a", "inner"))
		assert.Nil(t, store.get("a", "outer"))

		require.NoError(t, m.Redo(ctx))
		assert.Equal(t, 1, store.get("a", "inner"))
		assert.Equal(t, true, store.get("a", "outer"))
	})

	t.Run("waiting worker leaves unrelated worker commands queued", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		var mu sync.Mutex
		var order []string
		note := func(s string) {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
		started := make(chan struct{})
		require.NoError(t, m.Register(&Definition{
			Name:   "First",
			Thread: AffinityWorker,
			Run: func(ctx context.Context, args any) (any, error) {
				note("first start")
				close(started)
				child, err := m.Queue(ctx, "Set", setArgs{Object: "a", Path: "x", Value: 1})
				if err != nil {
					return nil, err
				}
				if err := m.WaitFor(ctx, child); err != nil {
					return nil, err
				}
				note("first end")
				return nil, nil
			},
		}))
		require.NoError(t, m.Register(&Definition{
			Name:   "Second",
			Thread: AffinityWorker,
			Run: func(ctx context.Context, args any) (any, error) {
				note("second start")
				note("second end")
				return nil, nil
			},
		}))

		first, err := m.Queue(ctx, "First", nil)
		require.NoError(t, err)
		<-started
		second, err := m.Queue(ctx, "Second", nil)
		require.NoError(t, err)
		// First stays blocked on its ui child until the owner loop runs.
		time.Sleep(20 * time.Millisecond)

		require.NoError(t, m.WaitFor(ctx, first))
		require.NoError(t, m.WaitFor(ctx, second))
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"first start", "first end", "second start", "second end"}, order)
		assert.Equal(t, 1, store.get("a", "x"))
	})

	t.Run("waiting worker runs worker work nested under it", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Bounce",
			Thread: AffinityUI,
			Run: func(ctx context.Context, args any) (any, error) {
				_, err := m.Execute(ctx, "WorkerSet", setArgs{Object: "a", Path: "inner", Value: 2})
				return nil, err
			},
		}))
		require.NoError(t, m.Register(&Definition{
			Name:   "Outer",
			Thread: AffinityWorker,
			Run: func(ctx context.Context, args any) (any, error) {
				_, err := m.Execute(ctx, "Bounce", nil)
				return nil, err
			},
		}))

		_, err := m.Execute(ctx, "Outer", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, store.get("a", "inner"))

		require.NoError(t, m.Undo(ctx))
		assert.Nil(t, store.get("a", "inner"))
	})

	t.Run("ui command waiting on a ui child runs it in place", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Twice",
			Thread: AffinityUI,
			Run: func(ctx context.Context, args any) (any, error) {
				for i := 0; i < 2; i++ {
					child, err := m.Queue(ctx, "Inc", ObjectID("a"))
					if err != nil {
						return nil, err
					}
					if err := m.WaitFor(ctx, child); err != nil {
						return nil, err
					}
				}
				return nil, nil
			},
		}))

		inst, err := m.Execute(ctx, "Twice", nil)
		require.NoError(t, err)
		assert.Len(t, inst.Children(), 2)
		assert.Equal(t, 2, store.get("a", "count"))
		require.Len(t, m.History(ctx), 1)

		require.NoError(t, m.Undo(ctx))
		assert.Nil(t, store.get("a", "count"))
	})

	t.Run("children queued without waiting complete before the parent", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Fire",
			Thread: AffinityUI,
			Run: func(ctx context.Context, args any) (any, error) {
				_, err := m.Queue(ctx, "WorkerSet", setArgs{Object: "a", Path: "w", Value: 1})
				return nil, err
			},
		}))

		inst, err := m.Execute(ctx, "Fire", nil)
		require.NoError(t, err)
		children := inst.Children()
		require.Len(t, children, 1)
		assert.Equal(t, StatusComplete, children[0].Status())
		assert.Equal(t, 1, store.get("a", "w"))
	})

	t.Run("wait returns when the context ends", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		release := make(chan struct{})
		require.NoError(t, m.Register(&Definition{
			Name:   "Block",
			Thread: AffinityWorker,
			Run: func(ctx context.Context, args any) (any, error) {
				<-release
				return nil, nil
			},
		}))

		inst, err := m.Queue(ctx, "Block", nil)
		require.NoError(t, err)

		wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, m.WaitFor(wctx, inst), context.DeadlineExceeded)

		close(release)
		require.NoError(t, m.WaitFor(ctx, inst))
		assert.Equal(t, CodeOK, inst.ErrorCode())
	})

	t.Run("cancel aborts only queued instances", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		started := make(chan struct{})
		release := make(chan struct{})
		require.NoError(t, m.Register(&Definition{
			Name:   "Block",
			Thread: AffinityWorker,
			Run: func(ctx context.Context, args any) (any, error) {
				close(started)
				<-release
				return nil, nil
			},
		}))
		require.NoError(t, m.Register(&Definition{
			Name:   "Later",
			Thread: AffinityWorker,
			Run:    func(ctx context.Context, args any) (any, error) { return "ran", nil },
		}))

		running, err := m.Queue(ctx, "Block", nil)
		require.NoError(t, err)
		<-started
		queued, err := m.Queue(ctx, "Later", nil)
		require.NoError(t, err)

		require.NoError(t, m.Cancel(queued))
		assert.ErrorIs(t, m.Cancel(running), errors.ErrInvalidOperation)

		close(release)
		require.NoError(t, m.WaitFor(ctx, running))
		require.NoError(t, m.WaitFor(ctx, queued))
		assert.Equal(t, CodeAborted, queued.ErrorCode())
		assert.Nil(t, queued.Result())
		assert.ErrorIs(t, queued.Err(), errors.ErrAborted)
		assert.Len(t, m.History(ctx), 1)
	})
}

func TestManager_Navigation(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, m *Manager, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			_, err := m.Execute(ctx, "Inc", ObjectID("a"))
			require.NoError(t, err)
		}
	}

	t.Run("moves the cursor in both directions", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		run(t, m, 3)

		require.NoError(t, m.MoveCommandIndex(ctx, -1))
		assert.Nil(t, store.get("a", "count"))
		assert.Equal(t, -1, m.CommandIndex(ctx))

		require.NoError(t, m.MoveCommandIndex(ctx, 1))
		assert.Equal(t, 2, store.get("a", "count"))
		assert.Equal(t, 1, m.CommandIndex(ctx))

		assert.ErrorIs(t, m.MoveCommandIndex(ctx, 3), errors.ErrOutOfRange)
		assert.ErrorIs(t, m.MoveCommandIndex(ctx, -2), errors.ErrOutOfRange)
	})

	t.Run("removing entries keeps the cursor on the same entry", func(t *testing.T) {
		m := newTestManager(t, newMemStore("a"))
		run(t, m, 3)
		history := m.History(ctx)

		removed := m.RemoveCommands(ctx, func(inst *Instance) bool { return inst == history[0] })
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, m.CommandIndex(ctx))
		assert.Same(t, history[2], m.History(ctx)[1])
	})

	t.Run("history limit evicts the oldest entries", func(t *testing.T) {
		m := newTestManager(t, newMemStore("a"), WithHistoryLimit(2))
		run(t, m, 3)

		history := m.History(ctx)
		require.Len(t, history, 2)
		assert.Equal(t, 3, history[1].Result())
		assert.Equal(t, 1, m.CommandIndex(ctx))
	})

	t.Run("clear empties the history", func(t *testing.T) {
		m := newTestManager(t, newMemStore("a"))
		run(t, m, 2)

		m.ClearHistory(ctx)
		assert.Empty(t, m.History(ctx))
		assert.Equal(t, -1, m.CommandIndex(ctx))
	})
}

func TestManager_Events(t *testing.T) {
	ctx := context.Background()

	t.Run("execution reports status and index changes in order", func(t *testing.T) {
		m := newTestManager(t, newMemStore("a"))
		rec := &recorder{}
		unsubscribe := m.Subscribe(rec.handle)

		_, err := m.Execute(ctx, "Inc", ObjectID("a"))
		require.NoError(t, err)
		unsubscribe()

		assert.Equal(t, []EventKind{
			EventStatusChanged,
			EventStatusChanged,
			EventPreCommandIndexChanged,
			EventPostCommandIndexChanged,
			EventStatusChanged,
			EventCommandExecuted,
		}, rec.kinds())

		_, err = m.Execute(ctx, "Inc", ObjectID("a"))
		require.NoError(t, err)
		assert.Len(t, rec.kinds(), 6)
	})

	t.Run("undo reports the operation", func(t *testing.T) {
		m := newTestManager(t, newMemStore("a"))
		_, err := m.Execute(ctx, "Inc", ObjectID("a"))
		require.NoError(t, err)

		rec := &recorder{}
		m.Subscribe(rec.handle)
		require.NoError(t, m.Undo(ctx))

		require.Len(t, rec.events, 3)
		assert.Equal(t, EventCommandExecuted, rec.events[2].Kind)
		assert.Equal(t, OpUndo, rec.events[2].Operation)
		assert.Equal(t, -1, rec.events[1].Index)
	})

	t.Run("panicking handler does not stop delivery", func(t *testing.T) {
		m := newTestManager(t, newMemStore("a"))
		m.Subscribe(func(Event) { panic("handler") })
		rec := &recorder{}
		m.Subscribe(rec.handle)

		_, err := m.Execute(ctx, "Inc", ObjectID("a"))
		require.NoError(t, err)
		assert.NotEmpty(t, rec.kinds())
	})

	t.Run("progress is reported", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		require.NoError(t, m.Register(&Definition{
			Name:   "Slow",
			Thread: AffinityUI,
			Run:    func(ctx context.Context, args any) (any, error) { return nil, nil },
		}))
		rec := &recorder{}
		m.Subscribe(rec.handle)

		inst, err := m.Queue(ctx, "Slow", nil)
		require.NoError(t, err)
		inst.ReportProgress(1.5)
		assert.Equal(t, 1.0, inst.Progress())
		assert.Contains(t, rec.kinds(), EventProgressMade)
	})
}

func TestManager_Registry(t *testing.T) {
	t.Run("rejects duplicate ids", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		err := m.Register(&Definition{Name: "Inc"})
		assert.ErrorIs(t, err, errors.ErrAlreadyExists)
	})

	t.Run("batch command cannot be deregistered", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		assert.ErrorIs(t, m.Deregister(BatchCommandID), errors.ErrInvalidOperation)
		assert.ErrorIs(t, m.Deregister("Nope"), errors.ErrNotFound)
		require.NoError(t, m.Deregister("Inc"))
		_, ok := m.Find("Inc")
		assert.False(t, ok)
	})

	t.Run("lists commands sorted", func(t *testing.T) {
		m := newTestManager(t, newMemStore())
		assert.Equal(t, []string{"Add", BatchCommandID, "Create", "Inc", "Set", "WorkerSet"}, m.Commands())
	})
}

func TestExecuting(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newMemStore())

	var seen *Instance
	require.NoError(t, m.Register(&Definition{
		Name:   "Self",
		Thread: AffinityWorker,
		Run: func(ctx context.Context, args any) (any, error) {
			seen = Executing(ctx)
			seen.ReportProgress(0.5)
			return nil, nil
		},
	}))

	assert.Nil(t, Executing(ctx))
	inst, err := m.Execute(ctx, "Self", nil)
	require.NoError(t, err)
	assert.Same(t, inst, seen)
	assert.Equal(t, 0.5, inst.Progress())
}

// spanNames records the names of started spans.
type spanNames struct {
	noop.Tracer
	mu    sync.Mutex
	names []string
}

func (s *spanNames) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	return s.Tracer.Start(ctx, name, opts...)
}

func (s *spanNames) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func TestManager_Tracing(t *testing.T) {
	ctx := context.Background()
	tracer := &spanNames{}
	m := newTestManager(t, newMemStore("a"), WithTracer(tracer))

	_, err := m.Execute(ctx, "Inc", ObjectID("a"))
	require.NoError(t, err)
	require.NoError(t, m.Undo(ctx))
	require.NoError(t, m.Redo(ctx))

	assert.Equal(t, []string{"command.execute", "command.undo", "command.redo"}, tracer.list())
}

func TestInstance_ContextObject(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newMemStore("a", "b"))

	inst, err := m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: 1})
	require.NoError(t, err)
	assert.Equal(t, ObjectID("a"), inst.ContextObject())

	inst.SetContextObject("b")
	assert.Equal(t, ObjectID("b"), inst.ContextObject())
}

func TestManager_RoundTrip(t *testing.T) {
	ctx := context.Background()

	exec := func(id string, args any) func(*Manager) error {
		return func(m *Manager) error {
			_, err := m.Execute(ctx, id, args)
			return err
		}
	}

	tests := []struct {
		name  string
		setup map[string]any
		steps []func(*Manager) error
	}{
		{
			name: "property writes",
			steps: []func(*Manager) error{
				exec("Set", setArgs{Object: "a", Path: "x", Value: 1}),
				exec("Set", setArgs{Object: "a", Path: "x", Value: 2}),
				exec("Inc", ObjectID("a")),
				exec("WorkerSet", setArgs{Object: "b", Path: "y", Value: "s"}),
			},
		},
		{
			name:  "method invocations mixed with writes",
			setup: map[string]any{"count": 0},
			steps: []func(*Manager) error{
				exec("Add", 3),
				exec("Inc", ObjectID("a")),
				exec("Add", 4),
			},
		},
		{
			name: "created objects",
			steps: []func(*Manager) error{
				exec("Create", nil),
				exec("Set", setArgs{Object: "obj-1", Path: "x", Value: "v"}),
				exec("Create", nil),
			},
		},
		{
			name: "batches",
			steps: []func(*Manager) error{
				func(m *Manager) error {
					if _, err := m.BeginBatch(ctx); err != nil {
						return err
					}
					if _, err := m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: 1}); err != nil {
						return err
					}
					if _, err := m.Execute(ctx, "WorkerSet", setArgs{Object: "b", Path: "x", Value: 2}); err != nil {
						return err
					}
					_, err := m.EndBatch(ctx, "")
					return err
				},
				exec("Inc", ObjectID("b")),
			},
		},
		{
			name:  "compound commands",
			setup: map[string]any{"count": 0},
			steps: []func(*Manager) error{
				exec("Set", setArgs{Object: "a", Path: "x", Value: "before"}),
				exec("Compound", nil),
				exec("Set", setArgs{Object: "a", Path: "x", Value: "after"}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore("a", "b")
			for k, v := range tt.setup {
				store.objects["a"][k] = v
			}
			m := newTestManager(t, store)
			require.NoError(t, m.Register(&Definition{
				Name:   "Compound",
				Thread: AffinityUI,
				Run: func(ctx context.Context, args any) (any, error) {
					if err := store.SetValue(ctx, "a", "x", "own"); err != nil {
						return nil, err
					}
					created, err := m.Execute(ctx, "Create", nil)
					if err != nil {
						return nil, err
					}
					id := created.Result().(ObjectID)
					if _, err := m.Execute(ctx, "WorkerSet", setArgs{Object: id, Path: "y", Value: 1}); err != nil {
						return nil, err
					}
					if _, err := m.Execute(ctx, "Add", 2); err != nil {
						return nil, err
					}
					return id, store.SetValue(ctx, "b", "ref", id)
				},
			}))

			initial := store.dump()
			for _, step := range tt.steps {
				require.NoError(t, step(m))
			}
			final := store.dump()
			n := len(m.History(ctx))
			require.Equal(t, len(tt.steps), n)

			for i := 0; i < n; i++ {
				require.NoError(t, m.Undo(ctx))
			}
			assert.Equal(t, initial, store.dump())

			for i := 0; i < n; i++ {
				require.NoError(t, m.Redo(ctx))
			}
			assert.Equal(t, final, store.dump())
		})
	}
}
