package command

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

func TestSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("restored history undoes and redoes", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		_, err := m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: "one"})
		require.NoError(t, err)
		_, err = m.Execute(ctx, "Set", setArgs{Object: "a", Path: "x", Value: "two"})
		require.NoError(t, err)
		require.NoError(t, m.Undo(ctx))

		snap, err := m.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, snap.Index)
		require.Len(t, snap.Entries, 2)
		assert.Equal(t, "Set", snap.Entries[0].CommandID)
		assert.NotEmpty(t, snap.Entries[0].Undo)

		m2 := newTestManager(t, store)
		rec := &recorder{}
		m2.Subscribe(rec.handle)
		require.NoError(t, m2.Restore(ctx, snap))
		assert.Equal(t, []EventKind{EventHistoryPreReset, EventHistoryPostReset}, rec.kinds())
		assert.Equal(t, 0, m2.CommandIndex(ctx))

		restored := m2.History(ctx)
		require.Len(t, restored, 2)
		assert.Equal(t, ObjectID("a"), restored[0].ContextObject())
		assert.Equal(t, "a", string(restored[0].Arguments().(setArgs).Object))

		require.NoError(t, m2.Redo(ctx))
		assert.Equal(t, "two", store.get("a", "x"))
		require.NoError(t, m2.MoveCommandIndex(ctx, -1))
		assert.Nil(t, store.get("a", "x"))
	})

	t.Run("batches keep their children", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		_, err := m.BeginBatch(ctx)
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			_, err = m.Execute(ctx, "Inc", ObjectID("a"))
			require.NoError(t, err)
		}
		_, err = m.EndBatch(ctx, "pair")
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, m.WriteHistory(ctx, &buf))
		assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

		m2 := newTestManager(t, store)
		require.NoError(t, m2.ReadHistory(ctx, &buf))
		history := m2.History(ctx)
		require.Len(t, history, 1)
		assert.True(t, history[0].IsBatch())
		assert.Equal(t, "pair", history[0].Description())
		assert.Len(t, history[0].Children(), 2)

		require.NoError(t, m2.Undo(ctx))
		assert.Nil(t, store.get("a", "count"))
	})

	t.Run("custom undo commands restore with a delegate record", func(t *testing.T) {
		store := newMemStore()
		m := newTestManager(t, store)
		inst, err := m.Execute(ctx, "Create", nil)
		require.NoError(t, err)
		id := inst.Result().(ObjectID)

		snap, err := m.Snapshot(ctx)
		require.NoError(t, err)
		m2 := newTestManager(t, store)
		require.NoError(t, m2.Restore(ctx, snap))

		_, ok := m2.History(ctx)[0].Record().(*DelegateRecord)
		assert.True(t, ok)
		require.NoError(t, m2.Undo(ctx))
		assert.False(t, store.Exists(id))
	})

	t.Run("unregistered commands restore inert", func(t *testing.T) {
		store := newMemStore("a")
		m := newTestManager(t, store)
		require.NoError(t, m.Register(&Definition{
			Name:   "Plugin",
			Thread: AffinityUI,
			Run: func(ctx context.Context, args any) (any, error) {
				return nil, store.SetValue(ctx, "a", "p", 1)
			},
		}))
		_, err := m.Execute(ctx, "Plugin", nil)
		require.NoError(t, err)
		snap, err := m.Snapshot(ctx)
		require.NoError(t, err)

		m2 := newTestManager(t, store)
		require.NoError(t, m2.Restore(ctx, snap))
		inst := m2.History(ctx)[0]
		assert.Equal(t, "Plugin", inst.CommandID())
		assert.Equal(t, CodeNotSupported, inst.ErrorCode())

		require.NoError(t, m2.Undo(ctx))
		assert.Equal(t, 1, store.get("a", "p"))
	})

	t.Run("rejects malformed streams", func(t *testing.T) {
		m := newTestManager(t, newMemStore())

		err := m.ReadHistory(ctx, strings.NewReader("not json"))
		assert.ErrorIs(t, err, errors.ErrInvalidValue)

		err = m.ReadHistory(ctx, strings.NewReader(`{"format":99,"index":-1,"count":0}`+"\n"))
		assert.ErrorIs(t, err, errors.ErrNotSupported)

		err = m.ReadHistory(ctx, strings.NewReader(`{"format":1,"index":-1,"count":2}`+"\n"))
		assert.ErrorIs(t, err, errors.ErrInvalidValue)

		err = m.ReadHistory(ctx, strings.NewReader(`{"format":1,"index":-1,"count":-1}`+"\n"))
		assert.ErrorIs(t, err, errors.ErrInvalidValue)

		err = m.ReadHistory(ctx, strings.NewReader(`{"format":1,"index":-1,"count":9223372036854775807}`+"\n"))
		assert.ErrorIs(t, err, errors.ErrInvalidValue)
	})
}
