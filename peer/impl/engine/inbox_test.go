package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/types"
)

func ints(values ...int64) []*big.Int {
	res := make([]*big.Int, len(values))
	for i, v := range values {
		res[i] = big.NewInt(v)
	}
	return res
}

func Test_Inbox_Chunks_Out_Of_Order(t *testing.T) {
	b := newInbox()

	b.put(1, 0, 3, 5, ints(4, 5))
	b.put(1, 0, 0, 5, ints(1, 2, 3))
	// a chunk received twice is ignored
	b.put(1, 0, 3, 5, ints(4, 5))
	b.put(1, 1, 0, 0, ints())

	got, err := b.collect(context.Background(), 1, []int{0, 1}, time.Second, time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, ints(1, 2, 3, 4, 5), got[0])
	require.Empty(t, got[1])

	// steps already collected are dropped
	b.put(1, 0, 0, 1, ints(9))
	require.Empty(t, b.values)
	require.NoError(t, b.failure())
}

func Test_Inbox_Conflicting_Chunks(t *testing.T) {
	b := newInbox()
	b.put(2, 1, 0, 4, ints(1, 2))
	b.put(2, 1, 1, 4, ints(7, 3))
	require.True(t, errors.Is(b.failure(), peer.ErrShareInconsistency))

	b = newInbox()
	b.put(2, 1, 0, 4, ints(1, 2))
	b.put(2, 1, 2, 3, ints(3))
	require.True(t, errors.Is(b.failure(), peer.ErrShareInconsistency))

	b = newInbox()
	b.put(2, 1, 3, 4, ints(1, 2))
	require.True(t, errors.Is(b.failure(), peer.ErrShareInconsistency))

	_, err := b.collect(context.Background(), 2, []int{1}, time.Second, time.Second, nil)
	require.True(t, errors.Is(err, peer.ErrShareInconsistency))
}

func Test_Inbox_Idle_Callback(t *testing.T) {
	b := newInbox()
	b.put(4, 0, 0, 1, ints(6))

	asked := [][]int{}
	got, err := b.collect(context.Background(), 4, []int{0, 2}, 5*time.Second, 10*time.Millisecond,
		func(missing []int) {
			asked = append(asked, missing)
			b.put(4, 2, 0, 1, ints(8))
		})
	require.NoError(t, err)
	require.Equal(t, ints(8), got[2])
	require.Equal(t, [][]int{{2}}, asked)
}

func Test_Outbox_Chunks(t *testing.T) {
	values := make([]string, 2*maxChunkValues+1)
	for i := range values {
		values[i] = big.NewInt(int64(i)).Text(10)
	}

	msgs := chunks("run", 3, 1, values, true)
	require.Len(t, msgs, 3)

	joined := []string{}
	for i, msg := range msgs {
		open, ok := msg.(types.OpenMessage)
		require.True(t, ok)
		require.Equal(t, i*maxChunkValues, open.Offset)
		require.Equal(t, len(values), open.Total)
		joined = append(joined, open.Values...)
	}
	require.Equal(t, values, joined)

	empty := chunks("run", 4, 1, []string{}, false)
	require.Len(t, empty, 1)
	require.Equal(t, 0, empty[0].(types.ShareMessage).Total)
}

func Test_Outbox_Window(t *testing.T) {
	o := newOutbox()
	for step := uint64(1); step <= outboxWindow+2; step++ {
		o.keep(step, 1, chunks("run", step, 0, []string{"1"}, false))
	}

	require.Empty(t, o.get(1, 1))
	require.Empty(t, o.get(2, 1))
	require.Len(t, o.get(3, 1), 1)
	require.Empty(t, o.get(3, 2))

	o.trim(1)
	require.Empty(t, o.get(outboxWindow+1, 1))
	require.Len(t, o.get(outboxWindow+2, 1), 1)
}
