package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/mupol/types"
)

func output(runID string, freighters ...int) types.RevealedOutput {
	out := types.RevealedOutput{RunID: runID}
	for i, f := range freighters {
		out.Orders = append(out.Orders, types.RevealedOrder{Index: i, Freighter: f})
	}
	return out
}

func Test_KV_Put_Once(t *testing.T) {
	kv := NewBasicKV()

	require.NoError(t, kv.Put("b", output("b", 1, 2)))
	require.Error(t, kv.Put("b", output("b", 2, 2)))

	got, ok := kv.Get("b")
	require.True(t, ok)
	require.Equal(t, []int{1, 2}, got.Freighters())

	_, ok = kv.Get("missing")
	require.False(t, ok)
}

func Test_KV_Returns_Copies(t *testing.T) {
	kv := NewBasicKV()

	out := output("a", 1)
	out.Orders[0].Details = &types.OrderDetails{Origin: 1, Destination: 2, Volume: 3}
	require.NoError(t, kv.Put("a", out))

	got, _ := kv.Get("a")
	got.Orders[0].Details.Volume = 99

	again, _ := kv.Get("a")
	require.Equal(t, int64(3), again.Orders[0].Details.Volume)
}

func Test_KV_Keys_Hash(t *testing.T) {
	kv := NewBasicKV()
	require.NoError(t, kv.Put("b", output("b", 1)))
	require.NoError(t, kv.Put("a", output("a", 2)))

	require.Equal(t, []string{"a", "b"}, kv.Keys())

	cp := kv.Copy()
	require.Equal(t, kv.Hash(), cp.Hash())

	visited := []string{}
	err := kv.For(func(runID string, value types.RevealedOutput) error {
		visited = append(visited, runID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, visited)

	require.NoError(t, kv.Del("a"))
	require.NotEqual(t, kv.Hash(), cp.Hash())
}
