package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/mupol/transport"
	"go.dedis.ch/mupol/types"
)

func Test_Registry_Process(t *testing.T) {
	r := NewRegistry()

	var got *types.ShareMessage
	r.RegisterMessageCallback(types.ShareMessage{}, func(msg types.Message, pkt transport.Packet) error {
		share, ok := msg.(*types.ShareMessage)
		require.True(t, ok)
		got = share
		return nil
	})

	sent := types.ShareMessage{RunID: "run", Step: 7, Sender: 2, Values: []string{"1", "42"}}
	msg, err := r.MarshalMessage(sent)
	require.NoError(t, err)
	require.Equal(t, "share", msg.Type)

	header := transport.NewHeader("a", "b")
	require.NoError(t, r.ProcessPacket(transport.Packet{Header: &header, Msg: &msg}))
	require.Equal(t, sent, *got)
}

func Test_Registry_Unknown_Type(t *testing.T) {
	r := NewRegistry()

	msg, err := r.MarshalMessage(types.AbortMessage{RunID: "run"})
	require.NoError(t, err)

	header := transport.NewHeader("a", "b")
	err = r.ProcessPacket(transport.Packet{Header: &header, Msg: &msg})
	require.Error(t, err)

	err = r.ProcessPacket(transport.Packet{Header: &header})
	require.Error(t, err)
}
