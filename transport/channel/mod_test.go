package channel

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/mupol/transport"
)

func newPacket(src, dest string) transport.Packet {
	header := transport.NewHeader(src, dest)
	return transport.Packet{
		Header: &header,
		Msg:    &transport.Message{Type: "test", Payload: json.RawMessage(`{"x":1}`)},
	}
}

func Test_Channel_Send_Recv(t *testing.T) {
	tr := NewTransport()

	s1, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer s1.Close()

	s2, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer s2.Close()

	require.NotEqual(t, s1.GetAddress(), s2.GetAddress())

	pkt := newPacket(s1.GetAddress(), s2.GetAddress())
	require.NoError(t, s1.Send(s2.GetAddress(), pkt, time.Second))

	res, err := s2.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, pkt.Header.PacketID, res.Header.PacketID)
	require.JSONEq(t, `{"x":1}`, string(res.Msg.Payload))

	require.Len(t, s1.GetOuts(), 1)
	require.Len(t, s2.GetIns(), 1)
}

func Test_Channel_Recv_Timeout(t *testing.T) {
	tr := NewTransport()

	s, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Recv(10 * time.Millisecond)
	require.True(t, errors.Is(err, transport.TimeoutError(0)))
}

func Test_Channel_Closed_Socket(t *testing.T) {
	tr := NewTransport()

	s1, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer s1.Close()

	s2, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	addr := s2.GetAddress()
	require.NoError(t, s2.Close())
	require.Error(t, s2.Close())

	err = s1.Send(addr, newPacket(s1.GetAddress(), addr), time.Second)
	require.Error(t, err)

	_, err = s2.Recv(time.Second)
	require.Error(t, err)
}

func Test_Channel_Duplicate_Address(t *testing.T) {
	tr := NewTransport()

	s, err := tr.CreateSocket("127.0.0.1:4000")
	require.NoError(t, err)
	defer s.Close()

	_, err = tr.CreateSocket("127.0.0.1:4000")
	require.Error(t, err)
}
