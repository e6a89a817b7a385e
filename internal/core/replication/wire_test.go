package replication

import (
	"bytes"
	"io"
	"testing"

	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Sequence(t *testing.T) {
	dk := types.DiscoveryKey{1, 2, 3}
	msgs := []Message{
		&Handshake{ID: []byte("peer-a"), UserData: []byte(`{"name":"x"}`)},
		&Feed{DiscoveryKey: dk, Key: bytes.Repeat([]byte{7}, 32)},
		&Have{DiscoveryKey: dk, Length: 42},
		&Request{DiscoveryKey: dk, Start: 3, End: 35},
		&Data{DiscoveryKey: dk, Index: 9, Value: []byte("v"), Signature: []byte("sig")},
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		buf.Write(Encode(m))
	}

	dec := NewDecoder(&buf)
	for _, want := range msgs {
		got, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_HandshakeWithoutUserData(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(Encode(&Handshake{ID: []byte("a")})))
	got, err := dec.Next()
	require.NoError(t, err)
	hs := got.(*Handshake)
	assert.Equal(t, []byte("a"), hs.ID)
	assert.Empty(t, hs.UserData)
}

func TestDecoder_Errors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		frame := append(varint.ToUvarint(1), 0x7f)
		_, err := NewDecoder(bytes.NewReader(frame)).Next()
		assert.ErrorIs(t, err, ErrUnknownMessage)
	})

	t.Run("too large", func(t *testing.T) {
		frame := varint.ToUvarint(MaxFrameSize + 1)
		_, err := NewDecoder(bytes.NewReader(frame)).Next()
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("empty frame", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader(varint.ToUvarint(0))).Next()
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("truncated", func(t *testing.T) {
		frame := Encode(&Have{Length: 5})
		_, err := NewDecoder(bytes.NewReader(frame[:len(frame)-1])).Next()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("bad discovery key", func(t *testing.T) {
		frame := Encode(&Feed{Key: []byte("k")})
		// 把 dk 字段长度改成 31
		body := frame[1:]
		require.Equal(t, byte(TypeFeed), body[0])
		body[2] = 31
		_, err := NewDecoder(bytes.NewReader(frame)).Next()
		assert.Error(t, err)
	})
}
