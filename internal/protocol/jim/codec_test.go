package jim

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	sent := NewMessage("alice", "bob", "AAAA")
	require.NoError(t, WriteFrame(&buf, sent))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)

	action, ok := got.Action()
	require.True(t, ok)
	assert.Equal(t, ActionMessage, action)

	from, _ := got.Str(KeyFrom)
	to, _ := got.Str(KeyTo)
	text, _ := got.Str(KeyMessageText)
	assert.Equal(t, "alice", from)
	assert.Equal(t, "bob", to)
	assert.Equal(t, "AAAA", text)
}

func TestWriteFrameSingleWrite(t *testing.T) {
	w := &writeCounter{}
	require.NoError(t, WriteFrame(w, NewResponse(CodeOK)))
	assert.Equal(t, 1, w.calls, "prefix and payload must go out in one write")
}

type writeCounter struct {
	calls int
}

func (w *writeCounter) Write(p []byte) (int, error) {
	w.calls++
	return len(p), nil
}

func TestLengthPrefixMatchesPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, NewResponse(CodeOK)))

	raw := buf.Bytes()
	require.Greater(t, len(raw), 4)

	length := binary.BigEndian.Uint32(raw[:4])
	assert.Equal(t, int(length), len(raw)-4)
	assert.True(t, json.Valid(raw[4:]))
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	big := NewMessage("alice", "bob", strings.Repeat("x", MaxFrameBytes))

	var buf bytes.Buffer
	err := WriteFrame(&buf, big)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len(), "nothing should be written for a rejected frame")
}

func TestDecodeRejectsOversizedAnnouncement(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameBytes+1)
	buf.Write(header[:])

	_, err := ReadFrame(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeRejectsNonObject(t *testing.T) {
	for _, payload := range []string{`[1,2,3]`, `"hello"`, `42`, `null`, `{bad json`} {
		t.Run(payload, func(t *testing.T) {
			var buf bytes.Buffer
			var header [4]byte
			binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
			buf.Write(header[:])
			buf.WriteString(payload)

			_, err := ReadFrame(&buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeTruncatedStream(t *testing.T) {
	t.Run("EmptyStream", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(nil))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x00}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("ShortPayload", func(t *testing.T) {
		var buf bytes.Buffer
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 100)
		buf.Write(header[:])
		buf.WriteString(`{"response":`)

		_, err := ReadFrame(&buf)
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestMarshalNilFrame(t *testing.T) {
	_, err := Marshal(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
}

func TestUnknownExtraKeysIgnored(t *testing.T) {
	payload := []byte(`{"response":200,"extra":"ignored","another":[1,2]}`)
	f, err := Unmarshal(payload)
	require.NoError(t, err)

	code, ok := f.Response()
	require.True(t, ok)
	assert.Equal(t, CodeOK, code)
}

func TestSequentialFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, NewResponse(CodeOK)))
	require.NoError(t, WriteFrame(&buf, NewError(ErrTextBadRequest)))
	require.NoError(t, WriteFrame(&buf, NewList([]string{"alice", "bob"})))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	code, _ := first.Response()
	assert.Equal(t, CodeOK, code)

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	code, _ = second.Response()
	assert.Equal(t, CodeError, code)
	msg, _ := second.Str(KeyError)
	assert.Equal(t, ErrTextBadRequest, msg)

	third, err := ReadFrame(&buf)
	require.NoError(t, err)
	list, ok := third.StringList(KeyDataList)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, list)
}
