package framer

import (
	"testing"

	"github.com/Barracuda09/satip-client/pkg/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, buf *Buffer, chunk []byte) {
	t.Helper()
	n := copy(buf.Free(), chunk)
	require.Equal(t, len(chunk), n, "test buffer too small for chunk")
	require.NoError(t, buf.Commit(n))
}

// TestSplitReadInterleavedFrame is spec.md §8 scenario 4: a binary frame and
// a response arrive across two reads, with the response's start glued to
// the end of the first read.
func TestSplitReadInterleavedFrame(t *testing.T) {
	buf := NewBuffer(64 * 1024)
	feed(t, buf, []byte("\x24\x00\x00\x08AAAAAAAARTSP/1.0 2"))

	res, err := Next(buf)
	require.NoError(t, err)
	require.NotNil(t, res.Frame)
	assert.Equal(t, base.ChannelRTP, res.Frame.Channel)
	assert.Equal(t, []byte("AAAAAAAA"), res.Frame.Payload)

	// the partial response text remains, not yet terminated.
	res, err = Next(buf)
	require.NoError(t, err)
	assert.False(t, res.Progress)
	assert.Nil(t, res.Response)

	feed(t, buf, []byte("00 OK\r\nCSeq: 1\r\nSession: X\r\ncom.ses.streamID: 1\r\n\r\n"))

	res, err = Next(buf)
	require.NoError(t, err)
	require.NotNil(t, res.Response)
	assert.Equal(t, 200, res.Response.StatusCode)
	session, ok := res.Response.Header.Get("Session")
	require.True(t, ok)
	assert.Equal(t, "X", session)

	assert.Equal(t, 0, buf.Len())
}

func TestIncompleteFrameWaitsForMoreData(t *testing.T) {
	buf := NewBuffer(1024)
	feed(t, buf, []byte("\x24\x00\x00\x08AAAA"))

	res, err := Next(buf)
	require.NoError(t, err)
	assert.False(t, res.Progress)
	assert.Equal(t, 8, buf.Len())
}

func TestFrameTooLargeIsAnError(t *testing.T) {
	buf := NewBuffer(16)
	feed(t, buf, []byte{0x24, 0x00, 0xff, 0xff, 0x80})

	_, err := Next(buf)
	assert.Error(t, err)
}

func TestAlignmentLossResyncsToNextMarker(t *testing.T) {
	buf := NewBuffer(1024)
	feed(t, buf, []byte("garbage\x24\x01\x00\x04\x80xyz"))

	res, err := Next(buf)
	require.NoError(t, err)
	assert.True(t, res.Progress)
	assert.Nil(t, res.Frame)

	res, err = Next(buf)
	require.NoError(t, err)
	require.NotNil(t, res.Frame)
	assert.Equal(t, base.ChannelRTCP, res.Frame.Channel)
	assert.Equal(t, []byte("\x80xyz"), res.Frame.Payload)
}

// TestRoundTripPreservesOrder exercises the "framer law" from spec.md §8:
// any interleaving of responses and frames reproduces the original
// sequence of messages exactly once, in order, regardless of how the bytes
// are chopped into reads.
func TestRoundTripPreservesOrder(t *testing.T) {
	frame1 := []byte{0x24, 0x00, 0x00, 0x03, 0x80, 'a', 'b'}
	resp1 := []byte("RTSP/1.0 200 OK\r\nCSeq: 1\r\n\r\n")
	frame2 := []byte{0x24, 0x01, 0x00, 0x02, 0x80, 'c'}
	resp2 := []byte("RTSP/1.0 200 OK\r\nCSeq: 2\r\n\r\n")

	all := append(append(append(append([]byte{}, frame1...), resp1...), frame2...), resp2...)

	buf := NewBuffer(4096)
	var observed []string
	for i := 0; i < len(all); i += 3 {
		end := i + 3
		if end > len(all) {
			end = len(all)
		}
		feed(t, buf, all[i:end])

		for {
			res, err := Next(buf)
			require.NoError(t, err)
			if res.Frame != nil {
				observed = append(observed, "frame:"+string(rune('0'+int(res.Frame.Channel))))
			}
			if res.Response != nil {
				cseq, _ := res.Response.Header.Get("CSeq")
				observed = append(observed, "response:"+cseq)
			}
			if !res.Progress {
				break
			}
		}
	}

	require.Equal(t, []string{"frame:0", "response:1", "frame:1", "response:2"}, observed)
}
