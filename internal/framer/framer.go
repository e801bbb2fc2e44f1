// Package framer implements the interleaved-frame demultiplexer (spec.md
// §4.F): it splits the TCP control stream into RTSP text responses and
// `$`-prefixed binary RTP/RTCP frames sharing the same connection.
package framer

import (
	"bytes"

	"github.com/Barracuda09/satip-client/internal/liberrors"
	"github.com/Barracuda09/satip-client/pkg/base"
)

// MediaFrame is one extracted interleaved binary frame, header stripped.
type MediaFrame struct {
	Channel base.Channel
	Payload []byte
}

// Result is the outcome of one Next call.
type Result struct {
	// Progress is true if any bytes were consumed from the buffer, whether
	// or not a complete message was produced (a resync can consume garbage
	// without yielding a message).
	Progress bool

	Frame    *MediaFrame
	Response *base.Response
}

const responseMarker = "RTSP/"
const terminator = "\r\n\r\n"

// Next extracts at most one complete message (a binary frame or a text
// response) from buf, per the three-step algorithm in spec.md §4.F. It
// returns a zero Result with Progress=false when neither a complete frame
// nor a complete response is available yet — the caller should stop
// looping and wait for more bytes.
func Next(buf *Buffer) (Result, error) {
	raw := buf.Bytes()

	// A frame is recognized by magic byte + valid channel id; a declared
	// length beyond the buffer's capacity is an error, and a frame not yet
	// fully buffered waits for more data. The original source additionally
	// gated this on payload[0] == 0x80 (RTP v2, no padding/extension); that
	// check only validates a well-formed RTP packet once the payload is in
	// hand, so it belongs to the receiver's own parse (pion/rtp's Unmarshal
	// followed by the receiver's version check), not to frame boundary
	// detection — see SPEC_FULL.md §14, Open Question 3.
	if len(raw) >= base.InterleavedHeaderSize &&
		raw[0] == base.InterleavedFrameMagic &&
		(raw[1] == byte(base.ChannelRTP) || raw[1] == byte(base.ChannelRTCP)) {
		frameLen := int(raw[2])<<8 | int(raw[3])
		total := base.InterleavedHeaderSize + frameLen

		if total > buf.Capacity() {
			return Result{}, liberrors.ErrFrameTooLarge{Declared: frameLen, Capacity: buf.Capacity()}
		}
		if len(raw) < total {
			return Result{}, nil
		}

		payload := make([]byte, frameLen)
		copy(payload, raw[base.InterleavedHeaderSize:total])
		channel := base.Channel(raw[1])
		buf.Remove(0, total)

		return Result{Progress: true, Frame: &MediaFrame{Channel: channel, Payload: payload}}, nil
	}

	if begin := bytes.Index(raw, []byte(responseMarker)); begin >= 0 {
		rest := raw[begin:]
		if termIdx := bytes.Index(rest, []byte(terminator)); termIdx >= 0 {
			end := begin + termIdx + len(terminator)
			msg := append([]byte(nil), raw[begin:end]...)

			resp, err := base.ParseResponse(msg)
			if err != nil {
				return Result{}, err
			}

			buf.Remove(begin, end)
			return Result{Progress: true, Response: resp}, nil
		}
		// response start found but not yet terminated: wait for more data,
		// but if garbage precedes it, drop that garbage now so the buffer
		// doesn't fill with bytes we'll never use.
		if begin > 0 {
			buf.Remove(0, begin)
			return Result{Progress: true}, nil
		}
		return Result{}, nil
	}

	// Neither a plausible frame header nor a response marker is present:
	// alignment is lost. Scan forward for the next byte that could start a
	// frame (0x24) past position 0, best-effort; if nothing plausible is
	// found at all, report no progress so the caller can track staleness.
	if len(raw) > 1 {
		if idx := bytes.IndexByte(raw[1:], base.InterleavedFrameMagic); idx >= 0 {
			buf.Remove(0, idx+1)
			return Result{Progress: true}, nil
		}
	}

	return Result{}, nil
}
