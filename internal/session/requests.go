package session

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/Barracuda09/satip-client/internal/liberrors"
	"github.com/Barracuda09/satip-client/pkg/base"
)

// send writes a marshaled request in one non-blocking call. Per spec.md
// §4.S, "on a non-blocking send failure the session is reset" — there is no
// partial-write retry for control requests, unlike the tuner-device writer
// in internal/rtpreceiver.
func (s *Session) send(req base.Request) error {
	data := req.Marshal()

	n, err := unix.Write(s.controlFD, data)
	if err != nil {
		s.resetSession(liberrors.ErrPeerClosed{Err: err})
		return err
	}
	if n != len(data) {
		err := fmt.Errorf("session: short send (%d/%d bytes)", n, len(data))
		s.resetSession(liberrors.ErrPeerClosed{Err: err})
		return err
	}

	return nil
}

// userAgent matches the original C client's identifier (original_source/
// rtsp.cpp: `static const std::string user_agent("satip-client");`).
const userAgent = "satip-client"

func (s *Session) baseURL() string {
	return fmt.Sprintf("rtsp://%s:%d", s.host, s.port)
}

func (s *Session) streamPath() string {
	if s.streamID == -1 {
		return "/"
	}
	return fmt.Sprintf("/stream=%d", s.streamID)
}

// nextCSeq returns the CSeq value to use for the request about to be sent,
// then advances the counter for the next one (§3 Data model: "starts at 1,
// incremented on every outbound request").
func (s *Session) nextCSeq() uint32 {
	v := s.cseq
	s.cseq++
	return v
}

func (s *Session) header(cseq uint32) base.Header {
	h := make(base.Header)
	h.Set("CSeq", strconv.FormatUint(uint64(cseq), 10))
	h.Set("User-Agent", userAgent)
	if s.sessionID != "" {
		h.Set("Session", s.sessionID)
	}
	return h
}

func (s *Session) transportHeaderValue() string {
	if s.tcpData {
		return "RTP/AVP/TCP;interleaved=0-1"
	}
	rtpPort := s.receiver.RTPPort()
	return fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", rtpPort, rtpPort+1)
}

// buildSetup renders a SETUP request. Before the stream id is known the
// request path omits it; the config adapter's query suffix is appended
// verbatim (it already begins with "?").
func (s *Session) buildSetup(query string) base.Request {
	cseq := s.nextCSeq()
	h := s.header(cseq)
	h.Set("Transport", s.transportHeaderValue())

	path := "/"
	if s.streamID != -1 {
		path = fmt.Sprintf("/stream=%d", s.streamID)
	}

	return base.Request{
		Method: base.Setup,
		URI:    s.baseURL() + path + query,
		Header: h,
	}
}

// buildPlay renders a PLAY request. Requires stream_id != -1 and
// session_id != "" (§8 invariant 1), which callers must have already
// established via a prior successful SETUP.
func (s *Session) buildPlay(query string) base.Request {
	cseq := s.nextCSeq()
	return base.Request{
		Method: base.Play,
		URI:    s.baseURL() + s.streamPath() + query,
		Header: s.header(cseq),
	}
}

func (s *Session) buildOptions() base.Request {
	cseq := s.nextCSeq()
	return base.Request{
		Method: base.Options,
		URI:    s.baseURL() + "/",
		Header: s.header(cseq),
	}
}

func (s *Session) buildTeardown() base.Request {
	cseq := s.nextCSeq()
	return base.Request{
		Method: base.Teardown,
		URI:    s.baseURL() + s.streamPath(),
		Header: s.header(cseq),
	}
}

// buildDescribe renders a DESCRIBE request. No state transition in §4.S
// sends this; the builder exists because the original does, per
// SPEC_FULL.md §12 and the matching Open Question in spec.md §9.
func (s *Session) buildDescribe() base.Request {
	cseq := s.nextCSeq()
	h := s.header(cseq)
	h.Set("Accept", "application/sdp")

	path := "/"
	if s.streamID != -1 {
		path = fmt.Sprintf("/stream=%d", s.streamID)
	}

	return base.Request{
		Method: base.Describe,
		URI:    s.baseURL() + path,
		Header: h,
	}
}
