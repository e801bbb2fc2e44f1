package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Barracuda09/satip-client/internal/liberrors"
	"github.com/Barracuda09/satip-client/pkg/base"
)

// handleResponse dispatches a framer-delivered response according to which
// request is outstanding (spec.md §4.S Response handling). Any status other
// than 200 resets the session regardless of request kind.
func (s *Session) handleResponse(resp *base.Response) {
	kind := s.lastRequest
	s.waitResponse = false
	s.lastRequest = reqNone

	if resp.StatusCode != 200 {
		s.resetSession(liberrors.ErrUnexpectedStatus{Code: resp.StatusCode, Message: resp.StatusMessage})
		return
	}

	switch kind {
	case reqSetup:
		s.handleSetupResponse(resp)
	case reqPlay:
		// A PLAY sent for a channel change carries channelChanged from
		// enterSessionPlaying; on its 200 the switch is confirmed, so any
		// media buffered from the previous channel is dropped here rather
		// than handed to R (original_source/rtsp.cpp:306-311).
		if s.channelChanged {
			s.rxBuf.Reset()
			s.channelChanged = false
		}
		s.enterSessionTransmitting()
	case reqTeardown:
		s.resetSession(nil)
	case reqOptions, reqDescribe:
		// No transition; body (if any) is ignored.
	}
}

// handleSetupResponse extracts Session and com.ses.streamID, both mandatory
// on the first SETUP after a reset (spec.md §4.S). If the request reflected
// a channel change, the receive buffer is cleared so stale media from the
// previous channel can't leak into the new one.
func (s *Session) handleSetupResponse(resp *base.Response) {
	sessionValue, ok := resp.Header.Get("Session")
	if !ok {
		s.resetSession(liberrors.ErrMissingHeader{Header: "Session"})
		return
	}
	streamIDValue, ok := resp.Header.Get("com.ses.streamID")
	if !ok {
		s.resetSession(liberrors.ErrMissingHeader{Header: "com.ses.streamID"})
		return
	}

	id, timeoutS, err := parseSessionHeader(sessionValue)
	if err != nil {
		s.resetSession(liberrors.ErrMissingHeader{Header: "Session"})
		return
	}

	streamID, err := strconv.Atoi(strings.TrimSpace(streamIDValue))
	if err != nil {
		s.resetSession(liberrors.ErrMissingHeader{Header: "com.ses.streamID"})
		return
	}

	s.sessionID = id
	s.streamID = streamID
	if timeoutS != nil {
		s.timeoutS = *timeoutS
	}

	if s.channelChanged {
		s.rxBuf.Reset()
		s.channelChanged = false
	}

	s.enterSessionPlaying()
}

// parseSessionHeader parses "Session: <id>[;timeout=<n>]" per spec.md §4.S.
func parseSessionHeader(value string) (id string, timeoutS *int, err error) {
	parts := strings.Split(value, ";")
	id = strings.TrimSpace(parts[0])
	if id == "" {
		return "", nil, fmt.Errorf("session: empty Session id")
	}

	for _, p := range parts[1:] {
		key, val, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(key, "timeout") {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(val))
		if convErr != nil {
			return "", nil, fmt.Errorf("session: invalid timeout %q: %w", val, convErr)
		}
		timeoutS = &n
	}

	return id, timeoutS, nil
}
