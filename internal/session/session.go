// Package session implements the RTSP session state machine (spec.md
// §4.S): it owns the TCP control socket, drives SETUP/PLAY/OPTIONS/TEARDOWN
// across a non-blocking connection, and exposes a poll-descriptor surface a
// host event loop drives directly rather than running its own goroutine and
// channel-select (unlike the teacher's Client, which owns its own reader
// goroutine — see DESIGN.md for why that shape doesn't fit this domain).
package session

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/Barracuda09/satip-client/config"
	"github.com/Barracuda09/satip-client/internal/framer"
	"github.com/Barracuda09/satip-client/internal/liberrors"
	"github.com/Barracuda09/satip-client/internal/logging"
	"github.com/Barracuda09/satip-client/internal/rtpreceiver"
	"github.com/Barracuda09/satip-client/internal/timerwheel"
)

// State is one of the six RTSP session states (spec.md §3).
type State int

const (
	ConfigWaiting State = iota
	ServerConnecting
	SessionEstablishing
	SessionPlaying
	SessionTransmitting
	SessionTeardowning
)

func (s State) String() string {
	switch s {
	case ConfigWaiting:
		return "ConfigWaiting"
	case ServerConnecting:
		return "ServerConnecting"
	case SessionEstablishing:
		return "SessionEstablishing"
	case SessionPlaying:
		return "SessionPlaying"
	case SessionTransmitting:
		return "SessionTransmitting"
	case SessionTeardowning:
		return "SessionTeardowning"
	default:
		return "Unknown"
	}
}

// requestKind is last_request (spec.md §3): which request is outstanding.
type requestKind int

const (
	reqNone requestKind = iota
	reqOptions
	reqSetup
	reqPlay
	reqTeardown
	reqDescribe
)

func (k requestKind) String() string {
	switch k {
	case reqOptions:
		return "OPTIONS"
	case reqSetup:
		return "SETUP"
	case reqPlay:
		return "PLAY"
	case reqTeardown:
		return "TEARDOWN"
	case reqDescribe:
		return "DESCRIBE"
	default:
		return "none"
	}
}

// Events is the poll(2) event mask passed to and from HandleEvents.
type Events uint32

const (
	EventIn  Events = Events(unix.POLLIN)
	EventOut Events = Events(unix.POLLOUT)
	EventHup Events = Events(unix.POLLHUP)
)

const (
	resetConnectDelay      = 5 * time.Second
	sessionEstablishDelay  = 6 * time.Second
	sessionPlayDelay       = 6 * time.Second
	keepAliveMargin        = 5 * time.Second
	defaultTimeoutSeconds  = 60
	udpBufferCapacityBytes = 2 * 1024
	tcpBufferCapacityBytes = 256 * 1024
	// framingStallTimeout bounds how long malformed framing may fail to
	// resync before it is treated as unrecoverable (spec.md §7: "attempt
	// best-effort resync; if no progress for one reset-timer cycle, reset").
	framingStallTimeout = 6 * time.Second
)

// Session is component S.
type Session struct {
	host string
	port int

	adapter  config.Adapter
	receiver *rtpreceiver.Receiver

	tcpData bool

	controlFD int

	cseq      uint32
	sessionID string
	streamID  int
	timeoutS  int

	rxBuf *framer.Buffer

	waitResponse bool
	lastRequest  requestKind

	// channelChanged mirrors the session descriptor field of the same name
	// (spec.md §3): set when the SETUP or PLAY currently being built reflects
	// a new channel. While set, drainFramer withholds interleaved frames from
	// R, and the SETUP or PLAY response handler discards any buffered media
	// from the previous channel and clears it.
	channelChanged bool

	state State

	wheel          *timerwheel.Wheel
	hResetConnect  timerwheel.Handle
	hKeepAlive     timerwheel.Handle
	lastFramerMove time.Time

	log zerolog.Logger
}

// New constructs a Session bound to a SAT>IP server endpoint. writer is the
// virtual-tuner device the RTP receiver feeds, from its UDP sockets or from
// TCP-interleaved frames handed over by the session.
func New(host string, port int, adapter config.Adapter, writer rtpreceiver.TSWriter) *Session {
	tcpData := adapter.IsTCPData()

	bufCap := udpBufferCapacityBytes
	if tcpData {
		bufCap = tcpBufferCapacityBytes
	}

	s := &Session{
		host:      host,
		port:      port,
		adapter:   adapter,
		receiver:  rtpreceiver.New(writer, adapter.RTPBufferMB(), nil),
		tcpData:   tcpData,
		controlFD: -1,
		cseq:      1,
		streamID:  -1,
		timeoutS:  defaultTimeoutSeconds,
		rxBuf:     framer.NewBuffer(bufCap),
		wheel:     timerwheel.New(),
		log:       logging.For(logging.ModuleSrv),
	}
	s.hResetConnect = s.wheel.Create("reset_connect", s.onResetConnectFire)
	s.hKeepAlive = s.wheel.Create("keep_alive", s.onKeepAliveFire)
	return s
}

// State reports the current RTSP state, for logging/diagnostics.
func (s *Session) State() State { return s.state }

// HasLock, SignalStrength and SignalQuality proxy the last values parsed
// from RTCP APP feedback (spec.md §3, owned by R but readable from S).
func (s *Session) HasLock() bool       { return s.receiver.HasLock() }
func (s *Session) SignalStrength() int { return s.receiver.SignalStrength() }
func (s *Session) SignalQuality() int  { return s.receiver.SignalQuality() }

// PollDescriptor reports the control socket and the event mask to poll for
// in the current state (spec.md §4.S event-mask policy table).
func (s *Session) PollDescriptor() (int, Events) {
	if s.controlFD < 0 {
		return -1, 0
	}
	return s.controlFD, s.eventsForState()
}

func (s *Session) eventsForState() Events {
	switch s.state {
	case ServerConnecting:
		return EventOut | EventHup
	case SessionEstablishing, SessionPlaying, SessionTeardowning:
		return EventIn | EventHup
	case SessionTransmitting:
		if s.tcpData || s.waitResponse {
			return EventIn | EventHup
		}
		return 0
	default:
		return 0
	}
}

// PollTimeoutMs forwards to the timer wheel (spec.md §4.S).
func (s *Session) PollTimeoutMs() int64 {
	return s.wheel.NextDeadline().Milliseconds()
}

// TickTimers fires due timers and polls the config adapter for changes that
// aren't driven by socket readiness (channel/PID dirty bits, checked here
// rather than gated behind an fd event since they have no fd of their own).
func (s *Session) TickTimers() {
	s.wheel.FireDue()
	s.pollConfig()
}

func (s *Session) pollConfig() {
	switch s.state {
	case ConfigWaiting:
		if s.adapter.ChannelStatus() != config.ChannelInvalid {
			s.beginConnecting()
		}
	case SessionTransmitting:
		switch {
		case s.adapter.ChannelStatus() == config.ChannelInvalid:
			s.enterSessionTeardowning()
		case s.adapter.ChannelStatus() == config.ChannelChanged || s.adapter.PIDStatus() == config.PIDChanged:
			s.wheel.Stop(s.hKeepAlive)
			s.enterSessionPlaying()
		}
	}
}

// beginConnecting is the ConfigWaiting -> ServerConnecting transition.
func (s *Session) beginConnecting() {
	if !s.tcpData {
		if err := s.receiver.OpenUDP(); err != nil {
			s.log.Warn().Err(err).Msg("unable to open RTP port pair")
			return
		}
		s.log.Debug().
			Int("rtp_port", s.receiver.RTPPort()).
			Int("rtcp_port", s.receiver.RTCPPort()).
			Msg("opened RTP/RTCP port pair")
	}

	fd, err := dialNonBlocking(s.host, s.port)
	if err != nil {
		s.log.Warn().Err(err).Str("host", s.host).Int("port", s.port).Msg("connect failed")
		if !s.tcpData {
			s.receiver.Close()
		}
		return
	}

	s.controlFD = fd
	s.state = ServerConnecting
	s.wheel.Start(s.hResetConnect, resetConnectDelay, true)
}

// HandleEvents advances the state machine in response to poll(2) results.
func (s *Session) HandleEvents(revents Events) error {
	if s.controlFD < 0 {
		return nil
	}

	if revents&EventHup != 0 {
		s.resetSession(liberrors.ErrPeerClosed{})
		return nil
	}

	switch s.state {
	case ServerConnecting:
		return s.handleConnecting(revents)
	case SessionEstablishing, SessionPlaying, SessionTransmitting, SessionTeardowning:
		return s.handleControlReadable(revents)
	default:
		return nil
	}
}

func (s *Session) handleConnecting(revents Events) error {
	if revents&EventOut == 0 {
		return nil
	}

	if err := socketError(s.controlFD); err != nil {
		s.resetSession(liberrors.ErrPeerClosed{Err: err})
		return nil
	}

	s.wheel.Stop(s.hResetConnect)
	s.enterSessionEstablishing()
	return nil
}

func (s *Session) handleControlReadable(revents Events) error {
	if revents&EventIn == 0 {
		return nil
	}

	free := s.rxBuf.Free()
	if len(free) == 0 {
		s.log.Warn().Int("capacity", s.rxBuf.Capacity()).Msg("receive buffer overrun, skipping read")
		return nil
	}

	n, err := unix.Read(s.controlFD, free)
	switch {
	case err == unix.EAGAIN:
		return nil
	case err != nil:
		s.resetSession(liberrors.ErrPeerClosed{Err: err})
		return nil
	case n == 0:
		s.resetSession(liberrors.ErrPeerClosed{})
		return nil
	}

	if err := s.rxBuf.Commit(n); err != nil {
		s.resetSession(err)
		return nil
	}

	s.drainFramer()
	return nil
}

// drainFramer repeatedly extracts complete frames/responses from rx_buf,
// dispatching binary frames to R (TCP-interleaved mode) and responses to
// handleResponse, until the buffer yields no further progress.
func (s *Session) drainFramer() {
	if s.lastFramerMove.IsZero() {
		s.lastFramerMove = time.Now()
	}

	for {
		before := s.rxBuf.Len()
		var preimage []byte
		if before > 0 {
			preimage = append([]byte(nil), s.rxBuf.Bytes()...)
		}

		res, err := framer.Next(s.rxBuf)
		if err != nil {
			s.log.Warn().Err(err).Msg("malformed interleaved framing")
			if s.rxBuf.Len() == 0 {
				break
			}
			s.rxBuf.Remove(0, 1)
			continue
		}
		if !res.Progress {
			break
		}

		s.lastFramerMove = time.Now()

		if res.Frame == nil && res.Response == nil {
			// Alignment-loss resync (framer.Next scanning past garbage):
			// log what got dropped at Debug, the way the original dumped the
			// same resync point with convertToHexASCIITable.
			if dropped := before - s.rxBuf.Len(); dropped > 0 && dropped <= len(preimage) {
				s.log.Debug().Str("dump", logging.HexDump(preimage[:dropped], 16)).
					Msg("dropped bytes resyncing interleaved framing")
			}
			continue
		}

		if res.Frame != nil {
			// While a channel-change PLAY is outstanding, the server may
			// still be streaming the previous channel; hold off delivering
			// it to R until the switch is confirmed (response.go's reqPlay
			// case clears channelChanged and drops anything still buffered).
			if !s.channelChanged {
				s.receiver.AcceptInterleaved(res.Frame.Channel, res.Frame.Payload)
			}
		}
		if res.Response != nil {
			s.handleResponse(res.Response)
		}
	}

	if s.rxBuf.Len() > 0 && time.Since(s.lastFramerMove) > framingStallTimeout {
		s.resetSession(liberrors.ErrMalformedFraming{Reason: "no framer progress within reset-timer window"})
	}
}

func (s *Session) onResetConnectFire() {
	s.resetSession(liberrors.ErrConnectTimeout{})
}

func (s *Session) onKeepAliveFire() {
	if s.state != SessionTransmitting || s.waitResponse {
		return
	}

	req := s.buildOptions()
	if err := s.send(req); err != nil {
		return
	}
	s.waitResponse = true
	s.lastRequest = reqOptions
}

func (s *Session) enterSessionEstablishing() {
	if !s.tcpData {
		s.receiver.Start()
	}

	s.state = SessionEstablishing

	query, changed := s.adapter.SetupData()
	s.channelChanged = changed

	req := s.buildSetup(query)
	if err := s.send(req); err != nil {
		return
	}
	s.waitResponse = true
	s.lastRequest = reqSetup
	s.wheel.Start(s.hResetConnect, sessionEstablishDelay, true)
}

// enterSessionPlaying sends PLAY. It serves both the SessionEstablishing ->
// SessionPlaying transition and the SessionTransmitting "config changed"
// trigger (spec.md §4.S table: both show the same "send PLAY" action).
func (s *Session) enterSessionPlaying() {
	query, changed := s.adapter.PlayData()
	if changed {
		s.channelChanged = true
	}

	s.state = SessionPlaying

	req := s.buildPlay(query)
	if err := s.send(req); err != nil {
		return
	}
	s.waitResponse = true
	s.lastRequest = reqPlay
	s.wheel.Start(s.hResetConnect, sessionPlayDelay, true)
}

func (s *Session) enterSessionTransmitting() {
	s.state = SessionTransmitting
	s.wheel.Stop(s.hResetConnect)

	delay := time.Duration(s.timeoutS)*time.Second - keepAliveMargin
	if delay < time.Second {
		delay = time.Second
	}
	s.wheel.Start(s.hKeepAlive, delay, false)
}

func (s *Session) enterSessionTeardowning() {
	s.state = SessionTeardowning

	req := s.buildTeardown()
	if err := s.send(req); err != nil {
		return
	}
	s.waitResponse = true
	s.lastRequest = reqTeardown
}

// resetSession is the full reset described in spec.md §3 Lifecycle: closes
// the control fd, stops timers, joins the RTP receive thread, and zeroes
// rx_buf — without re-allocating any of them.
func (s *Session) resetSession(cause error) {
	if cause != nil {
		s.log.Warn().Err(cause).Str("state", s.state.String()).Msg("resetting session")
	}

	if s.controlFD >= 0 {
		unix.Close(s.controlFD)
		s.controlFD = -1
	}

	if !s.tcpData {
		s.receiver.Stop()
		s.receiver.Close()
	}

	s.wheel.Stop(s.hResetConnect)
	s.wheel.Stop(s.hKeepAlive)

	s.rxBuf.Reset()
	s.cseq = 1
	s.sessionID = ""
	s.streamID = -1
	s.timeoutS = defaultTimeoutSeconds
	s.waitResponse = false
	s.lastRequest = reqNone
	s.channelChanged = false
	s.lastFramerMove = time.Time{}
	s.state = ConfigWaiting
}
