// Package rtpreceiver implements the RTP/RTCP receive path (spec.md §4.R):
// in UDP mode it owns an adjacent RTP/RTCP port pair and a dedicated
// goroutine reading both; in TCP-interleaved mode it has no sockets of its
// own and is fed extracted frames inline by the framer via AcceptInterleaved.
package rtpreceiver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/Barracuda09/satip-client/internal/logging"
	"github.com/Barracuda09/satip-client/pkg/base"
)

var (
	errMalformedTuner = errors.New("rtpreceiver: malformed tuner sub-field")
	errNoTunerField   = errors.New("rtpreceiver: no tuner sub-field in SES1 payload")
)

const maxPortPairAttempts = 16

// TSWriter is the virtual-tuner device writer, an external collaborator
// (spec.md §6): reliable, may block briefly, short writes are retried by
// the caller.
type TSWriter interface {
	Write(buf []byte) (int, error)
}

// writeAll retries short writes, per the TSWriter contract.
func writeAll(w TSWriter, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("rtpreceiver: tuner writer made no progress")
		}
		buf = buf[n:]
	}
	return nil
}

// Receiver is component R.
type Receiver struct {
	writer       TSWriter
	listenPacket func(network, address string) (net.PacketConn, error)
	bufferBytes  int

	rtpConn  packetConn
	rtcpConn packetConn

	lastSeq uint16
	haveSeq bool
	// rate-limits the sequence-discontinuity warning so a sustained loss
	// burst produces one log line per window instead of flooding the sink.
	discontinuityLim *rate.Limiter

	stopCh chan struct{}
	doneCh chan struct{}

	sig signal
}

// New allocates a Receiver. bufferMB is the configured SO_RCVBUF size in
// megabytes (§4.R); 0 leaves the OS default in place.
func New(writer TSWriter, bufferMB int, listenPacket func(network, address string) (net.PacketConn, error)) *Receiver {
	if listenPacket == nil {
		listenPacket = net.ListenPacket
	}
	return &Receiver{
		writer:           writer,
		listenPacket:     listenPacket,
		bufferBytes:      bufferMB * 1024 * 1024,
		discontinuityLim: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// OpenUDP allocates the RTP/RTCP port pair, ahead of the first SETUP so the
// client_port can be advertised in the Transport header (§3 Lifecycle).
func (r *Receiver) OpenUDP() error {
	rtpConn, rtcpConn, err := openPortPair(r.listenPacket, maxPortPairAttempts)
	if err != nil {
		return err
	}

	if r.bufferBytes != 0 {
		if err := setReadBufferSize(rtpConn, r.bufferBytes); err != nil {
			logging.For(logging.ModuleNet).Warn().Err(err).Msg("unable to size RTP receive buffer")
		}
	}

	r.rtpConn = rtpConn
	r.rtcpConn = rtcpConn
	return nil
}

// RTPPort returns the bound RTP port (even, per §8 invariant 4).
func (r *Receiver) RTPPort() int {
	return r.rtpConn.LocalAddr().(*net.UDPAddr).Port
}

// RTCPPort returns the bound RTCP port (RTPPort + 1).
func (r *Receiver) RTCPPort() int {
	return r.rtcpConn.LocalAddr().(*net.UDPAddr).Port
}

// Start launches the UDP receive path: one goroutine per socket (RTP and
// RTCP), each blocking in ReadFrom.
func (r *Receiver) Start() {
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run()
}

// Stop closes the RTP/RTCP sockets, which unblocks the read loops, and
// waits on doneCh for the receive goroutines to exit. No running flag is
// shared with the loops; closing the sockets is what ends them.
func (r *Receiver) Stop() {
	if r.stopCh == nil {
		return
	}
	close(r.stopCh)
	r.rtpConn.Close()
	r.rtcpConn.Close()
	<-r.doneCh
	r.stopCh = nil
}

// Close releases the UDP sockets outright (used when the receiver was
// opened but never started, e.g. a reset before PLAY).
func (r *Receiver) Close() {
	if r.rtpConn != nil {
		r.rtpConn.Close()
	}
	if r.rtcpConn != nil {
		r.rtcpConn.Close()
	}
}

func (r *Receiver) run() {
	defer close(r.doneCh)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.readLoop(r.rtcpConn, r.handleRTCP)
	}()
	go func() {
		defer wg.Done()
		r.readLoop(r.rtpConn, r.handleRTPDatagram)
	}()
	wg.Wait()
}

func (r *Receiver) readLoop(pc packetConn, handle func([]byte)) {
	buf := make([]byte, 2048)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			// Stop() closes the socket, which unblocks ReadFrom with an
			// error — the normal exit path for this loop.
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handle(payload)
	}
}

func (r *Receiver) handleRTPDatagram(buf []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		logging.For(logging.ModuleData).Warn().Err(err).Msg("dropping malformed RTP packet")
		return
	}
	r.deliverRTP(&pkt)
}

// deliverRTP strips the RTP framing (handled by pion/rtp's Unmarshal, which
// accounts for the fixed header, CSRC list and extension header per §4.R)
// and forwards the MPEG-TS substream to the tuner device.
func (r *Receiver) deliverRTP(pkt *rtp.Packet) {
	if pkt.Version != 2 {
		logging.For(logging.ModuleData).Warn().Uint8("version", pkt.Version).Msg("dropping non-v2 RTP packet")
		return
	}

	if r.haveSeq && pkt.SequenceNumber != r.lastSeq+1 && r.discontinuityLim.Allow() {
		logging.For(logging.ModuleData).Warn().
			Uint16("got", pkt.SequenceNumber).
			Uint16("expected", r.lastSeq+1).
			Msg("RTP sequence discontinuity")
	}
	r.lastSeq = pkt.SequenceNumber
	r.haveSeq = true

	if err := writeAll(r.writer, pkt.Payload); err != nil {
		logging.For(logging.ModuleHW).Error().Err(err).Msg("tuner device write failed")
	}
}

// AcceptInterleaved is R's TCP-mode entry point (§4.R): the framer has
// already stripped the `$` header and identified the channel; R only needs
// to dispatch to the same RTP/RTCP handling used in UDP mode.
func (r *Receiver) AcceptInterleaved(channel base.Channel, payload []byte) {
	switch channel {
	case base.ChannelRTP:
		r.handleRTPDatagram(payload)
	case base.ChannelRTCP:
		r.handleRTCP(payload)
	}
}
