package rtpreceiver

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// packetConn is the subset of net.PacketConn a udp port pair needs plus
// access to the raw fd for socket-option tuning (§4.R receive buffer
// sizing), mirrored on gortsplib's client_udp_listener.go packetConn
// interface.
type packetConn interface {
	net.PacketConn
	SyscallConn() (syscall.RawConn, error)
}

// openPortPair opens two adjacent UDP ports, even for RTP and the
// following odd port for RTCP (§3 RTP endpoint invariant:
// rtcp_port == rtp_port + 1). It probes an OS-assigned port and retries
// up to maxAttempts times if the neighboring port is unavailable.
func openPortPair(listen func(network, address string) (net.PacketConn, error), maxAttempts int) (rtp, rtcp packetConn, err error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rtpConn, lerr := listen("udp4", "0.0.0.0:0")
		if lerr != nil {
			return nil, nil, lerr
		}
		rtpPort := rtpConn.LocalAddr().(*net.UDPAddr).Port

		if rtpPort%2 != 0 {
			rtpConn.Close()
			continue
		}

		rtcpConn, lerr := listen("udp4", fmt.Sprintf("0.0.0.0:%d", rtpPort+1))
		if lerr != nil {
			rtpConn.Close()
			continue
		}

		return rtpConn.(packetConn), rtcpConn.(packetConn), nil
	}

	return nil, nil, fmt.Errorf("rtpreceiver: unable to allocate an adjacent RTP/RTCP port pair after %d attempts", maxAttempts)
}

// setReadBufferSize sets SO_RCVBUF, then best-effort tries the privileged
// SO_RCVBUFFORCE variant (Linux, CAP_NET_ADMIN) which can exceed
// net.core.rmem_max where permitted.
func setReadBufferSize(pc packetConn, bytes int) error {
	rawConn, err := pc.SyscallConn()
	if err != nil {
		return err
	}

	var setErr error
	err = rawConn.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
		if setErr != nil {
			return
		}
		// best-effort: ignore failure, the non-forced SO_RCVBUF above
		// already took effect subject to net.core.rmem_max.
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, bytes)
	})
	if err != nil {
		return err
	}
	return setErr
}
