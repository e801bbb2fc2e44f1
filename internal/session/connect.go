package session

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// dialNonBlocking resolves host and issues a non-blocking connect(2),
// returning the file descriptor immediately. The caller learns the outcome
// later from a POLLOUT plus a SO_ERROR check (spec.md §4.S: "ServerConnecting
// | POLLOUT | stop reset timer | SessionEstablishing").
//
// This bypasses net.Dial deliberately: the host event loop needs the raw fd
// to hand to its own poll(2) set (spec.md §4.S public surface), not a
// net.Conn wrapping one it doesn't control the lifecycle of.
func dialNonBlocking(host string, port int) (int, error) {
	addr, err := resolveIPv4(host)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("session: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("session: set nonblocking: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], addr[:])

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("session: connect: %w", err)
	}

	return fd, nil
}

func resolveIPv4(host string) ([4]byte, error) {
	var out [4]byte

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			copy(out[:], v4)
			return out, nil
		}
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return out, fmt.Errorf("session: resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			copy(out[:], v4)
			return out, nil
		}
	}

	return out, fmt.Errorf("session: no IPv4 address for %q", host)
}

// socketError reads and clears SO_ERROR, the standard way to discover
// whether a non-blocking connect succeeded once POLLOUT fires.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
