// Package logging is the process-wide structured logging sink.
//
// It replaces the original C implementation's thread-local scratch buffer
// and call-site macros (log.h's ERROR/WARN/INFO/DEBUG, each formatting into
// a shared __thread char msg[1024] before dispatching to syslog or stderr)
// with a github.com/rs/zerolog logger, rendered once per call site instead
// of accumulated into a buffer. The module bitmask the macros used to gate
// output (MSG_MAIN|MSG_NET|MSG_HW|MSG_SRV|MSG_DATA) survives as Module, now
// attached to each logger as a field rather than checked before formatting.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Module mirrors the original dbg_mask bits.
type Module uint32

// Module values, one per subsystem of the client.
const (
	ModuleMain Module = 1 << iota
	ModuleNet
	ModuleHW
	ModuleSrv
	ModuleData
)

func (m Module) String() string {
	switch m {
	case ModuleMain:
		return "main"
	case ModuleNet:
		return "net"
	case ModuleHW:
		return "hw"
	case ModuleSrv:
		return "srv"
	case ModuleData:
		return "data"
	default:
		return "unknown"
	}
}

var (
	baseOnce   sync.Once
	base       zerolog.Logger
	perModule  = map[Module]zerolog.Logger{}
	perModMu   sync.Mutex
	configured bool
)

// Configure sets the base writer and global level. Call once at process
// startup; safe to skip in tests, where For() falls back to a console
// writer on stderr at Info level.
func Configure(w io.Writer, level zerolog.Level) {
	perModMu.Lock()
	defer perModMu.Unlock()
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	perModule = map[Module]zerolog.Logger{}
	configured = true
}

func ensureDefault() {
	baseOnce.Do(func() {
		if !configured {
			base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(zerolog.InfoLevel).With().Timestamp().Logger()
		}
	})
}

// For returns a logger tagged with the given module, building and caching
// it on first use.
func For(m Module) zerolog.Logger {
	ensureDefault()

	perModMu.Lock()
	defer perModMu.Unlock()
	if l, ok := perModule[m]; ok {
		return l
	}
	l := base.With().Str("module", m.String()).Logger()
	perModule[m] = l
	return l
}

// HexDump renders a hex/ASCII block the way the original's
// convertToHexASCIITable did, for Debug-level dumps of unrecognized
// interleaved-frame resync points (§4.F alignment loss). Never call this
// on the hot path — it allocates and formats eagerly.
func HexDump(p []byte, blockSize int) string {
	if blockSize <= 0 {
		return ""
	}

	var out []byte
	for i := 0; i < len(p); i += blockSize {
		end := i + blockSize
		if end > len(p) {
			end = len(p)
		}
		block := p[i:end]

		for _, b := range block {
			out = append(out, hexDigit(b>>4), hexDigit(b&0xf), ' ')
		}
		for j := len(block); j < blockSize; j++ {
			out = append(out, ' ', ' ', ' ')
		}
		out = append(out, ' ', ' ')
		for _, b := range block {
			if b >= 0x20 && b < 0x7f {
				out = append(out, b)
			} else {
				out = append(out, '.')
			}
		}
		out = append(out, '\r', '\n')
	}
	return string(out)
}

func hexDigit(b byte) byte {
	const digits = "0123456789ABCDEF"
	return digits[b&0xf]
}
