// Command satip-client drives a single SAT>IP tuning session against a
// server and writes the reassembled transport stream to a file (or stdout).
// It is the host event loop spec.md §1 calls "out of scope, treated as an
// external collaborator" — wiring flags, a logger and a poll(2) loop around
// the session state machine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/Barracuda09/satip-client/config"
	"github.com/Barracuda09/satip-client/internal/logging"
	"github.com/Barracuda09/satip-client/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "satip-client:", err)
		os.Exit(1)
	}
}

type flags struct {
	host       string
	port       int
	tcpData    bool
	bufferMB   int
	src        int
	freq       int
	pol        string
	msys       string
	sr         int
	fec        string
	pids       string
	outputPath string
	logLevel   string
	logJSON    bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.host, "host", "", "SAT>IP server host (required)")
	flag.IntVar(&f.port, "port", 554, "SAT>IP server RTSP port")
	flag.BoolVar(&f.tcpData, "tcp-data", false, "use TCP-interleaved media instead of the UDP side channel")
	flag.IntVar(&f.bufferMB, "rtp-buffer-mb", 2, "SO_RCVBUF size for the RTP socket, in megabytes (UDP mode)")
	flag.IntVar(&f.src, "src", 1, "satellite source number")
	flag.IntVar(&f.freq, "freq", 0, "tuning frequency, MHz (required)")
	flag.StringVar(&f.pol, "pol", "v", "polarization (h|v)")
	flag.StringVar(&f.msys, "msys", "dvbs", "delivery system (dvbs|dvbs2)")
	flag.IntVar(&f.sr, "sr", 22000, "symbol rate, ksym/s")
	flag.StringVar(&f.fec, "fec", "", "forward error correction (optional)")
	flag.StringVar(&f.pids, "pids", "0", "comma-separated PID list")
	flag.StringVar(&f.outputPath, "output", "", "file to write the transport stream to (default: stdout)")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	flag.BoolVar(&f.logJSON, "log-json", false, "emit JSON logs instead of console-formatted ones")
	flag.Parse()

	if v := os.Getenv("SATIP_HOST"); v != "" && f.host == "" {
		f.host = v
	}
	return f
}

func run() error {
	f := parseFlags()
	if f.host == "" {
		return fmt.Errorf("missing -host (or SATIP_HOST)")
	}
	if f.freq == 0 {
		return fmt.Errorf("missing -freq")
	}

	configureLogging(f)

	writer, closeWriter, err := openTunerWriter(f.outputPath)
	if err != nil {
		return fmt.Errorf("opening tuner writer: %w", err)
	}
	defer closeWriter()

	adapter := newCLIAdapter(f)
	sess := session.New(f.host, f.port, adapter, writer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return pollLoop(ctx, sess)
}

func configureLogging(f flags) {
	level, err := zerolog.ParseLevel(f.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if f.logJSON {
		logging.Configure(os.Stderr, level)
		return
	}
	logging.Configure(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level)
}

// pollLoop is the host event loop: it asks the session for a descriptor and
// timeout, blocks in poll(2), and hands results back, per spec.md §4.S's
// public surface. The session never blocks on its own.
func pollLoop(ctx context.Context, sess *session.Session) error {
	log := logging.For(logging.ModuleMain)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		default:
		}

		fd, events := sess.PollDescriptor()
		timeoutMs := sess.PollTimeoutMs()
		if timeoutMs > 1000 {
			timeoutMs = 1000
		}

		var pfds []unix.PollFd
		if fd >= 0 {
			pfds = []unix.PollFd{{Fd: int32(fd), Events: int16(events)}}
		}

		n, err := unix.Poll(pfds, int(timeoutMs))
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("poll: %w", err)
		}

		if n > 0 && len(pfds) > 0 {
			if err := sess.HandleEvents(session.Events(pfds[0].Revents)); err != nil {
				log.Warn().Err(err).Msg("handle_events")
			}
		}

		sess.TickTimers()
	}
}

// cliAdapter is a minimal config.Adapter: it tunes one fixed channel taken
// from the command line and never changes it, which is enough to exercise
// the full session lifecycle without a dynamic tuning store (out of scope
// per spec.md §1).
type cliAdapter struct {
	tcpData  bool
	bufferMB int
	query    string

	setupConsumed bool
	playConsumed  bool

	attemptID uuid.UUID
	log       zerolog.Logger
}

func newCLIAdapter(f flags) *cliAdapter {
	id := uuid.New()

	query := fmt.Sprintf("?src=%d&freq=%d&pol=%s&msys=%s&sr=%d", f.src, f.freq, f.pol, f.msys, f.sr)
	if f.fec != "" {
		query += "&fec=" + f.fec
	}
	query += "&pids=" + f.pids

	return &cliAdapter{
		tcpData:   f.tcpData,
		bufferMB:  f.bufferMB,
		query:     query,
		attemptID: id,
		log:       logging.For(logging.ModuleMain).With().Str("attempt", id.String()).Logger(),
	}
}

func (a *cliAdapter) IsTCPData() bool  { return a.tcpData }
func (a *cliAdapter) RTPBufferMB() int { return a.bufferMB }

func (a *cliAdapter) ChannelStatus() config.ChannelStatus {
	if !a.setupConsumed {
		return config.ChannelChanged
	}
	return config.ChannelStable
}

func (a *cliAdapter) PIDStatus() config.PIDStatus {
	return config.PIDStationary
}

func (a *cliAdapter) SetupData() (string, bool) {
	changed := !a.setupConsumed
	a.setupConsumed = true
	if changed {
		a.log.Info().Str("query", a.query).Msg("tuning for this attempt")
	}
	return a.query, changed
}

func (a *cliAdapter) PlayData() (string, bool) {
	changed := !a.playConsumed
	a.playConsumed = true
	return a.query, changed
}
