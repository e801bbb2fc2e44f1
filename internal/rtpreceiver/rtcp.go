package rtpreceiver

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pion/rtcp"

	"github.com/Barracuda09/satip-client/internal/logging"
)

// signal is the tuner telemetry triple published by R and read by S or any
// other consumer (§5 Concurrency model: "three scalars... written by R and
// read by S/consumers... published with atomic stores").
type signal struct {
	hasLock  atomic.Bool
	strength atomic.Int32
	quality  atomic.Int32
}

// appName is the only RTCP APP sub-packet this client understands (§6 Wire
// formats).
const appName = "SES1"

func (r *Receiver) handleRTCP(payload []byte) {
	packets, err := rtcp.Unmarshal(payload)
	if err != nil {
		logging.For(logging.ModuleData).Debug().Err(err).Msg("unparseable RTCP compound packet")
		return
	}

	for _, p := range packets {
		app, ok := p.(*rtcp.ApplicationDefined)
		if !ok {
			continue
		}
		if string(app.Name[:]) != appName {
			continue
		}
		if err := r.parseSES1(app.Data); err != nil {
			logging.For(logging.ModuleData).Debug().Err(err).Msg("unparseable SES1 APP payload")
		}
	}
}

// parseSES1 decodes the ASCII payload described in spec.md §6:
//
//	ver=<m.n>;src=<n>;tuner=<idx>,<strength>,<lock>,<quality>,<freq>,<pol>,
//	<sys>,<typ>,<pilots>,<roll>,<sr>,<fec>;pids=<list>
//
// Only the tuner sub-field's strength/lock/quality are extracted; every
// other key is ignored.
func (r *Receiver) parseSES1(data []byte) error {
	for _, kv := range strings.Split(string(data), ";") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key != "tuner" {
			continue
		}

		fields := strings.Split(value, ",")
		if len(fields) < 4 {
			return errMalformedTuner
		}

		strength, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		lock, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		quality, err := strconv.Atoi(fields[3])
		if err != nil {
			return err
		}

		// not atomic as a group across the three stores, but each
		// individual store is atomic: readers may observe an update
		// mid-triple but never a torn individual value.
		r.sig.strength.Store(int32(strength))
		r.sig.hasLock.Store(lock != 0)
		r.sig.quality.Store(int32(quality))
		return nil
	}
	return errNoTunerField
}

// HasLock reports the last signal-lock state parsed from RTCP APP telemetry.
func (r *Receiver) HasLock() bool { return r.sig.hasLock.Load() }

// SignalStrength returns the last parsed signal strength, 0-255.
func (r *Receiver) SignalStrength() int { return int(r.sig.strength.Load()) }

// SignalQuality returns the last parsed signal quality, 0-15.
func (r *Receiver) SignalQuality() int { return int(r.sig.quality.Load()) }
