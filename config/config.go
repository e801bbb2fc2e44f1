// Package config defines the read-only view of tuning state that the RTSP
// session state machine polls (spec.md §6 External interfaces, component
// D). The concrete store — reading the channel/PID list the user tuned,
// rendering SETUP/PLAY query strings — lives outside this module's scope
// (spec.md §1: "out of scope, treated as external collaborators"); this
// package only defines the contract S depends on.
package config

// ChannelStatus is the result of polling whether the tuned channel is
// usable.
type ChannelStatus int

const (
	// ChannelStable means nothing has changed since the last query.
	ChannelStable ChannelStatus = iota
	// ChannelChanged means a new channel was selected; Stable is returned
	// after the next SetupData/PlayData call consumes the change.
	ChannelChanged
	// ChannelInvalid means no channel is currently tunable; §4.S routes
	// this to an orderly TEARDOWN.
	ChannelInvalid
)

// PIDStatus is the result of polling whether the PID set changed without a
// full channel change.
type PIDStatus int

const (
	// PIDStationary means the PID set is unchanged.
	PIDStationary PIDStatus = iota
	// PIDChanged means the PID set changed; a PLAY with a fresh query
	// reapplies it.
	PIDChanged
)

// Adapter is the read-only contract the session state machine depends on.
// All methods are safe to call from the control context only (§5
// Concurrency model: S never shares this interface with the RTP context).
type Adapter interface {
	// IsTCPData reports whether the session should use TCP-interleaved
	// transport instead of UDP side-channel delivery.
	IsTCPData() bool

	// RTPBufferMB is the configured SO_RCVBUF size, in megabytes, for the
	// RTP socket in UDP mode.
	RTPBufferMB() int

	// ChannelStatus reports whether the tuned channel changed since the
	// last SetupData/PlayData call.
	ChannelStatus() ChannelStatus

	// PIDStatus reports whether the PID set changed since the last
	// SetupData/PlayData call.
	PIDStatus() PIDStatus

	// SetupData returns the query suffix for a SETUP request (beginning
	// with "?", containing src/freq/pol/msys/sr/fec/pids/...) and whether
	// it reflects a channel change, atomically clearing the change flag.
	SetupData() (query string, channelChanged bool)

	// PlayData returns the query suffix for a PLAY request, possibly empty
	// when only the PID set changed, and whether it reflects a channel
	// change, atomically clearing the change flag.
	PlayData() (query string, channelChanged bool)
}
