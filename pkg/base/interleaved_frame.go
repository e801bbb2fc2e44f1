package base

// InterleavedFrameMagic is the first byte of a TCP-interleaved binary frame
// (§6 Wire formats: "0x24 | channel(1B) | length(2B big-endian) | payload").
const InterleavedFrameMagic = 0x24

// InterleavedHeaderSize is the length of the interleaved-frame header (magic byte,
// channel byte, 2-byte big-endian length).
const InterleavedHeaderSize = 4

// Channel identifies which of the two interleaved sub-streams a frame
// carries.
type Channel int

// The two interleaved channels SAT>IP ever multiplexes.
const (
	ChannelRTP  Channel = 0
	ChannelRTCP Channel = 1
)
