package rtpreceiver

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSES1AppPayload is spec.md §8 scenario 6.
func TestSES1AppPayload(t *testing.T) {
	r := &Receiver{}

	payload := "ver=1.0;src=1;tuner=1,230,1,14,11538,v,dvbs,qpsk,off,0.35,22000,56;pids=0,100"
	err := r.parseSES1([]byte(payload))
	require.NoError(t, err)

	assert.True(t, r.HasLock())
	assert.Equal(t, 230, r.SignalStrength())
	assert.Equal(t, 14, r.SignalQuality())
}

func TestHandleRTCPIgnoresNonSES1App(t *testing.T) {
	r := &Receiver{}

	app := &rtcp.ApplicationDefined{
		SSRC: 1,
		Name: [4]byte{'A', 'B', 'C', 'D'},
		Data: []byte("ver=1.0;tuner=1,1,1,1"),
	}
	buf, err := app.Marshal()
	require.NoError(t, err)

	r.handleRTCP(buf)
	assert.False(t, r.HasLock())
	assert.Equal(t, 0, r.SignalStrength())
}

func TestHandleRTCPParsesCompoundSES1(t *testing.T) {
	r := &Receiver{}

	app := &rtcp.ApplicationDefined{
		SSRC: 42,
		Name: [4]byte{'S', 'E', 'S', '1'},
		Data: []byte("ver=1.0;src=1;tuner=1,100,0,5;pids=0"),
	}
	buf, err := app.Marshal()
	require.NoError(t, err)

	r.handleRTCP(buf)
	assert.False(t, r.HasLock())
	assert.Equal(t, 100, r.SignalStrength())
	assert.Equal(t, 5, r.SignalQuality())
}

func TestParseSES1RejectsMalformedTuner(t *testing.T) {
	r := &Receiver{}
	err := r.parseSES1([]byte("ver=1.0;tuner=1,2"))
	assert.Error(t, err)
}
