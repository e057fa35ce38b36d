package band

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorastack/loramac"
)

func TestUS915Defaults(t *testing.T) {
	b, err := GetBand(US915)
	require.NoError(t, err)

	assert.Equal(t, "US915", b.Name())
	assert.False(t, b.DutyCycleEnforced())

	d := b.GetDefaults()
	assert.Equal(t, 923300000, d.RX2Frequency)
	assert.Equal(t, 8, d.RX2DataRate)

	channels := b.Channels()
	require.Len(t, channels, 72)
	assert.Equal(t, 902300000, channels[0].Frequency)
	assert.Equal(t, 902500000, channels[1].Frequency)
	assert.Equal(t, 903000000, channels[64].Frequency)
	assert.Equal(t, 4, channels[64].MinDR)
}

func TestUS915DownlinkFrequency(t *testing.T) {
	b, err := GetBand(US915)
	require.NoError(t, err)

	f, err := b.DownlinkFrequency(0)
	require.NoError(t, err)
	assert.Equal(t, 923300000, f)

	f, err = b.DownlinkFrequency(8)
	require.NoError(t, err)
	assert.Equal(t, 923300000, f)

	f, err = b.DownlinkFrequency(1)
	require.NoError(t, err)
	assert.Equal(t, 923900000, f)
}

func TestUS915AlternateJoinDataRate(t *testing.T) {
	b, err := GetBand(US915)
	require.NoError(t, err)

	assert.Equal(t, 4, b.AlternateJoinDataRate(1))
	assert.Equal(t, 0, b.AlternateJoinDataRate(2))
	assert.Equal(t, 4, b.AlternateJoinDataRate(3))
}

func TestUS915LinkADRReqChannelBanks(t *testing.T) {
	b, err := GetBand(US915)
	require.NoError(t, err)

	// disable everything except bank 0
	var empty loramac.ChMask
	for cntl := uint8(1); cntl <= 4; cntl++ {
		ans, _, _, _ := b.HandleLinkADRReq(loramac.LinkADRReqPayload{
			DataRate:   2,
			TXPower:    0,
			ChMask:     empty,
			Redundancy: loramac.Redundancy{ChMaskCntl: cntl, NbRep: 1},
		}, true)
		assert.True(t, ans.ChannelMaskACK)
	}

	channels := b.Channels()
	for i := 16; i < 64; i++ {
		assert.False(t, channels[i].Enabled(), "channel %d", i)
	}
	for i := 0; i < 16; i++ {
		assert.True(t, channels[i].Enabled(), "channel %d", i)
	}

	// ChMaskCntl 6 re-enables all 125 kHz channels
	var mask loramac.ChMask
	mask[0] = true
	ans, _, _, _ := b.HandleLinkADRReq(loramac.LinkADRReqPayload{
		DataRate:   2,
		TXPower:    0,
		ChMask:     mask,
		Redundancy: loramac.Redundancy{ChMaskCntl: 6, NbRep: 1},
	}, true)
	assert.True(t, ans.ChannelMaskACK)

	channels = b.Channels()
	for i := 0; i < 64; i++ {
		assert.True(t, channels[i].Enabled(), "channel %d", i)
	}
	assert.True(t, channels[64].Enabled())
	assert.False(t, channels[65].Enabled())
}

func TestUS915NoExtraChannels(t *testing.T) {
	b, err := GetBand(US915)
	require.NoError(t, err)

	assert.Error(t, b.AddChannel(70, 915000000, 0, 3))
	assert.Error(t, b.RemoveChannel(0))

	ans := b.HandleNewChannelReq(loramac.NewChannelReqPayload{ChIndex: 5, Freq: 915000000})
	assert.False(t, ans.ChannelFrequencyOK)
	assert.False(t, ans.DataRateRangeOK)
}
