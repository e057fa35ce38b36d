package band

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/lorastack/loramac"
)

type us915Band struct {
	band
}

func newUS915Band() *us915Band {
	b := us915Band{
		band: band{
			name:              US915,
			minFrequency:      902000000,
			maxFrequency:      928000000,
			defaultTxDataRate: 0,
			defaultTxPower:    0,
			dutyCycleEnforced: false,
			ackTimeout:        2 * time.Second,
			ackTimeoutRnd:     time.Second,
			rnd:               rand.New(rand.NewSource(time.Now().UnixNano())),
			dataRates: map[int]DataRate{
				0:  {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125, uplink: true},
				1:  {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125, uplink: true},
				2:  {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125, uplink: true},
				3:  {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125, uplink: true},
				4:  {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500, uplink: true},
				8:  {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 500, downlink: true},
				9:  {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 500, downlink: true},
				10: {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 500, downlink: true},
				11: {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 500, downlink: true},
				12: {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500, downlink: true},
				13: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 500, downlink: true},
			},
			rx1DataRateTable: map[int][]int{
				0: {10, 9, 8, 8},
				1: {11, 10, 9, 8},
				2: {12, 11, 10, 9},
				3: {13, 12, 11, 10},
				4: {13, 13, 12, 11},
			},
			txPowerOffsets: []int{0, -2, -4, -6, -8, -10, -12, -14, -16, -18, -20},
			maxPayloadSizePerDR: map[int]MaxPayloadSize{
				0:  {M: 19, N: 11},
				1:  {M: 61, N: 53},
				2:  {M: 133, N: 125},
				3:  {M: 250, N: 242},
				4:  {M: 250, N: 242},
				8:  {M: 41, N: 33},
				9:  {M: 117, N: 109},
				10: {M: 230, N: 222},
				11: {M: 230, N: 222},
				12: {M: 230, N: 222},
				13: {M: 230, N: 222},
			},
			defaults: Defaults{
				RX2Frequency:     923300000,
				RX2DataRate:      8,
				MaxFCntGap:       16384,
				ReceiveDelay1:    time.Second,
				ReceiveDelay2:    2 * time.Second,
				JoinAcceptDelay1: 5 * time.Second,
				JoinAcceptDelay2: 6 * time.Second,
				MaxRxWindow:      3 * time.Second,
			},
		},
	}
	b.LoadDefaults(InitDefaults)
	return &b
}

func (b *us915Band) LoadDefaults(kind InitKind) {
	switch kind {
	case InitDefaults:
		b.uplinkChannels = make([]Channel, 0, 72)
		// 64 x 125 kHz channels, 902.3 MHz upwards in 200 kHz steps
		for i := 0; i < 64; i++ {
			b.uplinkChannels = append(b.uplinkChannels, Channel{
				Frequency: 902300000 + i*200000,
				MinDR:     0,
				MaxDR:     3,
				enabled:   true,
			})
		}
		// 8 x 500 kHz channels, 903.0 MHz upwards in 1.6 MHz steps
		for i := 0; i < 8; i++ {
			b.uplinkChannels = append(b.uplinkChannels, Channel{
				Frequency: 903000000 + i*1600000,
				MinDR:     4,
				MaxDR:     4,
				enabled:   true,
			})
		}
	case RestoreDefaults:
		for i := range b.uplinkChannels {
			b.uplinkChannels[i].enabled = true
		}
	}
}

// AlternateJoinDataRate alternates between DR0 on the 125 kHz channels and
// DR4 on the 500 kHz channels.
func (b *us915Band) AlternateJoinDataRate(trial uint16) int {
	if trial%2 == 1 {
		return 4
	}
	return 0
}

func (b *us915Band) DownlinkFrequency(channel int) (int, error) {
	if channel < 0 || channel >= len(b.uplinkChannels) {
		return 0, errors.Wrapf(ErrInvalidChannel, "channel %d", channel)
	}
	// RX1 uses one of the eight 500 kHz downlink channels
	return 923300000 + (channel%8)*600000, nil
}

// ApplyCFList is a no-op: US915 only defines the channel-mask CFList type,
// which devices of this MAC version ignore.
func (b *us915Band) ApplyCFList(payload []byte) error {
	return nil
}

func (b *us915Band) AddChannel(id, frequency, minDR, maxDR int) error {
	return errors.New("band: US915 does not support extra channels")
}

func (b *us915Band) RemoveChannel(id int) error {
	return errors.New("band: US915 does not support removing channels")
}

func (b *us915Band) HandleLinkADRReq(req loramac.LinkADRReqPayload, adrEnabled bool) (loramac.LinkADRAnsPayload, int, int, uint8) {
	var ans loramac.LinkADRAnsPayload

	enabled := make([]bool, len(b.uplinkChannels))
	for i, c := range b.uplinkChannels {
		enabled[i] = c.enabled
	}

	cntl := req.Redundancy.ChMaskCntl
	switch {
	case cntl <= 4:
		// banks of 16 channels
		for i := 0; i < 16; i++ {
			idx := int(cntl)*16 + i
			if idx < len(enabled) {
				enabled[idx] = req.ChMask[i]
			}
		}
	case cntl == 6:
		// all 125 kHz channels on, the mask controls the 500 kHz ones
		for i := 0; i < 64; i++ {
			enabled[i] = true
		}
		for i := 0; i < 8; i++ {
			enabled[64+i] = req.ChMask[i]
		}
	case cntl == 7:
		// all 125 kHz channels off, the mask controls the 500 kHz ones
		for i := 0; i < 64; i++ {
			enabled[i] = false
		}
		for i := 0; i < 8; i++ {
			enabled[64+i] = req.ChMask[i]
		}
	default:
		return ans, 0, 0, 0
	}

	maskOK := false
	for _, e := range enabled {
		if e {
			maskOK = true
			break
		}
	}
	ans.ChannelMaskACK = maskOK
	ans.DataRateACK = b.VerifyTxDataRate(int(req.DataRate))
	ans.PowerACK = b.VerifyTxPower(int(req.TXPower))

	if !ans.ChannelMaskACK || !ans.DataRateACK || !ans.PowerACK {
		return ans, 0, 0, 0
	}

	for i := range b.uplinkChannels {
		b.uplinkChannels[i].enabled = enabled[i]
	}
	return ans, int(req.DataRate), int(req.TXPower), req.Redundancy.NbRep
}

func (b *us915Band) HandleNewChannelReq(req loramac.NewChannelReqPayload) loramac.NewChannelAnsPayload {
	// the US915 channel plan is fixed
	return loramac.NewChannelAnsPayload{}
}

func (b *us915Band) HandleDLChannelReq(req loramac.DLChannelReqPayload) loramac.DLChannelAnsPayload {
	// the US915 downlink plan is fixed
	return loramac.DLChannelAnsPayload{}
}

func (b *us915Band) ImplementsTXParamSetup() bool {
	return false
}
