package band

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/lorastack/loramac"
)

// maxEU868Channels is the size of the channel table: the three default
// channels plus up to 13 channels added via CFList or NewChannelReq.
const maxEU868Channels = 16

type eu868Band struct {
	band
}

func newEU868Band() *eu868Band {
	b := eu868Band{
		band: band{
			name:                  EU868,
			supportsExtraChannels: true,
			minFrequency:          863000000,
			maxFrequency:          870000000,
			defaultTxDataRate:     0,
			defaultTxPower:        0,
			dutyCycleEnforced:     true,
			ackTimeout:            2 * time.Second,
			ackTimeoutRnd:         time.Second,
			rnd:                   rand.New(rand.NewSource(time.Now().UnixNano())),
			dataRates: map[int]DataRate{
				0: {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 125, uplink: true, downlink: true},
				1: {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 125, uplink: true, downlink: true},
				2: {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125, uplink: true, downlink: true},
				3: {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125, uplink: true, downlink: true},
				4: {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125, uplink: true, downlink: true},
				5: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125, uplink: true, downlink: true},
				6: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 250, uplink: true, downlink: true},
				7: {Modulation: FSKModulation, BitRate: 50000, uplink: true, downlink: true},
			},
			rx1DataRateTable: map[int][]int{
				0: {0, 0, 0, 0, 0, 0},
				1: {1, 0, 0, 0, 0, 0},
				2: {2, 1, 0, 0, 0, 0},
				3: {3, 2, 1, 0, 0, 0},
				4: {4, 3, 2, 1, 0, 0},
				5: {5, 4, 3, 2, 1, 0},
				6: {6, 5, 4, 3, 2, 1},
				7: {7, 6, 5, 4, 3, 2},
			},
			txPowerOffsets: []int{0, -2, -4, -6, -8, -10, -12, -14},
			maxPayloadSizePerDR: map[int]MaxPayloadSize{
				0: {M: 59, N: 51},
				1: {M: 59, N: 51},
				2: {M: 59, N: 51},
				3: {M: 123, N: 115},
				4: {M: 250, N: 242},
				5: {M: 250, N: 242},
				6: {M: 250, N: 242},
				7: {M: 250, N: 242},
			},
			maxPayloadSizeRptrDR: map[int]MaxPayloadSize{
				0: {M: 59, N: 51},
				1: {M: 59, N: 51},
				2: {M: 59, N: 51},
				3: {M: 123, N: 115},
				4: {M: 230, N: 222},
				5: {M: 230, N: 222},
				6: {M: 230, N: 222},
				7: {M: 230, N: 222},
			},
			defaults: Defaults{
				RX2Frequency:     869525000,
				RX2DataRate:      0,
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

func (b *eu868Band) LoadDefaults(kind InitKind) {
	switch kind {
	case InitDefaults:
		b.defaultChannels = []Channel{
			{Frequency: 868100000, MinDR: 0, MaxDR: 5, enabled: true},
			{Frequency: 868300000, MinDR: 0, MaxDR: 5, enabled: true},
			{Frequency: 868500000, MinDR: 0, MaxDR: 5, enabled: true},
		}
		b.uplinkChannels = make([]Channel, len(b.defaultChannels))
		copy(b.uplinkChannels, b.defaultChannels)
		b.subBands = []subBand{
			{minFrequency: 863000000, maxFrequency: 865000000, dutyCycle: 1000}, // 0.1%
			{minFrequency: 865000001, maxFrequency: 868000000, dutyCycle: 100},  // 1%
			{minFrequency: 868000001, maxFrequency: 868600000, dutyCycle: 100},  // 1%
			{minFrequency: 868700000, maxFrequency: 869200000, dutyCycle: 1000}, // 0.1%
			{minFrequency: 869400000, maxFrequency: 869650000, dutyCycle: 10},   // 10%
			{minFrequency: 869700000, maxFrequency: 870000000, dutyCycle: 100},  // 1%
		}
	case RestoreDefaults:
		// re-enable the default channels; keep custom ones untouched
		for i := range b.uplinkChannels {
			if !b.uplinkChannels[i].custom {
				b.uplinkChannels[i].enabled = true
			}
		}
	}
}

// AlternateJoinDataRate walks the join data-rate ladder: mostly DR5, with
// periodic excursions down to DR0 so that distant devices eventually get
// through.
func (b *eu868Band) AlternateJoinDataRate(trial uint16) int {
	switch {
	case trial%48 == 0:
		return 0
	case trial%32 == 0:
		return 1
	case trial%24 == 0:
		return 2
	case trial%16 == 0:
		return 3
	case trial%8 == 0:
		return 4
	default:
		return 5
	}
}

func (b *eu868Band) DownlinkFrequency(channel int) (int, error) {
	if channel < 0 || channel >= len(b.uplinkChannels) {
		return 0, errors.Wrapf(ErrInvalidChannel, "channel %d", channel)
	}
	// RX1 re-uses the uplink frequency unless a DLChannelReq moved it
	if f := b.uplinkChannels[channel].DownlinkFrequency; f != 0 {
		return f, nil
	}
	return b.uplinkChannels[channel].Frequency, nil
}

// ApplyCFList applies the 16 byte join-accept CFList: five extra channel
// frequencies for channels 3..7, in 100 Hz steps.
func (b *eu868Band) ApplyCFList(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if len(payload) != 16 {
		return errors.New("band: CFList must be 16 bytes")
	}

	for i := 0; i < 5; i++ {
		o := i * 3
		freq := 100 * (int(payload[o]) | int(payload[o+1])<<8 | int(payload[o+2])<<16)
		if freq == 0 {
			continue
		}
		if err := b.AddChannel(3+i, freq, 0, 5); err != nil {
			return err
		}
	}
	return nil
}

func (b *eu868Band) AddChannel(id, frequency, minDR, maxDR int) error {
	if id < 0 || id >= maxEU868Channels {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", id)
	}
	if id < len(b.defaultChannels) {
		return errors.Wrap(ErrInvalidChannel, "default channels cannot be replaced")
	}
	if !b.VerifyFrequency(frequency) {
		return errors.Wrapf(ErrInvalidFrequency, "frequency %d", frequency)
	}
	if minDR < 0 || maxDR > b.MaxTxDataRate() || minDR > maxDR {
		return errors.Wrap(ErrInvalidDataRate, "invalid data-rate range")
	}

	for len(b.uplinkChannels) <= id {
		b.uplinkChannels = append(b.uplinkChannels, Channel{custom: true})
	}
	b.uplinkChannels[id] = Channel{
		Frequency: frequency,
		MinDR:     minDR,
		MaxDR:     maxDR,
		enabled:   true,
		custom:    true,
	}
	return nil
}

func (b *eu868Band) RemoveChannel(id int) error {
	if id < 0 || id >= len(b.uplinkChannels) {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", id)
	}
	if !b.uplinkChannels[id].custom {
		return errors.Wrap(ErrInvalidChannel, "default channels cannot be removed")
	}
	b.uplinkChannels[id].enabled = false
	b.uplinkChannels[id].Frequency = 0
	b.uplinkChannels[id].DownlinkFrequency = 0
	return nil
}

func (b *eu868Band) HandleLinkADRReq(req loramac.LinkADRReqPayload, adrEnabled bool) (loramac.LinkADRAnsPayload, int, int, uint8) {
	var ans loramac.LinkADRAnsPayload

	// channel mask: ChMaskCntl 0 applies the mask 1:1, 6 enables all
	mask := req.ChMask
	switch req.Redundancy.ChMaskCntl {
	case 0:
	case 6:
		for i := range mask {
			mask[i] = i < len(b.uplinkChannels) && b.uplinkChannels[i].Frequency != 0
		}
	default:
		// unsupported ChMaskCntl
		return ans, 0, 0, 0
	}

	maskOK := false
	for i := range b.uplinkChannels {
		if i < len(mask) && mask[i] && b.uplinkChannels[i].Frequency != 0 {
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
		b.uplinkChannels[i].enabled = i < len(mask) && mask[i] && b.uplinkChannels[i].Frequency != 0
	}
	return ans, int(req.DataRate), int(req.TXPower), req.Redundancy.NbRep
}

func (b *eu868Band) HandleNewChannelReq(req loramac.NewChannelReqPayload) loramac.NewChannelAnsPayload {
	ans := loramac.NewChannelAnsPayload{
		ChannelFrequencyOK: b.VerifyFrequency(int(req.Freq)),
		DataRateRangeOK:    int(req.MinDR) <= int(req.MaxDR) && b.VerifyTxDataRate(int(req.MaxDR)),
	}

	if req.Freq == 0 {
		// frequency 0 disables the channel
		if err := b.RemoveChannel(int(req.ChIndex)); err != nil {
			ans.ChannelFrequencyOK = false
		} else {
			ans.ChannelFrequencyOK = true
		}
		return ans
	}

	if ans.ChannelFrequencyOK && ans.DataRateRangeOK {
		if err := b.AddChannel(int(req.ChIndex), int(req.Freq), int(req.MinDR), int(req.MaxDR)); err != nil {
			ans.ChannelFrequencyOK = false
		}
	}
	return ans
}

func (b *eu868Band) HandleDLChannelReq(req loramac.DLChannelReqPayload) loramac.DLChannelAnsPayload {
	ans := loramac.DLChannelAnsPayload{
		UplinkFrequencyExists: int(req.ChIndex) < len(b.uplinkChannels) && b.uplinkChannels[req.ChIndex].Frequency != 0,
		ChannelFrequencyOK:    b.VerifyFrequency(int(req.Freq)),
	}
	if ans.UplinkFrequencyExists && ans.ChannelFrequencyOK {
		// move the RX1 window of this channel to the requested frequency
		b.uplinkChannels[req.ChIndex].DownlinkFrequency = int(req.Freq)
	}
	return ans
}

func (b *eu868Band) ImplementsTXParamSetup() bool {
	return false
}
