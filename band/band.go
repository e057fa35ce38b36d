// Package band provides the regional channel plans and duty-cycle rules
// consumed by the MAC layer, for uplink communication from end-devices.
package band

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/lorastack/loramac"
)

// Name defines the band-name type.
type Name string

// Available ISM bands (by common name).
const (
	EU868 Name = "EU868"
	US915 Name = "US915"
)

// Modulation defines the modulation type.
type Modulation string

// Possible modulation types.
const (
	LoRaModulation Modulation = "LORA"
	FSKModulation  Modulation = "FSK"
)

// radioWakeupTime compensates the time the radio needs to leave sleep
// before a receive window actually opens.
const radioWakeupTime = time.Millisecond

// DataRate defines a data rate.
type DataRate struct {
	uplink       bool // data-rate can be used for uplink
	downlink     bool // data-rate can be used for downlink
	Modulation   Modulation
	SpreadFactor int // used for LoRa
	Bandwidth    int // in kHz, used for LoRa
	BitRate      int // bits per second, used for FSK
}

// MaxPayloadSize defines the max payload size.
type MaxPayloadSize struct {
	M int // The maximum MACPayload size length
	N int // The maximum application payload length in the absence of the optional FOpt control field
}

// Channel defines the channel structure.
type Channel struct {
	Frequency int // frequency in Hz
	// DownlinkFrequency overrides the RX1 frequency when the network
	// moved it with a DLChannelReq; 0 means RX1 uses Frequency.
	DownlinkFrequency int
	MinDR             int
	MaxDR             int
	enabled           bool
	custom            bool // this channel was configured by the user or via CFList
}

// Enabled returns if the channel is enabled for uplink.
func (c Channel) Enabled() bool {
	return c.enabled
}

// Custom returns if the channel was added after activation (CFList or
// NewChannelReq), as opposed to being part of the default channel plan.
func (c Channel) Custom() bool {
	return c.custom
}

// Defaults defines the default values defined by a band.
type Defaults struct {
	// RX2Frequency defines the fixed frequency for the RX2 receive window.
	RX2Frequency int

	// RX2DataRate defines the fixed data-rate for the RX2 receive window.
	RX2DataRate int

	// MaxFCntGap defines the MAX_FCNT_GAP default value.
	MaxFCntGap uint32

	// ReceiveDelay1 defines the RECEIVE_DELAY1 default value.
	ReceiveDelay1 time.Duration

	// ReceiveDelay2 defines the RECEIVE_DELAY2 default value.
	ReceiveDelay2 time.Duration

	// JoinAcceptDelay1 defines the JOIN_ACCEPT_DELAY1 default value.
	JoinAcceptDelay1 time.Duration

	// JoinAcceptDelay2 defines the JOIN_ACCEPT_DELAY2 default value.
	JoinAcceptDelay2 time.Duration

	// MaxRxWindow defines the maximum time a receive window stays open.
	MaxRxWindow time.Duration
}

// RxWindowParams holds the computed settings for one receive window.
type RxWindowParams struct {
	Datarate      int
	Frequency     int
	WindowTimeout uint32 // in symbols
	WindowOffset  time.Duration
}

// NextChannelParams is the input for Band.NextChannel.
type NextChannelParams struct {
	AggregatedTimeOff    time.Duration
	LastAggregatedTxTime time.Duration
	Datarate             int
	Joined               bool
	DutyCycleEnabled     bool
	Now                  time.Duration
}

// BackOffParams is the input for Band.CalculateBackOff.
type BackOffParams struct {
	Joined               bool
	DutyCycleEnabled     bool
	LastTxIsJoinRequest  bool
	ElapsedSinceStartup  time.Duration
	TxTimeOnAir          time.Duration
	Channel              int
}

// TxConfigParams is the input for Band.TxConfig.
type TxConfigParams struct {
	Channel     int
	Datarate    int
	TxPower     int // TX power index
	MaxEIRP     float64
	AntennaGain float64
	PktLen      int
}

// ADRParams is the input for Band.NextADR.
type ADRParams struct {
	ADREnabled    bool
	AdrAckCounter uint32
	Datarate      int
	TxPower       int
}

// InitKind selects what LoadDefaults restores.
type InitKind int

// LoadDefaults kinds.
const (
	// InitDefaults initializes the full channel plan from the regional
	// defaults, dropping custom channels.
	InitDefaults InitKind = iota
	// RestoreDefaults restores channel state after a transmission cycle
	// without touching custom channels.
	RestoreDefaults
)

// ADR back-off thresholds, in uplinks without downlink.
const (
	adrAckLimit = 64
	adrAckDelay = 32
)

// Errors returned by Band implementations.
var (
	ErrNoChannelFound   = errors.New("band: no channel available")
	ErrInvalidDataRate  = errors.New("band: invalid data-rate")
	ErrInvalidChannel   = errors.New("band: invalid channel")
	ErrInvalidFrequency = errors.New("band: invalid frequency")
)

// Band defines the interface of a regional physical layer. It owns the
// channel plan, the per-sub-band duty-cycle bookkeeping and the regional
// parameter tables the MAC consults.
type Band interface {
	// Name returns the name of the band.
	Name() string

	// GetDefaults returns the regional default timing values.
	GetDefaults() Defaults

	// MinTxDataRate returns the lowest data-rate usable for uplink.
	MinTxDataRate() int

	// MaxTxDataRate returns the highest data-rate usable for uplink.
	MaxTxDataRate() int

	// DefaultTxDataRate returns the data-rate used after a reset.
	DefaultTxDataRate() int

	// DefaultTxPower returns the TX power index used after a reset.
	DefaultTxPower() int

	// DutyCycleEnforced returns if the regional regulations require
	// duty-cycle limitation.
	DutyCycleEnforced() bool

	// AckTimeout returns the randomized window during which the MAC waits
	// for a downlink acknowledgment after RX2.
	AckTimeout() time.Duration

	// GetMaxPayloadSize returns the max-payload size for the data-rate.
	GetMaxPayloadSize(dr int, repeater bool) (MaxPayloadSize, error)

	// TimeOnAir returns the air-time of a packet of pktLen bytes at the
	// given data-rate.
	TimeOnAir(dr, pktLen int) (time.Duration, error)

	// AlternateJoinDataRate returns the data-rate to use for the given
	// 1-based join trial.
	AlternateJoinDataRate(trial uint16) int

	// NextADR runs the ADR back-off machine: it decides whether the next
	// uplink must carry the ADRACKReq bit and degrades data-rate / TX
	// power after prolonged downlink silence.
	NextADR(p ADRParams) (adrAckReq bool, datarate, txPower int)

	// ComputeRxWindowParams computes symbol timeout and window offset for
	// a receive window at the given data-rate.
	ComputeRxWindowParams(dr int, minRxSymbols uint8, maxRxError time.Duration) RxWindowParams

	// ApplyDataRateOffset returns the RX1 data-rate given the uplink
	// data-rate and the RX1 data-rate offset.
	ApplyDataRateOffset(dr, offset int) int

	// DownlinkFrequency returns the RX1 frequency for the given uplink
	// channel.
	DownlinkFrequency(channel int) (int, error)

	// ApplyCFList applies the join-accept CFList to the channel plan.
	ApplyCFList(payload []byte) error

	// NextChannel selects the next uplink channel honoring the duty-cycle
	// state. It returns the channel index, the delay the caller must wait
	// before transmitting on it (zero when the channel is immediately
	// usable) and the updated aggregated time-off.
	NextChannel(p NextChannelParams) (channel int, timeOff, aggregatedTimeOff time.Duration, err error)

	// CalculateBackOff updates the per-sub-band off-time after a
	// transmission, applying the join back-off ladder when the last
	// uplink was a join-request.
	CalculateBackOff(p BackOffParams)

	// SetBandTxDone records the TX-done time of the given channel for the
	// duty-cycle bookkeeping.
	SetBandTxDone(channel int, at time.Duration)

	// TxConfig computes the physical TX power in dBm and the time on air
	// for the given transmit parameters.
	TxConfig(p TxConfigParams) (txPower int, timeOnAir time.Duration, err error)

	// VerifyTxDataRate returns if the data-rate is valid for uplink.
	VerifyTxDataRate(dr int) bool

	// VerifyRx2DataRate returns if the data-rate is valid for RX2.
	VerifyRx2DataRate(dr int) bool

	// VerifyRx1DrOffset returns if the RX1 data-rate offset is valid.
	VerifyRx1DrOffset(offset int) bool

	// VerifyNbJoinTrials returns if the number of join trials is
	// acceptable for the region.
	VerifyNbJoinTrials(trials uint8) bool

	// VerifyFrequency returns if the frequency is inside the band.
	VerifyFrequency(freq int) bool

	// VerifyTxPower returns if the TX power index is valid.
	VerifyTxPower(index int) bool

	// Channels returns a snapshot of the uplink channel plan.
	Channels() []Channel

	// ChannelMask returns the enabled flag per uplink channel.
	ChannelMask() []bool

	// SetChannelMask enables/disables uplink channels. At least one
	// channel with a frequency must stay enabled.
	SetChannelMask(mask []bool) error

	// AddChannel adds or replaces a user-configured uplink channel.
	// Note: this is not supported by every region.
	AddChannel(id, frequency, minDR, maxDR int) error

	// RemoveChannel removes a user-configured uplink channel.
	RemoveChannel(id int) error

	// HandleLinkADRReq verifies and applies a LinkADRReq, returning the
	// answer bits and the applied values.
	HandleLinkADRReq(req loramac.LinkADRReqPayload, adrEnabled bool) (ans loramac.LinkADRAnsPayload, datarate, txPower int, nbRep uint8)

	// HandleNewChannelReq verifies and applies a NewChannelReq.
	HandleNewChannelReq(req loramac.NewChannelReqPayload) loramac.NewChannelAnsPayload

	// HandleDLChannelReq verifies and applies a DLChannelReq.
	HandleDLChannelReq(req loramac.DLChannelReqPayload) loramac.DLChannelAnsPayload

	// ImplementsTXParamSetup returns if the region uses TXParamSetupReq.
	ImplementsTXParamSetup() bool

	// LoadDefaults (re)initializes the channel plan.
	LoadDefaults(kind InitKind)
}

// GetBand returns the Band implementation for the given name.
func GetBand(name Name) (Band, error) {
	switch name {
	case EU868:
		return newEU868Band(), nil
	case US915:
		return newUS915Band(), nil
	default:
		return nil, errors.Errorf("band: band %s is undefined", name)
	}
}

// subBand groups channels sharing one regulatory duty-cycle budget.
type subBand struct {
	minFrequency int
	maxFrequency int
	dutyCycle    int // 1 / dutyCycle, e.g. 100 means 1%
	lastTxDone   time.Duration
	timeOff      time.Duration
}

// offTimeAt returns how long the sub-band is still blocked at the given
// point in time.
func (s subBand) offTimeAt(now time.Duration) time.Duration {
	if wait := s.lastTxDone + s.timeOff - now; wait > 0 {
		return wait
	}
	return 0
}

// band implements the logic shared between the regional implementations.
type band struct {
	name                  Name
	dataRates             map[int]DataRate
	maxPayloadSizePerDR   map[int]MaxPayloadSize
	maxPayloadSizeRptrDR  map[int]MaxPayloadSize
	rx1DataRateTable      map[int][]int
	txPowerOffsets        []int
	uplinkChannels        []Channel
	defaultChannels       []Channel
	subBands              []subBand
	defaults              Defaults
	defaultTxDataRate     int
	defaultTxPower        int
	dutyCycleEnforced     bool
	supportsExtraChannels bool
	minFrequency          int
	maxFrequency          int
	ackTimeout            time.Duration
	ackTimeoutRnd         time.Duration
	rnd                   *rand.Rand
}

func (b *band) Name() string {
	return string(b.name)
}

func (b *band) GetDefaults() Defaults {
	return b.defaults
}

func (b *band) DefaultTxDataRate() int {
	return b.defaultTxDataRate
}

func (b *band) DefaultTxPower() int {
	return b.defaultTxPower
}

func (b *band) DutyCycleEnforced() bool {
	return b.dutyCycleEnforced
}

func (b *band) MinTxDataRate() int {
	min := -1
	for i, dr := range b.dataRates {
		if dr.uplink && (min == -1 || i < min) {
			min = i
		}
	}
	return min
}

func (b *band) MaxTxDataRate() int {
	max := 0
	for i, dr := range b.dataRates {
		if dr.uplink && i > max {
			max = i
		}
	}
	return max
}

// AckTimeout returns 2 s +/- 1 s of regional jitter, so the retransmission
// of a confirmed uplink never beats against the network in lock-step.
func (b *band) AckTimeout() time.Duration {
	jitter := time.Duration(b.rnd.Int63n(int64(2*b.ackTimeoutRnd))) - b.ackTimeoutRnd
	return b.ackTimeout + jitter
}

func (b *band) GetMaxPayloadSize(dr int, repeater bool) (MaxPayloadSize, error) {
	table := b.maxPayloadSizePerDR
	if repeater && b.maxPayloadSizeRptrDR != nil {
		table = b.maxPayloadSizeRptrDR
	}
	s, ok := table[dr]
	if !ok {
		return MaxPayloadSize{}, errors.Wrapf(ErrInvalidDataRate, "data-rate %d", dr)
	}
	return s, nil
}

func (b *band) TimeOnAir(dr, pktLen int) (time.Duration, error) {
	d, ok := b.dataRates[dr]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidDataRate, "data-rate %d", dr)
	}

	if d.Modulation == FSKModulation {
		// preamble 5, sync 3, len 1, payload, CRC 2
		bits := (5 + 3 + 1 + pktLen + 2) * 8
		return time.Duration(bits) * time.Second / time.Duration(d.BitRate), nil
	}

	lowDROpt := d.SpreadFactor >= 11 && d.Bandwidth == 125
	return calculateLoRaAirtime(pktLen, d.SpreadFactor, d.Bandwidth, 8, codingRate45, true, lowDROpt)
}

func (b *band) NextADR(p ADRParams) (bool, int, int) {
	if !p.ADREnabled {
		return false, p.Datarate, p.TxPower
	}

	datarate := p.Datarate
	txPower := p.TxPower
	adrAckReq := false

	if p.AdrAckCounter >= adrAckLimit {
		adrAckReq = true
		txPower = b.defaultTxPower
	}

	if p.AdrAckCounter >= adrAckLimit+adrAckDelay && (p.AdrAckCounter-adrAckLimit)%adrAckDelay == 0 {
		if datarate > b.MinTxDataRate() {
			datarate = b.nextLowerTxDataRate(datarate)
		} else {
			// lowest data-rate reached, re-enable the default channel plan
			adrAckReq = false
			for i := range b.uplinkChannels {
				if !b.uplinkChannels[i].custom {
					b.uplinkChannels[i].enabled = true
				}
			}
		}
	}

	return adrAckReq, datarate, txPower
}

// nextLowerTxDataRate returns the next usable uplink data-rate below dr, or
// the minimum when already there.
func (b *band) nextLowerTxDataRate(dr int) int {
	for i := dr - 1; i >= 0; i-- {
		if d, ok := b.dataRates[i]; ok && d.uplink {
			return i
		}
	}
	return b.MinTxDataRate()
}

func (b *band) ComputeRxWindowParams(dr int, minRxSymbols uint8, maxRxError time.Duration) RxWindowParams {
	d := b.dataRates[dr]

	var tSymbol float64 // in microseconds
	if d.Modulation == FSKModulation {
		tSymbol = 8 * 1e6 / float64(d.BitRate) // one byte
	} else {
		tSymbol = float64(uint32(1)<<uint(d.SpreadFactor)) * 1000 / float64(d.Bandwidth)
	}

	rxError := float64(maxRxError) / float64(time.Microsecond)
	wakeup := float64(radioWakeupTime) / float64(time.Microsecond)

	timeout := math.Ceil(((2*float64(minRxSymbols)-8)*tSymbol + 2*rxError) / tSymbol)
	if timeout < float64(minRxSymbols) {
		timeout = float64(minRxSymbols)
	}

	offset := math.Ceil(4*tSymbol - timeout*tSymbol/2 - wakeup)

	return RxWindowParams{
		Datarate:      dr,
		WindowTimeout: uint32(timeout),
		WindowOffset:  time.Duration(offset) * time.Microsecond,
	}
}

func (b *band) ApplyDataRateOffset(dr, offset int) int {
	row, ok := b.rx1DataRateTable[dr]
	if !ok {
		return dr
	}
	if offset < 0 || offset >= len(row) {
		return row[0]
	}
	return row[offset]
}

func (b *band) TxConfig(p TxConfigParams) (int, time.Duration, error) {
	if p.TxPower < 0 || p.TxPower >= len(b.txPowerOffsets) {
		return 0, 0, errors.Errorf("band: invalid TX power index %d", p.TxPower)
	}
	airtime, err := b.TimeOnAir(p.Datarate, p.PktLen)
	if err != nil {
		return 0, 0, err
	}
	phyPower := int(math.Floor(p.MaxEIRP + float64(b.txPowerOffsets[p.TxPower]) - p.AntennaGain))
	return phyPower, airtime, nil
}

func (b *band) VerifyTxDataRate(dr int) bool {
	d, ok := b.dataRates[dr]
	return ok && d.uplink
}

func (b *band) VerifyRx2DataRate(dr int) bool {
	d, ok := b.dataRates[dr]
	return ok && d.downlink
}

func (b *band) VerifyRx1DrOffset(offset int) bool {
	return offset >= 0 && offset < len(b.rx1DataRateTable[b.defaultTxDataRate])
}

func (b *band) VerifyNbJoinTrials(trials uint8) bool {
	return trials >= 1 && trials <= 48
}

func (b *band) VerifyFrequency(freq int) bool {
	return freq >= b.minFrequency && freq <= b.maxFrequency
}

func (b *band) VerifyTxPower(index int) bool {
	return index >= 0 && index < len(b.txPowerOffsets)
}

func (b *band) Channels() []Channel {
	out := make([]Channel, len(b.uplinkChannels))
	copy(out, b.uplinkChannels)
	return out
}

func (b *band) ChannelMask() []bool {
	mask := make([]bool, len(b.uplinkChannels))
	for i, c := range b.uplinkChannels {
		mask[i] = c.enabled
	}
	return mask
}

func (b *band) SetChannelMask(mask []bool) error {
	if len(mask) != len(b.uplinkChannels) {
		return errors.Errorf("band: mask must cover all %d channels", len(b.uplinkChannels))
	}
	any := false
	for i, enabled := range mask {
		if enabled && b.uplinkChannels[i].Frequency != 0 {
			any = true
		}
	}
	if !any {
		return errors.New("band: mask disables every channel")
	}
	for i, enabled := range mask {
		b.uplinkChannels[i].enabled = enabled && b.uplinkChannels[i].Frequency != 0
	}
	return nil
}

func (b *band) SetBandTxDone(channel int, at time.Duration) {
	if i := b.subBandFor(channel); i != -1 {
		b.subBands[i].lastTxDone = at
	}
}

// subBandFor returns the index of the sub-band containing the channel, -1
// when the channel is unknown or the band has no duty-cycle sub-bands.
func (b *band) subBandFor(channel int) int {
	if channel < 0 || channel >= len(b.uplinkChannels) {
		return -1
	}
	freq := b.uplinkChannels[channel].Frequency
	for i, s := range b.subBands {
		if freq >= s.minFrequency && freq <= s.maxFrequency {
			return i
		}
	}
	return -1
}

func (b *band) CalculateBackOff(p BackOffParams) {
	i := b.subBandFor(p.Channel)
	if i == -1 {
		return
	}

	dutyCycle := b.subBands[i].dutyCycle

	if !p.Joined && p.LastTxIsJoinRequest {
		// join back-off ladder since device startup
		dutyCycle = joinDutyCycle(p.ElapsedSinceStartup)
	} else if !p.DutyCycleEnabled {
		b.subBands[i].timeOff = 0
		return
	}

	b.subBands[i].timeOff = p.TxTimeOnAir*time.Duration(dutyCycle) - p.TxTimeOnAir
}

func (b *band) NextChannel(p NextChannelParams) (int, time.Duration, time.Duration, error) {
	aggregatedTimeOff := p.AggregatedTimeOff

	// aggregated off-time already served?
	aggWait := p.LastAggregatedTxTime + aggregatedTimeOff - p.Now
	if aggWait <= 0 {
		aggWait = 0
		aggregatedTimeOff = 0
	}

	var usable []int
	minWait := time.Duration(math.MaxInt64)

	for i, c := range b.uplinkChannels {
		if !c.enabled {
			continue
		}
		if p.Datarate < c.MinDR || p.Datarate > c.MaxDR {
			continue
		}
		if !p.Joined && c.custom {
			// join-requests only use the default channel plan
			continue
		}

		wait := aggWait
		if p.DutyCycleEnabled {
			if j := b.subBandFor(i); j != -1 {
				if sbWait := b.subBands[j].offTimeAt(p.Now); sbWait > wait {
					wait = sbWait
				}
			}
		}

		if wait == 0 {
			usable = append(usable, i)
		} else if wait < minWait {
			minWait = wait
		}
	}

	if len(usable) > 0 {
		return usable[b.rnd.Intn(len(usable))], 0, aggregatedTimeOff, nil
	}
	if minWait < time.Duration(math.MaxInt64) {
		// every candidate is backed off; report the earliest retry delay
		// on an arbitrary (first matching) channel
		for i, c := range b.uplinkChannels {
			if c.enabled && p.Datarate >= c.MinDR && p.Datarate <= c.MaxDR {
				return i, minWait, aggregatedTimeOff, nil
			}
		}
	}
	return 0, 0, aggregatedTimeOff, ErrNoChannelFound
}
