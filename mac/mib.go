package mac

import (
	"time"

	"github.com/lorastack/loramac"
	"github.com/lorastack/loramac/band"
)

// The MIB surface. Every accessor is serialized through the dispatcher so
// the application may call them from any goroutine.

// DeviceClass returns the current device class.
func (m *Mac) DeviceClass() DeviceClass {
	var c DeviceClass
	m.queue.RunSync(func() { c = m.deviceClass })
	return c
}

// SetDeviceClass switches between Class A and Class C. Switching to
// Class C while joined immediately opens the continuous RX2 window.
func (m *Mac) SetDeviceClass(c DeviceClass) error {
	return m.runSync(func() error {
		switch c {
		case ClassA:
			if m.deviceClass == ClassC {
				m.radio.Sleep()
			}
			m.deviceClass = ClassA
		case ClassC:
			m.deviceClass = ClassC
			if m.joined {
				m.openContinuousRx2Window()
			}
		default:
			return ErrParameterInvalid
		}
		return nil
	})
}

// NetworkJoined returns if an OTAA session is active.
func (m *Mac) NetworkJoined() bool {
	var v bool
	m.queue.RunSync(func() { v = m.joined })
	return v
}

// SetNetworkJoined force-sets the activation state (ABP style activation
// together with SetDevAddr and the session key setters).
func (m *Mac) SetNetworkJoined(joined bool) {
	m.queue.RunSync(func() { m.joined = joined })
}

// ADR returns if adaptive data-rate control is enabled.
func (m *Mac) ADR() bool {
	var v bool
	m.queue.RunSync(func() { v = m.params.ADREnabled })
	return v
}

// SetADR enables or disables adaptive data-rate control.
func (m *Mac) SetADR(enabled bool) {
	m.queue.RunSync(func() { m.params.ADREnabled = enabled })
}

// NetID returns the network identifier received in the join-accept.
func (m *Mac) NetID() loramac.NetID {
	var v loramac.NetID
	m.queue.RunSync(func() { v = m.netID })
	return v
}

// DevAddr returns the current device address.
func (m *Mac) DevAddr() loramac.DevAddr {
	var v loramac.DevAddr
	m.queue.RunSync(func() { v = m.devAddr })
	return v
}

// SetDevAddr sets the device address (ABP).
func (m *Mac) SetDevAddr(addr loramac.DevAddr) {
	m.queue.RunSync(func() { m.devAddr = addr })
}

// NwkSKey returns the network session key.
func (m *Mac) NwkSKey() loramac.AES128Key {
	var v loramac.AES128Key
	m.queue.RunSync(func() { v = m.nwkSKey })
	return v
}

// SetNwkSKey sets the network session key (ABP).
func (m *Mac) SetNwkSKey(key loramac.AES128Key) {
	m.queue.RunSync(func() { m.nwkSKey = key })
}

// AppSKey returns the application session key.
func (m *Mac) AppSKey() loramac.AES128Key {
	var v loramac.AES128Key
	m.queue.RunSync(func() { v = m.appSKey })
	return v
}

// SetAppSKey sets the application session key (ABP).
func (m *Mac) SetAppSKey(key loramac.AES128Key) {
	m.queue.RunSync(func() { m.appSKey = key })
}

// PublicNetwork returns if the public LoRa sync word is used.
func (m *Mac) PublicNetwork() bool {
	var v bool
	m.queue.RunSync(func() { v = m.publicNetwork })
	return v
}

// SetPublicNetwork selects the public or private LoRa sync word.
func (m *Mac) SetPublicNetwork(enabled bool) {
	m.queue.RunSync(func() {
		m.publicNetwork = enabled
		m.radio.SetPublicNetwork(enabled)
	})
}

// RepeaterSupport returns if repeater payload limits apply.
func (m *Mac) RepeaterSupport() bool {
	var v bool
	m.queue.RunSync(func() { v = m.repeaterSupport })
	return v
}

// SetRepeaterSupport enables the repeater payload limits.
func (m *Mac) SetRepeaterSupport(enabled bool) {
	m.queue.RunSync(func() { m.repeaterSupport = enabled })
}

// Channels returns a snapshot of the uplink channel plan.
func (m *Mac) Channels() []band.Channel {
	var v []band.Channel
	m.queue.RunSync(func() { v = m.phy.Channels() })
	return v
}

// ChannelsMask returns the enabled flag per uplink channel.
func (m *Mac) ChannelsMask() []bool {
	var v []bool
	m.queue.RunSync(func() { v = m.phy.ChannelMask() })
	return v
}

// SetChannelsMask enables/disables uplink channels.
func (m *Mac) SetChannelsMask(mask []bool) error {
	return m.runSync(func() error {
		if err := m.phy.SetChannelMask(mask); err != nil {
			return ErrParameterInvalid
		}
		return nil
	})
}

// ChannelsDefaultMask returns the regional default channel mask.
func (m *Mac) ChannelsDefaultMask() []bool {
	var v []bool
	m.queue.RunSync(func() {
		channels := m.phy.Channels()
		v = make([]bool, len(channels))
		for i, c := range channels {
			v[i] = !c.Custom() && c.Frequency != 0
		}
	})
	return v
}

// Rx2Channel returns the RX2 window settings.
func (m *Mac) Rx2Channel() RxChannelParams {
	var v RxChannelParams
	m.queue.RunSync(func() { v = m.params.Rx2Channel })
	return v
}

// SetRx2Channel reconfigures the RX2 window.
func (m *Mac) SetRx2Channel(c RxChannelParams) error {
	return m.runSync(func() error {
		if !m.phy.VerifyRx2DataRate(c.Datarate) || !m.phy.VerifyFrequency(c.Frequency) {
			return ErrParameterInvalid
		}
		m.params.Rx2Channel = c
		return nil
	})
}

// Rx2DefaultChannel returns the regional default RX2 window settings.
func (m *Mac) Rx2DefaultChannel() RxChannelParams {
	var v RxChannelParams
	m.queue.RunSync(func() { v = m.paramsDefaults.Rx2Channel })
	return v
}

// ChannelsNbRep returns the repetition count for unconfirmed uplinks.
func (m *Mac) ChannelsNbRep() uint8 {
	var v uint8
	m.queue.RunSync(func() { v = m.params.ChannelsNbRep })
	return v
}

// SetChannelsNbRep sets the repetition count for unconfirmed uplinks,
// valid range 1..15.
func (m *Mac) SetChannelsNbRep(nbRep uint8) error {
	return m.runSync(func() error {
		if nbRep < 1 || nbRep > 15 {
			return ErrParameterInvalid
		}
		m.params.ChannelsNbRep = nbRep
		return nil
	})
}

// MaxRxWindow returns the maximum receive window duration.
func (m *Mac) MaxRxWindow() time.Duration {
	var v time.Duration
	m.queue.RunSync(func() { v = m.params.MaxRxWindow })
	return v
}

// SetMaxRxWindow sets the maximum receive window duration.
func (m *Mac) SetMaxRxWindow(d time.Duration) {
	m.queue.RunSync(func() { m.params.MaxRxWindow = d })
}

// ReceiveDelay1 returns the RX1 delay.
func (m *Mac) ReceiveDelay1() time.Duration {
	var v time.Duration
	m.queue.RunSync(func() { v = m.params.ReceiveDelay1 })
	return v
}

// SetReceiveDelay1 sets the RX1 delay.
func (m *Mac) SetReceiveDelay1(d time.Duration) {
	m.queue.RunSync(func() { m.params.ReceiveDelay1 = d })
}

// ReceiveDelay2 returns the RX2 delay.
func (m *Mac) ReceiveDelay2() time.Duration {
	var v time.Duration
	m.queue.RunSync(func() { v = m.params.ReceiveDelay2 })
	return v
}

// SetReceiveDelay2 sets the RX2 delay.
func (m *Mac) SetReceiveDelay2(d time.Duration) {
	m.queue.RunSync(func() { m.params.ReceiveDelay2 = d })
}

// JoinAcceptDelay1 returns the first join-accept window delay.
func (m *Mac) JoinAcceptDelay1() time.Duration {
	var v time.Duration
	m.queue.RunSync(func() { v = m.params.JoinAcceptDelay1 })
	return v
}

// SetJoinAcceptDelay1 sets the first join-accept window delay.
func (m *Mac) SetJoinAcceptDelay1(d time.Duration) {
	m.queue.RunSync(func() { m.params.JoinAcceptDelay1 = d })
}

// JoinAcceptDelay2 returns the second join-accept window delay.
func (m *Mac) JoinAcceptDelay2() time.Duration {
	var v time.Duration
	m.queue.RunSync(func() { v = m.params.JoinAcceptDelay2 })
	return v
}

// SetJoinAcceptDelay2 sets the second join-accept window delay.
func (m *Mac) SetJoinAcceptDelay2(d time.Duration) {
	m.queue.RunSync(func() { m.params.JoinAcceptDelay2 = d })
}

// ChannelsDatarate returns the current uplink data-rate.
func (m *Mac) ChannelsDatarate() int {
	var v int
	m.queue.RunSync(func() { v = m.params.ChannelsDatarate })
	return v
}

// SetChannelsDatarate sets the uplink data-rate.
func (m *Mac) SetChannelsDatarate(dr int) error {
	return m.runSync(func() error {
		if !m.phy.VerifyTxDataRate(dr) {
			return ErrParameterInvalid
		}
		m.params.ChannelsDatarate = dr
		return nil
	})
}

// ChannelsDefaultDatarate returns the default uplink data-rate.
func (m *Mac) ChannelsDefaultDatarate() int {
	var v int
	m.queue.RunSync(func() { v = m.paramsDefaults.ChannelsDatarate })
	return v
}

// SetChannelsDefaultDatarate sets the default uplink data-rate.
func (m *Mac) SetChannelsDefaultDatarate(dr int) error {
	return m.runSync(func() error {
		if !m.phy.VerifyTxDataRate(dr) {
			return ErrParameterInvalid
		}
		m.paramsDefaults.ChannelsDatarate = dr
		return nil
	})
}

// ChannelsTxPower returns the current TX power index.
func (m *Mac) ChannelsTxPower() int {
	var v int
	m.queue.RunSync(func() { v = m.params.ChannelsTxPower })
	return v
}

// SetChannelsTxPower sets the TX power index.
func (m *Mac) SetChannelsTxPower(index int) error {
	return m.runSync(func() error {
		if !m.phy.VerifyTxPower(index) {
			return ErrParameterInvalid
		}
		m.params.ChannelsTxPower = index
		return nil
	})
}

// ChannelsDefaultTxPower returns the default TX power index.
func (m *Mac) ChannelsDefaultTxPower() int {
	var v int
	m.queue.RunSync(func() { v = m.paramsDefaults.ChannelsTxPower })
	return v
}

// SetChannelsDefaultTxPower sets the default TX power index.
func (m *Mac) SetChannelsDefaultTxPower(index int) error {
	return m.runSync(func() error {
		if !m.phy.VerifyTxPower(index) {
			return ErrParameterInvalid
		}
		m.paramsDefaults.ChannelsTxPower = index
		return nil
	})
}

// UplinkCounter returns the uplink frame counter.
func (m *Mac) UplinkCounter() uint32 {
	var v uint32
	m.queue.RunSync(func() { v = m.fCntUp })
	return v
}

// SetUplinkCounter sets the uplink frame counter.
func (m *Mac) SetUplinkCounter(v uint32) {
	m.queue.RunSync(func() { m.fCntUp = v })
}

// DownLinkCounter returns the downlink frame counter.
func (m *Mac) DownLinkCounter() uint32 {
	var v uint32
	m.queue.RunSync(func() { v = m.fCntDown })
	return v
}

// SetDownLinkCounter sets the downlink frame counter.
func (m *Mac) SetDownLinkCounter(v uint32) {
	m.queue.RunSync(func() { m.fCntDown = v })
}

// SystemMaxRxError returns the assumed maximum system timing error.
func (m *Mac) SystemMaxRxError() time.Duration {
	var v time.Duration
	m.queue.RunSync(func() { v = m.params.SystemMaxRxError })
	return v
}

// SetSystemMaxRxError sets the assumed maximum system timing error used to
// widen the receive windows.
func (m *Mac) SetSystemMaxRxError(d time.Duration) {
	m.queue.RunSync(func() { m.params.SystemMaxRxError = d })
}

// MinRxSymbols returns the minimum receive window length in symbols.
func (m *Mac) MinRxSymbols() uint8 {
	var v uint8
	m.queue.RunSync(func() { v = m.params.MinRxSymbols })
	return v
}

// SetMinRxSymbols sets the minimum receive window length in symbols.
func (m *Mac) SetMinRxSymbols(n uint8) {
	m.queue.RunSync(func() { m.params.MinRxSymbols = n })
}

// AntennaGain returns the antenna gain in dBi.
func (m *Mac) AntennaGain() float64 {
	var v float64
	m.queue.RunSync(func() { v = m.params.AntennaGain })
	return v
}

// SetAntennaGain sets the antenna gain in dBi.
func (m *Mac) SetAntennaGain(gain float64) {
	m.queue.RunSync(func() { m.params.AntennaGain = gain })
}
