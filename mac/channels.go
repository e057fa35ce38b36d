package mac

import (
	"github.com/lorastack/loramac"
	"github.com/lorastack/loramac/band"
)

// ChannelAdd adds or replaces a user-configured uplink channel. Refused
// while a transmission is running, unless the MAC is only configuring one.
func (m *Mac) ChannelAdd(id, frequency, minDR, maxDR int) error {
	return m.runSync(func() error {
		if m.state&stateTxRunning == stateTxRunning && m.state&stateTxConfig != stateTxConfig {
			return ErrBusy
		}
		if err := m.phy.AddChannel(id, frequency, minDR, maxDR); err != nil {
			return err
		}
		return nil
	})
}

// ChannelRemove removes a user-configured uplink channel.
func (m *Mac) ChannelRemove(id int) error {
	return m.runSync(func() error {
		if m.state&stateTxRunning == stateTxRunning && m.state&stateTxConfig != stateTxConfig {
			return ErrBusy
		}
		if err := m.phy.RemoveChannel(id); err != nil {
			return ErrParameterInvalid
		}
		m.radio.Sleep()
		return nil
	})
}

// MulticastChannelLink registers a multicast session. The session list is
// owned by the MAC and ordered by link time; linking is refused while a
// transmission is running.
func (m *Mac) MulticastChannelLink(channel *MulticastChannel) error {
	if channel == nil {
		return ErrParameterInvalid
	}
	return m.runSync(func() error {
		if m.state&stateTxRunning == stateTxRunning {
			return ErrBusy
		}
		for _, mc := range m.multicast {
			if mc.Address == channel.Address {
				return ErrParameterInvalid
			}
		}
		channel.DownLinkCounter = 0
		m.multicast = append(m.multicast, channel)
		return nil
	})
}

// MulticastChannelUnlink removes a multicast session by address.
func (m *Mac) MulticastChannelUnlink(address loramac.DevAddr) error {
	return m.runSync(func() error {
		if m.state&stateTxRunning == stateTxRunning {
			return ErrBusy
		}
		for i, mc := range m.multicast {
			if mc.Address == address {
				m.multicast = append(m.multicast[:i], m.multicast[i+1:]...)
				return nil
			}
		}
		return ErrParameterInvalid
	})
}

// QueryTxPossible computes how many application payload bytes the next
// uplink can carry at the current data-rate. When the buffered MAC
// commands do not even fit by themselves, they are dropped so the next
// uplink stays possible.
func (m *Mac) QueryTxPossible(size uint8) (TxInfo, error) {
	var info TxInfo
	err := m.runSync(func() error {
		fOptLen := m.commands.length() + m.commands.repeatLength()

		// informative ADR evaluation only: nothing is applied
		_, datarate, _ := m.phy.NextADR(band.ADRParams{
			ADREnabled:    m.params.ADREnabled,
			AdrAckCounter: m.adrAckCounter,
			Datarate:      m.params.ChannelsDatarate,
			TxPower:       m.params.ChannelsTxPower,
		})

		s, err := m.phy.GetMaxPayloadSize(datarate, m.repeaterSupport)
		if err != nil {
			return ErrParameterInvalid
		}
		info.CurrentPayloadSize = uint8(s.N)

		if int(info.CurrentPayloadSize) >= fOptLen {
			info.MaxPossiblePayload = info.CurrentPayloadSize - uint8(fOptLen)
		} else {
			info.MaxPossiblePayload = info.CurrentPayloadSize
			// the commands do not fit: drop them to preserve the uplink
			fOptLen = 0
			m.commands.clearCommandBuffer()
			m.commands.clearRepeatBuffer()
		}

		if !m.validatePayloadLength(int(size), datarate, fOptLen) {
			return ErrLengthError
		}
		return nil
	})
	return info, err
}
