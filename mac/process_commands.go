package mac

import (
	"time"

	"github.com/lorastack/loramac"
)

// processMacCommands walks the downlink MAC commands and stages the
// answers for the next uplink. Parameter verification is delegated to the
// regional band; sticky answers additionally land in the repeat buffer
// through parseToRepeat before the next transmission.
func (m *Mac) processMacCommands(payload []byte, snr int8) {
	for i := 0; i < len(payload); {
		cid := loramac.CID(payload[i])
		i++

		factory, size, _ := loramac.GetMACPayloadAndSize(false, cid)
		if i+size > len(payload) {
			m.log.WithField("cid", cid).Warn("truncated MAC command")
			return
		}
		body := payload[i : i+size]
		i += size

		switch cid {
		case loramac.LinkCheckAns:
			p := factory.(*loramac.LinkCheckAnsPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			m.mlmeConfirm.Status = StatusOK
			m.mlmeConfirm.DemodMargin = p.Margin
			m.mlmeConfirm.NbGateways = p.GwCnt

		case loramac.LinkADRReq:
			p := factory.(*loramac.LinkADRReqPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			ans, datarate, txPower, nbRep := m.phy.HandleLinkADRReq(*p, m.params.ADREnabled)
			if ans.ChannelMaskACK && ans.DataRateACK && ans.PowerACK {
				m.params.ChannelsDatarate = datarate
				m.params.ChannelsTxPower = txPower
				if nbRep > 0 {
					m.params.ChannelsNbRep = nbRep
				}
			}
			m.addCommand(loramac.MACCommand{CID: loramac.LinkADRAns, Payload: &ans})

		case loramac.DutyCycleReq:
			p := factory.(*loramac.DutyCycleReqPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			m.params.MaxDCycle = p.MaxDCycle
			m.params.AggregatedDCycle = 1 << p.MaxDCycle
			m.addCommand(loramac.MACCommand{CID: loramac.DutyCycleAns})

		case loramac.RXParamSetupReq:
			p := factory.(*loramac.RXParamSetupReqPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			ans := loramac.RXParamSetupAnsPayload{
				ChannelACK:     m.phy.VerifyFrequency(int(p.Frequency)),
				RX2DataRateACK: m.phy.VerifyRx2DataRate(int(p.DLSettings.RX2DataRate)),
				RX1DROffsetACK: m.phy.VerifyRx1DrOffset(int(p.DLSettings.RX1DROffset)),
			}
			if ans.ChannelACK && ans.RX2DataRateACK && ans.RX1DROffsetACK {
				m.params.Rx2Channel = RxChannelParams{
					Frequency: int(p.Frequency),
					Datarate:  int(p.DLSettings.RX2DataRate),
				}
				m.params.Rx1DrOffset = p.DLSettings.RX1DROffset
			}
			m.addCommand(loramac.MACCommand{CID: loramac.RXParamSetupAns, Payload: &ans})

		case loramac.DevStatusReq:
			battery := uint8(255) // unknown
			if m.callbacks.GetBatteryLevel != nil {
				battery = m.callbacks.GetBatteryLevel()
			}
			margin := snr
			if margin > 31 {
				margin = 31
			} else if margin < -32 {
				margin = -32
			}
			m.addCommand(loramac.MACCommand{
				CID:     loramac.DevStatusAns,
				Payload: &loramac.DevStatusAnsPayload{Battery: battery, Margin: margin},
			})

		case loramac.NewChannelReq:
			p := factory.(*loramac.NewChannelReqPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			ans := m.phy.HandleNewChannelReq(*p)
			m.addCommand(loramac.MACCommand{CID: loramac.NewChannelAns, Payload: &ans})

		case loramac.RXTimingSetupReq:
			p := factory.(*loramac.RXTimingSetupReqPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			delay := int(p.Delay)
			if delay == 0 {
				delay = 1
			}
			m.params.ReceiveDelay1 = time.Duration(delay) * time.Second
			m.params.ReceiveDelay2 = m.params.ReceiveDelay1 + time.Second
			m.addCommand(loramac.MACCommand{CID: loramac.RXTimingSetupAns})

		case loramac.TXParamSetupReq:
			p := factory.(*loramac.TXParamSetupReqPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			if m.phy.ImplementsTXParamSetup() {
				m.params.UplinkDwellTime = p.UplinkDwellTime
				m.params.DownlinkDwellTime = p.DownlinkDwellTime
				m.params.MaxEIRP = float64(p.MaxEIRP)
				m.addCommand(loramac.MACCommand{CID: loramac.TXParamSetupAns})
			}
			// regions without dwell-time restrictions silently ignore it

		case loramac.DLChannelReq:
			p := factory.(*loramac.DLChannelReqPayload)
			if err := p.UnmarshalBinary(body); err != nil {
				continue
			}
			ans := m.phy.HandleDLChannelReq(*p)
			m.addCommand(loramac.MACCommand{CID: loramac.DLChannelAns, Payload: &ans})

		default:
			// unknown command: the remainder of the buffer cannot be
			// parsed reliably
			m.log.WithField("cid", cid).Warn("unknown MAC command")
			return
		}
	}
}

// addCommand stages an answer, logging instead of failing when the buffer
// overflows.
func (m *Mac) addCommand(cmd loramac.MACCommand) {
	if err := m.commands.add(cmd); err != nil {
		m.log.WithError(err).Warn("dropping MAC command answer")
	}
}
