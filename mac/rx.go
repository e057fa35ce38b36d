package mac

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lorastack/loramac"
)

// onRadioTxDone records the end of a transmission, opens the RX window
// schedule and updates the duty-cycle bookkeeping.
func (m *Mac) onRadioTxDone() {
	curTime := m.clock.Now()

	if m.deviceClass != ClassC {
		m.radio.Sleep()
	} else {
		m.openContinuousRx2Window()
	}

	if m.rxWindowsEnabled {
		m.rxWindowTimer1.Start(m.rxWindow1Delay)
		if m.deviceClass != ClassC {
			m.rxWindowTimer2.Start(m.rxWindow2Delay)
		}
		if m.deviceClass == ClassC || m.nodeAckRequested {
			m.ackTimeoutTimer.Start(m.rxWindow2Delay + m.phy.AckTimeout())
		}
	} else {
		m.mcpsConfirm.Status = StatusOK
		m.mlmeConfirm.Status = StatusRx2Timeout
		if !m.flags.mcpsReq && !m.flags.mlmeReq && !m.flags.mcpsInd && !m.flags.mlmeInd {
			m.flags.mcpsReq = true
		}
		m.flags.macDone = true
	}

	// remember if the last uplink was a join-request for the back-off
	m.lastTxIsJoinRequest = m.flags.mlmeReq && m.mlmeConfirm.Type == MlmeJoin

	// store the last TX channel and update the duty-cycle state
	m.lastTxChannel = m.channel
	m.phy.SetBandTxDone(m.channel, curTime)
	m.aggregatedLastTxDoneTime = curTime

	if !m.nodeAckRequested {
		m.mcpsConfirm.Status = StatusOK
		m.channelsNbRepCounter++
	}
}

// prepareRxDoneAbort aborts the downlink processing while keeping the
// retry ladder intact.
func (m *Mac) prepareRxDoneAbort() {
	m.state |= stateRxAbort

	if m.nodeAckRequested {
		m.onAckTimeoutTimerEvent()
	}

	m.flags.mcpsInd = true
	m.flags.macDone = true

	// continue the state machine as soon as possible
	m.macStateCheckTimer.Start(time.Millisecond)
}

// onRadioRxDone parses and verifies a received frame, updates the session
// counters and stages the indications.
func (m *Mac) onRadioRxDone(payload []byte, rssi int16, snr int8) {
	m.mcpsConfirm.AckReceived = false
	m.mcpsIndication = McpsIndication{
		Status: StatusOK,
		Rssi:   rssi,
		Snr:    snr,
		RxSlot: m.rxSlot,
		Type:   McpsUnconfirmed,
		// the RX data-rate was recorded when the window opened
		RxDatarate: m.mcpsIndication.RxDatarate,
	}

	if m.deviceClass != ClassC {
		m.radio.Sleep()
	}
	m.rxWindowTimer2.Stop()

	if len(payload) == 0 {
		m.mcpsIndication.Status = StatusError
		m.prepareRxDoneAbort()
		return
	}

	var mhdr loramac.MHDR
	if err := mhdr.UnmarshalBinary(payload[0:1]); err != nil {
		m.mcpsIndication.Status = StatusError
		m.prepareRxDoneAbort()
		return
	}

	switch mhdr.MType {
	case loramac.JoinAccept:
		m.processJoinAccept(payload)

	case loramac.ConfirmedDataDown, loramac.UnconfirmedDataDown:
		m.processDataDown(mhdr, payload, snr)
		// processDataDown arms the state-check timer through
		// prepareRxDoneAbort on every error path; the success path
		// falls through to the common completion below
		if m.state&stateRxAbort != 0 {
			return
		}

	case loramac.Proprietary:
		body := make([]byte, len(payload)-1)
		copy(body, payload[1:])
		m.mcpsIndication.Type = McpsProprietary
		m.mcpsIndication.Status = StatusOK
		m.mcpsIndication.Data = body
		m.flags.mcpsInd = true

	default:
		m.mcpsIndication.Status = StatusError
		m.prepareRxDoneAbort()
		return
	}

	m.flags.macDone = true
	m.macStateCheckTimer.Start(time.Millisecond)
}

// processJoinAccept handles a join-accept downlink: decrypt, verify,
// derive the session keys and activate the session.
func (m *Mac) processJoinAccept(payload []byte) {
	if m.joined {
		m.mcpsIndication.Status = StatusError
		m.prepareRxDoneAbort()
		return
	}

	accept, micMsg, micRx, err := loramac.ParseJoinAccept(m.appKey, payload)
	if err != nil {
		m.mcpsIndication.Status = StatusCryptoFail
		return
	}

	mic, err := loramac.ComputeJoinMIC(m.appKey, micMsg)
	if err != nil {
		m.mcpsIndication.Status = StatusCryptoFail
		return
	}

	if mic != micRx {
		m.mlmeConfirm.Status = StatusJoinFail
		return
	}

	nwkSKey, appSKey, err := loramac.DeriveSessionKeys(m.appKey, accept.AppNonce, accept.NetID, m.devNonce)
	if err != nil {
		m.mcpsIndication.Status = StatusCryptoFail
		return
	}
	m.nwkSKey = nwkSKey
	m.appSKey = appSKey

	m.netID = accept.NetID
	m.devAddr = accept.DevAddr

	m.params.Rx1DrOffset = accept.DLSettings.RX1DROffset
	m.params.Rx2Channel.Datarate = int(accept.DLSettings.RX2DataRate)

	delay := int(accept.RXDelay)
	if delay == 0 {
		delay = 1
	}
	m.params.ReceiveDelay1 = time.Duration(delay) * time.Second
	m.params.ReceiveDelay2 = m.params.ReceiveDelay1 + time.Second

	if err := m.phy.ApplyCFList(accept.CFList); err != nil {
		m.log.WithError(err).Warn("CFList rejected")
	}

	m.mlmeConfirm.Status = StatusOK
	m.joined = true

	m.log.WithFields(logrus.Fields{
		"dev_addr": m.devAddr,
		"net_id":   m.netID,
	}).Info("network joined")
}

// processDataDown handles a (un)confirmed data downlink.
func (m *Mac) processDataDown(mhdr loramac.MHDR, payload []byte, snr int8) {
	// enforce the regional maximum payload length
	maxSize, err := m.phy.GetMaxPayloadSize(m.mcpsIndication.RxDatarate, m.repeaterSupport)
	if err == nil && len(payload)-loramac.FRMPayloadOverhead > maxSize.N {
		m.mcpsIndication.Status = StatusError
		m.prepareRxDoneAbort()
		return
	}

	var frame loramac.DataFrame
	if err := frame.UnmarshalBinary(payload); err != nil {
		m.mcpsIndication.Status = StatusError
		m.prepareRxDoneAbort()
		return
	}

	address := frame.FHDR.DevAddr
	multicast := false
	nwkSKey := m.nwkSKey
	appSKey := m.appSKey
	downLinkCounter := m.fCntDown
	var mcChannel *MulticastChannel

	if address != m.devAddr {
		for _, mc := range m.multicast {
			if mc.Address == address {
				multicast = true
				nwkSKey = mc.NwkSKey
				appSKey = mc.AppSKey
				downLinkCounter = mc.DownLinkCounter
				mcChannel = mc
				break
			}
		}
		if !multicast {
			// we are not the destination of this frame
			m.mcpsIndication.Status = StatusAddressFail
			m.prepareRxDoneAbort()
			return
		}
	}

	micMsg := payload[:len(payload)-loramac.MICLen]

	candidate, _ := loramac.ReconstructFCnt(downLinkCounter, frame.FHDR.FCnt)
	diff := frame.FHDR.FCnt - uint16(downLinkCounter)

	isMicOK := false
	mic, err := loramac.ComputeDataMIC(nwkSKey, false, address, candidate, micMsg)
	if err == nil && mic == frame.MIC {
		isMicOK = true
		downLinkCounter = candidate
	}

	if uint32(diff) >= m.phy.GetDefaults().MaxFCntGap {
		m.mcpsIndication.Status = StatusDownlinkTooManyFramesLoss
		m.mcpsIndication.DownLinkCounter = downLinkCounter
		m.prepareRxDoneAbort()
		return
	}

	if !isMicOK {
		m.mcpsIndication.Status = StatusMICFail
		m.prepareRxDoneAbort()
		return
	}

	skipIndication := false

	m.mcpsIndication.Status = StatusOK
	m.mcpsIndication.Multicast = multicast
	m.mcpsIndication.FramePending = frame.FHDR.FCtrl.FPending
	m.mcpsIndication.DownLinkCounter = downLinkCounter

	m.mcpsConfirm.Status = StatusOK

	m.adrAckCounter = 0
	m.commands.clearRepeatBuffer()

	if multicast {
		m.mcpsIndication.Type = McpsMulticast

		if mcChannel.DownLinkCounter == downLinkCounter && mcChannel.DownLinkCounter != 0 {
			m.mcpsIndication.Status = StatusDownlinkRepeated
			m.prepareRxDoneAbort()
			return
		}
		mcChannel.DownLinkCounter = downLinkCounter
	} else {
		if mhdr.MType == loramac.ConfirmedDataDown {
			m.srvAckRequested = true
			m.mcpsIndication.Type = McpsConfirmed

			if m.fCntDown == downLinkCounter && m.fCntDown != 0 {
				// duplicated confirmed downlink: accept the MAC commands
				// of the retransmission but do not hand the same frame to
				// the application again
				skipIndication = true
			}
		} else {
			m.srvAckRequested = false
			m.mcpsIndication.Type = McpsUnconfirmed

			if m.fCntDown == downLinkCounter && m.fCntDown != 0 {
				m.mcpsIndication.Status = StatusDownlinkRepeated
				m.prepareRxDoneAbort()
				return
			}
		}
		m.fCntDown = downLinkCounter
	}

	// reset the command buffer before parsing, so retransmissions and
	// repetitions regenerate their answers
	if m.mcpsConfirm.Type == McpsConfirmed {
		if frame.FHDR.FCtrl.ACK {
			// the server acknowledged: the buffered commands arrived
			m.commands.clearCommandBuffer()
		}
	} else {
		m.commands.clearCommandBuffer()
	}

	if frame.FPort != nil {
		m.mcpsIndication.FPort = *frame.FPort

		if *frame.FPort == 0 {
			// only allow frames without FOpts
			if frame.FHDR.FCtrl.FOptsLen() == 0 {
				decrypted, err := loramac.EncryptFRMPayload(nwkSKey, false, address, downLinkCounter, frame.FRMPayload)
				if err != nil {
					m.mcpsIndication.Status = StatusCryptoFail
				} else {
					m.processMacCommands(decrypted, snr)
				}
			} else {
				skipIndication = true
			}
		} else {
			if frame.FHDR.FCtrl.FOptsLen() > 0 {
				m.processMacCommands(frame.FHDR.FOpts, snr)
			}

			decrypted, err := loramac.EncryptFRMPayload(appSKey, false, address, downLinkCounter, frame.FRMPayload)
			if err != nil {
				m.mcpsIndication.Status = StatusCryptoFail
			} else if !skipIndication {
				m.mcpsIndication.Data = decrypted
				m.mcpsIndication.RxData = true
			}
		}
	} else if frame.FHDR.FCtrl.FOptsLen() > 0 {
		m.processMacCommands(frame.FHDR.FOpts, snr)
	}

	if !skipIndication {
		if frame.FHDR.FCtrl.ACK {
			m.mcpsConfirm.AckReceived = true
			m.mcpsIndication.AckReceived = true

			// no more retransmissions needed
			m.ackTimeoutTimer.Stop()
		} else {
			m.mcpsConfirm.AckReceived = false

			if m.ackTimeoutRetriesCounter > m.ackTimeoutRetries {
				m.ackTimeoutTimer.Stop()
			}
		}
	}

	// always stage an indication; a skipped one is surfaced to the MAC
	// bookkeeping but not to the application
	m.flags.mcpsInd = true
	m.flags.mcpsIndSkip = skipIndication
	m.mcpsIndication.IndSkip = skipIndication
}

// onRadioRxError handles a reception CRC/decoding failure, slot-aware.
func (m *Mac) onRadioRxError() {
	if m.deviceClass != ClassC {
		m.radio.Sleep()
	} else {
		m.openContinuousRx2Window()
	}

	if m.rxSlot == RxSlotWin1 {
		if m.nodeAckRequested {
			m.mcpsConfirm.Status = StatusRx1Error
		}
		m.mlmeConfirm.Status = StatusRx1Error

		if m.clock.Now()-m.aggregatedLastTxDoneTime >= m.rxWindow2Delay {
			// RX2 has already been missed
			m.rxWindowTimer2.Stop()
			m.flags.macDone = true
		}
	} else {
		if m.nodeAckRequested {
			m.mcpsConfirm.Status = StatusRx2Error
		}
		m.mlmeConfirm.Status = StatusRx2Error
		m.flags.macDone = true
	}
}

// onRadioRxTimeout handles an expired receive window, slot-aware.
func (m *Mac) onRadioRxTimeout() {
	if m.deviceClass != ClassC {
		m.radio.Sleep()
	} else {
		m.openContinuousRx2Window()
	}

	if m.rxSlot == RxSlotWin1 {
		if m.nodeAckRequested {
			m.mcpsConfirm.Status = StatusRx1Timeout
		}
		m.mlmeConfirm.Status = StatusRx1Timeout

		if m.clock.Now()-m.aggregatedLastTxDoneTime >= m.rxWindow2Delay {
			m.rxWindowTimer2.Stop()
			m.flags.macDone = true
		}
	} else {
		if m.nodeAckRequested {
			m.mcpsConfirm.Status = StatusRx2Timeout
		}
		m.mlmeConfirm.Status = StatusRx2Timeout

		if m.deviceClass != ClassC {
			m.flags.macDone = true
		}
	}
}

// onRadioTxTimeout handles a radio transmit timeout.
func (m *Mac) onRadioTxTimeout() {
	if m.deviceClass != ClassC {
		m.radio.Sleep()
	} else {
		m.openContinuousRx2Window()
	}

	m.mcpsConfirm.Status = StatusTxTimeout
	m.mlmeConfirm.Status = StatusTxTimeout
	m.flags.macDone = true
}

// onRxWindow1TimerEvent opens the first receive window.
func (m *Mac) onRxWindow1TimerEvent() {
	m.rxWindowTimer1.Stop()
	m.rxSlot = RxSlotWin1

	if m.deviceClass == ClassC {
		m.radio.Standby()
	}

	ok, rxDatarate := m.radio.RxConfig(RxSettings{
		Frequency:     m.rxWindow1Config.Frequency,
		Datarate:      m.rxWindow1Config.Datarate,
		WindowTimeout: m.rxWindow1Config.WindowTimeout,
		Continuous:    false,
		RxSlot:        RxSlotWin1,
	})
	if ok {
		m.mcpsIndication.RxDatarate = rxDatarate
	}
	m.radio.SetupRxWindow(false, m.params.MaxRxWindow)
}

// onRxWindow2TimerEvent opens the second receive window; for Class C this
// is the continuous window.
func (m *Mac) onRxWindow2TimerEvent() {
	m.rxWindowTimer2.Stop()

	continuous := m.deviceClass == ClassC

	ok, rxDatarate := m.radio.RxConfig(RxSettings{
		Frequency:     m.rxWindow2Config.Frequency,
		Datarate:      m.rxWindow2Config.Datarate,
		WindowTimeout: m.rxWindow2Config.WindowTimeout,
		Continuous:    continuous,
		RxSlot:        RxSlotWin2,
	})
	if ok {
		m.mcpsIndication.RxDatarate = rxDatarate
		m.radio.SetupRxWindow(continuous, m.params.MaxRxWindow)
		m.rxSlot = RxSlotWin2
	}
}

// onAckTimeoutTimerEvent flags the retransmission of a confirmed uplink.
func (m *Mac) onAckTimeoutTimerEvent() {
	m.ackTimeoutTimer.Stop()

	if m.nodeAckRequested {
		m.ackTimeoutRetry = true
		m.state &^= stateAckReq
	}
	if m.deviceClass == ClassC {
		m.flags.macDone = true
	}
}
