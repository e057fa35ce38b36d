package mac

import "github.com/lorastack/loramac/band"

// onMacStateCheckTimerEvent is the convergence point of the state machine.
// It settles the outcome of the current transmit cycle, drives the join
// and confirmed-uplink retry ladders and, once the MAC is idle again,
// emits the pending confirms and indications in order.
func (m *Mac) onMacStateCheckTimerEvent() {
	txTimeout := false

	m.macStateCheckTimer.Stop()

	if m.flags.macDone {
		if m.state&stateRxAbort == stateRxAbort {
			m.state &^= stateRxAbort
			m.state &^= stateTxRunning
		}

		if m.flags.mlmeReq || m.flags.mcpsReq {
			if m.mcpsConfirm.Status == StatusTxTimeout || m.mlmeConfirm.Status == StatusTxTimeout {
				// stop the transmit cycle due to a radio TX timeout
				m.state &^= stateTxRunning
				m.commands.clearCommandBuffer()
				m.mcpsConfirm.NbRetries = m.ackTimeoutRetriesCounter
				m.mcpsConfirm.AckReceived = false
				m.mcpsConfirm.TxTimeOnAir = 0
				txTimeout = true
			}
		}

		if !m.nodeAckRequested && !txTimeout {
			if m.flags.mlmeReq || m.flags.mcpsReq {
				if m.flags.mlmeReq && m.mlmeConfirm.Type == MlmeJoin {
					// join procedure
					m.mlmeConfirm.NbRetries = m.joinRequestTrials

					if m.mlmeConfirm.Status == StatusOK {
						// node joined successfully
						m.fCntUp = 0
						m.channelsNbRepCounter = 0
						m.state &^= stateTxRunning
					} else if m.joinRequestTrials >= m.maxJoinRequestTrials {
						m.state &^= stateTxRunning
					} else {
						m.flags.macDone = false
						// send the join-request again
						m.onTxDelayedTimerEvent()
					}
				} else {
					// procedure for all other frames
					if m.channelsNbRepCounter >= m.params.ChannelsNbRep || m.flags.mcpsInd {
						if !m.flags.mcpsInd {
							// maximum repetitions reached without any
							// downlink
							m.commands.clearCommandBuffer()
							m.adrAckCounter++
						}

						m.channelsNbRepCounter = 0

						if !m.uplinkCounterFixed {
							m.fCntUp++
						}

						m.state &^= stateTxRunning
					} else {
						m.flags.macDone = false
						// send the same frame again
						m.onTxDelayedTimerEvent()
					}
				}
			}
		}

		if m.flags.mcpsInd {
			// a frame was received
			if m.mcpsConfirm.AckReceived || m.ackTimeoutRetriesCounter > m.ackTimeoutRetries {
				m.ackTimeoutRetry = false
				m.nodeAckRequested = false
				if !m.uplinkCounterFixed {
					m.fCntUp++
				}
				m.mcpsConfirm.NbRetries = m.ackTimeoutRetriesCounter

				m.state &^= stateTxRunning
			}
		}

		if m.ackTimeoutRetry && m.state&stateTxDelayed == 0 {
			// retransmission procedure for confirmed uplinks
			m.ackTimeoutRetry = false
			if m.ackTimeoutRetriesCounter < m.ackTimeoutRetries && m.ackTimeoutRetriesCounter <= maxAckRetries {
				m.ackTimeoutRetriesCounter++

				if m.ackTimeoutRetriesCounter%2 == 0 {
					// degrade the data-rate on every second attempt
					m.params.ChannelsDatarate = m.nextLowerDataRate(m.params.ChannelsDatarate)
				}

				if err := m.scheduleTx(); err == nil {
					m.flags.macDone = false
				} else {
					// the data-rate is not applicable for the payload size
					m.mcpsConfirm.Status = StatusTxDRPayloadSizeError

					m.commands.clearCommandBuffer()
					m.state &^= stateTxRunning
					m.nodeAckRequested = false
					m.mcpsConfirm.AckReceived = false
					m.mcpsConfirm.NbRetries = m.ackTimeoutRetriesCounter
					m.mcpsConfirm.Datarate = m.params.ChannelsDatarate
					if !m.uplinkCounterFixed {
						m.fCntUp++
					}
				}
			} else {
				// retry budget exhausted, settle silently
				m.phy.LoadDefaults(band.RestoreDefaults)

				m.state &^= stateTxRunning

				m.commands.clearCommandBuffer()
				m.nodeAckRequested = false
				m.mcpsConfirm.Status = StatusOK
				m.mcpsConfirm.AckReceived = false
				m.mcpsConfirm.NbRetries = m.ackTimeoutRetriesCounter
				if !m.uplinkCounterFixed {
					m.fCntUp++
				}
			}
		}
	}

	// handle reception for Class C
	if m.state&stateRx == stateRx {
		m.state &^= stateRx
	}

	if m.state == stateIdle {
		if m.flags.mcpsReq {
			m.flags.mcpsReq = false
			if m.primitives.McpsConfirm != nil {
				confirm := m.mcpsConfirm
				m.primitives.McpsConfirm(&confirm)
			}
		}

		if m.flags.mlmeReq {
			m.flags.mlmeReq = false
			if m.primitives.MlmeConfirm != nil {
				confirm := m.mlmeConfirm
				m.primitives.MlmeConfirm(&confirm)
			}
		}

		// nudge the application when sticky answers are still pending
		if m.commands.isStickyPending() {
			m.setMlmeScheduleUplinkIndication()
		}

		m.flags.macDone = false
	} else {
		// operation not finished, restart the watchdog
		m.macStateCheckTimer.Start(macStateCheckTimeout)
	}

	m.emitPendingIndications()
}

// emitPendingIndications delivers staged MCPS/MLME indications, reopening
// the Class-C window first.
func (m *Mac) emitPendingIndications() {
	if m.flags.mcpsInd {
		m.flags.mcpsInd = false
		if m.deviceClass == ClassC {
			// activate the RX2 window for Class C
			m.openContinuousRx2Window()
		}
		if !m.flags.mcpsIndSkip && m.primitives.McpsIndication != nil {
			indication := m.mcpsIndication
			m.primitives.McpsIndication(&indication)
		}
		m.flags.mcpsIndSkip = false
	}

	if m.flags.mlmeInd {
		m.flags.mlmeInd = false
		if m.primitives.MlmeIndication != nil {
			indication := m.mlmeIndication
			m.primitives.MlmeIndication(&indication)
		}
	}
}

// nextLowerDataRate steps the transmit data-rate one usable step down.
func (m *Mac) nextLowerDataRate(dr int) int {
	for i := dr - 1; i >= m.phy.MinTxDataRate(); i-- {
		if m.phy.VerifyTxDataRate(i) {
			return i
		}
	}
	return m.phy.MinTxDataRate()
}
