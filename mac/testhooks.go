package mac

import "time"

// Compliance-test hooks. These bypass the normal protocol rules and exist
// only for certification runs and the package tests.

// SetTxTimer arms the periodic compliance TX timer: when it fires, the MAC
// raises a schedule-uplink indication.
func (m *Mac) SetTxTimer(interval time.Duration) {
	m.queue.RunSync(func() { m.txNextPacketTimer.Start(interval) })
}

// StopTxTimer stops the compliance TX timer.
func (m *Mac) StopTxTimer() {
	m.queue.RunSync(func() { m.txNextPacketTimer.Stop() })
}

// TestRxWindowsOn enables or disables the RX window schedule after TX.
func (m *Mac) TestRxWindowsOn(enabled bool) {
	m.queue.RunSync(func() { m.rxWindowsEnabled = enabled })
}

// TestSetMic pins the uplink frame counter to a fixed value so every
// transmission carries the same MIC.
func (m *Mac) TestSetMic(txPacketCounter uint16) {
	m.queue.RunSync(func() {
		m.fCntUp = uint32(txPacketCounter)
		m.uplinkCounterFixed = true
	})
}

// TestSetDutyCycleOn overrides the regional duty-cycle enforcement.
func (m *Mac) TestSetDutyCycleOn(enabled bool) {
	m.queue.RunSync(func() { m.dutyCycleOn = enabled })
}

// TestSetChannel pins the next transmission to the given channel.
func (m *Mac) TestSetChannel(channel int) {
	m.queue.RunSync(func() { m.channel = channel })
}
