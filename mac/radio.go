package mac

import "time"

// TxSettings configures the radio for one transmission.
type TxSettings struct {
	Frequency int
	Datarate  int
	Power     int // in dBm
}

// RxSettings configures the radio for one receive window.
type RxSettings struct {
	Frequency     int
	Datarate      int
	WindowTimeout uint32 // in symbols
	Continuous    bool
	RxSlot        RxSlot
}

// Radio is the physical radio driver consumed by the MAC. Implementations
// perform modulation, SPI I/O and DIO interrupt wiring; only the
// Dispatcher consumer may call these methods.
type Radio interface {
	// Sleep puts the radio to sleep.
	Sleep()

	// Standby puts the radio into standby mode.
	Standby()

	// TxConfig configures the transmitter.
	TxConfig(p TxSettings) error

	// RxConfig configures the receiver. It returns false when the window
	// is not applicable under the current configuration, and the actual
	// RX data-rate used.
	RxConfig(p RxSettings) (ok bool, rxDatarate int)

	// SetupRxWindow starts listening, bounded by maxRxWindow unless
	// continuous.
	SetupRxWindow(continuous bool, maxRxWindow time.Duration)

	// Send hands the frame to the transmitter.
	Send(data []byte)

	// Rng returns a hardware random value, used for DevNonce generation.
	Rng() uint32

	// SetPublicNetwork selects the public/private LoRa sync word.
	SetPublicNetwork(enable bool)

	// SetTxContinuousMode puts the transmitter into continuous-wave mode
	// on the current channel for the given duration.
	SetTxContinuousMode(timeout uint16)

	// SetupTxContWave puts the transmitter into continuous-wave mode with
	// explicit frequency and power.
	SetupTxContWave(frequency int, power uint8, timeout uint16)
}

// RadioEvents is the set of callbacks the MAC registers with the radio
// driver. The driver invokes them from interrupt context; each one only
// enqueues work onto the dispatcher and returns. The radio never owns the
// MAC.
type RadioEvents struct {
	TxDone            func()
	RxDone            func(payload []byte, rssi int16, snr int8)
	RxError           func()
	RxTimeout         func()
	TxTimeout         func()
	CadDone           func(channelActivity bool)
	FhssChangeChannel func(currentChannel uint8)
}
