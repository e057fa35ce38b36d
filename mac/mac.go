package mac

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lorastack/loramac"
	"github.com/lorastack/loramac/band"
)

// Config wires the MAC to its collaborators.
type Config struct {
	Primitives Primitives
	Callbacks  Callbacks
	Band       band.Band
	Radio      Radio
	Clock      Clock
	Queue      *Dispatcher
	Logger     logrus.FieldLogger
}

// Mac is the LoRaWAN end-device MAC layer. It exclusively owns all session
// and protocol state; collaborators receive borrowed views per call. All
// mutations happen on the dispatcher consumer.
type Mac struct {
	log        logrus.FieldLogger
	queue      *Dispatcher
	clock      Clock
	radio      Radio
	phy        band.Band
	primitives Primitives
	callbacks  Callbacks

	deviceClass DeviceClass
	state       stateFlags
	flags       macFlags

	// OTAA identity and session state
	devEUI   loramac.EUI64
	appEUI   loramac.EUI64
	appKey   loramac.AES128Key
	devAddr  loramac.DevAddr
	nwkSKey  loramac.AES128Key
	appSKey  loramac.AES128Key
	devNonce loramac.DevNonce
	netID    loramac.NetID
	joined   bool

	// frame counters
	fCntUp   uint32
	fCntDown uint32

	// counters of the retry machinery
	adrAckCounter            uint32
	channelsNbRepCounter     uint8
	ackTimeoutRetries        uint8
	ackTimeoutRetriesCounter uint8
	ackTimeoutRetry          bool
	nodeAckRequested         bool
	srvAckRequested          bool
	joinRequestTrials        uint8
	maxJoinRequestTrials     uint8

	params          Params
	paramsDefaults  Params
	publicNetwork   bool
	repeaterSupport bool
	dutyCycleOn     bool

	multicast []*MulticastChannel

	commands macCommands

	// transmit state
	buffer                   []byte
	txPayloadLen             int
	channel                  int
	lastTxChannel            int
	txTimeOnAir              time.Duration
	aggregatedLastTxDoneTime time.Duration
	aggregatedTimeOff        time.Duration
	initializationTime       time.Duration
	lastTxIsJoinRequest      bool

	// receive state
	rxWindow1Delay   time.Duration
	rxWindow2Delay   time.Duration
	rxWindow1Config  band.RxWindowParams
	rxWindow2Config  band.RxWindowParams
	rxSlot           RxSlot
	rxWindowsEnabled bool

	// test hooks
	uplinkCounterFixed bool

	mcpsConfirm    McpsConfirm
	mcpsIndication McpsIndication
	mlmeConfirm    MlmeConfirm
	mlmeIndication MlmeIndication

	macStateCheckTimer Timer
	txDelayedTimer     Timer
	rxWindowTimer1     Timer
	rxWindowTimer2     Timer
	ackTimeoutTimer    Timer
	txNextPacketTimer  Timer
}

// New initializes the MAC layer. The returned Mac is idle in Class A with
// the regional defaults loaded.
func New(cfg Config) (*Mac, error) {
	if cfg.Band == nil || cfg.Radio == nil || cfg.Clock == nil || cfg.Queue == nil {
		return nil, errors.Wrap(ErrParameterInvalid, "band, radio, clock and queue are mandatory")
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	m := &Mac{
		log:        log.WithField("module", "mac"),
		queue:      cfg.Queue,
		clock:      cfg.Clock,
		radio:      cfg.Radio,
		phy:        cfg.Band,
		primitives: cfg.Primitives,
		callbacks:  cfg.Callbacks,

		deviceClass:          ClassA,
		state:                stateIdle,
		maxJoinRequestTrials: 1,
		rxWindowsEnabled:     true,
		publicNetwork:        true,
	}

	defaults := m.phy.GetDefaults()
	m.paramsDefaults = Params{
		ChannelsDatarate: m.phy.DefaultTxDataRate(),
		ChannelsTxPower:  m.phy.DefaultTxPower(),
		Rx1DrOffset:      0,
		Rx2Channel: RxChannelParams{
			Frequency: defaults.RX2Frequency,
			Datarate:  defaults.RX2DataRate,
		},
		ReceiveDelay1:    defaults.ReceiveDelay1,
		ReceiveDelay2:    defaults.ReceiveDelay2,
		JoinAcceptDelay1: defaults.JoinAcceptDelay1,
		JoinAcceptDelay2: defaults.JoinAcceptDelay2,
		MaxRxWindow:      defaults.MaxRxWindow,
		MinRxSymbols:     6,
		SystemMaxRxError: 10 * time.Millisecond,
		ChannelsNbRep:    1,
		MaxDCycle:        0,
		AggregatedDCycle: 1,
		MaxEIRP:          16,
		AntennaGain:      2.15,
	}
	m.params = m.paramsDefaults
	m.dutyCycleOn = m.phy.DutyCycleEnforced()
	m.phy.LoadDefaults(band.InitDefaults)

	m.resetMacParameters()

	m.radio.SetPublicNetwork(m.publicNetwork)
	m.radio.Sleep()

	// every timer callback is an interrupt shim: enqueue and return
	m.macStateCheckTimer = m.clock.NewTimer(m.shim(m.onMacStateCheckTimerEvent))
	m.txDelayedTimer = m.clock.NewTimer(m.shim(m.onTxDelayedTimerEvent))
	m.rxWindowTimer1 = m.clock.NewTimer(m.shim(m.onRxWindow1TimerEvent))
	m.rxWindowTimer2 = m.clock.NewTimer(m.shim(m.onRxWindow2TimerEvent))
	m.ackTimeoutTimer = m.clock.NewTimer(m.shim(m.onAckTimeoutTimerEvent))
	m.txNextPacketTimer = m.clock.NewTimer(m.shim(m.onTxNextPacketTimerEvent))

	m.initializationTime = m.clock.Now()

	return m, nil
}

// shim wraps fn so the raw callback only enqueues.
func (m *Mac) shim(fn func()) func() {
	return func() { m.queue.Post(fn) }
}

// RadioEvents returns the callback set to register with the radio driver.
// The callbacks only enqueue; none of the MAC handlers ever runs in
// interrupt context.
func (m *Mac) RadioEvents() RadioEvents {
	return RadioEvents{
		TxDone: m.shim(m.onRadioTxDone),
		RxDone: func(payload []byte, rssi int16, snr int8) {
			buf := make([]byte, len(payload))
			copy(buf, payload)
			m.queue.Post(func() { m.onRadioRxDone(buf, rssi, snr) })
		},
		RxError:   m.shim(m.onRadioRxError),
		RxTimeout: m.shim(m.onRadioRxTimeout),
		TxTimeout: m.shim(m.onRadioTxTimeout),
		// CAD and FHSS are not used in Class A/C operation
		CadDone:           func(bool) {},
		FhssChangeChannel: func(uint8) {},
	}
}

// runSync executes fn serialized on the dispatcher consumer and returns
// its error.
func (m *Mac) runSync(fn func() error) error {
	err := ErrBusy
	m.queue.RunSync(func() { err = fn() })
	return err
}

// resetMacParameters restores the session to its pre-join state.
func (m *Mac) resetMacParameters() {
	m.joined = false

	m.fCntUp = 0
	m.fCntDown = 0
	m.adrAckCounter = 0
	m.channelsNbRepCounter = 0

	m.ackTimeoutRetries = 1
	m.ackTimeoutRetriesCounter = 1
	m.ackTimeoutRetry = false

	m.params.MaxDCycle = 0
	m.params.AggregatedDCycle = 1

	m.commands.clearCommandBuffer()
	m.commands.clearRepeatBuffer()
	m.commands.clearMacCommandsInNextTx()

	m.rxWindowsEnabled = true

	m.params.ChannelsTxPower = m.paramsDefaults.ChannelsTxPower
	m.params.ChannelsDatarate = m.paramsDefaults.ChannelsDatarate
	m.params.Rx1DrOffset = m.paramsDefaults.Rx1DrOffset
	m.params.Rx2Channel = m.paramsDefaults.Rx2Channel
	m.params.UplinkDwellTime = m.paramsDefaults.UplinkDwellTime
	m.params.DownlinkDwellTime = m.paramsDefaults.DownlinkDwellTime
	m.params.MaxEIRP = m.paramsDefaults.MaxEIRP
	m.params.AntennaGain = m.paramsDefaults.AntennaGain

	m.nodeAckRequested = false
	m.srvAckRequested = false

	for _, mc := range m.multicast {
		mc.DownLinkCounter = 0
	}

	m.channel = 0
	m.lastTxChannel = 0
}

// MlmeRequest admits a management request. Only accepted while the MAC is
// idle; a join additionally requires that no delayed transmission is
// pending.
func (m *Mac) MlmeRequest(req *MlmeRequest) error {
	if req == nil {
		return ErrParameterInvalid
	}
	return m.runSync(func() error { return m.mlmeRequest(req) })
}

func (m *Mac) mlmeRequest(req *MlmeRequest) error {
	if m.state != stateIdle {
		return ErrBusy
	}

	m.mlmeConfirm = MlmeConfirm{Status: StatusError}

	var err error

	switch req.Type {
	case MlmeJoin:
		if m.state&stateTxDelayed == stateTxDelayed {
			return ErrBusy
		}
		if req.Join.NbTrials == 0 {
			return ErrParameterInvalid
		}

		nbTrials := req.Join.NbTrials
		if !m.phy.VerifyNbJoinTrials(nbTrials) {
			// value not supported, fall back to the regional default
			nbTrials = 48
		}

		m.flags.mlmeReq = true
		m.mlmeConfirm.Type = req.Type

		m.devEUI = req.Join.DevEUI
		m.appEUI = req.Join.AppEUI
		m.appKey = req.Join.AppKey
		m.maxJoinRequestTrials = nbTrials
		m.joinRequestTrials = 0

		m.resetMacParameters()

		m.params.ChannelsDatarate = m.phy.AlternateJoinDataRate(uint16(m.joinRequestTrials) + 1)

		err = m.sendJoinRequest()

	case MlmeLinkCheck:
		m.flags.mlmeReq = true
		// the command is piggy-backed on the next uplink
		m.mlmeConfirm.Type = req.Type
		err = m.commands.add(loramac.MACCommand{CID: loramac.LinkCheckReq})

	case MlmeTxCW:
		m.flags.mlmeReq = true
		m.mlmeConfirm.Type = req.Type
		err = m.setTxContinuousWave(req.TxCW.Timeout)

	case MlmeTxCW1:
		m.flags.mlmeReq = true
		m.mlmeConfirm.Type = req.Type
		err = m.setTxContinuousWave1(req.TxCW.Timeout, req.TxCW.Frequency, req.TxCW.Power)

	default:
		return ErrServiceUnknown
	}

	if err != nil {
		m.nodeAckRequested = false
		m.flags.mlmeReq = false
	}
	return err
}

// McpsRequest admits an application data request. Only accepted while the
// MAC is idle.
func (m *Mac) McpsRequest(req *McpsRequest) error {
	if req == nil {
		return ErrParameterInvalid
	}
	return m.runSync(func() error { return m.mcpsRequest(req) })
}

func (m *Mac) mcpsRequest(req *McpsRequest) error {
	if m.state != stateIdle {
		return ErrBusy
	}

	m.mcpsConfirm = McpsConfirm{Status: StatusError}

	// the retries counter restarts with every new request
	m.ackTimeoutRetriesCounter = 1

	var mhdr loramac.MHDR

	switch req.Type {
	case McpsUnconfirmed:
		m.ackTimeoutRetries = 1
		mhdr.MType = loramac.UnconfirmedDataUp
	case McpsConfirmed:
		m.ackTimeoutRetries = req.NbTrials
		mhdr.MType = loramac.ConfirmedDataUp
	case McpsProprietary:
		m.ackTimeoutRetries = 1
		mhdr.MType = loramac.Proprietary
	default:
		return ErrServiceUnknown
	}

	// some regions restrict the lowest usable data-rate
	datarate := req.Datarate
	if min := m.phy.MinTxDataRate(); datarate < min {
		datarate = min
	}

	if !m.params.ADREnabled {
		if !m.phy.VerifyTxDataRate(datarate) {
			return ErrParameterInvalid
		}
		m.params.ChannelsDatarate = datarate
	}

	if err := m.send(mhdr, req.FPort, req.Data); err != nil {
		m.nodeAckRequested = false
		return err
	}

	m.mcpsConfirm.Type = req.Type
	m.flags.mcpsReq = true
	return nil
}

// send prepares the frame and schedules its transmission. This is not the
// actual transmission yet; duty-cycle restrictions may defer it.
func (m *Mac) send(mhdr loramac.MHDR, fPort uint8, data []byte) error {
	fCtrl := loramac.FCtrl{ADR: m.params.ADREnabled}

	if err := m.prepareFrame(mhdr, fCtrl, fPort, data); err != nil {
		return err
	}

	m.mcpsConfirm.NbRetries = 0
	m.mcpsConfirm.AckReceived = false
	m.mcpsConfirm.UpLinkCounter = m.fCntUp

	return m.scheduleTx()
}

// sendJoinRequest builds a join-request with a fresh DevNonce and
// schedules it. Each retransmission needs a new nonce: the network server
// tracks past DevNonce values to prevent replay attacks.
func (m *Mac) sendJoinRequest() error {
	m.devNonce = loramac.DevNonce(m.radio.Rng())

	frame, err := loramac.BuildJoinRequest(m.appKey, loramac.JoinRequestPayload{
		AppEUI:   m.appEUI,
		DevEUI:   m.devEUI,
		DevNonce: m.devNonce,
	})
	if err != nil {
		return errors.Wrap(ErrCryptoFail, err.Error())
	}

	m.buffer = frame
	m.txPayloadLen = 0
	m.nodeAckRequested = false

	return m.scheduleTx()
}

// prepareFrame assembles the uplink into m.buffer.
func (m *Mac) prepareFrame(mhdr loramac.MHDR, fCtrl loramac.FCtrl, fPort uint8, data []byte) error {
	m.nodeAckRequested = false
	m.txPayloadLen = len(data)

	switch mhdr.MType {
	case loramac.ConfirmedDataUp:
		m.nodeAckRequested = true
		fallthrough

	case loramac.UnconfirmedDataUp:
		if !m.joined {
			return ErrNoNetworkJoined
		}

		adrAckReq, datarate, txPower := m.phy.NextADR(band.ADRParams{
			ADREnabled:    fCtrl.ADR,
			AdrAckCounter: m.adrAckCounter,
			Datarate:      m.params.ChannelsDatarate,
			TxPower:       m.params.ChannelsTxPower,
		})
		fCtrl.ADRACKReq = adrAckReq
		m.params.ChannelsDatarate = datarate
		m.params.ChannelsTxPower = txPower

		if m.srvAckRequested {
			m.srvAckRequested = false
			fCtrl.ACK = true
		}

		// sticky answers ride along until a downlink confirms them
		m.commands.copyRepeatToBuffer()

		payload := data
		framePort := fPort
		var fOpts []byte

		cmdLen := m.commands.length()
		if len(payload) > 0 {
			if m.commands.isInNextTx() {
				if cmdLen <= maxFOptsLength {
					fOpts = append([]byte(nil), m.commands.buffer...)
				} else {
					// commands displace the application payload onto
					// FPort 0; the data is deferred to a later uplink
					m.txPayloadLen = cmdLen
					payload = append([]byte(nil), m.commands.buffer...)
					framePort = 0
				}
			}
		} else if cmdLen > 0 && m.commands.isInNextTx() {
			m.txPayloadLen = cmdLen
			payload = append([]byte(nil), m.commands.buffer...)
			framePort = 0
		}

		m.commands.parseToRepeat()

		frame := loramac.DataFrame{
			MHDR: mhdr,
			FHDR: loramac.FHDR{
				DevAddr: m.devAddr,
				FCtrl:   fCtrl,
				FCnt:    uint16(m.fCntUp),
				FOpts:   fOpts,
			},
		}

		if len(payload) > 0 {
			key := m.appSKey
			if framePort == 0 {
				// the commands are being sent in the frame body
				m.commands.clearCommandBuffer()
				key = m.nwkSKey
			}
			encrypted, err := loramac.EncryptFRMPayload(key, true, m.devAddr, m.fCntUp, payload)
			if err != nil {
				return errors.Wrap(ErrCryptoFail, err.Error())
			}
			port := framePort
			frame.FPort = &port
			frame.FRMPayload = encrypted
		}

		if err := frame.SetUplinkMIC(m.nwkSKey, m.fCntUp); err != nil {
			return errors.Wrap(ErrCryptoFail, err.Error())
		}

		buf, err := frame.MarshalBinary()
		if err != nil {
			return errors.Wrap(ErrParameterInvalid, err.Error())
		}
		m.buffer = buf

	case loramac.Proprietary:
		mhdrB, err := mhdr.MarshalBinary()
		if err != nil {
			return err
		}
		m.buffer = append(mhdrB, data...)

	default:
		return ErrServiceUnknown
	}

	return nil
}

// scheduleTx picks the next channel and either transmits immediately or
// arms the delayed-TX timer for the duty-cycle off-time.
func (m *Mac) scheduleTx() error {
	if m.params.MaxDCycle == 255 {
		return ErrDeviceOff
	}
	if m.params.MaxDCycle == 0 {
		m.aggregatedTimeOff = 0
	}

	m.calculateBackOff(m.lastTxChannel)

	channel, dutyCycleTimeOff, aggregatedTimeOff, err := m.phy.NextChannel(band.NextChannelParams{
		AggregatedTimeOff:    m.aggregatedTimeOff,
		LastAggregatedTxTime: m.aggregatedLastTxDoneTime,
		Datarate:             m.params.ChannelsDatarate,
		Joined:               m.joined,
		DutyCycleEnabled:     m.dutyCycleOn,
		Now:                  m.clock.Now(),
	})
	if err != nil {
		// no channel supports the current data-rate; retry on the default
		m.params.ChannelsDatarate = m.paramsDefaults.ChannelsDatarate
		channel, dutyCycleTimeOff, aggregatedTimeOff, err = m.phy.NextChannel(band.NextChannelParams{
			AggregatedTimeOff:    m.aggregatedTimeOff,
			LastAggregatedTxTime: m.aggregatedLastTxDoneTime,
			Datarate:             m.params.ChannelsDatarate,
			Joined:               m.joined,
			DutyCycleEnabled:     m.dutyCycleOn,
			Now:                  m.clock.Now(),
		})
		if err != nil {
			return errors.Wrap(ErrParameterInvalid, err.Error())
		}
	}
	m.channel = channel
	m.aggregatedTimeOff = aggregatedTimeOff

	m.log.WithFields(logrus.Fields{
		"channel":  channel,
		"datarate": m.params.ChannelsDatarate,
	}).Debug("next channel selected")

	// compute both receive windows up front
	rx1DR := m.phy.ApplyDataRateOffset(m.params.ChannelsDatarate, int(m.params.Rx1DrOffset))
	m.rxWindow1Config = m.phy.ComputeRxWindowParams(rx1DR, m.params.MinRxSymbols, m.params.SystemMaxRxError)
	if freq, err := m.phy.DownlinkFrequency(channel); err == nil {
		m.rxWindow1Config.Frequency = freq
	}
	m.rxWindow2Config = m.phy.ComputeRxWindowParams(m.params.Rx2Channel.Datarate, m.params.MinRxSymbols, m.params.SystemMaxRxError)
	m.rxWindow2Config.Frequency = m.params.Rx2Channel.Frequency

	if !m.joined {
		m.rxWindow1Delay = m.params.JoinAcceptDelay1 + m.rxWindow1Config.WindowOffset
		m.rxWindow2Delay = m.params.JoinAcceptDelay2 + m.rxWindow2Config.WindowOffset
	} else {
		if !m.validatePayloadLength(m.txPayloadLen, m.params.ChannelsDatarate, m.commands.length()) {
			return ErrLengthError
		}
		m.rxWindow1Delay = m.params.ReceiveDelay1 + m.rxWindow1Config.WindowOffset
		m.rxWindow2Delay = m.params.ReceiveDelay2 + m.rxWindow2Config.WindowOffset
	}

	if dutyCycleTimeOff == 0 {
		// try to send now
		return m.sendFrameOnChannel(m.channel)
	}

	// send later
	m.state |= stateTxDelayed
	m.log.WithField("delay", dutyCycleTimeOff).Debug("transmission delayed by duty-cycle")
	m.txDelayedTimer.Start(dutyCycleTimeOff)
	return nil
}

// calculateBackOff updates the regional and aggregated off-times after the
// last transmission.
func (m *Mac) calculateBackOff(channel int) {
	m.phy.CalculateBackOff(band.BackOffParams{
		Joined:              m.joined,
		DutyCycleEnabled:    m.dutyCycleOn,
		Channel:             channel,
		ElapsedSinceStartup: m.clock.Now() - m.initializationTime,
		TxTimeOnAir:         m.txTimeOnAir,
		LastTxIsJoinRequest: m.lastTxIsJoinRequest,
	})

	// update the aggregated time-off
	m.aggregatedTimeOff += m.txTimeOnAir*time.Duration(m.params.AggregatedDCycle) - m.txTimeOnAir
}

// validatePayloadLength checks the application payload plus piggy-backed
// MAC commands against the regional maximum.
func (m *Mac) validatePayloadLength(lenN int, datarate, fOptsLen int) bool {
	s, err := m.phy.GetMaxPayloadSize(datarate, m.repeaterSupport)
	if err != nil {
		return false
	}
	payloadSize := lenN + fOptsLen
	return payloadSize <= s.N && payloadSize <= loramac.MaxPHYPayloadLen
}

// sendFrameOnChannel configures the radio and hands over the frame.
func (m *Mac) sendFrameOnChannel(channel int) error {
	freq := 0
	channels := m.phy.Channels()
	if channel >= 0 && channel < len(channels) {
		freq = channels[channel].Frequency
	}

	txPower, timeOnAir, err := m.phy.TxConfig(band.TxConfigParams{
		Channel:     channel,
		Datarate:    m.params.ChannelsDatarate,
		TxPower:     m.params.ChannelsTxPower,
		MaxEIRP:     m.params.MaxEIRP,
		AntennaGain: m.params.AntennaGain,
		PktLen:      len(m.buffer),
	})
	if err != nil {
		return errors.Wrap(ErrParameterInvalid, err.Error())
	}
	m.txTimeOnAir = timeOnAir

	if err := m.radio.TxConfig(TxSettings{
		Frequency: freq,
		Datarate:  m.params.ChannelsDatarate,
		Power:     txPower,
	}); err != nil {
		return errors.Wrap(ErrParameterInvalid, err.Error())
	}

	m.mlmeConfirm.Status = StatusError
	m.mcpsConfirm.Status = StatusError
	m.mcpsConfirm.Datarate = m.params.ChannelsDatarate
	m.mcpsConfirm.TxPower = txPower
	m.mcpsConfirm.TxTimeOnAir = timeOnAir
	m.mlmeConfirm.TxTimeOnAir = timeOnAir

	// watchdog driving the state machine to convergence
	m.macStateCheckTimer.Start(macStateCheckTimeout)

	if !m.joined {
		m.joinRequestTrials++
	}

	m.radio.Send(m.buffer)
	m.state |= stateTxRunning

	return nil
}

func (m *Mac) setTxContinuousWave(timeout uint16) error {
	m.radio.SetTxContinuousMode(timeout)
	m.macStateCheckTimer.Start(macStateCheckTimeout)
	m.state |= stateTxRunning
	return nil
}

func (m *Mac) setTxContinuousWave1(timeout uint16, frequency int, power uint8) error {
	m.radio.SetupTxContWave(frequency, power, timeout)
	m.macStateCheckTimer.Start(macStateCheckTimeout)
	m.state |= stateTxRunning
	return nil
}

// openContinuousRx2Window opens the permanent Class-C receive window.
func (m *Mac) openContinuousRx2Window() {
	m.onRxWindow2TimerEvent()
	m.rxSlot = RxSlotClassC
}

// onTxDelayedTimerEvent resumes a transmission deferred by the duty cycle,
// and rebuilds join-requests with a fresh DevNonce.
func (m *Mac) onTxDelayedTimerEvent() {
	m.txDelayedTimer.Stop()
	m.state &^= stateTxDelayed

	if m.flags.mlmeReq && m.mlmeConfirm.Type == MlmeJoin {
		m.resetMacParameters()
		m.params.ChannelsDatarate = m.phy.AlternateJoinDataRate(uint16(m.joinRequestTrials) + 1)

		if err := m.sendJoinRequest(); err != nil {
			m.log.WithError(err).Warn("join retransmission failed")
		}
		return
	}

	if err := m.scheduleTx(); err != nil {
		m.log.WithError(err).Warn("delayed transmission failed")
	}
}

// onTxNextPacketTimerEvent fires the compliance-test TX timer. It only
// surfaces an MLME indication asking for the next uplink.
func (m *Mac) onTxNextPacketTimerEvent() {
	m.setMlmeScheduleUplinkIndication()
	m.emitPendingIndications()
}

func (m *Mac) setMlmeScheduleUplinkIndication() {
	m.mlmeIndication = MlmeIndication{Type: MlmeScheduleUplink}
	m.flags.mlmeInd = true
}
