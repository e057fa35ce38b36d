package mac

import (
	"crypto/aes"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lorastack/loramac"
	"github.com/lorastack/loramac/band"
)

// testClock is a manually advanced Clock.
type testClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*testTimer
}

func newTestClock() *testClock {
	return &testClock{}
}

func (c *testClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) NewTimer(fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &testTimer{clock: c, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

type testTimer struct {
	clock    *testClock
	fn       func()
	deadline time.Duration
	armed    bool
}

func (t *testTimer) Start(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.deadline = t.clock.now + d
	t.armed = true
}

func (t *testTimer) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.armed = false
}

// next returns the earliest armed timer due at or before limit.
func (c *testClock) next(limit time.Duration) *testTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due []*testTimer
	for _, t := range c.timers {
		if t.armed && t.deadline <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })
	t := due[0]
	t.armed = false
	if t.deadline > c.now {
		c.now = t.deadline
	}
	return t
}

func (c *testClock) set(now time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now > c.now {
		c.now = now
	}
}

// fakeRadio is a scripted Radio recording every interaction.
type fakeRadio struct {
	mu sync.Mutex

	sent       [][]byte
	txSettings []TxSettings
	rxSettings []RxSettings
	rxWindows  []bool // continuous flag per SetupRxWindow
	sleeps     int
	standbys   int
	rng        uint32
	public     bool
	contWaves  int
}

func (r *fakeRadio) Sleep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps++
}

func (r *fakeRadio) Standby() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.standbys++
}

func (r *fakeRadio) TxConfig(p TxSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txSettings = append(r.txSettings, p)
	return nil
}

func (r *fakeRadio) RxConfig(p RxSettings) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rxSettings = append(r.rxSettings, p)
	return true, p.Datarate
}

func (r *fakeRadio) SetupRxWindow(continuous bool, maxRxWindow time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rxWindows = append(r.rxWindows, continuous)
}

func (r *fakeRadio) Send(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	r.sent = append(r.sent, buf)
}

func (r *fakeRadio) Rng() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng
}

func (r *fakeRadio) SetPublicNetwork(enable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.public = enable
}

func (r *fakeRadio) SetTxContinuousMode(timeout uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contWaves++
}

func (r *fakeRadio) SetupTxContWave(frequency int, power uint8, timeout uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contWaves++
}

func (r *fakeRadio) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *fakeRadio) lastSent() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func (r *fakeRadio) lastTxSettings() TxSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.txSettings) == 0 {
		return TxSettings{}
	}
	return r.txSettings[len(r.txSettings)-1]
}

// harness wires a Mac to the fakes and records the primitive flow.
type harness struct {
	t     *testing.T
	queue *Dispatcher
	clock *testClock
	radio *fakeRadio
	m     *Mac
	ev    RadioEvents

	mu              sync.Mutex
	mcpsConfirms    []McpsConfirm
	mcpsIndications []McpsIndication
	mlmeConfirms    []MlmeConfirm
	mlmeIndications []MlmeIndication
}

func newHarness(t *testing.T, bandName band.Name) *harness {
	t.Helper()

	phy, err := band.GetBand(bandName)
	require.NoError(t, err)

	h := &harness{
		t:     t,
		queue: NewDispatcher(),
		clock: newTestClock(),
		radio: &fakeRadio{rng: 0x1234},
	}
	t.Cleanup(h.queue.Stop)

	m, err := New(Config{
		Primitives: Primitives{
			McpsConfirm: func(c *McpsConfirm) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.mcpsConfirms = append(h.mcpsConfirms, *c)
			},
			McpsIndication: func(i *McpsIndication) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.mcpsIndications = append(h.mcpsIndications, *i)
			},
			MlmeConfirm: func(c *MlmeConfirm) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.mlmeConfirms = append(h.mlmeConfirms, *c)
			},
			MlmeIndication: func(i *MlmeIndication) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.mlmeIndications = append(h.mlmeIndications, *i)
			},
		},
		Callbacks: Callbacks{GetBatteryLevel: func() uint8 { return 128 }},
		Band:      phy,
		Radio:     h.radio,
		Clock:     h.clock,
		Queue:     h.queue,
	})
	require.NoError(t, err)

	h.m = m
	h.ev = m.RadioEvents()
	return h
}

// barrier waits until every queued event has been processed.
func (h *harness) barrier() {
	h.queue.RunSync(func() {})
}

// advance moves the clock forward, firing due timers in deadline order and
// draining the dispatcher after each firing.
func (h *harness) advance(d time.Duration) {
	limit := h.clock.Now() + d
	for {
		t := h.clock.next(limit)
		if t == nil {
			break
		}
		t.fn()
		h.barrier()
	}
	h.clock.set(limit)
	h.barrier()
}

// counts returns the number of recorded primitives.
func (h *harness) counts() (mcpsConf, mcpsInd, mlmeConf, mlmeInd int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.mcpsConfirms), len(h.mcpsIndications), len(h.mlmeConfirms), len(h.mlmeIndications)
}

var (
	testDevEUI = loramac.EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	testAppEUI = loramac.EUI64{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11}
	testAppKey = loramac.AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

	testAppNonce = loramac.AppNonce{0x01, 0x02, 0x03}
	testNetID    = loramac.NetID{0x04, 0x05, 0x06}
	testDevAddr  = loramac.DevAddr{0x07, 0x08, 0x09, 0x10}
)

// makeJoinAccept builds an encrypted join-accept the way a network server
// would.
func makeJoinAccept(t *testing.T, appKey loramac.AES128Key, payload loramac.JoinAcceptPayload) []byte {
	t.Helper()

	body, err := payload.MarshalBinary()
	require.NoError(t, err)

	mhdr, err := loramac.MHDR{MType: loramac.JoinAccept}.MarshalBinary()
	require.NoError(t, err)

	mic, err := loramac.ComputeJoinMIC(appKey, append(append([]byte{}, mhdr...), body...))
	require.NoError(t, err)

	pt := append(append([]byte{}, body...), mic[:]...)
	require.Zero(t, len(pt)%16)

	block, err := aes.NewCipher(appKey[:])
	require.NoError(t, err)

	ct := make([]byte, len(pt))
	for i := 0; i < len(pt)/16; i++ {
		block.Decrypt(ct[i*16:(i+1)*16], pt[i*16:(i+1)*16])
	}
	return append(append([]byte{}, mhdr...), ct...)
}

// makeDataDown builds a downlink data frame with a valid MIC.
func makeDataDown(t *testing.T, confirmed bool, nwkSKey, appSKey loramac.AES128Key, devAddr loramac.DevAddr, fCnt32 uint32, fPort *uint8, data []byte, ack bool, fOpts []byte) []byte {
	t.Helper()

	mType := loramac.UnconfirmedDataDown
	if confirmed {
		mType = loramac.ConfirmedDataDown
	}

	frame := loramac.DataFrame{
		MHDR: loramac.MHDR{MType: mType},
		FHDR: loramac.FHDR{
			DevAddr: devAddr,
			FCtrl:   loramac.FCtrl{ACK: ack},
			FCnt:    uint16(fCnt32),
			FOpts:   fOpts,
		},
		FPort: fPort,
	}
	if fPort != nil && len(data) > 0 {
		key := appSKey
		if *fPort == 0 {
			key = nwkSKey
		}
		ct, err := loramac.EncryptFRMPayload(key, false, devAddr, fCnt32, data)
		require.NoError(t, err)
		frame.FRMPayload = ct
	}

	b, err := frame.MarshalBinary()
	require.NoError(t, err)

	mic, err := loramac.ComputeDataMIC(nwkSKey, false, devAddr, fCnt32, b[:len(b)-loramac.MICLen])
	require.NoError(t, err)
	copy(b[len(b)-loramac.MICLen:], mic[:])
	return b
}

// join drives a complete successful OTAA join.
func (h *harness) join() (nwkSKey, appSKey loramac.AES128Key) {
	h.t.Helper()

	err := h.m.MlmeRequest(&MlmeRequest{
		Type: MlmeJoin,
		Join: JoinParams{
			DevEUI:   testDevEUI,
			AppEUI:   testAppEUI,
			AppKey:   testAppKey,
			NbTrials: 1,
		},
	})
	require.NoError(h.t, err)
	require.Equal(h.t, 1, h.radio.sentCount())

	h.ev.TxDone()
	h.barrier()

	// open RX1 at JoinAcceptDelay1
	h.advance(5100 * time.Millisecond)

	accept := makeJoinAccept(h.t, testAppKey, loramac.JoinAcceptPayload{
		AppNonce: testAppNonce,
		NetID:    testNetID,
		DevAddr:  testDevAddr,
		RXDelay:  1,
	})
	h.ev.RxDone(accept, -40, 10)
	h.barrier()
	h.advance(10 * time.Millisecond)

	require.True(h.t, h.m.NetworkJoined())

	// most scenarios are not about regulatory back-off: disable the duty
	// cycle so uplinks go out immediately (TestDutyCycleDefer re-enables)
	h.m.TestSetDutyCycleOn(false)

	nwkSKey, appSKey, err = loramac.DeriveSessionKeys(testAppKey, testAppNonce, testNetID, 0x1234)
	require.NoError(h.t, err)
	return nwkSKey, appSKey
}
