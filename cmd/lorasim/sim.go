package main

import (
	"crypto/aes"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lorastack/loramac"
	"github.com/lorastack/loramac/mac"
)

// simRadio is a loopback radio: every transmitted frame is answered by a
// minimal in-process network server, delivered when the next receive
// window opens.
type simRadio struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	events  mac.RadioEvents
	appKey  loramac.AES128Key
	pending []byte

	// server-side session state
	joined   bool
	nwkSKey  loramac.AES128Key
	appSKey  loramac.AES128Key
	devAddr  loramac.DevAddr
	appNonce loramac.AppNonce
	netID    loramac.NetID
	fCntDown uint32
}

func newSimRadio(log logrus.FieldLogger, appKey loramac.AES128Key) *simRadio {
	return &simRadio{
		log:      log.WithField("module", "sim-radio"),
		appKey:   appKey,
		appNonce: loramac.AppNonce{0x01, 0x02, 0x03},
		netID:    loramac.NetID{0x04, 0x05, 0x06},
		devAddr:  loramac.DevAddr{0x07, 0x08, 0x09, 0x10},
	}
}

func (r *simRadio) setEvents(ev mac.RadioEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = ev
}

func (r *simRadio) Sleep()   {}
func (r *simRadio) Standby() {}

func (r *simRadio) TxConfig(p mac.TxSettings) error {
	r.log.WithFields(logrus.Fields{
		"frequency": p.Frequency,
		"datarate":  p.Datarate,
		"power":     p.Power,
	}).Debug("tx config")
	return nil
}

func (r *simRadio) RxConfig(p mac.RxSettings) (bool, int) {
	return true, p.Datarate
}

// SetupRxWindow delivers the staged server answer into the open window.
func (r *simRadio) SetupRxWindow(continuous bool, maxRxWindow time.Duration) {
	r.mu.Lock()
	frame := r.pending
	r.pending = nil
	ev := r.events
	r.mu.Unlock()

	if frame == nil {
		// a continuous window stays open; a bounded one times out
		if !continuous && ev.RxTimeout != nil {
			go ev.RxTimeout()
		}
		return
	}
	go ev.RxDone(frame, -42, 9)
}

// Send runs the server half of the exchange.
func (r *simRadio) Send(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	go r.events.TxDone()

	if len(data) == 0 {
		return
	}

	var mhdr loramac.MHDR
	if err := mhdr.UnmarshalBinary(data[0:1]); err != nil {
		return
	}

	switch mhdr.MType {
	case loramac.JoinRequest:
		r.handleJoinRequest(data)
	case loramac.UnconfirmedDataUp, loramac.ConfirmedDataUp:
		r.handleDataUp(mhdr, data)
	}
}

func (r *simRadio) handleJoinRequest(data []byte) {
	var req loramac.JoinRequestPayload
	if err := req.UnmarshalBinary(data[1 : len(data)-loramac.MICLen]); err != nil {
		r.log.WithError(err).Warn("bad join-request")
		return
	}

	nwkSKey, appSKey, err := loramac.DeriveSessionKeys(r.appKey, r.appNonce, r.netID, req.DevNonce)
	if err != nil {
		return
	}
	r.nwkSKey = nwkSKey
	r.appSKey = appSKey
	r.joined = true
	r.fCntDown = 0

	accept := loramac.JoinAcceptPayload{
		AppNonce: r.appNonce,
		NetID:    r.netID,
		DevAddr:  r.devAddr,
		RXDelay:  1,
	}
	body, err := accept.MarshalBinary()
	if err != nil {
		return
	}

	mhdrB, _ := loramac.MHDR{MType: loramac.JoinAccept}.MarshalBinary()
	mic, err := loramac.ComputeJoinMIC(r.appKey, append(append([]byte{}, mhdrB...), body...))
	if err != nil {
		return
	}

	// the join-accept encrypt is an AES block decrypt on the server side
	pt := append(append([]byte{}, body...), mic[:]...)
	block, err := aes.NewCipher(r.appKey[:])
	if err != nil || len(pt)%16 != 0 {
		return
	}
	ct := make([]byte, len(pt))
	for i := 0; i < len(pt)/16; i++ {
		block.Decrypt(ct[i*16:(i+1)*16], pt[i*16:(i+1)*16])
	}

	r.pending = append(append([]byte{}, mhdrB...), ct...)
	r.log.WithField("dev_eui", req.DevEUI).Info("join accepted")
}

func (r *simRadio) handleDataUp(mhdr loramac.MHDR, data []byte) {
	if !r.joined {
		return
	}

	var frame loramac.DataFrame
	if err := frame.UnmarshalBinary(data); err != nil {
		r.log.WithError(err).Warn("bad data frame")
		return
	}

	var echo []byte
	if frame.FPort != nil && *frame.FPort > 0 {
		pt, err := loramac.EncryptFRMPayload(r.appSKey, true, frame.FHDR.DevAddr, uint32(frame.FHDR.FCnt), frame.FRMPayload)
		if err != nil {
			return
		}
		echo = []byte(fmt.Sprintf("echo:%s", pt))
	}

	r.fCntDown++

	down := loramac.DataFrame{
		MHDR: loramac.MHDR{MType: loramac.UnconfirmedDataDown},
		FHDR: loramac.FHDR{
			DevAddr: frame.FHDR.DevAddr,
			FCtrl:   loramac.FCtrl{ACK: mhdr.MType == loramac.ConfirmedDataUp},
			FCnt:    uint16(r.fCntDown),
		},
	}
	if echo != nil {
		port := *frame.FPort
		down.FPort = &port
		ct, err := loramac.EncryptFRMPayload(r.appSKey, false, frame.FHDR.DevAddr, r.fCntDown, echo)
		if err != nil {
			return
		}
		down.FRMPayload = ct
	}

	b, err := down.MarshalBinary()
	if err != nil {
		return
	}
	mic, err := loramac.ComputeDataMIC(r.nwkSKey, false, frame.FHDR.DevAddr, r.fCntDown, b[:len(b)-loramac.MICLen])
	if err != nil {
		return
	}
	copy(b[len(b)-loramac.MICLen:], mic[:])

	r.pending = b
}

func (r *simRadio) Rng() uint32 {
	return rand.Uint32()
}

func (r *simRadio) SetPublicNetwork(enable bool) {}

func (r *simRadio) SetTxContinuousMode(timeout uint16) {}

func (r *simRadio) SetupTxContWave(frequency int, power uint8, timeout uint16) {}
