package loramac

import (
	"errors"
	"fmt"
)

// Frame layout constants.
const (
	// MICLen is the length of the message integrity code field.
	MICLen = 4

	// JoinRequestLen is the fixed on-air length of a join-request.
	JoinRequestLen = 23

	// FRMPayloadOverhead is the frame size without FOpts and FRMPayload
	// (MHDR + DevAddr + FCtrl + FCnt + FPort + MIC).
	FRMPayloadOverhead = 13

	// MaxPHYPayloadLen is the largest PHY payload the MAC accepts.
	MaxPHYPayloadLen = 255
)

// JoinRequestPayload represents the join-request message payload.
type JoinRequestPayload struct {
	AppEUI   EUI64
	DevEUI   EUI64
	DevNonce DevNonce
}

// MarshalBinary marshals the object in binary form. The EUIs are
// byte-reversed so that the wire carries them LSB-first.
func (p JoinRequestPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 18)

	b, err := p.AppEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevNonce.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(out, b...), nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *JoinRequestPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 18 {
		return errors.New("loramac: 18 bytes of data are expected")
	}
	if err := p.AppEUI.UnmarshalBinary(data[0:8]); err != nil {
		return err
	}
	if err := p.DevEUI.UnmarshalBinary(data[8:16]); err != nil {
		return err
	}
	return p.DevNonce.UnmarshalBinary(data[16:18])
}

// DLSettings represents the join-accept DLSettings field.
type DLSettings struct {
	RX1DROffset uint8
	RX2DataRate uint8
}

// MarshalBinary marshals the object in binary form.
func (s DLSettings) MarshalBinary() ([]byte, error) {
	if s.RX1DROffset > 7 {
		return nil, errors.New("loramac: max. value of RX1DROffset is 7")
	}
	if s.RX2DataRate > 15 {
		return nil, errors.New("loramac: max. value of RX2DataRate is 15")
	}
	return []byte{s.RX1DROffset<<4 | s.RX2DataRate}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (s *DLSettings) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("loramac: 1 byte of data is expected")
	}
	s.RX1DROffset = (data[0] >> 4) & 0x07
	s.RX2DataRate = data[0] & 0x0f
	return nil
}

// JoinAcceptPayload represents the decrypted join-accept message payload
// (without MHDR and MIC).
type JoinAcceptPayload struct {
	AppNonce   AppNonce
	NetID      NetID
	DevAddr    DevAddr
	DLSettings DLSettings
	RXDelay    uint8 // low 4 bits, in seconds, 0 means 1
	CFList     []byte
}

// MarshalBinary marshals the object in binary form.
func (p JoinAcceptPayload) MarshalBinary() ([]byte, error) {
	if l := len(p.CFList); l != 0 && l != 16 {
		return nil, errors.New("loramac: CFList must be exactly 16 bytes when present")
	}

	out := make([]byte, 0, 12+len(p.CFList))
	out = append(out, p.AppNonce[:]...)
	out = append(out, p.NetID[:]...)

	b, err := p.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DLSettings.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)
	out = append(out, p.RXDelay&0x0f)
	return append(out, p.CFList...), nil
}

// UnmarshalBinary decodes the object from binary form. The input must be
// the decrypted join-accept body of 12 or 28 bytes (MHDR and MIC stripped).
func (p *JoinAcceptPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 12 && len(data) != 28 {
		return errors.New("loramac: 12 or 28 bytes of data are expected")
	}
	copy(p.AppNonce[:], data[0:3])
	copy(p.NetID[:], data[3:6])
	if err := p.DevAddr.UnmarshalBinary(data[6:10]); err != nil {
		return err
	}
	if err := p.DLSettings.UnmarshalBinary(data[10:11]); err != nil {
		return err
	}
	p.RXDelay = data[11] & 0x0f
	if len(data) == 28 {
		p.CFList = make([]byte, 16)
		copy(p.CFList, data[12:28])
	} else {
		p.CFList = nil
	}
	return nil
}

// DataFrame represents an (un)confirmed data frame, up or down.
type DataFrame struct {
	MHDR       MHDR
	FHDR       FHDR
	FPort      *uint8
	FRMPayload []byte
	MIC        MIC
}

// MarshalBinary marshals the object in binary form, including the MIC.
func (f DataFrame) MarshalBinary() ([]byte, error) {
	b, err := f.marshalBinaryNoMIC()
	if err != nil {
		return nil, err
	}
	return append(b, f.MIC[:]...), nil
}

// marshalBinaryNoMIC marshals MHDR..FRMPayload, the range the MIC covers.
func (f DataFrame) marshalBinaryNoMIC() ([]byte, error) {
	if f.FPort == nil && len(f.FRMPayload) > 0 {
		return nil, errors.New("loramac: FPort must be set when FRMPayload is present")
	}
	if f.FPort != nil && *f.FPort == 0 && len(f.FHDR.FOpts) > 0 {
		return nil, errors.New("loramac: FPort 0 does not allow FOpts")
	}

	out, err := f.MHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b, err := f.FHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	if f.FPort != nil {
		out = append(out, *f.FPort)
		out = append(out, f.FRMPayload...)
	}
	return out, nil
}

// SetUplinkMIC computes and sets the MIC over MHDR..FRMPayload using the
// given network session key and the full 32 bit uplink frame counter.
func (f *DataFrame) SetUplinkMIC(nwkSKey AES128Key, fCnt uint32) error {
	msg, err := f.marshalBinaryNoMIC()
	if err != nil {
		return err
	}
	mic, err := ComputeDataMIC(nwkSKey, true, f.FHDR.DevAddr, fCnt, msg)
	if err != nil {
		return err
	}
	f.MIC = mic
	return nil
}

// UnmarshalBinary decodes the object from binary form.
func (f *DataFrame) UnmarshalBinary(data []byte) error {
	if len(data) < FRMPayloadOverhead-1 {
		return fmt.Errorf("loramac: at least %d bytes are expected", FRMPayloadOverhead-1)
	}
	if err := f.MHDR.UnmarshalBinary(data[0:1]); err != nil {
		return err
	}
	switch f.MHDR.MType {
	case UnconfirmedDataUp, UnconfirmedDataDown, ConfirmedDataUp, ConfirmedDataDown:
	default:
		return fmt.Errorf("loramac: MType %s is not a data frame", f.MHDR.MType)
	}

	if err := f.FHDR.UnmarshalBinary(data[1 : len(data)-MICLen]); err != nil {
		return err
	}

	body := data[1+7+int(f.FHDR.FCtrl.fOptsLen) : len(data)-MICLen]
	if len(body) > 0 {
		fPort := body[0]
		f.FPort = &fPort
		f.FRMPayload = make([]byte, len(body)-1)
		copy(f.FRMPayload, body[1:])
	} else {
		f.FPort = nil
		f.FRMPayload = nil
	}

	copy(f.MIC[:], data[len(data)-MICLen:])
	return nil
}

// BuildJoinRequest assembles the complete 23 byte join-request frame,
// computing the MIC with the given AppKey.
func BuildJoinRequest(appKey AES128Key, payload JoinRequestPayload) ([]byte, error) {
	mhdr := MHDR{MType: JoinRequest, Major: LoRaWANR1}

	out, err := mhdr.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b, err := payload.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	mic, err := ComputeJoinMIC(appKey, out)
	if err != nil {
		return nil, err
	}
	return append(out, mic[:]...), nil
}

// ParseJoinAccept decrypts and parses a received join-accept frame. It
// returns the parsed payload and the plaintext bytes the MIC is computed
// over (MHDR plus decrypted body, without the MIC), so the caller can
// verify the MIC before trusting the content.
func ParseJoinAccept(appKey AES128Key, frame []byte) (*JoinAcceptPayload, []byte, MIC, error) {
	var mic MIC

	if len(frame) != 17 && len(frame) != 33 {
		return nil, nil, mic, errors.New("loramac: join-accept must be 17 or 33 bytes")
	}

	var mhdr MHDR
	if err := mhdr.UnmarshalBinary(frame[0:1]); err != nil {
		return nil, nil, mic, err
	}
	if mhdr.MType != JoinAccept {
		return nil, nil, mic, fmt.Errorf("loramac: expected JoinAccept MType, got %s", mhdr.MType)
	}

	pt, err := DecryptJoinAccept(appKey, frame[1:])
	if err != nil {
		return nil, nil, mic, err
	}

	// the MIC trails the decrypted body
	copy(mic[:], pt[len(pt)-MICLen:])

	micMsg := make([]byte, 0, len(pt)-MICLen+1)
	micMsg = append(micMsg, frame[0])
	micMsg = append(micMsg, pt[:len(pt)-MICLen]...)

	var payload JoinAcceptPayload
	if err := payload.UnmarshalBinary(pt[:len(pt)-MICLen]); err != nil {
		return nil, nil, mic, err
	}
	return &payload, micMsg, mic, nil
}
