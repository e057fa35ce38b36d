package loramac

import (
	"encoding/binary"
	"errors"
)

// FCtrl represents the frame control field.
type FCtrl struct {
	ADR       bool
	ADRACKReq bool
	ACK       bool
	FPending  bool // downlink only: the gateway has more data pending
	fOptsLen  uint8
}

// MarshalBinary marshals the object in binary form.
func (c FCtrl) MarshalBinary() ([]byte, error) {
	if c.fOptsLen > 15 {
		return nil, errors.New("loramac: the max. fOptsLen is 15")
	}

	var b byte
	if c.ADR {
		b |= 1 << 7
	}
	if c.ADRACKReq {
		b |= 1 << 6
	}
	if c.ACK {
		b |= 1 << 5
	}
	if c.FPending {
		b |= 1 << 4
	}
	return []byte{b | c.fOptsLen}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (c *FCtrl) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("loramac: 1 byte of data is expected")
	}
	c.ADR = data[0]&(1<<7) > 0
	c.ADRACKReq = data[0]&(1<<6) > 0
	c.ACK = data[0]&(1<<5) > 0
	c.FPending = data[0]&(1<<4) > 0
	c.fOptsLen = data[0] & 0x0f
	return nil
}

// FOptsLen returns how many FOpts bytes the FHDR carries.
func (c FCtrl) FOptsLen() uint8 {
	return c.fOptsLen
}

// FHDR represents the frame header.
type FHDR struct {
	DevAddr DevAddr
	FCtrl   FCtrl
	FCnt    uint16
	FOpts   []byte // max. number of allowed bytes is 15
}

// MarshalBinary marshals the object in binary form.
func (h FHDR) MarshalBinary() ([]byte, error) {
	if len(h.FOpts) > 15 {
		return nil, errors.New("loramac: max. number of FOpts bytes is 15")
	}
	h.FCtrl.fOptsLen = uint8(len(h.FOpts))

	out := make([]byte, 0, 7+len(h.FOpts))
	b, err := h.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = h.FCtrl.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	fCnt := make([]byte, 2)
	binary.LittleEndian.PutUint16(fCnt, h.FCnt)
	out = append(out, fCnt...)

	return append(out, h.FOpts...), nil
}

// UnmarshalBinary decodes the object from binary form.
func (h *FHDR) UnmarshalBinary(data []byte) error {
	if len(data) < 7 {
		return errors.New("loramac: at least 7 bytes are expected")
	}
	if err := h.DevAddr.UnmarshalBinary(data[0:4]); err != nil {
		return err
	}
	if err := h.FCtrl.UnmarshalBinary(data[4:5]); err != nil {
		return err
	}
	h.FCnt = binary.LittleEndian.Uint16(data[5:7])

	if len(data) < 7+int(h.FCtrl.fOptsLen) {
		return errors.New("loramac: not enough bytes to decode FOpts")
	}
	h.FOpts = make([]byte, h.FCtrl.fOptsLen)
	copy(h.FOpts, data[7:7+h.FCtrl.fOptsLen])
	return nil
}
