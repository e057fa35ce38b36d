package loramac

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// EUI64 represents a 64 bit extended unique identifier (DevEUI, AppEUI).
type EUI64 [8]byte

// String implements fmt.Stringer.
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// MarshalText implements encoding.TextMarshaler.
func (e EUI64) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EUI64) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(e) {
		return fmt.Errorf("loramac: exactly %d bytes are expected", len(e))
	}
	copy(e[:], b)
	return nil
}

// MarshalBinary encodes the EUI64 to a slice of bytes. The EUI is
// transmitted MSB-first in memory but LSB-first on the wire, hence the
// byte-reverse copy.
func (e EUI64) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(e))
	for i, v := range e {
		// little endian
		out[len(e)-i-1] = v
	}
	return out, nil
}

// UnmarshalBinary decodes the EUI64 from a slice of bytes.
func (e *EUI64) UnmarshalBinary(data []byte) error {
	if len(data) != len(e) {
		return fmt.Errorf("loramac: %d bytes of data are expected", len(e))
	}
	for i, v := range data {
		// little endian
		e[len(e)-i-1] = v
	}
	return nil
}

// DevAddr represents the device address.
type DevAddr [4]byte

// String implements fmt.Stringer.
func (a DevAddr) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a DevAddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Uint32 returns the DevAddr as an uint32.
func (a DevAddr) Uint32() uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// DevAddrFromUint32 returns the DevAddr for the given uint32.
func DevAddrFromUint32(v uint32) DevAddr {
	return DevAddr{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// MarshalBinary encodes the DevAddr to a slice of bytes (little endian).
func (a DevAddr) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(a))
	for i, v := range a {
		// little endian
		out[len(a)-i-1] = v
	}
	return out, nil
}

// UnmarshalBinary decodes the DevAddr from a slice of bytes.
func (a *DevAddr) UnmarshalBinary(data []byte) error {
	if len(data) != len(a) {
		return fmt.Errorf("loramac: %d bytes of data are expected", len(a))
	}
	for i, v := range data {
		// little endian
		a[len(a)-i-1] = v
	}
	return nil
}

// AES128Key represents a 128 bit AES key.
type AES128Key [16]byte

// String implements fmt.Stringer.
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k AES128Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AES128Key) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(k) {
		return fmt.Errorf("loramac: exactly %d bytes are expected", len(k))
	}
	copy(k[:], b)
	return nil
}

// MIC represents the message integrity code.
type MIC [4]byte

// String implements fmt.Stringer.
func (m MIC) String() string {
	return hex.EncodeToString(m[:])
}

// DevNonce represents the 2 byte random nonce carried by a join-request.
type DevNonce uint16

// MarshalBinary encodes the DevNonce to a slice of bytes (little endian).
func (n DevNonce) MarshalBinary() ([]byte, error) {
	return []byte{byte(n), byte(n >> 8)}, nil
}

// UnmarshalBinary decodes the DevNonce from a slice of bytes.
func (n *DevNonce) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.New("loramac: 2 bytes of data are expected")
	}
	*n = DevNonce(data[0]) | DevNonce(data[1])<<8
	return nil
}

// AppNonce represents the 3 byte nonce carried by a join-accept, in wire
// order (least-significant byte first). Session-key derivation consumes the
// bytes exactly as they appear in the frame.
type AppNonce [3]byte

// NetID represents the LoRaWAN network identifier, in wire order
// (least-significant byte first).
type NetID [3]byte

// String implements fmt.Stringer.
func (n NetID) String() string {
	return hex.EncodeToString(n[:])
}

// Uint32 returns the NetID as an uint32.
func (n NetID) Uint32() uint32 {
	return uint32(n[0]) | uint32(n[1])<<8 | uint32(n[2])<<16
}
