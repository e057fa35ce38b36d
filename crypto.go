package loramac

import (
	"crypto/aes"
	"encoding/binary"
	"errors"

	"github.com/jacobsa/crypto/cmac"
)

// EncryptFRMPayload encrypts the FRMPayload (slice of bytes) with AES-128 in
// CTR mode over the LoRaWAN A-block. Note that EncryptFRMPayload is used for
// both encryption and decryption. The input slice is not modified.
func EncryptFRMPayload(key AES128Key, uplink bool, devAddr DevAddr, fCnt uint32, data []byte) ([]byte, error) {
	pLen := len(data)
	buf := make([]byte, pLen)
	copy(buf, data)
	if pLen%16 != 0 {
		// pad so that len(buf) is a multiple of 16
		buf = append(buf, make([]byte, 16-(pLen%16))...)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	if block.BlockSize() != 16 {
		return nil, errors.New("loramac: block size of 16 was expected")
	}

	s := make([]byte, 16)
	a := make([]byte, 16)
	a[0] = 0x01
	if !uplink {
		a[5] = 0x01
	}

	b, err := devAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	copy(a[6:10], b)
	binary.LittleEndian.PutUint32(a[10:14], fCnt)

	for i := 0; i < len(buf)/16; i++ {
		a[15] = byte(i + 1)
		block.Encrypt(s, a)

		for j := 0; j < len(s); j++ {
			buf[i*16+j] = buf[i*16+j] ^ s[j]
		}
	}

	return buf[0:pLen], nil
}

// ComputeDataMIC computes the data-frame MIC: the first 4 bytes of the
// AES-CMAC over the B0 block concatenated with msg (MHDR..FRMPayload).
func ComputeDataMIC(key AES128Key, uplink bool, devAddr DevAddr, fCnt uint32, msg []byte) (MIC, error) {
	var mic MIC

	b0 := make([]byte, 16)
	b0[0] = 0x49
	if !uplink {
		b0[5] = 0x01
	}

	b, err := devAddr.MarshalBinary()
	if err != nil {
		return mic, err
	}
	copy(b0[6:10], b)
	binary.LittleEndian.PutUint32(b0[10:14], fCnt)
	b0[15] = byte(len(msg))

	hash, err := cmac.New(key[:])
	if err != nil {
		return mic, err
	}
	if _, err = hash.Write(b0); err != nil {
		return mic, err
	}
	if _, err = hash.Write(msg); err != nil {
		return mic, err
	}

	hb := hash.Sum([]byte{})
	if len(hb) < len(mic) {
		return mic, errors.New("loramac: the hash returned less than 4 bytes")
	}
	copy(mic[:], hb[0:len(mic)])
	return mic, nil
}

// ComputeJoinMIC computes the MIC of a join-request or decrypted
// join-accept: the first 4 bytes of the AES-CMAC over the raw message.
func ComputeJoinMIC(key AES128Key, msg []byte) (MIC, error) {
	var mic MIC

	hash, err := cmac.New(key[:])
	if err != nil {
		return mic, err
	}
	if _, err = hash.Write(msg); err != nil {
		return mic, err
	}

	hb := hash.Sum([]byte{})
	if len(hb) < len(mic) {
		return mic, errors.New("loramac: the hash returned less than 4 bytes")
	}
	copy(mic[:], hb[0:len(mic)])
	return mic, nil
}

// DecryptJoinAccept decrypts the join-accept ciphertext (the frame without
// MHDR) with the given AppKey. LoRaWAN defines the join-accept decrypt as a
// server-side encrypt, so the device applies AES block *encrypt* operations.
// The ciphertext must be 16 or 32 bytes.
func DecryptJoinAccept(key AES128Key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != 16 && len(ciphertext) != 32 {
		return nil, errors.New("loramac: join-accept ciphertext must be 16 or 32 bytes")
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	if block.BlockSize() != 16 {
		return nil, errors.New("loramac: block-size of 16 bytes is expected")
	}

	pt := make([]byte, len(ciphertext))
	for i := 0; i < len(pt)/16; i++ {
		offset := i * 16
		block.Encrypt(pt[offset:offset+16], ciphertext[offset:offset+16])
	}
	return pt, nil
}

// DeriveSessionKeys derives the network and application session keys from
// the AppKey and the join handshake nonces. AppNonce and NetID are consumed
// in wire order.
func DeriveSessionKeys(appKey AES128Key, appNonce AppNonce, netID NetID, devNonce DevNonce) (nwkSKey, appSKey AES128Key, err error) {
	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return nwkSKey, appSKey, err
	}

	pad := make([]byte, 16)
	copy(pad[1:4], appNonce[:])
	copy(pad[4:7], netID[:])
	binary.LittleEndian.PutUint16(pad[7:9], uint16(devNonce))

	pad[0] = 0x01
	block.Encrypt(nwkSKey[:], pad)

	pad[0] = 0x02
	block.Encrypt(appSKey[:], pad)

	return nwkSKey, appSKey, nil
}
