package loramac

import (
	"crypto/aes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEncryptFRMPayload(t *testing.T) {
	Convey("Given a key, DevAddr and payload", t, func() {
		key := AES128Key{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
		devAddr := DevAddr{1, 2, 3, 4}
		data := []byte("hello lora")

		Convey("Then encrypting twice with the same parameters decrypts", func() {
			ct, err := EncryptFRMPayload(key, true, devAddr, 1, data)
			So(err, ShouldBeNil)
			So(ct, ShouldHaveLength, len(data))
			So(ct, ShouldNotResemble, data)

			pt, err := EncryptFRMPayload(key, true, devAddr, 1, ct)
			So(err, ShouldBeNil)
			So(pt, ShouldResemble, data)
		})

		Convey("Then the direction participates in the keystream", func() {
			up, err := EncryptFRMPayload(key, true, devAddr, 1, data)
			So(err, ShouldBeNil)
			down, err := EncryptFRMPayload(key, false, devAddr, 1, data)
			So(err, ShouldBeNil)
			So(up, ShouldNotResemble, down)
		})

		Convey("Then the frame counter participates in the keystream", func() {
			a, err := EncryptFRMPayload(key, true, devAddr, 1, data)
			So(err, ShouldBeNil)
			b, err := EncryptFRMPayload(key, true, devAddr, 2, data)
			So(err, ShouldBeNil)
			So(a, ShouldNotResemble, b)
		})

		Convey("Then the input slice is left untouched", func() {
			_, err := EncryptFRMPayload(key, true, devAddr, 1, data)
			So(err, ShouldBeNil)
			So(data, ShouldResemble, []byte("hello lora"))
		})

		Convey("Then payloads longer than one block round-trip", func() {
			long := make([]byte, 40)
			for i := range long {
				long[i] = byte(i)
			}
			ct, err := EncryptFRMPayload(key, false, devAddr, 0x12345678, long)
			So(err, ShouldBeNil)
			pt, err := EncryptFRMPayload(key, false, devAddr, 0x12345678, ct)
			So(err, ShouldBeNil)
			So(pt, ShouldResemble, long)
		})
	})
}

func TestComputeDataMIC(t *testing.T) {
	Convey("Given a key, DevAddr and message", t, func() {
		key := AES128Key{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
		devAddr := DevAddr{1, 2, 3, 4}
		msg := []byte{0x40, 4, 3, 2, 1, 0, 1, 0}

		Convey("Then the MIC is stable for equal inputs", func() {
			a, err := ComputeDataMIC(key, true, devAddr, 1, msg)
			So(err, ShouldBeNil)
			b, err := ComputeDataMIC(key, true, devAddr, 1, msg)
			So(err, ShouldBeNil)
			So(a, ShouldResemble, b)
		})

		Convey("Then direction, counter and address all change the MIC", func() {
			base, err := ComputeDataMIC(key, true, devAddr, 1, msg)
			So(err, ShouldBeNil)

			m, err := ComputeDataMIC(key, false, devAddr, 1, msg)
			So(err, ShouldBeNil)
			So(m, ShouldNotResemble, base)

			m, err = ComputeDataMIC(key, true, devAddr, 2, msg)
			So(err, ShouldBeNil)
			So(m, ShouldNotResemble, base)

			m, err = ComputeDataMIC(key, true, DevAddr{4, 3, 2, 1}, 1, msg)
			So(err, ShouldBeNil)
			So(m, ShouldNotResemble, base)
		})
	})
}

func TestDecryptJoinAccept(t *testing.T) {
	Convey("Given an AppKey and a join-accept body", t, func() {
		appKey := AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
		plaintext := make([]byte, 16)
		copy(plaintext, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

		Convey("When the server-side encrypt (AES decrypt) is applied", func() {
			block, err := aes.NewCipher(appKey[:])
			So(err, ShouldBeNil)
			ct := make([]byte, 16)
			block.Decrypt(ct, plaintext)

			Convey("Then DecryptJoinAccept recovers the plaintext", func() {
				pt, err := DecryptJoinAccept(appKey, ct)
				So(err, ShouldBeNil)
				So(pt, ShouldResemble, plaintext)
			})
		})

		Convey("Then a 20 byte ciphertext is rejected", func() {
			_, err := DecryptJoinAccept(appKey, make([]byte, 20))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDeriveSessionKeys(t *testing.T) {
	Convey("Given an AppKey and join nonces", t, func() {
		appKey := AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
		appNonce := AppNonce{1, 2, 3}
		netID := NetID{4, 5, 6}
		devNonce := DevNonce(0x1234)

		nwkSKey, appSKey, err := DeriveSessionKeys(appKey, appNonce, netID, devNonce)
		So(err, ShouldBeNil)

		Convey("Then the keys differ from each other and the AppKey", func() {
			So(nwkSKey, ShouldNotResemble, appSKey)
			So(nwkSKey, ShouldNotResemble, appKey)
		})

		Convey("Then NwkSKey is the AES encryption of the 0x01-padded block", func() {
			block, err := aes.NewCipher(appKey[:])
			So(err, ShouldBeNil)

			pad := make([]byte, 16)
			pad[0] = 0x01
			copy(pad[1:4], appNonce[:])
			copy(pad[4:7], netID[:])
			pad[7] = 0x34
			pad[8] = 0x12

			var expected AES128Key
			block.Encrypt(expected[:], pad)
			So(nwkSKey, ShouldResemble, expected)
		})

		Convey("Then derivation is deterministic", func() {
			n2, a2, err := DeriveSessionKeys(appKey, appNonce, netID, devNonce)
			So(err, ShouldBeNil)
			So(n2, ShouldResemble, nwkSKey)
			So(a2, ShouldResemble, appSKey)
		})
	})
}

func TestJoinAcceptEndToEnd(t *testing.T) {
	Convey("Given a complete join-accept produced the way a server would", t, func() {
		appKey := AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
		payload := JoinAcceptPayload{
			AppNonce: AppNonce{0x01, 0x02, 0x03},
			NetID:    NetID{0x04, 0x05, 0x06},
			DevAddr:  DevAddr{0x07, 0x08, 0x09, 0x10},
			RXDelay:  1,
		}

		body, err := payload.MarshalBinary()
		So(err, ShouldBeNil)

		mhdr, err := MHDR{MType: JoinAccept, Major: LoRaWANR1}.MarshalBinary()
		So(err, ShouldBeNil)

		mic, err := ComputeJoinMIC(appKey, append(append([]byte{}, mhdr...), body...))
		So(err, ShouldBeNil)

		// server-side encrypt is an AES block decrypt over body|MIC
		block, err := aes.NewCipher(appKey[:])
		So(err, ShouldBeNil)
		pt := append(append([]byte{}, body...), mic[:]...)
		So(pt, ShouldHaveLength, 16)
		ct := make([]byte, 16)
		block.Decrypt(ct, pt)
		frame := append(append([]byte{}, mhdr...), ct...)

		Convey("Then ParseJoinAccept recovers payload and a verifiable MIC", func() {
			out, micMsg, gotMIC, err := ParseJoinAccept(appKey, frame)
			So(err, ShouldBeNil)
			So(out.DevAddr, ShouldResemble, payload.DevAddr)
			So(out.AppNonce, ShouldResemble, payload.AppNonce)
			So(out.NetID, ShouldResemble, payload.NetID)
			So(out.RXDelay, ShouldEqual, uint8(1))

			check, err := ComputeJoinMIC(appKey, micMsg)
			So(err, ShouldBeNil)
			So(check, ShouldResemble, gotMIC)
			So(check, ShouldResemble, mic)
		})
	})
}
