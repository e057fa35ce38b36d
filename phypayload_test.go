package loramac

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMHDR(t *testing.T) {
	Convey("Given an empty MHDR", t, func() {
		var h MHDR

		Convey("Then MarshalBinary returns []byte{0}", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0})
		})

		Convey("Given MType=ConfirmedDataUp, Major=LoRaWANR1", func() {
			h.MType = ConfirmedDataUp
			h.Major = LoRaWANR1

			Convey("Then MarshalBinary returns []byte{128}", func() {
				b, err := h.MarshalBinary()
				So(err, ShouldBeNil)
				So(b, ShouldResemble, []byte{128})
			})
		})

		Convey("Given the slice []byte{128}", func() {
			b := []byte{128}

			Convey("Then UnmarshalBinary returns MType=ConfirmedDataUp, Major=LoRaWANR1", func() {
				err := h.UnmarshalBinary(b)
				So(err, ShouldBeNil)
				So(h.MType, ShouldEqual, ConfirmedDataUp)
				So(h.Major, ShouldEqual, LoRaWANR1)
			})
		})
	})
}

func TestFCtrl(t *testing.T) {
	Convey("Given an empty FCtrl", t, func() {
		var c FCtrl

		Convey("Then MarshalBinary returns []byte{0}", func() {
			b, err := c.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0})
		})

		Convey("Given ADR, ACK and fOptsLen=10", func() {
			c.ADR = true
			c.ACK = true
			c.fOptsLen = 10

			Convey("Then MarshalBinary returns []byte{0xaa}", func() {
				b, err := c.MarshalBinary()
				So(err, ShouldBeNil)
				So(b, ShouldResemble, []byte{0xaa})
			})
		})

		Convey("Given fOptsLen=16", func() {
			c.fOptsLen = 16

			Convey("Then MarshalBinary returns an error", func() {
				_, err := c.MarshalBinary()
				So(err, ShouldNotBeNil)
			})
		})

		Convey("Given the slice []byte{0x6b}", func() {
			Convey("Then UnmarshalBinary sets ADRACKReq, ACK and fOptsLen=11", func() {
				err := c.UnmarshalBinary([]byte{0x6b})
				So(err, ShouldBeNil)
				So(c.ADR, ShouldBeFalse)
				So(c.ADRACKReq, ShouldBeTrue)
				So(c.ACK, ShouldBeTrue)
				So(c.FPending, ShouldBeFalse)
				So(c.FOptsLen(), ShouldEqual, 11)
			})
		})
	})
}

func TestFHDR(t *testing.T) {
	Convey("Given a FHDR with DevAddr=0x01020304, FCnt=0x0102 and two FOpts bytes", t, func() {
		h := FHDR{
			DevAddr: DevAddr{1, 2, 3, 4},
			FCnt:    0x0102,
			FOpts:   []byte{0x06, 0x08},
		}

		Convey("Then MarshalBinary returns the expected bytes", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{4, 3, 2, 1, 2, 2, 1, 6, 8})
		})

		Convey("Then Marshal -> Unmarshal gives the same FHDR", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)

			var out FHDR
			So(out.UnmarshalBinary(b), ShouldBeNil)
			So(out.DevAddr, ShouldResemble, h.DevAddr)
			So(out.FCnt, ShouldEqual, h.FCnt)
			So(out.FOpts, ShouldResemble, h.FOpts)
			So(out.FCtrl.FOptsLen(), ShouldEqual, 2)
		})
	})
}

func TestJoinRequest(t *testing.T) {
	Convey("Given provisioned identifiers and DevNonce=0x1234", t, func() {
		appKey := AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
		payload := JoinRequestPayload{
			AppEUI:   EUI64{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11},
			DevEUI:   EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			DevNonce: 0x1234,
		}

		Convey("When building the join-request frame", func() {
			frame, err := BuildJoinRequest(appKey, payload)
			So(err, ShouldBeNil)

			Convey("Then the frame is 23 bytes with MHDR=0x00", func() {
				So(frame, ShouldHaveLength, JoinRequestLen)
				So(frame[0], ShouldEqual, byte(0x00))
			})

			Convey("Then the EUIs are byte-reversed on the wire", func() {
				So(frame[1:9], ShouldResemble, []byte{0x11, 0x10, 0x0f, 0x0e, 0x0d, 0x0c, 0x0b, 0x0a})
				So(frame[9:17], ShouldResemble, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01})
			})

			Convey("Then the DevNonce is little endian", func() {
				So(frame[17:19], ShouldResemble, []byte{0x34, 0x12})
			})

			Convey("Then the MIC is the join CMAC over MHDR..DevNonce", func() {
				mic, err := ComputeJoinMIC(appKey, frame[:19])
				So(err, ShouldBeNil)
				So(frame[19:], ShouldResemble, mic[:])
			})

			Convey("Then the frame parses back into the same payload", func() {
				var out JoinRequestPayload
				So(out.UnmarshalBinary(frame[1:19]), ShouldBeNil)
				So(out, ShouldResemble, payload)
			})
		})
	})
}

func TestDataFrame(t *testing.T) {
	Convey("Given an unconfirmed uplink with FPort=1 and payload", t, func() {
		fPort := uint8(1)
		f := DataFrame{
			MHDR: MHDR{MType: UnconfirmedDataUp, Major: LoRaWANR1},
			FHDR: FHDR{
				DevAddr: DevAddr{0x07, 0x08, 0x09, 0x10},
				FCnt:    5,
			},
			FPort:      &fPort,
			FRMPayload: []byte{0x01, 0x02, 0x03},
		}

		Convey("When setting the uplink MIC and marshalling", func() {
			nwkSKey := AES128Key{16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
			So(f.SetUplinkMIC(nwkSKey, 5), ShouldBeNil)
			b, err := f.MarshalBinary()
			So(err, ShouldBeNil)

			Convey("Then the MIC verifies over MHDR..FRMPayload", func() {
				mic, err := ComputeDataMIC(nwkSKey, true, f.FHDR.DevAddr, 5, b[:len(b)-4])
				So(err, ShouldBeNil)
				So(b[len(b)-4:], ShouldResemble, mic[:])
			})

			Convey("Then UnmarshalBinary returns the same frame", func() {
				var out DataFrame
				So(out.UnmarshalBinary(b), ShouldBeNil)
				So(out.MHDR, ShouldResemble, f.MHDR)
				So(out.FHDR.DevAddr, ShouldResemble, f.FHDR.DevAddr)
				So(out.FHDR.FCnt, ShouldEqual, f.FHDR.FCnt)
				So(*out.FPort, ShouldEqual, 1)
				So(out.FRMPayload, ShouldResemble, f.FRMPayload)
				So(out.MIC, ShouldResemble, f.MIC)
			})
		})

		Convey("Given FPort=0 together with FOpts", func() {
			zero := uint8(0)
			f.FPort = &zero
			f.FHDR.FOpts = []byte{0x02}

			Convey("Then MarshalBinary returns an error", func() {
				_, err := f.MarshalBinary()
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given a frame with a non-data MType", t, func() {
		b := []byte{0x20, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

		Convey("Then UnmarshalBinary returns an error", func() {
			var out DataFrame
			So(out.UnmarshalBinary(b), ShouldNotBeNil)
		})
	})
}

func TestJoinAcceptPayload(t *testing.T) {
	Convey("Given a JoinAcceptPayload without CFList", t, func() {
		p := JoinAcceptPayload{
			AppNonce:   AppNonce{0x01, 0x02, 0x03},
			NetID:      NetID{0x04, 0x05, 0x06},
			DevAddr:    DevAddr{0x07, 0x08, 0x09, 0x10},
			DLSettings: DLSettings{RX1DROffset: 2, RX2DataRate: 3},
			RXDelay:    1,
		}

		Convey("Then Marshal -> Unmarshal round-trips", func() {
			b, err := p.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldHaveLength, 12)

			var out JoinAcceptPayload
			So(out.UnmarshalBinary(b), ShouldBeNil)
			So(out, ShouldResemble, p)
		})

		Convey("Then the DevAddr is little endian on the wire", func() {
			b, err := p.MarshalBinary()
			So(err, ShouldBeNil)
			So(b[6:10], ShouldResemble, []byte{0x10, 0x09, 0x08, 0x07})
		})
	})

	Convey("Given a 28 byte payload with CFList", t, func() {
		data := make([]byte, 28)
		data[11] = 0x01
		for i := 12; i < 28; i++ {
			data[i] = byte(i)
		}

		Convey("Then UnmarshalBinary extracts the 16 CFList bytes", func() {
			var out JoinAcceptPayload
			So(out.UnmarshalBinary(data), ShouldBeNil)
			So(out.CFList, ShouldHaveLength, 16)
			So(out.CFList[0], ShouldEqual, byte(12))
		})
	})
}
