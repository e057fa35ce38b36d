package loramac

// ReconstructFCnt extends the 16 bit frame counter received on the wire to
// the full 32 bit value, given the last committed counter. When the forward
// distance from the stored low 16 bits to the wire value is 2^15 or more
// (the wire value appears to be up to 2^15 behind them), the counter is
// assumed to have rolled over into the next 16 bit epoch and rolled is true.
func ReconstructFCnt(stored uint32, wire uint16) (candidate uint32, rolled bool) {
	diff := uint16(wire - uint16(stored))
	if diff < 1<<15 {
		return stored + uint32(diff), false
	}
	return stored + 0x10000 + uint32(int32(int16(diff))), true
}
