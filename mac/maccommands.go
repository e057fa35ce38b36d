package mac

import (
	"github.com/pkg/errors"

	"github.com/lorastack/loramac"
)

// maxMacCommandsLength bounds the staged MAC command bytes. Commands beyond
// the FOpts capacity are shipped as an FPort 0 frame body, which is itself
// limited by the regional payload size.
const maxMacCommandsLength = 128

// maxFOptsLength is the FOpts field capacity.
const maxFOptsLength = 15

// isSticky reports if the answer to cid must be retransmitted until a
// downlink proves the server received it.
func isSticky(cid loramac.CID) bool {
	switch cid {
	case loramac.RXParamSetupAns, loramac.RXTimingSetupAns, loramac.DLChannelAns:
		return true
	default:
		return false
	}
}

// macCommands maintains the two uplink MAC-command buffers, the next-tx
// staging buffer and the repeat buffer holding sticky answers that keep
// being scheduled until a valid downlink arrives, plus the next-tx marker.
type macCommands struct {
	buffer   []byte
	repeat   []byte
	inNextTx bool
}

// add stages an uplink MAC command for the next transmission.
func (m *macCommands) add(cmd loramac.MACCommand) error {
	b, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}
	if len(m.buffer)+len(b) > maxMacCommandsLength {
		return errors.New("mac: MAC command buffer full")
	}
	m.buffer = append(m.buffer, b...)
	m.inNextTx = true
	return nil
}

// clearCommandBuffer drops the staged commands.
func (m *macCommands) clearCommandBuffer() {
	m.buffer = nil
}

// clearRepeatBuffer drops the sticky repeat buffer.
func (m *macCommands) clearRepeatBuffer() {
	m.repeat = nil
}

// clearMacCommandsInNextTx resets the next-tx marker.
func (m *macCommands) clearMacCommandsInNextTx() {
	m.inNextTx = false
}

func (m *macCommands) length() int {
	return len(m.buffer)
}

func (m *macCommands) repeatLength() int {
	return len(m.repeat)
}

func (m *macCommands) isInNextTx() bool {
	return m.inNextTx
}

// isStickyPending reports if the repeat buffer holds sticky answers.
func (m *macCommands) isStickyPending() bool {
	return len(m.repeat) > 0
}

// copyRepeatToBuffer prepends the pending sticky answers to the staging
// buffer so they ride along on the next uplink.
func (m *macCommands) copyRepeatToBuffer() {
	if len(m.repeat) == 0 {
		return
	}
	merged := make([]byte, 0, len(m.repeat)+len(m.buffer))
	merged = append(merged, m.repeat...)
	merged = append(merged, m.buffer...)
	if len(merged) > maxMacCommandsLength {
		return
	}
	m.buffer = merged
	m.inNextTx = true
}

// parseToRepeat extracts the sticky commands of the staging buffer into
// the repeat buffer. Called right before each transmission, so sticky
// answers survive until a valid downlink clears them.
func (m *macCommands) parseToRepeat() {
	m.repeat = nil
	for i := 0; i < len(m.buffer); {
		cid := loramac.CID(m.buffer[i])
		_, size, _ := loramac.GetMACPayloadAndSize(true, cid)
		end := i + 1 + size
		if end > len(m.buffer) {
			return
		}
		if isSticky(cid) {
			m.repeat = append(m.repeat, m.buffer[i:end]...)
		}
		i = end
	}
}
