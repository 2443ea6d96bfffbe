package softsd

import "github.com/quenot/softsd/checkpoint"

// Card commands used by this stack. The card runs in SPI mode, so every
// command is the 6-byte frame built in sendCommand.
const (
	cmdGoIdle      = 0  // GO_IDLE_STATE, software reset
	cmdSendIfCond  = 8  // SEND_IF_COND, voltage check, Gen2 detection
	cmdSetBlockLen = 16 // SET_BLOCKLEN
	cmdReadBlock   = 17 // READ_SINGLE_BLOCK
	cmdWriteBlock  = 24 // WRITE_BLOCK
	cmdAppPrefix   = 55 // APP_CMD, marker before application commands
	cmdReadOCR     = 58 // READ_OCR
	acmdOpCond     = 41 // SD_SEND_OP_COND, requires the APP_CMD prefix
)

// R1 status bits.
const (
	statusIdle    = 0x01
	statusIllegal = 0x04
)

const (
	tokenStartBlock  = 0xFE
	dataResponseMask = 0x1F
	dataAccepted     = 0x05

	ifCondCheckPattern = 0x1AA      // 2.7-3.6V plus echo pattern 0xAA
	hcsBit             = 0x40000000 // high capacity support in ACMD41
	ocrHighCapacity    = 0x40       // CCS bit in the first OCR byte
)

// commandCRC returns the CRC byte for a command frame. CRC checking is off
// in SPI mode, but the two commands of the reset phase are still validated
// by the card, so their CRCs must be real.
func commandCRC(cmd byte) byte {
	switch cmd {
	case cmdGoIdle:
		return 0x95
	case cmdSendIfCond:
		return 0x87
	default:
		return 0xFF
	}
}

// sendCommand transmits one command frame and polls for the R1 response.
// The card is left selected so the caller can read trailing response
// bytes; the caller owns the matching Deselect.
func (c *Card) sendCommand(cmd byte, arg uint32) (byte, error) {
	c.transport.Deselect()
	c.transport.Select()

	// Wait until the card releases the bus.
	if !boundedPoll(pollReady, func() bool {
		return c.transport.Transfer(0xFF) == 0xFF
	}) {
		return 0, checkpoint.From(ErrTransportTimeout)
	}

	c.transport.Transfer(0x40 | cmd)
	c.transport.Transfer(byte(arg >> 24))
	c.transport.Transfer(byte(arg >> 16))
	c.transport.Transfer(byte(arg >> 8))
	c.transport.Transfer(byte(arg))
	c.transport.Transfer(commandCRC(cmd))

	var r1 byte
	if !boundedPoll(pollResponse, func() bool {
		r1 = c.transport.Transfer(0xFF)
		return r1&0x80 == 0
	}) {
		return 0, checkpoint.From(ErrTransportTimeout)
	}

	return r1, nil
}

// sendAppCommand sends the application-command marker and then cmd. The
// marker never needs a marker itself, so this is two plain sends. A marker
// response above idle is returned as the overall response; the caller's
// retry loop deals with it.
func (c *Card) sendAppCommand(cmd byte, arg uint32) (byte, error) {
	r1, err := c.sendCommand(cmdAppPrefix, 0)
	if err != nil {
		return r1, err
	}
	if r1 > statusIdle {
		return r1, nil
	}

	return c.sendCommand(cmd, arg)
}
