package softsd

import "github.com/quenot/softsd/checkpoint"

// BlockDevice reads and writes single 512-byte blocks. Calls are
// synchronous and all-or-nothing: either the full block transfers or the
// call fails with the buffer contents unspecified.
//
// It mainly exists so the volume manager and the append writer can be
// tested without the transport underneath.
type BlockDevice interface {
	ReadBlock(index uint32, buf []byte) error
	WriteBlock(index uint32, buf []byte) error
}

// wireAddress translates a block index to the protocol address. Legacy and
// standard-capacity cards address bytes, high-capacity cards address
// blocks.
func (c *Card) wireAddress(index uint32) uint32 {
	if c.kind.blockAddressed() {
		return index
	}
	return index << 9
}

func (c *Card) ReadBlock(index uint32, buf []byte) error {
	r1, err := c.sendCommand(cmdReadBlock, c.wireAddress(index))
	if err != nil {
		c.transport.Deselect()
		return err
	}
	if r1 != 0 {
		c.transport.Deselect()
		return checkpoint.From(ErrCommandRejected)
	}

	var token byte
	if !boundedPoll(pollReadToken, func() bool {
		token = c.transport.Transfer(0xFF)
		return token != 0xFF
	}) {
		c.transport.Deselect()
		return checkpoint.From(ErrTransportTimeout)
	}
	if token != tokenStartBlock {
		c.transport.Deselect()
		return checkpoint.From(ErrCommandRejected)
	}

	for i := 0; i < BlockSize; i++ {
		buf[i] = c.transport.Transfer(0xFF)
	}

	// Discard the CRC.
	c.transport.Transfer(0xFF)
	c.transport.Transfer(0xFF)

	c.transport.Deselect()
	return nil
}

func (c *Card) WriteBlock(index uint32, buf []byte) error {
	r1, err := c.sendCommand(cmdWriteBlock, c.wireAddress(index))
	if err != nil {
		c.transport.Deselect()
		return checkpoint.Wrap(err, ErrWriteFailed)
	}
	if r1 != 0 {
		c.transport.Deselect()
		return checkpoint.Wrap(ErrCommandRejected, ErrWriteFailed)
	}

	// One gap byte, then the start-of-data token and the payload.
	c.transport.Transfer(0xFF)
	c.transport.Transfer(tokenStartBlock)

	for i := 0; i < BlockSize; i++ {
		c.transport.Transfer(buf[i])
	}

	// Dummy CRC.
	c.transport.Transfer(0xFF)
	c.transport.Transfer(0xFF)

	if c.transport.Transfer(0xFF)&dataResponseMask != dataAccepted {
		c.transport.Deselect()
		return checkpoint.Wrap(ErrCommandRejected, ErrWriteFailed)
	}

	// The card holds the line low while programming flash.
	if !boundedPoll(pollWriteBusy, func() bool {
		return c.transport.Transfer(0xFF) != 0
	}) {
		c.transport.Deselect()
		return checkpoint.Wrap(ErrTransportTimeout, ErrWriteFailed)
	}

	c.transport.Deselect()
	return nil
}
