package softsd

import "github.com/quenot/softsd/checkpoint"

// CardKind is the detected card generation and addressing mode.
type CardKind uint8

const (
	CardNone      CardKind = iota // nothing detected yet
	CardGen1                      // legacy card, byte addressed
	CardGen2                      // modern standard capacity, byte addressed
	CardGen2Block                 // modern high capacity, block addressed
)

// String returns the usual marketing name of the card generation.
func (k CardKind) String() string {
	switch k {
	case CardGen1:
		return "SD1"
	case CardGen2:
		return "SD2"
	case CardGen2Block:
		return "SDHC"
	default:
		return "Unknown"
	}
}

// blockAddressed reports whether block indexes go on the wire untranslated.
func (k CardKind) blockAddressed() bool {
	return k == CardGen2Block
}

// Card is one attached card: the byte transport plus the state the
// initialization protocol determined. It implements BlockDevice.
type Card struct {
	transport   ByteTransport
	kind        CardKind
	initialized bool
}

func NewCard(transport ByteTransport) *Card {
	return &Card{transport: transport}
}

func (c *Card) Kind() CardKind {
	return c.kind
}

func (c *Card) Initialized() bool {
	return c.initialized
}

// Init brings the card from power-on into a state where single-block
// transfers work, and determines the card generation and addressing mode.
// The transport must already be clocked at the 400 kHz initialization
// rate. Every retry loop in here is bounded, Init always terminates.
func (c *Card) Init() error {
	c.kind = CardNone
	c.initialized = false

	// The card needs at least 74 clocks with CS inactive before the first
	// command.
	c.transport.Deselect()
	for i := 0; i < 10; i++ {
		c.transport.Transfer(0xFF)
	}

	if !boundedPoll(pollIdle, func() bool {
		r1, err := c.sendCommand(cmdGoIdle, 0)
		return err == nil && r1 == statusIdle
	}) {
		c.transport.Deselect()
		return checkpoint.Wrap(ErrTransportTimeout, ErrCardInit)
	}

	r1, err := c.sendCommand(cmdSendIfCond, ifCondCheckPattern)
	if err != nil {
		c.transport.Deselect()
		return checkpoint.Wrap(err, ErrCardInit)
	}

	switch {
	case r1 == statusIdle:
		// Gen2 card. The trailing four response bytes echo the voltage
		// range and check pattern; anything else is not a card we know.
		var echo [4]byte
		for i := range echo {
			echo[i] = c.transport.Transfer(0xFF)
		}
		c.transport.Deselect()

		if echo[2] != 0x01 || echo[3] != 0xAA {
			return checkpoint.From(ErrUnknownCard)
		}

		if err := c.initGen2(); err != nil {
			return err
		}

	case r1&statusIllegal != 0:
		// Legacy card, the interface-condition command does not exist yet.
		c.transport.Deselect()

		if err := c.initGen1(); err != nil {
			return err
		}
		c.kind = CardGen1

	default:
		c.transport.Deselect()
		return checkpoint.Wrap(ErrCommandRejected, ErrCardInit)
	}

	// Byte-addressed cards need the transfer unit pinned to 512 bytes.
	// Block-addressed cards are fixed at 512 by design.
	if !c.kind.blockAddressed() {
		r1, err := c.sendCommand(cmdSetBlockLen, BlockSize)
		c.transport.Deselect()
		if err != nil {
			return checkpoint.Wrap(err, ErrCardInit)
		}
		if r1 != 0 {
			return checkpoint.Wrap(ErrCommandRejected, ErrCardInit)
		}
	}

	c.initialized = true
	return nil
}

// initGen2 runs the operation-condition loop with high-capacity support
// announced, then reads the OCR to find out whether the card actually is
// high capacity.
func (c *Card) initGen2() error {
	if !boundedPoll(pollOpCond, func() bool {
		r1, err := c.sendAppCommand(acmdOpCond, hcsBit)
		return err == nil && r1 == 0
	}) {
		c.transport.Deselect()
		return checkpoint.Wrap(ErrTransportTimeout, ErrCardInit)
	}

	r1, err := c.sendCommand(cmdReadOCR, 0)
	if err != nil {
		c.transport.Deselect()
		return checkpoint.Wrap(err, ErrCardInit)
	}
	if r1 != 0 {
		c.transport.Deselect()
		return checkpoint.Wrap(ErrCommandRejected, ErrCardInit)
	}

	var ocr [4]byte
	for i := range ocr {
		ocr[i] = c.transport.Transfer(0xFF)
	}
	c.transport.Deselect()

	if ocr[0]&ocrHighCapacity != 0 {
		c.kind = CardGen2Block
	} else {
		c.kind = CardGen2
	}

	return nil
}

// initGen1 runs the operation-condition loop without the capacity bit.
func (c *Card) initGen1() error {
	if !boundedPoll(pollOpCond, func() bool {
		r1, err := c.sendAppCommand(acmdOpCond, 0)
		return err == nil && r1 == 0
	}) {
		c.transport.Deselect()
		return checkpoint.Wrap(ErrTransportTimeout, ErrCardInit)
	}

	c.transport.Deselect()
	return nil
}
