// Package emu provides an in-process SPI-mode SD card used to exercise the
// stack without hardware. The card image lives on an afero filesystem, so
// tests run against an in-memory image while a harness can point it at a
// real file.
//
// The emulator implements the byte-transport seam of the stack by
// structure: Transfer, Select, Deselect and SetRate.
package emu

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// Generation selects which initialization protocol the emulated card
// speaks.
type Generation int

const (
	Gen1   Generation = iota // legacy card, no interface-condition command
	Gen2                     // modern standard capacity, byte addressed
	Gen2HC                   // modern high capacity, block addressed
)

const blockSize = 512

// Card is one emulated card. The zero value is not usable; use NewCard.
//
// The exported fields are fault-injection knobs. They may be flipped at
// any point between transfers.
type Card struct {
	// RejectWrites makes every data block answer with a CRC-error data
	// response instead of the acceptance code.
	RejectWrites bool
	// DropReadToken suppresses the start-of-data token after a read
	// command, so the host's token wait runs into its ceiling.
	DropReadToken bool
	// BadEcho corrupts the interface-condition echo bytes.
	BadEcho bool
	// OpCondBusy is the number of in-idle responses the operation-condition
	// loop sees after each reset before the card reports ready.
	OpCondBusy int
	// MaxRate makes the card stop answering above the given rate. Zero
	// means any rate works. This is how flaky high-frequency wiring is
	// simulated.
	MaxRate uint32

	img    afero.File
	blocks uint32
	gen    Generation

	powered  bool
	selected bool
	rate     uint32

	spiMode bool // CMD0 seen since power-on
	idle    bool
	appCmd  bool
	busyCnt int // remaining in-idle op-cond responses

	cmd    [6]byte
	cmdLen int
	outq   []byte

	writing    bool
	awaitToken bool
	data       []byte
	crcCnt     int
	writeBlock uint32
}

// NewCard opens the image at path on fs and powers the card on.
func NewCard(fs afero.Fs, path string, gen Generation) (*Card, error) {
	img, err := fs.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open card image: %w", err)
	}

	info, err := img.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat card image: %w", err)
	}

	c := &Card{
		img:    img,
		blocks: uint32(info.Size() / blockSize),
		gen:    gen,
	}
	c.PowerOn()

	return c, nil
}

// Close releases the image file.
func (c *Card) Close() error {
	return c.img.Close()
}

// Blocks is the image size in 512-byte blocks.
func (c *Card) Blocks() uint32 {
	return c.blocks
}

// PowerOn powers the card. It comes up outside SPI mode and needs a reset
// command before anything else works.
func (c *Card) PowerOn() {
	c.powered = true
	c.spiMode = false
	c.idle = false
	c.appCmd = false
	c.reset()
}

// PowerOff drops the supply rail. All volatile card state is lost.
func (c *Card) PowerOff() {
	c.powered = false
	c.reset()
}

func (c *Card) Powered() bool {
	return c.powered
}

func (c *Card) reset() {
	c.cmdLen = 0
	c.outq = nil
	c.writing = false
	c.awaitToken = false
	c.data = nil
	c.crcCnt = 0
	c.busyCnt = c.OpCondBusy
}

// Select drives chip select active.
func (c *Card) Select() {
	c.selected = true
}

// Deselect drives chip select inactive. Any half-parsed command and any
// unread response bytes are dropped, like a real card settling with CS
// high.
func (c *Card) Deselect() {
	c.selected = false
	c.cmdLen = 0
	c.outq = nil
	c.writing = false
	c.awaitToken = false
	c.data = nil
	c.crcCnt = 0
}

// SetRate records the host's bus clock rate.
func (c *Card) SetRate(hz uint32) {
	c.rate = hz
}

// Transfer exchanges one byte with the card.
func (c *Card) Transfer(out byte) byte {
	if !c.powered || !c.selected {
		return 0xFF
	}
	if c.MaxRate != 0 && c.rate > c.MaxRate {
		// The wiring does not survive this clock rate.
		return 0xFF
	}

	if len(c.outq) > 0 {
		b := c.outq[0]
		c.outq = c.outq[1:]
		return b
	}

	if c.writing {
		c.acceptData(out)
		return 0xFF
	}

	c.collectCommand(out)
	return 0xFF
}

func (c *Card) collectCommand(out byte) {
	if c.cmdLen == 0 {
		// Idle fill bytes between frames.
		if out&0xC0 != 0x40 {
			return
		}
	}

	c.cmd[c.cmdLen] = out
	c.cmdLen++

	if c.cmdLen == len(c.cmd) {
		c.cmdLen = 0
		cmd := c.cmd[0] & 0x3F
		arg := binary.BigEndian.Uint32(c.cmd[1:5])
		c.execute(cmd, arg)
	}
}

func (c *Card) push(bs ...byte) {
	c.outq = append(c.outq, bs...)
}

func (c *Card) r1() byte {
	if c.idle {
		return 0x01
	}
	return 0x00
}

func (c *Card) execute(cmd byte, arg uint32) {
	if cmd != 0 && !c.spiMode {
		// Native mode, nothing answers. The host's response poll runs out.
		return
	}

	app := c.appCmd
	c.appCmd = false

	switch {
	case cmd == 0:
		c.spiMode = true
		c.idle = true
		c.busyCnt = c.OpCondBusy
		c.push(0x01)

	case cmd == 8:
		if c.gen == Gen1 {
			c.push(c.r1() | 0x04)
			return
		}
		echo := [4]byte{0x00, 0x00, byte(arg >> 8 & 0x0F), byte(arg)}
		if c.BadEcho {
			echo = [4]byte{}
		}
		c.push(c.r1())
		c.push(echo[:]...)

	case cmd == 55:
		c.appCmd = true
		c.push(c.r1())

	case cmd == 41 && app:
		if c.busyCnt > 0 {
			c.busyCnt--
			c.push(0x01)
			return
		}
		c.idle = false
		c.push(0x00)

	case cmd == 58:
		ocr := byte(0x80) // power-up done
		if c.gen == Gen2HC {
			ocr |= 0x40
		}
		c.push(0x00, ocr, 0x00, 0x00, 0x00)

	case cmd == 16:
		if arg != blockSize {
			c.push(0x40) // parameter error
			return
		}
		c.push(0x00)

	case cmd == 17:
		c.push(0x00)
		if c.DropReadToken {
			return
		}
		c.pushBlock(c.blockIndex(arg))

	case cmd == 24:
		c.push(0x00)
		c.writing = true
		c.awaitToken = true
		c.data = c.data[:0]
		c.crcCnt = 0
		c.writeBlock = c.blockIndex(arg)

	default:
		c.push(c.r1() | 0x04)
	}
}

// blockIndex undoes the host's address translation.
func (c *Card) blockIndex(arg uint32) uint32 {
	if c.gen == Gen2HC {
		return arg
	}
	return arg >> 9
}

func (c *Card) pushBlock(index uint32) {
	buf := make([]byte, blockSize)
	if index < c.blocks {
		// Short reads leave the tail zeroed, which is what fresh flash
		// looks like anyway.
		_, _ = c.img.ReadAt(buf, int64(index)*blockSize)
	}

	c.push(0xFF, 0xFF) // access latency before the token
	c.push(0xFE)
	c.push(buf...)
	c.push(0x00, 0x00) // CRC, unused in SPI mode
}

func (c *Card) acceptData(out byte) {
	if c.awaitToken {
		if out == 0xFE {
			c.awaitToken = false
		}
		return
	}

	if len(c.data) < blockSize {
		c.data = append(c.data, out)
		return
	}

	c.crcCnt++
	if c.crcCnt < 2 {
		return
	}

	c.writing = false

	if c.RejectWrites {
		c.push(0x0D) // data rejected, write error
		return
	}

	if c.writeBlock < c.blocks {
		_, _ = c.img.WriteAt(c.data, int64(c.writeBlock)*blockSize)
	}

	c.push(0x05)             // data accepted
	c.push(0x00, 0x00, 0x00) // busy while programming
}
