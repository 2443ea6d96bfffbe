package softsd

import "time"

// LineDriver drives the four signal lines of the software SPI bus. The
// implementation is expected to talk to real GPIO; the stack itself never
// touches anything else. Delay is where the per-bit timing goes so that a
// simulated driver can skip it entirely.
type LineDriver interface {
	SetClock(high bool)
	SetData(high bool)
	Data() bool
	SetSelect(high bool)
	Delay(d time.Duration)
}

// ByteTransport is the byte-level seam between the protocol layers and the
// wire. SoftSPI implements it by bit-banging a LineDriver; tests implement
// it directly.
// Generated mock using mockgen:
//  mockgen -source=spi.go -destination=transport_mock.go -package softsd
type ByteTransport interface {
	// Transfer shifts one byte out and returns the byte sampled in.
	Transfer(out byte) byte
	// Select drives chip select active.
	Select()
	// Deselect drives chip select inactive and clocks one idle byte so the
	// card's state machine can settle with CS high.
	Deselect()
	// SetRate switches the bus clock rate in Hz.
	SetRate(hz uint32)
}

// SoftSPI is a software SPI master. It clocks bits MSB first, data is
// latched on the rising clock edge. There is no buffering; every Transfer
// completes before it returns.
type SoftSPI struct {
	lines LineDriver
	rate  uint32
}

func NewSoftSPI(lines LineDriver, rateHz uint32) *SoftSPI {
	s := &SoftSPI{lines: lines}
	s.SetRate(rateHz)

	// Idle bus: data high, clock low, select inactive.
	s.lines.SetData(true)
	s.lines.SetClock(false)
	s.lines.SetSelect(true)

	return s
}

func (s *SoftSPI) SetRate(hz uint32) {
	s.rate = hz
}

func (s *SoftSPI) Rate() uint32 {
	return s.rate
}

// bitDelay paces the clock. Above 1 MHz the per-call overhead of the line
// driver already dominates, so no extra delay is inserted.
func (s *SoftSPI) bitDelay() {
	switch {
	case s.rate <= 400000:
		s.lines.Delay(2 * time.Microsecond)
	case s.rate <= 1000000:
		s.lines.Delay(time.Microsecond)
	}
}

func (s *SoftSPI) Transfer(out byte) byte {
	var in byte

	for i := 0; i < 8; i++ {
		s.lines.SetData(out&0x80 != 0)
		out <<= 1

		s.bitDelay()

		s.lines.SetClock(true)
		in <<= 1
		if s.lines.Data() {
			in |= 1
		}

		s.bitDelay()

		s.lines.SetClock(false)
	}

	return in
}

func (s *SoftSPI) Select() {
	s.lines.SetSelect(false)
}

func (s *SoftSPI) Deselect() {
	s.lines.SetSelect(true)
	s.Transfer(0xFF)
}
