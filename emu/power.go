package emu

import "time"

// Power drives the emulated supply rail of a Card, standing in for the
// external power-rail control of the real board. It honors the same
// contract: after PowerCycle returns, the card has been unpowered for at
// least OffDelay and repowered for at least OnDelay.
type Power struct {
	card *Card

	// Settle times, matching the discharge and stabilization delays of
	// the hardware sequencer.
	OffDelay time.Duration
	OnDelay  time.Duration

	sleep func(time.Duration)
}

func NewPower(card *Card) *Power {
	return &Power{
		card:     card,
		OffDelay: 50 * time.Millisecond,
		OnDelay:  100 * time.Millisecond,
		sleep:    time.Sleep,
	}
}

func (p *Power) On() {
	p.card.PowerOn()
	p.sleep(p.OnDelay)
}

func (p *Power) Off() {
	p.card.PowerOff()
	p.sleep(p.OffDelay)
}

// PowerCycle runs one full off/on sequence and reports how long it took.
func (p *Power) PowerCycle() time.Duration {
	start := time.Now()
	p.Off()
	p.On()
	return time.Since(start)
}
