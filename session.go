package softsd

import (
	"time"

	"github.com/quenot/softsd/checkpoint"
)

// Controller owns one card slot: the transport, the frequency ladder and,
// while mounted, the volume geometry, the single sector buffer and the
// append cursor. There are no package globals; everything lives in this
// value.
//
// A Controller is not safe for concurrent use. A mount-to-unmount session
// is one mutual-exclusion domain: block I/O and cursor updates must never
// interleave.
type Controller struct {
	transport ByteTransport
	ladder    *Ladder

	card   *Card
	volume *Volume
	writer appendWriter
	buffer [BlockSize]byte

	mounted   bool
	lastInit  time.Duration
	lastWrite time.Duration

	now func() time.Time
}

func NewController(transport ByteTransport) *Controller {
	return &Controller{
		transport: transport,
		ladder:    NewLadder(),
		card:      NewCard(transport),
		now:       time.Now,
	}
}

// Mount initializes the card, scans the FAT32 volume and locates the log
// file. freqHz == 0 keeps the ladder's current rate; any other value pins
// the ladder there. Mount on a mounted controller unmounts first.
func (c *Controller) Mount(freqHz uint32) error {
	start := c.now()
	defer func() { c.lastInit = c.now().Sub(start) }()

	if freqHz != 0 {
		c.ladder.Set(freqHz)
	}

	if c.mounted {
		c.Unmount()
	}

	// Initialization always runs at the low rate; the session rate is
	// restored afterwards whether or not it worked.
	c.transport.SetRate(InitFrequency)
	err := c.card.Init()
	c.transport.SetRate(c.ladder.Current())
	if err != nil {
		return err
	}

	c.volume = newVolume(c.card, c.buffer[:])
	if err := c.volume.mount(); err != nil {
		return err
	}

	cursor, err := c.volume.findOrCreateFile()
	if err != nil {
		return err
	}

	c.writer = appendWriter{dev: c.card, buf: c.buffer[:], cursor: cursor}
	c.mounted = true

	return nil
}

// Unmount invalidates the mount state. The card keeps its initialization
// until the next power cycle; the frequency ladder keeps its position.
func (c *Controller) Unmount() {
	c.mounted = false
	c.volume = nil
	c.transport.Deselect()
}

func (c *Controller) Mounted() bool {
	return c.mounted
}

// Append writes one record to the log file.
func (c *Controller) Append(rec Record) error {
	if !c.mounted {
		return checkpoint.From(ErrNotMounted)
	}

	start := c.now()
	defer func() { c.lastWrite = c.now().Sub(start) }()

	return c.writer.writeRecord(rec)
}

// HealthCheck re-reads the bootstrap block to confirm the card still
// answers. It clobbers the sector buffer, which is fine outside of an
// Append.
func (c *Controller) HealthCheck() error {
	if !c.mounted {
		return checkpoint.From(ErrNotMounted)
	}
	return c.card.ReadBlock(0, c.buffer[:])
}

// CardInfo reports the detected card kind and the volume size in MB.
func (c *Controller) CardInfo() (CardKind, uint32, error) {
	if !c.card.Initialized() {
		return CardNone, 0, checkpoint.From(ErrCardInit)
	}

	var sizeMB uint32
	if c.volume != nil {
		sizeMB = c.volume.TotalBlocks() / 2048
	}

	return c.card.Kind(), sizeMB, nil
}

func (c *Controller) Frequency() uint32 {
	return c.ladder.Current()
}

// ReduceFrequency steps the ladder down for the next mount attempt. It
// reports false at the floor.
func (c *Controller) ReduceFrequency() bool {
	return c.ladder.StepDown()
}

func (c *Controller) ResetFrequency() {
	c.ladder.ResetToDefault()
}

// LastInitTime is the duration of the most recent Mount, successful or not.
func (c *Controller) LastInitTime() time.Duration {
	return c.lastInit
}

// LastWriteTime is the duration of the most recent Append, successful or not.
func (c *Controller) LastWriteTime() time.Duration {
	return c.lastWrite
}
