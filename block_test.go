package softsd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/quenot/softsd/emu"
)

func TestCard_BlockRoundTrip(t *testing.T) {
	// The same transfer runs against a byte-addressed and a
	// block-addressed card, so both sides of the address translation are
	// covered.
	tests := []struct {
		name string
		gen  emu.Generation
	}{
		{name: "byte addressed", gen: emu.Gen2},
		{name: "block addressed", gen: emu.Gen2HC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, card := newEmulatedCard(t, tt.gen, emu.DefaultImageConfig())
			if err := card.Init(); err != nil {
				t.Fatalf("Init() error = %v", err)
			}

			out := make([]byte, BlockSize)
			for i := range out {
				out[i] = byte(i * 7)
			}

			const index = 100
			if err := card.WriteBlock(index, out); err != nil {
				t.Fatalf("WriteBlock() error = %v", err)
			}

			in := make([]byte, BlockSize)
			if err := card.ReadBlock(index, in); err != nil {
				t.Fatalf("ReadBlock() error = %v", err)
			}

			if !bytes.Equal(in, out) {
				t.Error("ReadBlock() returned different data than written")
			}

			// A neighboring block stayed untouched.
			if err := card.ReadBlock(index+1, in); err != nil {
				t.Fatalf("ReadBlock(neighbor) error = %v", err)
			}
			if !bytes.Equal(in, make([]byte, BlockSize)) {
				t.Error("WriteBlock() spilled into the next block")
			}
		})
	}
}

func TestCard_WriteBlock_Rejected(t *testing.T) {
	ec, card := newEmulatedCard(t, emu.Gen2HC, emu.DefaultImageConfig())
	if err := card.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ec.RejectWrites = true

	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = 0xAB
	}

	err := card.WriteBlock(100, buf)
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("WriteBlock() error = %v, want ErrWriteFailed", err)
	}
	if !errors.Is(err, ErrCommandRejected) {
		t.Errorf("WriteBlock() error = %v, want ErrCommandRejected underneath", err)
	}

	// The rejected data never reached the image.
	ec.RejectWrites = false
	if err := card.ReadBlock(100, buf); err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if !bytes.Equal(buf, make([]byte, BlockSize)) {
		t.Error("rejected write still modified the block")
	}
}

func TestCard_ReadBlock_TokenTimeout(t *testing.T) {
	ec, card := newEmulatedCard(t, emu.Gen2HC, emu.DefaultImageConfig())
	if err := card.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ec.DropReadToken = true

	buf := make([]byte, BlockSize)
	err := card.ReadBlock(0, buf)
	if !errors.Is(err, ErrTransportTimeout) {
		t.Errorf("ReadBlock() error = %v, want ErrTransportTimeout", err)
	}
}

func TestCard_ReadBlock_Rejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transport := NewMockByteTransport(ctrl)
	gomock.InOrder(
		transport.EXPECT().Deselect(),
		transport.EXPECT().Select(),
		transport.EXPECT().Transfer(byte(0xFF)).Return(byte(0xFF)),
		transport.EXPECT().Transfer(gomock.Any()).Return(byte(0xFF)).Times(6),
		// The card answers the read command with the illegal-command bit.
		transport.EXPECT().Transfer(byte(0xFF)).Return(byte(statusIllegal)),
		transport.EXPECT().Deselect(),
	)

	card := NewCard(transport)
	buf := make([]byte, BlockSize)
	err := card.ReadBlock(0, buf)
	if !errors.Is(err, ErrCommandRejected) {
		t.Errorf("ReadBlock() error = %v, want ErrCommandRejected", err)
	}
}

func TestCard_wireAddress(t *testing.T) {
	tests := []struct {
		name  string
		kind  CardKind
		index uint32
		want  uint32
	}{
		{name: "legacy scales to bytes", kind: CardGen1, index: 3, want: 3 * 512},
		{name: "standard scales to bytes", kind: CardGen2, index: 100, want: 100 * 512},
		{name: "high capacity passes through", kind: CardGen2Block, index: 100, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Card{kind: tt.kind}
			if got := c.wireAddress(tt.index); got != tt.want {
				t.Errorf("wireAddress(%v) = %v, want %v", tt.index, got, tt.want)
			}
		})
	}
}
