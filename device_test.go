package softsd

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// memDevice is an in-memory BlockDevice for the volume and writer tests.
type memDevice struct {
	blocks map[uint32][]byte

	readErr  error
	writeErr error
	reads    int
	writes   int
}

func newMemDevice() *memDevice {
	return &memDevice{blocks: map[uint32][]byte{}}
}

func (d *memDevice) ReadBlock(index uint32, buf []byte) error {
	d.reads++
	if d.readErr != nil {
		return d.readErr
	}

	if b, ok := d.blocks[index]; ok {
		copy(buf, b)
	} else {
		zeroBlock(buf)
	}
	return nil
}

func (d *memDevice) WriteBlock(index uint32, buf []byte) error {
	d.writes++
	if d.writeErr != nil {
		return d.writeErr
	}

	b := make([]byte, BlockSize)
	copy(b, buf)
	d.blocks[index] = b
	return nil
}

// block returns the stored content of a block, zeroes when never written.
func (d *memDevice) block(index uint32) []byte {
	if b, ok := d.blocks[index]; ok {
		return b
	}
	return make([]byte, BlockSize)
}

// fileContent joins the blocks of the test file into one byte stream,
// trimmed at size.
func (d *memDevice) fileContent(startBlock uint32, size int) []byte {
	out := make([]byte, 0, size)
	for b := startBlock; len(out) < size; b++ {
		out = append(out, d.block(b)...)
	}
	return out[:size]
}

// testGeometry describes the minimal volume the tests format.
type testGeometry struct {
	volumeStart      uint32
	blocksPerCluster uint32
	reservedBlocks   uint32
	blocksPerFAT     uint32
	totalBlocks      uint32
	rootCluster      uint32
}

func defaultGeometry() testGeometry {
	return testGeometry{
		blocksPerCluster: 1,
		reservedBlocks:   32,
		blocksPerFAT:     2,
		totalBlocks:      4096,
		rootCluster:      2,
	}
}

func (g testGeometry) fatStart() uint32  { return g.volumeStart + g.reservedBlocks }
func (g testGeometry) dataStart() uint32 { return g.fatStart() + 2*g.blocksPerFAT }
func (g testGeometry) clusterBlock(cluster uint32) uint32 {
	return g.dataStart() + (cluster-2)*g.blocksPerCluster
}

// formatTestVolume writes a boot sector (and, for a non-zero volume start,
// a signature-less partition table at block 0) into the device.
func formatTestVolume(t *testing.T, d *memDevice, g testGeometry) {
	t.Helper()

	fat32 := FAT32SpecificData{
		FATSize:     g.blocksPerFAT,
		RootCluster: g.rootCluster,
	}
	fatRaw := bytes.Buffer{}
	if err := binary.Write(&fatRaw, binary.LittleEndian, &fat32); err != nil {
		t.Fatalf("encode FAT32 data: %v", err)
	}

	bpb := BPB{
		BSJumpBoot:          [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:      BlockSize,
		SectorsPerCluster:   byte(g.blocksPerCluster),
		ReservedSectorCount: uint16(g.reservedBlocks),
		NumFATs:             2,
		Media:               0xF8,
		TotalSectors32:      g.totalBlocks,
	}
	copy(bpb.FATSpecificData[:], fatRaw.Bytes())

	raw := bytes.Buffer{}
	if err := binary.Write(&raw, binary.LittleEndian, &bpb); err != nil {
		t.Fatalf("encode BPB: %v", err)
	}

	boot := make([]byte, BlockSize)
	copy(boot, raw.Bytes())
	boot[signatureOffset] = 0x55
	boot[signatureOffset+1] = 0xAA

	if err := d.WriteBlock(g.volumeStart, boot); err != nil {
		t.Fatalf("write boot sector: %v", err)
	}

	if g.volumeStart > 0 {
		mbr := make([]byte, BlockSize)
		binary.LittleEndian.PutUint32(mbr[partitionTableOffset+8:], g.volumeStart)
		if err := d.WriteBlock(0, mbr); err != nil {
			t.Fatalf("write partition table: %v", err)
		}
	}

	d.reads = 0
	d.writes = 0
}

// writeDirEntry puts a directory entry for the log file into the root
// directory block.
func writeDirEntry(t *testing.T, d *memDevice, g testGeometry, slot int, startCluster, size uint32) {
	t.Helper()

	entry := EntryHeader{
		Name:      logFileName,
		Attribute: attrArchive,
		FileSize:  size,
	}
	entry.SetStartCluster(startCluster)

	raw := bytes.Buffer{}
	if err := binary.Write(&raw, binary.LittleEndian, &entry); err != nil {
		t.Fatalf("encode directory entry: %v", err)
	}

	root := d.block(g.clusterBlock(g.rootCluster))
	copy(root[slot*dirEntrySize:], raw.Bytes())
	if err := d.WriteBlock(g.clusterBlock(g.rootCluster), root); err != nil {
		t.Fatalf("write root directory: %v", err)
	}

	d.reads = 0
	d.writes = 0
}

// mountTestVolume formats and mounts in one go.
func mountTestVolume(t *testing.T, d *memDevice, g testGeometry) *Volume {
	t.Helper()

	formatTestVolume(t, d, g)

	buf := make([]byte, BlockSize)
	v := newVolume(d, buf)
	if err := v.mount(); err != nil {
		t.Fatalf("mount() error = %v", err)
	}
	return v
}
