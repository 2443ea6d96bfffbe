package softsd

import (
	"bytes"
	"encoding/binary"

	"github.com/quenot/softsd/checkpoint"
)

// logFileName is the 8.3 directory entry name of the log file,
// space padded: "SD_TEST.CSV". Name comparison is exact-byte.
var logFileName = [11]byte{'S', 'D', '_', 'T', 'E', 'S', 'T', ' ', 'C', 'S', 'V'}

// newFileCluster is the cluster claimed for a freshly created log file.
// There is no free-cluster search; on a freshly formatted volume cluster 2
// is the root directory and cluster 3 is the first one available.
const newFileCluster = 3

// Cursor is the byte-accurate append position inside the log file.
type Cursor struct {
	NextBlock     uint32
	ByteOffset    uint32 // 0..511
	HeaderWritten bool

	// limitBlock is the first block past the allocated cluster. The file
	// never grows beyond its single cluster, see the package notes.
	limitBlock uint32
}

// Volume is the mounted FAT32 geometry. It owns no storage of its own;
// every read and write goes through the single shared sector buffer.
type Volume struct {
	dev BlockDevice
	buf []byte

	blocksPerCluster uint32
	reservedBlocks   uint32
	fatCopies        uint32
	blocksPerFAT     uint32
	rootCluster      uint32
	fatStartBlock    uint32
	dataStartBlock   uint32
	totalBlocks      uint32
}

func newVolume(dev BlockDevice, buf []byte) *Volume {
	return &Volume{dev: dev, buf: buf}
}

// mount scans the boot sector and populates the volume geometry. If block 0
// carries no boot signature it is reinterpreted as a partition table and
// the first partition's start block is scanned instead; anything else is a
// volume error.
func (v *Volume) mount() error {
	if err := v.dev.ReadBlock(0, v.buf); err != nil {
		return checkpoint.Wrap(err, ErrVolume)
	}

	var volumeStart uint32
	if !hasBootSignature(v.buf) {
		var table [4]PartitionEntry
		err := binary.Read(bytes.NewReader(v.buf[partitionTableOffset:]), binary.LittleEndian, &table)
		if err != nil {
			return checkpoint.Wrap(err, ErrVolume)
		}

		volumeStart = table[0].FirstLBA
		if volumeStart == 0 {
			return checkpoint.From(ErrVolume)
		}

		if err := v.dev.ReadBlock(volumeStart, v.buf); err != nil {
			return checkpoint.Wrap(err, ErrVolume)
		}
		if !hasBootSignature(v.buf) {
			return checkpoint.From(ErrVolume)
		}
	}

	bpb := BPB{}
	if err := binary.Read(bytes.NewReader(v.buf), binary.LittleEndian, &bpb); err != nil {
		return checkpoint.Wrap(err, ErrVolume)
	}

	fat32 := FAT32SpecificData{}
	if err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &fat32); err != nil {
		return checkpoint.Wrap(err, ErrVolume)
	}

	if bpb.BytesPerSector != BlockSize {
		return checkpoint.From(ErrVolume)
	}
	if bpb.SectorsPerCluster == 0 || bpb.NumFATs == 0 || fat32.FATSize == 0 {
		return checkpoint.From(ErrVolume)
	}

	v.blocksPerCluster = uint32(bpb.SectorsPerCluster)
	v.reservedBlocks = uint32(bpb.ReservedSectorCount)
	v.fatCopies = uint32(bpb.NumFATs)
	v.blocksPerFAT = fat32.FATSize
	v.rootCluster = fat32.RootCluster

	if bpb.TotalSectors32 != 0 {
		v.totalBlocks = bpb.TotalSectors32
	} else {
		v.totalBlocks = uint32(bpb.TotalSectors16)
	}

	v.fatStartBlock = volumeStart + v.reservedBlocks
	v.dataStartBlock = v.fatStartBlock + v.fatCopies*v.blocksPerFAT

	return nil
}

// TotalBlocks is the block count the volume reports for itself.
func (v *Volume) TotalBlocks() uint32 {
	return v.totalBlocks
}

func (v *Volume) clusterToBlock(cluster uint32) uint32 {
	return v.dataStartBlock + (cluster-2)*v.blocksPerCluster
}

// findOrCreateFile scans the first root directory block for the log file.
// An existing entry seeds the cursor from the recorded file size and marks
// the header as already persisted. Otherwise a fresh entry is written into
// the first free slot and its cluster is marked end-of-chain in the first
// FAT copy.
func (v *Volume) findOrCreateFile() (Cursor, error) {
	rootBlock := v.clusterToBlock(v.rootCluster)

	if err := v.dev.ReadBlock(rootBlock, v.buf); err != nil {
		return Cursor{}, checkpoint.Wrap(err, ErrFileOpen)
	}

	freeSlot := -1
	for i := 0; i < dirEntriesPerBlock; i++ {
		slot := v.buf[i*dirEntrySize : (i+1)*dirEntrySize]

		if slot[0] == entryEndOfDir {
			if freeSlot < 0 {
				freeSlot = i
			}
			break
		}

		if slot[0] == entryFree {
			if freeSlot < 0 {
				freeSlot = i
			}
			continue
		}

		if !bytes.Equal(slot[:11], logFileName[:]) {
			continue
		}

		entry := EntryHeader{}
		if err := binary.Read(bytes.NewReader(slot), binary.LittleEndian, &entry); err != nil {
			return Cursor{}, checkpoint.Wrap(err, ErrFileOpen)
		}

		start := v.clusterToBlock(entry.StartCluster())
		return Cursor{
			NextBlock:     start + entry.FileSize/BlockSize,
			ByteOffset:    entry.FileSize % BlockSize,
			HeaderWritten: true,
			limitBlock:    start + v.blocksPerCluster,
		}, nil
	}

	if freeSlot < 0 {
		return Cursor{}, checkpoint.Wrap(ErrDirectoryFull, ErrFileOpen)
	}

	return v.createFile(rootBlock, freeSlot)
}

// createFile claims newFileCluster for the log file: the directory entry is
// written into the given slot of the root block (still in the sector
// buffer) and the cluster is terminated in the FAT.
func (v *Volume) createFile(rootBlock uint32, slot int) (Cursor, error) {
	entry := EntryHeader{
		Name:      logFileName,
		Attribute: attrArchive,
	}
	entry.SetStartCluster(newFileCluster)

	raw := bytes.Buffer{}
	if err := binary.Write(&raw, binary.LittleEndian, &entry); err != nil {
		return Cursor{}, checkpoint.Wrap(err, ErrFileOpen)
	}
	copy(v.buf[slot*dirEntrySize:], raw.Bytes())

	if err := v.dev.WriteBlock(rootBlock, v.buf); err != nil {
		return Cursor{}, checkpoint.Wrap(err, ErrFileOpen)
	}

	// Mark the cluster as end-of-chain in the first FAT copy. Entries are
	// 4 bytes, so a low cluster index always lands in the FAT's first
	// block.
	if err := v.dev.ReadBlock(v.fatStartBlock, v.buf); err != nil {
		return Cursor{}, checkpoint.Wrap(err, ErrFileOpen)
	}

	binary.LittleEndian.PutUint32(v.buf[newFileCluster*4%BlockSize:], endOfChain)

	if err := v.dev.WriteBlock(v.fatStartBlock, v.buf); err != nil {
		return Cursor{}, checkpoint.Wrap(err, ErrFileOpen)
	}

	start := v.clusterToBlock(newFileCluster)
	return Cursor{
		NextBlock:  start,
		limitBlock: start + v.blocksPerCluster,
	}, nil
}
