// File model contains the structs which match the on-disk structures of a
// FAT32 volume and the MBR partition table.

package softsd

// BlockSize is the fixed transfer unit of the card. It is also the only
// sector size the volume manager accepts.
const BlockSize = 512

// BPB is the common part of the boot sector shared by all FAT variants.
// The FAT32 specific tail is decoded separately from FATSpecificData.
type BPB struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

// FAT32SpecificData is the FAT32 part of the boot sector.
type FAT32SpecificData struct {
	FATSize          uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfo           uint16
	BkBootSector     uint16
	Reserved         [12]byte
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeID       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

// EntryHeader is one 32-byte directory entry.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// StartCluster joins the split cluster halves of the entry.
func (e *EntryHeader) StartCluster() uint32 {
	return uint32(e.FirstClusterHI)<<16 | uint32(e.FirstClusterLO)
}

// SetStartCluster splits cluster across the two 16-bit entry fields.
func (e *EntryHeader) SetStartCluster(cluster uint32) {
	e.FirstClusterHI = uint16(cluster >> 16)
	e.FirstClusterLO = uint16(cluster)
}

// PartitionEntry is one slot of the MBR partition table.
type PartitionEntry struct {
	Status   byte
	FirstCHS [3]byte
	Type     byte
	LastCHS  [3]byte
	FirstLBA uint32
	Sectors  uint32
}

const (
	signatureOffset      = 510   // 0x55 0xAA at the end of boot sector and MBR
	partitionTableOffset = 0x1BE // first PartitionEntry

	entryFree     = 0xE5 // deleted directory entry, reusable
	entryEndOfDir = 0x00 // terminates the directory scan

	attrArchive = 0x20

	endOfChain = 0x0FFFFFFF // FAT32 end-of-chain marker

	dirEntrySize       = 32
	dirEntriesPerBlock = BlockSize / dirEntrySize
)

func hasBootSignature(block []byte) bool {
	return block[signatureOffset] == 0x55 && block[signatureOffset+1] == 0xAA
}
