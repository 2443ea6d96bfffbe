package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/afero"
)

// ImageConfig describes the card image FormatImage builds. The defaults
// produced by DefaultImageConfig are small enough for in-memory tests and
// still look like a real freshly formatted card.
type ImageConfig struct {
	TotalBlocks      uint32
	BlocksPerCluster uint32
	ReservedBlocks   uint32
	// PartitionStart moves the volume behind an MBR-style partition table.
	// The table block carries no boot signature, so a host has to follow
	// the first partition entry to find the volume. Zero formats the
	// volume at block 0.
	PartitionStart uint32
}

func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		TotalBlocks:      4096,
		BlocksPerCluster: 8,
		ReservedBlocks:   32,
	}
}

// FormatImage creates a card image at path holding one empty FAT32 volume.
func FormatImage(fs afero.Fs, path string, cfg ImageConfig) error {
	if cfg.TotalBlocks == 0 || cfg.BlocksPerCluster == 0 || cfg.ReservedBlocks == 0 {
		return fmt.Errorf("invalid image config %+v", cfg)
	}

	img, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create card image: %w", err)
	}
	defer img.Close()

	if err := img.Truncate(int64(cfg.TotalBlocks) * blockSize); err != nil {
		return fmt.Errorf("size card image: %w", err)
	}

	volumeBlocks := cfg.TotalBlocks - cfg.PartitionStart
	fatBlocks := fatSize(volumeBlocks, cfg.BlocksPerCluster)

	if cfg.PartitionStart > 0 {
		mbr := make([]byte, blockSize)
		// First partition entry: type 0x0C (FAT32 LBA), start and size.
		mbr[0x1BE+4] = 0x0C
		binary.LittleEndian.PutUint32(mbr[0x1BE+8:], cfg.PartitionStart)
		binary.LittleEndian.PutUint32(mbr[0x1BE+12:], volumeBlocks)
		if _, err := img.WriteAt(mbr, 0); err != nil {
			return fmt.Errorf("write partition table: %w", err)
		}
	}

	boot := make([]byte, blockSize)
	boot[0] = 0xEB
	boot[1] = 0x58
	boot[2] = 0x90
	copy(boot[3:], "SOFTSD  ")
	binary.LittleEndian.PutUint16(boot[0x0B:], blockSize)
	boot[0x0D] = byte(cfg.BlocksPerCluster)
	binary.LittleEndian.PutUint16(boot[0x0E:], uint16(cfg.ReservedBlocks))
	boot[0x10] = 2 // FAT copies
	boot[0x15] = 0xF8
	binary.LittleEndian.PutUint32(boot[0x20:], volumeBlocks)
	binary.LittleEndian.PutUint32(boot[0x24:], fatBlocks)
	binary.LittleEndian.PutUint32(boot[0x2C:], 2) // root cluster
	boot[510] = 0x55
	boot[511] = 0xAA

	if _, err := img.WriteAt(boot, int64(cfg.PartitionStart)*blockSize); err != nil {
		return fmt.Errorf("write boot sector: %w", err)
	}

	// Seed both FAT copies: media entry, reserved entry, and the root
	// directory cluster terminated.
	fat := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(fat[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fat[4:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fat[8:], 0x0FFFFFFF)

	fatStart := cfg.PartitionStart + cfg.ReservedBlocks
	for copyIdx := uint32(0); copyIdx < 2; copyIdx++ {
		off := int64(fatStart+copyIdx*fatBlocks) * blockSize
		if _, err := img.WriteAt(fat, off); err != nil {
			return fmt.Errorf("write FAT: %w", err)
		}
	}

	return nil
}

// fatSize is the block count of one FAT copy: four bytes per cluster,
// rounded up to whole blocks.
func fatSize(volumeBlocks, blocksPerCluster uint32) uint32 {
	clusters := volumeBlocks / blocksPerCluster
	return (clusters*4 + blockSize - 1) / blockSize
}
