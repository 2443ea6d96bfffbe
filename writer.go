package softsd

import (
	"fmt"

	"github.com/quenot/softsd/checkpoint"
)

// csvHeader names the record fields. It is written exactly once, before
// the first data line of a fresh file.
const csvHeader = "timestamp_ms,cycle,status,error_code,init_time_us,write_time_us,spi_freq_hz,vbat_mv,free_heap\n"

// maxLineSize bounds one staged line: the header plus one data row on the
// first write, one data row afterwards.
const maxLineSize = 192

// Record is one measurement row of the log file.
type Record struct {
	TimestampMS uint32
	Cycle       uint32
	Success     bool
	ErrorCode   uint8
	InitTimeUS  uint32
	WriteTimeUS uint32
	FreqHz      uint32
	BatteryMV   uint32
	FreeHeap    uint32
}

// appendTo formats the record as one newline-terminated CSV line.
func (r Record) appendTo(line []byte) []byte {
	status := "FAIL"
	if r.Success {
		status = "OK"
	}

	return fmt.Appendf(line, "%d,%d,%s,%d,%d,%d,%d,%d,%d\n",
		r.TimestampMS, r.Cycle, status, r.ErrorCode,
		r.InitTimeUS, r.WriteTimeUS, r.FreqHz, r.BatteryMV, r.FreeHeap)
}

// appendWriter appends formatted records to the log file through the
// shared sector buffer. Its cursor only moves on success: a failed write
// leaves block index and offset untouched, so a later retry restages the
// same bytes.
type appendWriter struct {
	dev    BlockDevice
	buf    []byte
	cursor Cursor
}

// writeRecord stages one line and copies it into the file block by block.
// Oversized lines are rejected before any device I/O happens. The header
// flag becomes permanently true with the first successful call; a write
// failure never causes the header to be emitted again.
//
// The directory entry's size field is deliberately not rewritten here;
// the next mount derives the cursor from the entry scan instead. That
// trades exact FAT bookkeeping for one write per record.
func (w *appendWriter) writeRecord(rec Record) error {
	var staging [maxLineSize]byte

	line := staging[:0]
	if !w.cursor.HeaderWritten {
		line = append(line, csvHeader...)
	}
	line = rec.appendTo(line)

	if len(line) > maxLineSize {
		return checkpoint.From(ErrRecordTooLong)
	}

	// Work on a copy, commit on success.
	cur := w.cursor

	// A partially filled block has to be read back first so the bytes
	// already in it survive.
	if cur.ByteOffset > 0 {
		if err := w.dev.ReadBlock(cur.NextBlock, w.buf); err != nil {
			return checkpoint.Wrap(err, ErrWriteFailed)
		}
	} else {
		zeroBlock(w.buf)
	}

	written := 0
	for written < len(line) {
		if cur.NextBlock >= cur.limitBlock {
			return checkpoint.From(ErrClusterFull)
		}

		n := copy(w.buf[cur.ByteOffset:], line[written:])
		cur.ByteOffset += uint32(n)
		written += n

		if cur.ByteOffset >= BlockSize || written >= len(line) {
			if err := w.dev.WriteBlock(cur.NextBlock, w.buf); err != nil {
				return checkpoint.Wrap(err, ErrWriteFailed)
			}

			if cur.ByteOffset >= BlockSize {
				cur.NextBlock++
				cur.ByteOffset = 0
				zeroBlock(w.buf)
			}
		}
	}

	cur.HeaderWritten = true
	w.cursor = cur

	return nil
}

func zeroBlock(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
