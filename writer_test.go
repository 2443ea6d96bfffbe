package softsd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRecord_appendTo(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "successful cycle",
			rec: Record{
				TimestampMS: 1500,
				Cycle:       7,
				Success:     true,
				InitTimeUS:  120000,
				WriteTimeUS: 4500,
				FreqHz:      4000000,
				BatteryMV:   3300,
				FreeHeap:    48000,
			},
			want: "1500,7,OK,0,120000,4500,4000000,3300,48000\n",
		},
		{
			name: "failed cycle",
			rec: Record{
				TimestampMS: 2000,
				Cycle:       8,
				Success:     false,
				ErrorCode:   4,
				FreqHz:      400000,
				BatteryMV:   3280,
			},
			want: "2000,8,FAIL,4,0,0,400000,3280,0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(tt.rec.appendTo(nil))
			if got != tt.want {
				t.Errorf("appendTo() = %q, want %q", got, tt.want)
			}
		})
	}
}

// The staging buffer must fit the header plus one maximal data row, so
// writeRecord's length guard can never fire for a real record.
func TestRecord_MaxLineFits(t *testing.T) {
	worst := Record{
		TimestampMS: 0xFFFFFFFF,
		Cycle:       0xFFFFFFFF,
		Success:     false,
		ErrorCode:   255,
		InitTimeUS:  0xFFFFFFFF,
		WriteTimeUS: 0xFFFFFFFF,
		FreqHz:      0xFFFFFFFF,
		BatteryMV:   0xFFFFFFFF,
		FreeHeap:    0xFFFFFFFF,
	}

	line := append([]byte(csvHeader), worst.appendTo(nil)...)
	if len(line) > maxLineSize {
		t.Errorf("header plus maximal row is %v bytes, staging holds %v", len(line), maxLineSize)
	}
}

func newTestWriter(dev *memDevice, startBlock, clusterBlocks uint32) *appendWriter {
	return &appendWriter{
		dev: dev,
		buf: make([]byte, BlockSize),
		cursor: Cursor{
			NextBlock:  startBlock,
			limitBlock: startBlock + clusterBlocks,
		},
	}
}

func TestAppendWriter_HeaderOnce(t *testing.T) {
	dev := newMemDevice()
	w := newTestWriter(dev, 100, 8)

	recs := []Record{
		{TimestampMS: 10, Cycle: 1, Success: true},
		{TimestampMS: 20, Cycle: 2, Success: true},
		{TimestampMS: 30, Cycle: 3, Success: false, ErrorCode: 1},
	}

	want := csvHeader
	for _, rec := range recs {
		if err := w.writeRecord(rec); err != nil {
			t.Fatalf("writeRecord(cycle %v) error = %v", rec.Cycle, err)
		}
		want += string(rec.appendTo(nil))
	}

	got := string(dev.fileContent(100, len(want)))
	if got != want {
		t.Errorf("file content = %q, want %q", got, want)
	}
	if n := strings.Count(got, "timestamp_ms"); n != 1 {
		t.Errorf("header appears %v times, want 1", n)
	}
	if !w.cursor.HeaderWritten {
		t.Error("HeaderWritten = false after a successful append")
	}
}

func TestAppendWriter_CrossesBlockBoundary(t *testing.T) {
	dev := newMemDevice()
	w := newTestWriter(dev, 100, 8)
	w.cursor.HeaderWritten = true

	// Append until a line straddles the first block boundary.
	var total string
	rec := Record{TimestampMS: 123456, Cycle: 1, Success: true, FreqHz: 4000000}
	for w.cursor.NextBlock == 100 {
		if err := w.writeRecord(rec); err != nil {
			t.Fatalf("writeRecord() error = %v", err)
		}
		total += string(rec.appendTo(nil))
		rec.Cycle++
		rec.TimestampMS += 1000
	}

	if w.cursor.NextBlock != 101 {
		t.Fatalf("NextBlock = %v, want 101", w.cursor.NextBlock)
	}
	if want := uint32(len(total) % BlockSize); w.cursor.ByteOffset != want {
		t.Errorf("ByteOffset = %v, want %v", w.cursor.ByteOffset, want)
	}

	got := string(dev.fileContent(100, len(total)))
	if got != total {
		t.Errorf("file content mismatch after block crossing:\ngot  %q\nwant %q", got, total)
	}
}

func TestAppendWriter_StartsAfterHeader(t *testing.T) {
	// An existing file's cursor comes in with HeaderWritten set; the first
	// append then has no header in it.
	dev := newMemDevice()
	w := newTestWriter(dev, 100, 8)
	w.cursor.HeaderWritten = true

	rec := Record{TimestampMS: 10, Cycle: 1, Success: true}
	if err := w.writeRecord(rec); err != nil {
		t.Fatalf("writeRecord() error = %v", err)
	}

	want := string(rec.appendTo(nil))
	got := string(dev.fileContent(100, len(want)))
	if got != want {
		t.Errorf("file content = %q, want %q", got, want)
	}
}

func TestAppendWriter_PreservesPartialBlock(t *testing.T) {
	dev := newMemDevice()

	// Block 100 already holds 40 bytes from an earlier session.
	existing := make([]byte, BlockSize)
	copy(existing, []byte(strings.Repeat("x", 40)))
	dev.blocks[100] = existing

	w := newTestWriter(dev, 100, 8)
	w.cursor.ByteOffset = 40
	w.cursor.HeaderWritten = true

	rec := Record{TimestampMS: 10, Cycle: 1, Success: true}
	if err := w.writeRecord(rec); err != nil {
		t.Fatalf("writeRecord() error = %v", err)
	}

	want := strings.Repeat("x", 40) + string(rec.appendTo(nil))
	got := string(dev.fileContent(100, len(want)))
	if got != want {
		t.Errorf("file content = %q, want %q", got, want)
	}
}

func TestAppendWriter_FailedWriteKeepsCursor(t *testing.T) {
	dev := newMemDevice()
	w := newTestWriter(dev, 100, 8)

	before := w.cursor
	dev.writeErr = errors.New("write rejected")

	err := w.writeRecord(Record{TimestampMS: 10, Cycle: 1})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("writeRecord() error = %v, want ErrWriteFailed", err)
	}

	if w.cursor != before {
		t.Errorf("cursor = %+v after failed write, want %+v", w.cursor, before)
	}
	if w.cursor.HeaderWritten {
		t.Error("HeaderWritten = true although nothing was persisted")
	}

	// The retry after recovery stages the header again.
	dev.writeErr = nil
	rec := Record{TimestampMS: 10, Cycle: 1}
	if err := w.writeRecord(rec); err != nil {
		t.Fatalf("writeRecord() retry error = %v", err)
	}

	want := csvHeader + string(rec.appendTo(nil))
	got := string(dev.fileContent(100, len(want)))
	if got != want {
		t.Errorf("file content = %q, want %q", got, want)
	}
}

func TestAppendWriter_ClusterFull(t *testing.T) {
	dev := newMemDevice()
	w := newTestWriter(dev, 100, 1)
	w.cursor.NextBlock = 101 // past the single-block cluster
	w.cursor.HeaderWritten = true

	err := w.writeRecord(Record{TimestampMS: 10, Cycle: 1})
	if !errors.Is(err, ErrClusterFull) {
		t.Fatalf("writeRecord() error = %v, want ErrClusterFull", err)
	}
	if dev.writes != 0 {
		t.Errorf("writeRecord() wrote %v blocks past the cluster end", dev.writes)
	}
}

func TestAppendWriter_FillsWholeCluster(t *testing.T) {
	dev := newMemDevice()
	w := newTestWriter(dev, 100, 1)
	w.cursor.HeaderWritten = true

	rec := Record{TimestampMS: 1, Cycle: 1, Success: true}
	var total bytes.Buffer

	for {
		err := w.writeRecord(rec)
		if errors.Is(err, ErrClusterFull) {
			break
		}
		if err != nil {
			t.Fatalf("writeRecord() error = %v", err)
		}
		total.Write(rec.appendTo(nil))
		rec.Cycle++

		if rec.Cycle > 100 {
			t.Fatal("cluster never filled up")
		}
	}

	// Everything accepted before the cluster ran out must be intact.
	got := dev.fileContent(100, total.Len())
	if !bytes.Equal(got, total.Bytes()) {
		t.Error("file content mismatch after filling the cluster")
	}
	if w.cursor.NextBlock > 101 {
		t.Errorf("NextBlock = %v, went past the cluster", w.cursor.NextBlock)
	}
}
