// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// magic opens every journal stream: format name plus version.
var magic = []byte("PARLEYJ1")

// Direction distinguishes traffic sent to the device from traffic
// received from it.
type Direction uint8

const (
	// Sent is host-to-device traffic.
	Sent Direction = 0

	// Received is device-to-host traffic.
	Received Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Record is one journaled chunk.
type Record struct {
	// Time is when the chunk crossed the connection.
	Time time.Time `cbor:"time"`

	// Direction is Sent or Received.
	Direction Direction `cbor:"dir"`

	// Data is the verbatim chunk.
	Data []byte `cbor:"data"`
}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	// Timestamps keep sub-second precision; the default integer-epoch
	// mode truncates to whole seconds.
	encOptions.Time = cbor.TimeUnixMicro
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

// Writer appends records to a journal stream. Safe for concurrent
// use: the command goroutine records sends while the delivery
// goroutine records receives.
type Writer struct {
	tag CompressionTag

	mu  sync.Mutex
	out *bufio.Writer
	err error
}

// NewWriter starts a journal on out with the given per-record
// compression. The stream header is written immediately.
func NewWriter(out io.Writer, tag CompressionTag) (*Writer, error) {
	w := &Writer{tag: tag, out: bufio.NewWriter(out)}
	if _, err := w.out.Write(magic); err != nil {
		return nil, fmt.Errorf("writing journal header: %w", err)
	}
	return w, nil
}

// Append writes one record. After the first write error every
// subsequent Append returns that same error.
func (w *Writer) Append(record Record) error {
	payload, err := encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding journal record: %w", err)
	}

	tag := w.tag
	compressed, err := compress(payload, tag)
	if errors.Is(err, errIncompressible) {
		tag, compressed = CompressionNone, payload
	} else if err != nil {
		return fmt.Errorf("compressing journal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.err = w.writeFrame(tag, len(payload), compressed)
	return w.err
}

// writeFrame emits one frame: tag byte, uncompressed size, payload
// size, payload. Sizes are uvarints. Caller holds w.mu.
func (w *Writer) writeFrame(tag CompressionTag, uncompressedSize int, payload []byte) error {
	var sizes [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(sizes[:], uint64(uncompressedSize))
	n += binary.PutUvarint(sizes[n:], uint64(len(payload)))

	if err := w.out.WriteByte(byte(tag)); err != nil {
		return fmt.Errorf("writing journal frame: %w", err)
	}
	if _, err := w.out.Write(sizes[:n]); err != nil {
		return fmt.Errorf("writing journal frame: %w", err)
	}
	if _, err := w.out.Write(payload); err != nil {
		return fmt.Errorf("writing journal frame: %w", err)
	}
	return nil
}

// Flush pushes buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.err = w.out.Flush()
	return w.err
}

// Reader reads a journal stream.
type Reader struct {
	in *bufio.Reader
}

// NewReader opens a journal stream, verifying its header.
func NewReader(in io.Reader) (*Reader, error) {
	r := &Reader{in: bufio.NewReader(in)}
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r.in, header); err != nil {
		return nil, fmt.Errorf("reading journal header: %w", err)
	}
	if string(header) != string(magic) {
		return nil, fmt.Errorf("not a journal: bad header %q", header)
	}
	return r, nil
}

// Next returns the next record, or io.EOF at a clean end of stream.
func (r *Reader) Next() (*Record, error) {
	tagByte, err := r.in.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading journal frame: %w", err)
	}
	uncompressedSize, err := binary.ReadUvarint(r.in)
	if err != nil {
		return nil, fmt.Errorf("reading journal frame: %w", truncated(err))
	}
	payloadSize, err := binary.ReadUvarint(r.in)
	if err != nil {
		return nil, fmt.Errorf("reading journal frame: %w", truncated(err))
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r.in, payload); err != nil {
		return nil, fmt.Errorf("reading journal frame: %w", truncated(err))
	}
	decoded, err := decompress(payload, CompressionTag(tagByte), int(uncompressedSize))
	if err != nil {
		return nil, err
	}

	var record Record
	if err := decMode.Unmarshal(decoded, &record); err != nil {
		return nil, fmt.Errorf("decoding journal record: %w", err)
	}
	return &record, nil
}

// Replay feeds every received chunk, in order, to feed — the same
// byte sequence the live session's subscribers saw. Sent records are
// skipped.
func (r *Reader) Replay(feed func(chunk []byte)) error {
	for {
		record, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.Direction == Received {
			feed(record.Data)
		}
	}
}

// truncated turns a mid-frame EOF into an unambiguous corruption
// error: io.EOF is reserved for clean stream ends.
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
