package codec

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a stdio-tunnel line exceeds twice the
// negotiated max_data_size without a newline, per spec §6.
var ErrFrameTooLarge = errors.New("stdio frame exceeds size limit")

// StdioFrameWriter serializes one message per line: the codec's bytes,
// base64-encoded, followed by a newline (spec §6 "Stdio-tunnel bridge
// framing").
type StdioFrameWriter struct {
	w io.Writer
}

// NewStdioFrameWriter wraps w.
func NewStdioFrameWriter(w io.Writer) *StdioFrameWriter {
	return &StdioFrameWriter{w: w}
}

// WriteFrame base64-encodes payload and appends a trailing newline.
func (s *StdioFrameWriter) WriteFrame(payload []byte) error {
	encoded := base64.StdEncoding.EncodeToString(payload)
	_, err := fmt.Fprintf(s.w, "%s\n", encoded)
	return err
}

// StdioFrameReader scans for newline-delimited base64 lines, rejecting
// anything beyond twice maxDataSize as a decode error.
type StdioFrameReader struct {
	scanner     *bufio.Scanner
	maxDataSize int
}

// NewStdioFrameReader wraps r, sizing the scan buffer to the negotiated
// max_data_size so a legitimate maximal frame is never truncated.
func NewStdioFrameReader(r io.Reader, maxDataSize int) *StdioFrameReader {
	sc := bufio.NewScanner(r)
	limit := maxDataSize * 2
	if limit < bufio.MaxScanTokenSize {
		limit = bufio.MaxScanTokenSize
	}
	sc.Buffer(make([]byte, 0, 4096), limit)
	return &StdioFrameReader{scanner: sc, maxDataSize: maxDataSize}
}

// ReadFrame reads one line and base64-decodes it. It returns io.EOF when
// the underlying stream is exhausted, and ErrFrameTooLarge when a line
// exceeds twice max_data_size without a newline.
func (s *StdioFrameReader) ReadFrame() ([]byte, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return nil, ErrFrameTooLarge
			}
			return nil, err
		}
		return nil, io.EOF
	}
	line := s.scanner.Bytes()
	if len(line) > s.maxDataSize*2 {
		return nil, ErrFrameTooLarge
	}
	decoded, err := base64.StdEncoding.DecodeString(string(line))
	if err != nil {
		return nil, fmt.Errorf("stdio frame base64 decode: %w", err)
	}
	return decoded, nil
}
