package psrouter

import (
	"io"

	"github.com/libp2p/go-msgio"
	varint "github.com/multiformats/go-varint"
)

// DefaultMaxFrameSize bounds a single frame's payload when no explicit
// ceiling is configured. It mirrors the teacher's DefaultMaxMessageSize.
const DefaultMaxFrameSize = 1 << 20

// FrameReader decodes a stream of varint(length)||payload frames. It is a
// thin wrapper over msgio's varint reader so that every malformed-framing
// condition (truncated length, truncated payload, oversized payload) comes
// back through a single sentinel: ErrMalformedFrame.
type FrameReader struct {
	r msgio.ReadCloser
}

// NewFrameReader wraps r, rejecting any frame whose declared length
// exceeds maxSize. A maxSize of 0 falls back to DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: msgio.NewVarintReaderSize(r, maxSize)}
}

// ReadFrame reads the next frame. It returns io.EOF, unwrapped, when the
// underlying stream ends cleanly between frames; any other read failure is
// reported as ErrMalformedFrame.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	msg, err := fr.r.ReadMsg()
	if err != nil {
		fr.r.ReleaseMsg(msg)
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ErrMalformedFrame
	}
	return msg, nil
}

// Release returns a frame's backing buffer to the reader's pool. Callers
// must not use buf after calling Release.
func (fr *FrameReader) Release(buf []byte) {
	fr.r.ReleaseMsg(buf)
}

// Close releases the underlying reader's resources.
func (fr *FrameReader) Close() error {
	return fr.r.Close()
}

// FrameOverhead returns the number of bytes the varint length prefix for a
// payload of payloadLen bytes will occupy on the wire, on top of the
// payload itself.
func FrameOverhead(payloadLen int) int {
	return varint.UvarintSize(uint64(payloadLen))
}

// FrameWriter encodes payloads as varint(length)||payload frames onto the
// wrapped writer.
type FrameWriter struct {
	w msgio.WriteCloser
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: msgio.NewVarintWriter(w)}
}

// WriteFrame writes a single frame. Frame boundaries are preserved:
// concurrent callers must serialise their own calls (PeerStream does this
// via its single outbound writer goroutine).
func (fw *FrameWriter) WriteFrame(b []byte) error {
	return fw.w.WriteMsg(b)
}

// Close closes the underlying writer.
func (fw *FrameWriter) Close() error {
	return fw.w.Close()
}
