// Package wire implements the length-prefixed JSON frame codec and the
// Message envelope shared by every connection in the fabric: peer-tracker,
// client-peer, and peer-peer. Every body is a UTF-8 JSON object carrying a
// "type" field, prefixed on the wire by a 4-byte big-endian length, modeled
// on the teacher's length-prefixed WebSocket frames but adapted to raw TCP
// per the mandated wire format.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"unicode/utf8"

	"github.com/Snider/Fabric/pkg/ferrors"
)

// MaxFrameSize bounds a single frame body to guard against a malicious or
// buggy peer claiming a multi-gigabyte length prefix.
const MaxFrameSize = 64 * 1024 * 1024

// ReadFrame reads one length-prefixed body from r. It returns a
// *ferrors.FabricError with CodeCodec on a short length header, a length
// prefix exceeding MaxFrameSize, a truncated body, or invalid UTF-8.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, ferrors.Codec("short frame length header").WithCause(err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ferrors.Codec("frame length %d exceeds maximum %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ferrors.Codec("truncated frame body").WithCause(err)
	}
	if !utf8.Valid(body) {
		return nil, ferrors.Codec("frame body is not valid UTF-8")
	}
	return body, nil
}

// WriteFrame writes body prefixed by its 4-byte big-endian length.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return ferrors.Codec("frame length %d exceeds maximum %d", len(body), MaxFrameSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return ferrors.IOError("write frame header").WithCause(err)
	}
	if _, err := bw.Write(body); err != nil {
		return ferrors.IOError("write frame body").WithCause(err)
	}
	return bw.Flush()
}

// EncodeMessage marshals v to JSON and wraps CodecErrors around failures
// so callers never leak a raw json.MarshalerError across a connection
// boundary.
func EncodeMessage(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, ferrors.Codec("marshal message").WithCause(err)
	}
	return b, nil
}

// DecodeMessage unmarshals body into v, reporting malformed JSON as a
// CodecError.
func DecodeMessage(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return ferrors.Codec("unmarshal message").WithCause(err)
	}
	return nil
}

// WriteMessage encodes v and writes it as a single frame.
func WriteMessage(w io.Writer, v interface{}) error {
	body, err := EncodeMessage(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, body)
}

// ReadMessage reads one frame and decodes it into v.
func ReadMessage(r io.Reader, v interface{}) error {
	body, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return DecodeMessage(body, v)
}
