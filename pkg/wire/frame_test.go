package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/Snider/Fabric/pkg/ferrors"
	"github.com/Snider/Fabric/pkg/value"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []value.Value{
		value.Null(),
		value.Bool(true),
		value.Int(42),
		value.Float(3.25),
		value.String("hello"),
		value.List([]value.Value{value.Int(1), value.String("a")}),
		value.Map(map[string]value.Value{"k": value.Int(7)}),
	}
	for _, in := range cases {
		var buf bytes.Buffer
		if err := WriteMessage(&buf, in); err != nil {
			t.Fatalf("write: %v", err)
		}
		var out value.Value
		if err := ReadMessage(&buf, &out); err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(value.Canonical(in), value.Canonical(out)) {
			t.Fatalf("round trip mismatch: in=%s out=%s", value.Canonical(in), value.Canonical(out))
		}
	}
}

func TestFrameTruncatedBodyIsCodecError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, RegisterBody{Type: TypeRegister, IP: "10.0.0.1", Port: 9001}); err != nil {
		t.Fatalf("write: %v", err)
	}
	full := buf.Bytes()
	truncated := full[:len(full)-1]

	var out RegisterBody
	err := ReadMessage(bytes.NewReader(truncated), &out)
	if err == nil {
		t.Fatalf("expected error on truncated frame")
	}
	fe, ok := err.(*ferrors.FabricError)
	if !ok {
		t.Fatalf("expected *ferrors.FabricError, got %T", err)
	}
	if fe.Code != ferrors.CodeCodec {
		t.Fatalf("expected CodeCodec, got %s", fe.Code)
	}
}

func TestFrameInvalidJSONIsCodecError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("not json")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	var out RegisterBody
	err := ReadMessage(&buf, &out)
	if err == nil {
		t.Fatalf("expected error on invalid JSON")
	}
	fe, ok := err.(*ferrors.FabricError)
	if !ok || fe.Code != ferrors.CodeCodec {
		t.Fatalf("expected CodeCodec FabricError, got %v", err)
	}
}

func TestFrameInvalidUTF8IsCodecError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte{0xff, 0xfe, 0xfd}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatalf("expected error on invalid UTF-8")
	}
	fe, ok := err.(*ferrors.FabricError)
	if !ok || fe.Code != ferrors.CodeCodec {
		t.Fatalf("expected CodeCodec FabricError, got %v", err)
	}
}

func TestFrameShortLengthHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	if err == nil {
		t.Fatalf("expected error on short length header")
	}
	fe, ok := err.(*ferrors.FabricError)
	if !ok || fe.Code != ferrors.CodeCodec {
		t.Fatalf("expected CodeCodec FabricError, got %v", err)
	}
}

func TestFrameEOFOnEmptyReader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty reader, got %v", err)
	}
}

func TestFrameExceedsMaxSize(t *testing.T) {
	oversized := make([]byte, 16)
	oversized[0] = 0xff
	oversized[1] = 0xff
	oversized[2] = 0xff
	oversized[3] = 0xff
	_, err := ReadFrame(bytes.NewReader(oversized))
	if err == nil {
		t.Fatalf("expected error for oversized frame")
	}
}
