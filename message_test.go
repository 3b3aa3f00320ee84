package psrouter

import (
	"reflect"
	"testing"

	"github.com/gogo/protobuf/proto"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := &Message{
		From:      []byte("peer-a"),
		Data:      []byte("hello world"),
		Seqno:     []byte{0, 0, 0, 0, 0, 0, 0, 1},
		TopicIDs:  []string{"topic-a", "topic-b"},
		Signature: []byte("sig-bytes"),
		Key:       []byte("key-bytes"),
	}

	raw, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := UnmarshalMessage(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(m.From, got.From) ||
		!reflect.DeepEqual(m.Data, got.Data) ||
		!reflect.DeepEqual(m.Seqno, got.Seqno) ||
		!reflect.DeepEqual(m.TopicIDs, got.TopicIDs) ||
		!reflect.DeepEqual(m.Signature, got.Signature) ||
		!reflect.DeepEqual(m.Key, got.Key) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestMarshalOmitsAbsentFields(t *testing.T) {
	m := &Message{From: []byte("peer-a"), Data: []byte("x")}

	raw, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := UnmarshalMessage(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Signature) != 0 || len(got.Key) != 0 || len(got.TopicIDs) != 0 {
		t.Fatalf("expected absent fields to stay empty, got %+v", got)
	}
}

func TestMarshalForSigningExcludesSignatureAndKey(t *testing.T) {
	m := &Message{
		From:      []byte("peer-a"),
		Data:      []byte("hello"),
		Seqno:     []byte{1},
		TopicIDs:  []string{"t"},
		Signature: []byte("sig"),
		Key:       []byte("key"),
	}

	signingBytes, err := m.MarshalForSigning()
	if err != nil {
		t.Fatalf("marshal for signing: %v", err)
	}

	stripped := m.Clone()
	stripped.Signature = nil
	stripped.Key = nil
	strippedBytes, err := stripped.MarshalForSigning()
	if err != nil {
		t.Fatalf("marshal stripped for signing: %v", err)
	}

	if !reflect.DeepEqual(signingBytes, strippedBytes) {
		t.Fatal("MarshalForSigning must not depend on signature or key")
	}

	full, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if reflect.DeepEqual(signingBytes, full) {
		t.Fatal("MarshalForSigning must produce fewer bytes than full Marshal when a signature is present")
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	buf := proto.NewBuffer(nil)
	// An unknown varint field (tag 99) ahead of a known field.
	buf.EncodeVarint(uint64(99<<3 | wireVarint))
	buf.EncodeVarint(42)
	encodeTag(buf, tagData, wireBytes)
	if err := buf.EncodeRawBytes([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	got, err := UnmarshalMessage(buf.Bytes())
	if err != nil {
		t.Fatalf("unmarshal with unknown field: %v", err)
	}
	if string(got.Data) != "payload" {
		t.Fatalf("expected known field to survive an unknown one, got %q", got.Data)
	}
}

func TestUnmarshalSkipsUnknownFixed64AndFixed32Fields(t *testing.T) {
	buf := proto.NewBuffer(nil)
	// An unknown fixed64 field (tag 97) and an unknown fixed32 field (tag
	// 98) ahead of a known field.
	buf.EncodeVarint(uint64(97<<3 | wireFixed64))
	if err := buf.EncodeFixed64(0xdeadbeefdeadbeef); err != nil {
		t.Fatal(err)
	}
	buf.EncodeVarint(uint64(98<<3 | wireFixed32))
	if err := buf.EncodeFixed32(0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	encodeTag(buf, tagData, wireBytes)
	if err := buf.EncodeRawBytes([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	got, err := UnmarshalMessage(buf.Bytes())
	if err != nil {
		t.Fatalf("unmarshal with unknown fixed64/fixed32 fields: %v", err)
	}
	if string(got.Data) != "payload" {
		t.Fatalf("expected known field to survive unknown fixed64/fixed32 fields, got %q", got.Data)
	}
}

func TestCloneDoesNotAliasSlices(t *testing.T) {
	m := &Message{From: []byte("a"), TopicIDs: []string{"t"}}
	cp := m.Clone()
	cp.From[0] = 'z'
	cp.TopicIDs[0] = "changed"

	if m.From[0] == 'z' {
		t.Fatal("Clone must not alias From")
	}
	if m.TopicIDs[0] == "changed" {
		t.Fatal("Clone must not alias TopicIDs")
	}
}
