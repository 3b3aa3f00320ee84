package psrouter

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
	varint "github.com/multiformats/go-varint"
)

// Field tags for the canonical Message encoding. Order and numbering are
// fixed; decoding ignores any tag not listed here.
const (
	tagFrom      = 1
	tagData      = 2
	tagSeqno     = 3
	tagTopicIDs  = 4
	tagSignature = 5
	tagKey       = 6

	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// Message is the RPC message record: origin, payload, sequence, topics,
// and an optional signature. ReceivedFrom is local bookkeeping only — the
// base58 id of the direct neighbour that delivered this message — and is
// never part of the wire encoding.
type Message struct {
	From      []byte
	Data      []byte
	Seqno     []byte
	TopicIDs  []string
	Signature []byte
	Key       []byte

	// ReceivedFrom is set by the router when a message arrives on an
	// inbound stream. It is local-only.
	ReceivedFrom string
}

// Clone returns a deep-enough copy of m suitable for signing or mutation
// without aliasing the caller's slices.
func (m *Message) Clone() *Message {
	cp := &Message{
		From:         append([]byte(nil), m.From...),
		Data:         append([]byte(nil), m.Data...),
		Seqno:        append([]byte(nil), m.Seqno...),
		TopicIDs:     append([]string(nil), m.TopicIDs...),
		ReceivedFrom: m.ReceivedFrom,
	}
	if m.Signature != nil {
		cp.Signature = append([]byte(nil), m.Signature...)
	}
	if m.Key != nil {
		cp.Key = append([]byte(nil), m.Key...)
	}
	return cp
}

func encodeTag(buf *proto.Buffer, field int, wire int) {
	buf.EncodeVarint(uint64(field<<3 | wire))
}

// marshalFields appends fields 1-4 (from, data, seqno, topicIDs) to buf.
// This is exactly the byte range that is signed: the signature is computed
// over the message with signature and key fields absent.
func (m *Message) marshalFields(buf *proto.Buffer) error {
	if len(m.From) > 0 {
		encodeTag(buf, tagFrom, wireBytes)
		if err := buf.EncodeRawBytes(m.From); err != nil {
			return err
		}
	}
	if len(m.Data) > 0 {
		encodeTag(buf, tagData, wireBytes)
		if err := buf.EncodeRawBytes(m.Data); err != nil {
			return err
		}
	}
	if len(m.Seqno) > 0 {
		encodeTag(buf, tagSeqno, wireBytes)
		if err := buf.EncodeRawBytes(m.Seqno); err != nil {
			return err
		}
	}
	for _, t := range m.TopicIDs {
		encodeTag(buf, tagTopicIDs, wireBytes)
		if err := buf.EncodeRawBytes([]byte(t)); err != nil {
			return err
		}
	}
	return nil
}

// MarshalForSigning encodes m without its signature and key fields, per
// the signing module's canonicalisation rule.
func (m *Message) MarshalForSigning() ([]byte, error) {
	buf := proto.NewBuffer(nil)
	if err := m.marshalFields(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal encodes m in full, including signature and key when present.
// Encoding never emits fields that are absent.
func (m *Message) Marshal() ([]byte, error) {
	buf := proto.NewBuffer(nil)
	if err := m.marshalFields(buf); err != nil {
		return nil, err
	}
	if len(m.Signature) > 0 {
		encodeTag(buf, tagSignature, wireBytes)
		if err := buf.EncodeRawBytes(m.Signature); err != nil {
			return nil, err
		}
	}
	if len(m.Key) > 0 {
		encodeTag(buf, tagKey, wireBytes)
		if err := buf.EncodeRawBytes(m.Key); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalMessage decodes a Message from its canonical encoding. Unknown
// fields are skipped rather than rejected, so that a future field addition
// does not break older readers. gogo's proto.Buffer has no exported way to
// query how many bytes remain (no Len, no Unread), so decoding walks data
// itself with a local cursor, in the same hand-rolled style protoc-generated
// Unmarshal methods use.
func UnmarshalMessage(data []byte) (*Message, error) {
	m := &Message{}
	i := 0
	for i < len(data) {
		tag, n, err := varint.FromUvarint(data[i:])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("psrouter: decode message tag: invalid varint")
		}
		i += n
		field := int(tag >> 3)
		wire := int(tag & 7)

		switch wire {
		case wireVarint:
			_, n, err := varint.FromUvarint(data[i:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("psrouter: skip unknown varint field %d: invalid varint", field)
			}
			i += n

		case wireFixed64:
			if len(data)-i < 8 {
				return nil, fmt.Errorf("psrouter: skip unknown fixed64 field %d: truncated", field)
			}
			i += 8

		case wireFixed32:
			if len(data)-i < 4 {
				return nil, fmt.Errorf("psrouter: skip unknown fixed32 field %d: truncated", field)
			}
			i += 4

		case wireBytes:
			length, n, err := varint.FromUvarint(data[i:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("psrouter: decode field %d length: invalid varint", field)
			}
			i += n
			if uint64(len(data)-i) < length {
				return nil, fmt.Errorf("psrouter: decode field %d: truncated payload", field)
			}
			raw := append([]byte(nil), data[i:i+int(length)]...)
			i += int(length)

			switch field {
			case tagFrom:
				m.From = raw
			case tagData:
				m.Data = raw
			case tagSeqno:
				m.Seqno = raw
			case tagTopicIDs:
				m.TopicIDs = append(m.TopicIDs, string(raw))
			case tagSignature:
				m.Signature = raw
			case tagKey:
				m.Key = raw
			default:
				// unknown field: already consumed, ignored.
			}

		default:
			return nil, fmt.Errorf("psrouter: unsupported wire type %d for field %d", wire, field)
		}
	}
	return m, nil
}
