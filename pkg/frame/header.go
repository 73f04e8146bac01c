// Package frame implements the XCP wire frame codec: fixed preamble,
// variable FrameHeader, length-prefixed payload, CRC32C trailer (spec §3,
// §4.1).
package frame

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/xcp-project/xcp/pkg/schema"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// Tag is a single (text, text) entry in a FrameHeader's tags list.
type Tag struct {
	Key   string
	Value string
}

// Header is FrameHeader (spec §3): the semantic fields carried between the
// fixed preamble and the payload.
type Header struct {
	ChannelID  uint32
	MsgType    xcpconst.MsgType
	BodyCodec  xcpconst.CodecID
	SchemaKey  schema.Key
	MsgID      uint64
	InReplyTo  uint64
	Tags       []Tag
}

// EncodeBinary serializes h into the normative binary struct form: a
// leading xcpconst.HeaderTagBinary byte, fixed little-endian fields, and a
// TLV-encoded tags list.
func (h Header) EncodeBinary() []byte {
	skey := h.SchemaKey.Bytes()

	size := 1 + 4 + 2 + 2 + len(skey) + 8 + 8 + 2
	for _, t := range h.Tags {
		size += 2 + len(t.Key) + 2 + len(t.Value)
	}

	buf := make([]byte, size)
	off := 0
	buf[off] = xcpconst.HeaderTagBinary
	off++
	binary.LittleEndian.PutUint32(buf[off:], h.ChannelID)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], uint16(h.MsgType))
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], uint16(h.BodyCodec))
	off += 2
	copy(buf[off:], skey)
	off += len(skey)
	binary.LittleEndian.PutUint64(buf[off:], h.MsgID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.InReplyTo)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(h.Tags)))
	off += 2
	for _, t := range h.Tags {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(t.Key)))
		off += 2
		copy(buf[off:], t.Key)
		off += len(t.Key)
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(t.Value)))
		off += 2
		copy(buf[off:], t.Value)
		off += len(t.Value)
	}
	return buf
}

// DecodeBinary parses the normative binary struct form produced by
// EncodeBinary.
func DecodeBinary(buf []byte) (Header, error) {
	const fixedLen = 1 + 4 + 2 + 2 + 28 + 8 + 8 + 2
	if len(buf) < fixedLen {
		return Header{}, fmt.Errorf("frame: header too short: %d bytes", len(buf))
	}
	if buf[0] != xcpconst.HeaderTagBinary {
		return Header{}, fmt.Errorf("frame: header missing binary tag byte, got %#x", buf[0])
	}

	off := 1
	var h Header
	h.ChannelID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.MsgType = xcpconst.MsgType(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	h.BodyCodec = xcpconst.CodecID(binary.LittleEndian.Uint16(buf[off:]))
	off += 2

	skey, ok := schema.ParseBytes(buf[off : off+28])
	if !ok {
		return Header{}, fmt.Errorf("frame: malformed schema key")
	}
	h.SchemaKey = skey
	off += 28

	h.MsgID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.InReplyTo = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	tagCount := binary.LittleEndian.Uint16(buf[off:])
	off += 2

	h.Tags = make([]Tag, 0, tagCount)
	for i := uint16(0); i < tagCount; i++ {
		if off+2 > len(buf) {
			return Header{}, fmt.Errorf("frame: truncated tag key length")
		}
		klen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+klen > len(buf) {
			return Header{}, fmt.Errorf("frame: truncated tag key")
		}
		key := string(buf[off : off+klen])
		off += klen

		if off+2 > len(buf) {
			return Header{}, fmt.Errorf("frame: truncated tag value length")
		}
		vlen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+vlen > len(buf) {
			return Header{}, fmt.Errorf("frame: truncated tag value")
		}
		val := string(buf[off : off+vlen])
		off += vlen

		h.Tags = append(h.Tags, Tag{Key: key, Value: val})
	}

	return h, nil
}

// jsonHeader is the interop-only JSON fallback wire shape (spec §4.1):
// permitted only when both peers have advertised it during negotiation.
type jsonHeader struct {
	ChannelID uint32 `json:"channel_id"`
	MsgType   uint16 `json:"msg_type"`
	BodyCodec uint16 `json:"body_codec"`
	NSHash    uint32 `json:"ns_hash"`
	KindID    uint32 `json:"kind_id"`
	Major     uint16 `json:"major"`
	Minor     uint16 `json:"minor"`
	Hash128   string `json:"hash128"`
	MsgID     uint64 `json:"msg_id"`
	InReplyTo uint64 `json:"in_reply_to"`
	Tags      []Tag  `json:"tags,omitempty"`
}

// EncodeJSON serializes h into the JSON fallback header form. The result
// always begins with '{' (0x7B), letting a parser distinguish it from the
// binary form's leading 0xF7 tag byte.
func (h Header) EncodeJSON() ([]byte, error) {
	jh := jsonHeader{
		ChannelID: h.ChannelID,
		MsgType:   uint16(h.MsgType),
		BodyCodec: uint16(h.BodyCodec),
		NSHash:    h.SchemaKey.NSHash,
		KindID:    h.SchemaKey.KindID,
		Major:     h.SchemaKey.Major,
		Minor:     h.SchemaKey.Minor,
		Hash128:   hex.EncodeToString(h.SchemaKey.Hash128[:]),
		MsgID:     h.MsgID,
		InReplyTo: h.InReplyTo,
		Tags:      h.Tags,
	}
	return json.Marshal(jh)
}

// DecodeJSON parses the JSON fallback header form.
func DecodeJSON(buf []byte) (Header, error) {
	var jh jsonHeader
	if err := json.Unmarshal(buf, &jh); err != nil {
		return Header{}, fmt.Errorf("frame: decoding json header: %w", err)
	}
	hashBytes, err := hex.DecodeString(jh.Hash128)
	if err != nil || len(hashBytes) != 16 {
		return Header{}, fmt.Errorf("frame: malformed hash128 in json header")
	}
	var hash128 [16]byte
	copy(hash128[:], hashBytes)

	return Header{
		ChannelID: jh.ChannelID,
		MsgType:   xcpconst.MsgType(jh.MsgType),
		BodyCodec: xcpconst.CodecID(jh.BodyCodec),
		SchemaKey: schema.Key{
			NSHash:  jh.NSHash,
			KindID:  jh.KindID,
			Major:   jh.Major,
			Minor:   jh.Minor,
			Hash128: hash128,
		},
		MsgID:     jh.MsgID,
		InReplyTo: jh.InReplyTo,
		Tags:      jh.Tags,
	}, nil
}
