package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/xcp-project/xcp/pkg/transform"
	"github.com/xcp-project/xcp/pkg/xcpconst"
	"github.com/xcp-project/xcp/pkg/xcperrors"
)

// hardMaxPayloadBytes is a parser-side sanity ceiling independent of any
// negotiated max_frame_bytes, guarding against a corrupt or hostile PLEN
// driving an unbounded allocation before the session layer gets a say.
const hardMaxPayloadBytes = 1 << 30 // 1 GiB

// Frame is the fully parsed wire unit: preamble, decoded header, and the
// payload bytes exactly as read (transforms are not reversed here; that is
// the session engine's job per spec §4.1).
type Frame struct {
	Version uint8
	Flags   xcpconst.Flags
	Header  Header
	Payload []byte
}

// Pack serializes header and payload into a complete frame. payload must
// already have any COMP/CRYPT transforms applied; Pack only adds framing
// and the CRC32C trailer. The LARGE bit is computed from the payload size
// and folded into flags automatically.
func Pack(h Header, payload []byte, flags xcpconst.Flags, useJSONHeader bool) ([]byte, error) {
	if len(payload) > 0xFFFFFFFF {
		flags |= xcpconst.FlagLARGE
	}

	var headerBytes []byte
	var err error
	if useJSONHeader {
		headerBytes, err = h.EncodeJSON()
		if err != nil {
			return nil, fmt.Errorf("frame: encoding json header: %w", err)
		}
	} else {
		headerBytes = h.EncodeBinary()
	}
	if len(headerBytes) > 0xFFFF {
		return nil, fmt.Errorf("frame: header too large: %d bytes", len(headerBytes))
	}

	plenWidth := 4
	if flags.Has(xcpconst.FlagLARGE) {
		plenWidth = 8
	}

	total := 4 + 1 + 1 + 2 + len(headerBytes) + plenWidth + len(payload) + 4
	buf := make([]byte, total)
	off := 0

	binary.LittleEndian.PutUint32(buf[off:], xcpconst.Magic)
	off += 4
	buf[off] = xcpconst.VersionByte
	off++
	buf[off] = uint8(flags)
	off++
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(headerBytes)))
	off += 2
	copy(buf[off:], headerBytes)
	off += len(headerBytes)

	if plenWidth == 8 {
		binary.LittleEndian.PutUint64(buf[off:], uint64(len(payload)))
		off += 8
	} else {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(payload)))
		off += 4
	}
	copy(buf[off:], payload)
	off += len(payload)

	crc := transform.ComputeCRC32C(payload)
	binary.LittleEndian.PutUint32(buf[off:], crc)

	return buf, nil
}

// Parse reads one frame from r. It reverses no transforms; Payload is
// returned exactly as it appeared on the wire.
func Parse(r io.Reader) (*Frame, error) {
	// The magic bytes are read and checked in isolation, before anything
	// else, so a mismatch is reported without consuming more than 4
	// bytes off r (spec §8 property 3).
	var magicBuf [4]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, xcperrors.HeaderTruncated(fmt.Sprintf("reading magic: %v", err))
	}
	magic := binary.LittleEndian.Uint32(magicBuf[:])
	if magic != xcpconst.Magic {
		return nil, xcperrors.BadMagic(fmt.Sprintf("got %#x", magic))
	}

	var rest [4]byte
	if _, err := io.ReadFull(r, rest[:]); err != nil {
		return nil, xcperrors.HeaderTruncated(fmt.Sprintf("reading preamble: %v", err))
	}
	version := rest[0]
	if version>>4 != xcpconst.VersionMajor {
		return nil, xcperrors.UnsupportedVersion(fmt.Sprintf("got major %d", version>>4))
	}
	flags := xcpconst.Flags(rest[1])
	hlen := binary.LittleEndian.Uint16(rest[2:4])

	headerBytes := make([]byte, hlen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, xcperrors.HeaderTruncated(fmt.Sprintf("reading %d header bytes: %v", hlen, err))
	}

	header, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, xcperrors.HeaderMalformed(err.Error())
	}

	plenWidth := 4
	if flags.Has(xcpconst.FlagLARGE) {
		plenWidth = 8
	}
	plenBuf := make([]byte, plenWidth)
	if _, err := io.ReadFull(r, plenBuf); err != nil {
		return nil, xcperrors.HeaderTruncated(fmt.Sprintf("reading PLEN: %v", err))
	}
	var plen uint64
	if plenWidth == 8 {
		plen = binary.LittleEndian.Uint64(plenBuf)
	} else {
		plen = uint64(binary.LittleEndian.Uint32(plenBuf))
	}
	if plen > hardMaxPayloadBytes {
		return nil, xcperrors.FrameTooLarge(fmt.Sprintf("PLEN=%d exceeds hard ceiling", plen))
	}

	payload := make([]byte, plen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, xcperrors.PayloadTruncated(fmt.Sprintf("reading %d payload bytes: %v", plen, err))
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return nil, xcperrors.PayloadTruncated(fmt.Sprintf("reading CRC trailer: %v", err))
	}
	expected := binary.LittleEndian.Uint32(crcBuf[:])
	if !transform.VerifyCRC32C(payload, expected) {
		return nil, xcperrors.CrcMismatch(fmt.Sprintf("msg_type=%s msg_id=%d", header.MsgType, header.MsgID))
	}

	return &Frame{
		Version: version,
		Flags:   flags,
		Header:  header,
		Payload: payload,
	}, nil
}

// decodeHeader sniffs the leading tag byte to pick binary vs. JSON decoding
// (spec §4.1: binary headers start with a fixed tag byte distinct from '{').
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) == 0 {
		return Header{}, fmt.Errorf("frame: empty header")
	}
	if buf[0] == '{' {
		return DecodeJSON(buf)
	}
	return DecodeBinary(buf)
}
