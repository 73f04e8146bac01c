// Package xcpconst defines the wire-level constants shared by every XCP
// package: the frame magic, protocol version, frame flags, message types,
// codec identifiers, and NACK error codes (spec §3, §4.6).
package xcpconst

// Magic identifies the start of an XCP frame preamble.
const Magic uint32 = 0xA9A17A10

// VersionMajor and VersionMinor identify the current wire version (§6).
const (
	VersionMajor uint8 = 0x0
	VersionMinor uint8 = 0x2
	// VersionByte packs major (high nibble) and minor (low nibble) into
	// the single version byte carried in the frame preamble.
	VersionByte uint8 = (VersionMajor << 4) | VersionMinor
)

// Flags are frame-level bits carried in the preamble (§3).
type Flags uint8

const (
	FlagCOMP  Flags = 0x01 // payload is zstd-compressed
	FlagCRYPT Flags = 0x02 // payload is ChaCha20-Poly1305 sealed
	FlagMORE  Flags = 0x04 // more chunks follow for this msg_id
	FlagLARGE Flags = 0x08 // PLEN field is 8 bytes, not 4
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// HeaderTagBinary is the leading byte that identifies a binary (normative)
// FrameHeader encoding, chosen to be distinct from '{' (0x7B) so a parser
// can sniff binary vs. JSON-fallback headers per §4.1.
const HeaderTagBinary byte = 0xF7

// MsgType identifies the semantic kind of a frame. Control types occupy
// 0x0000-0x00FF; data types start at 0x0100 (§3, §4.6).
type MsgType uint16

const (
	MsgHello       MsgType = 0x0000
	MsgAck         MsgType = 0x0001
	MsgNack        MsgType = 0x0002
	MsgPing        MsgType = 0x0003
	MsgPong        MsgType = 0x0004
	MsgClarifyReq  MsgType = 0x0005
	MsgClarifyRes  MsgType = 0x0006
	MsgCaps        MsgType = 0x0007
	MsgData        MsgType = 0x0100
)

// IsControl reports whether a message type is a control message (§3).
func (t MsgType) IsControl() bool { return t <= 0x00FF }

func (t MsgType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgAck:
		return "ACK"
	case MsgNack:
		return "NACK"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgClarifyReq:
		return "CLARIFY_REQ"
	case MsgClarifyRes:
		return "CLARIFY_RES"
	case MsgCaps:
		return "CAPS"
	case MsgData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// CodecID identifies a registered wire codec (§4.2).
type CodecID uint16

const (
	CodecJSON        CodecID = 0x0001
	CodecTensorF32   CodecID = 0x0002
	CodecTensorF16   CodecID = 0x0003
	CodecTensorQInt8 CodecID = 0x0004
	CodecBinaryStruct CodecID = 0x0008
	CodecMixedLatent CodecID = 0x0010
	CodecArrowIPC    CodecID = 0x0020
	CodecDLPack      CodecID = 0x0021
)

func (c CodecID) String() string {
	switch c {
	case CodecJSON:
		return "JSON"
	case CodecTensorF32:
		return "TENSOR_F32"
	case CodecTensorF16:
		return "TENSOR_F16"
	case CodecTensorQInt8:
		return "TENSOR_QNT8"
	case CodecBinaryStruct:
		return "BINARY_STRUCT"
	case CodecMixedLatent:
		return "MIXED_LATENT"
	case CodecArrowIPC:
		return "ARROW_IPC"
	case CodecDLPack:
		return "DLPACK"
	default:
		return "UNKNOWN"
	}
}

// TensorDType identifies the element type of a tensor codec body (§3).
type TensorDType uint8

const (
	DTypeF32  TensorDType = 0
	DTypeF16  TensorDType = 1
	DTypeInt8 TensorDType = 2
)

// Tensor header flag bits (§3).
const (
	TensorFlagRowQuantized uint8 = 1 << 0
	TensorFlagColMajor     uint8 = 1 << 1
)

// CodecPolicy governs sender-side codec selection (§4.2).
type CodecPolicy string

const (
	PolicyAuto           CodecPolicy = "Auto"
	PolicyJSONOnly        CodecPolicy = "JsonOnly"
	PolicyBinaryRequired CodecPolicy = "BinaryRequired"
)

// Default frame-size limits, carried over from the reference implementation.
const (
	DefaultMaxFrameBytes = 1 << 20 // 1 MiB
	WANMaxFrameBytes     = 512 << 10
	LANMaxFrameBytes     = 4 << 20
)

// Reserved Ether metadata keys (§3).
const (
	MetaTraceID  = "trace_id"
	MetaProducer = "producer"
	MetaCreated  = "created_at"
	MetaLineage  = "lineage"
)
