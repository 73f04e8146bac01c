// Package jsoncodec implements the canonical JSON codec (0x0001), the
// mandatory codec every peer supports for control frames and the default
// for small data frames (spec §4.2).
package jsoncodec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func init() {
	if err := codec.Register(New()); err != nil {
		panic(fmt.Sprintf("jsoncodec: registering built-in codec: %v", err))
	}
}

// JSONCodec implements codec.Codec for canonical UTF-8 JSON.
type JSONCodec struct{}

// New returns the JSON codec singleton value.
func New() JSONCodec { return JSONCodec{} }

func (JSONCodec) ID() xcpconst.CodecID { return xcpconst.CodecJSON }
func (JSONCodec) Name() string         { return "JSON" }
func (JSONCodec) IsBinary() bool       { return false }

// wireAttachment is the JSON-on-the-wire shape of an Attachment: inline
// bytes MUST be base64 per spec §4.2.
type wireAttachment struct {
	ID string `json:"id"`
	URI string `json:"uri,omitempty"`
	// InlineB64 is a pointer, not a plain string with omitempty: an
	// inline attachment with zero-length bytes base64-encodes to "",
	// and omitempty on a string field drops that value's presence
	// entirely, so decode could no longer tell "inline, empty" from
	// "not inline". A nil pointer omits the field; a non-nil pointer
	// to "" round-trips an empty inline attachment correctly.
	InlineB64 *string  `json:"inline_bytes,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	Codec     string   `json:"codec,omitempty"`
	Shape     []uint32 `json:"shape,omitempty"`
	DType     string   `json:"dtype,omitempty"`
	SizeBytes uint64   `json:"size_bytes,omitempty"`
}

type wireEther struct {
	Kind          string                     `json:"kind"`
	SchemaVersion uint32                     `json:"schema_version"`
	Payload       map[string]ether.Value     `json:"payload"`
	Metadata      map[string]ether.Value     `json:"metadata"`
	ExtraFields   map[string]ether.Value     `json:"extra_fields,omitempty"`
	Attachments   []wireAttachment           `json:"attachments,omitempty"`
}

// Encode serializes e to canonical UTF-8 JSON.
func (c JSONCodec) Encode(e *ether.Ether) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("jsoncodec: %w", err)
	}

	w := wireEther{
		Kind:          e.Kind,
		SchemaVersion: e.SchemaVersion,
		Payload:       e.Payload,
		Metadata:      e.Metadata,
		ExtraFields:   e.ExtraFields,
	}
	for _, a := range e.Attachments {
		wa := wireAttachment{
			ID:        a.ID,
			URI:       a.URI,
			MediaType: a.MediaType,
			Codec:     a.Codec,
			Shape:     a.Shape,
			DType:     a.DType,
			SizeBytes: a.SizeBytes,
		}
		if a.IsInline() {
			enc := base64.StdEncoding.EncodeToString(a.InlineBytes)
			wa.InlineB64 = &enc
		}
		w.Attachments = append(w.Attachments, wa)
	}

	return json.Marshal(w)
}

// Decode parses canonical JSON back into an Ether.
func (c JSONCodec) Decode(data []byte) (*ether.Ether, error) {
	var w wireEther
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("jsoncodec: %w", err)
	}

	e := &ether.Ether{
		Kind:          w.Kind,
		SchemaVersion: w.SchemaVersion,
		Payload:       w.Payload,
		Metadata:      w.Metadata,
		ExtraFields:   w.ExtraFields,
	}
	if e.Payload == nil {
		e.Payload = map[string]ether.Value{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]ether.Value{}
	}

	for _, wa := range w.Attachments {
		a := ether.Attachment{
			ID:        wa.ID,
			URI:       wa.URI,
			MediaType: wa.MediaType,
			Codec:     wa.Codec,
			Shape:     wa.Shape,
			DType:     wa.DType,
			SizeBytes: wa.SizeBytes,
		}
		if wa.InlineB64 != nil {
			raw, err := base64.StdEncoding.DecodeString(*wa.InlineB64)
			if err != nil {
				return nil, fmt.Errorf("jsoncodec: decoding attachment %q inline bytes: %w", wa.ID, err)
			}
			a.InlineBytes = raw
		}
		e.Attachments = append(e.Attachments, a)
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("jsoncodec: decoded ether failed validation: %w", err)
	}
	return e, nil
}
