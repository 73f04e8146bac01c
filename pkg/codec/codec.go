// Package codec implements the process-wide codec registry (spec §4.3)
// that encodes and decodes Ether envelopes for a numeric wire codec ID.
package codec

import (
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// Codec encodes and decodes Ether envelopes to and from wire bytes for one
// registered codec ID (spec §4.2).
type Codec interface {
	ID() xcpconst.CodecID
	Name() string
	IsBinary() bool
	Encode(e *ether.Ether) ([]byte, error)
	Decode(data []byte) (*ether.Ether, error)
}
