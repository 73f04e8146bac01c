package session

import (
	"fmt"

	"github.com/xcp-project/xcp/pkg/codec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/schema"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// Capability is a peer-advertised record exchanged during HELLO/CAPS
// (spec §3, §4.5).
type Capability struct {
	Codecs        []xcpconst.CodecID
	MaxFrameBytes uint32
	AcceptRanges  []schema.Range
	EmitRanges    []schema.Range
	SharedMem     bool
}

// localCapability builds this process's advertised record from the
// currently-registered codecs and the session config. Schema ranges are
// left empty here: this engine does not maintain an application-level
// schema registry, so it advertises acceptance of any range the peer
// offers (an empty AcceptRanges/EmitRanges list is treated as "no
// restriction beyond codec/frame-size negotiation" by negotiate()).
func localCapability(cfg Config) Capability {
	ids := codec.RegisteredIDs()
	return Capability{
		Codecs:        ids,
		MaxFrameBytes: cfg.MaxFrameBytes,
		SharedMem:     cfg.SharedMem,
	}
}

// toEther renders a Capability as the Ether shape encoded onto the wire
// for HELLO/CAPS bodies (spec §4.5: "BINARY_STRUCT-encoded Capability
// records").
func (c Capability) toEther() *ether.Ether {
	e := ether.New("capability", 1)

	codecInts := make([]ether.Value, len(c.Codecs))
	for i, id := range c.Codecs {
		codecInts[i] = ether.Int(int64(id))
	}
	e.Payload["codecs"] = ether.List(codecInts...)
	e.Payload["max_frame_bytes"] = ether.Int(int64(c.MaxFrameBytes))
	e.Payload["shared_mem"] = ether.Bool(c.SharedMem)
	e.Payload["accept_ranges"] = rangesToValue(c.AcceptRanges)
	e.Payload["emit_ranges"] = rangesToValue(c.EmitRanges)
	return e
}

func rangesToValue(ranges []schema.Range) ether.Value {
	vals := make([]ether.Value, len(ranges))
	for i, r := range ranges {
		vals[i] = ether.Map(map[string]ether.Value{
			"ns_hash":   ether.Int(int64(r.NSHash)),
			"kind_id":   ether.Int(int64(r.KindID)),
			"major":     ether.Int(int64(r.Major)),
			"min_minor": ether.Int(int64(r.MinMinor)),
			"max_minor": ether.Int(int64(r.MaxMinor)),
		})
	}
	return ether.List(vals...)
}

func rangesFromValue(v ether.Value) ([]schema.Range, error) {
	list, err := v.AsList()
	if err != nil {
		return nil, err
	}
	out := make([]schema.Range, 0, len(list))
	for _, item := range list {
		m, err := item.AsMap()
		if err != nil {
			return nil, err
		}
		nsHash, _ := m["ns_hash"].AsInt()
		kindID, _ := m["kind_id"].AsInt()
		major, _ := m["major"].AsInt()
		minMinor, _ := m["min_minor"].AsInt()
		maxMinor, _ := m["max_minor"].AsInt()
		out = append(out, schema.Range{
			NSHash:   uint32(nsHash),
			KindID:   uint32(kindID),
			Major:    uint16(major),
			MinMinor: uint16(minMinor),
			MaxMinor: uint16(maxMinor),
		})
	}
	return out, nil
}

// capabilityFromEther reverses toEther.
func capabilityFromEther(e *ether.Ether) (Capability, error) {
	if e.Kind != "capability" {
		return Capability{}, fmt.Errorf("session: expected capability ether, got kind %q", e.Kind)
	}
	codecsVal, ok := e.Payload["codecs"]
	if !ok {
		return Capability{}, fmt.Errorf("session: capability missing codecs")
	}
	codecList, err := codecsVal.AsList()
	if err != nil {
		return Capability{}, fmt.Errorf("session: capability.codecs: %w", err)
	}
	codecs := make([]xcpconst.CodecID, len(codecList))
	for i, cv := range codecList {
		n, err := cv.AsInt()
		if err != nil {
			return Capability{}, fmt.Errorf("session: capability.codecs[%d]: %w", i, err)
		}
		codecs[i] = xcpconst.CodecID(n)
	}

	maxFrame, err := e.Payload["max_frame_bytes"].AsInt()
	if err != nil {
		return Capability{}, fmt.Errorf("session: capability.max_frame_bytes: %w", err)
	}
	sharedMem, _ := e.Payload["shared_mem"].AsBool()

	var acceptRanges, emitRanges []schema.Range
	if v, ok := e.Payload["accept_ranges"]; ok {
		acceptRanges, err = rangesFromValue(v)
		if err != nil {
			return Capability{}, fmt.Errorf("session: capability.accept_ranges: %w", err)
		}
	}
	if v, ok := e.Payload["emit_ranges"]; ok {
		emitRanges, err = rangesFromValue(v)
		if err != nil {
			return Capability{}, fmt.Errorf("session: capability.emit_ranges: %w", err)
		}
	}

	return Capability{
		Codecs:        codecs,
		MaxFrameBytes: uint32(maxFrame),
		AcceptRanges:  acceptRanges,
		EmitRanges:    emitRanges,
		SharedMem:     sharedMem,
	}, nil
}

// negotiated is the outcome of intersecting two Capability records
// (spec §4.5: "Negotiated codec set = intersection of advertised sets ∩
// locally supported. Negotiated max_frame_bytes = min(peer, local)").
type negotiated struct {
	codecs        map[xcpconst.CodecID]bool
	maxFrameBytes uint32
	sharedMem     bool
}

func negotiate(local, peer Capability) negotiated {
	peerSet := make(map[xcpconst.CodecID]bool, len(peer.Codecs))
	for _, id := range peer.Codecs {
		peerSet[id] = true
	}
	codecs := make(map[xcpconst.CodecID]bool)
	for _, id := range local.Codecs {
		if peerSet[id] {
			codecs[id] = true
		}
	}

	maxFrame := local.MaxFrameBytes
	if peer.MaxFrameBytes < maxFrame {
		maxFrame = peer.MaxFrameBytes
	}

	return negotiated{
		codecs:        codecs,
		maxFrameBytes: maxFrame,
		sharedMem:     local.SharedMem && peer.SharedMem,
	}
}

// encodeCapability serializes a Capability using the required
// BINARY_STRUCT codec, per spec §4.5.
func encodeCapability(c Capability) ([]byte, error) {
	bc, ok := codec.Lookup(xcpconst.CodecBinaryStruct)
	if !ok {
		return nil, fmt.Errorf("session: BINARY_STRUCT codec not registered")
	}
	return bc.Encode(c.toEther())
}

func decodeCapability(data []byte) (Capability, error) {
	bc, ok := codec.Lookup(xcpconst.CodecBinaryStruct)
	if !ok {
		return Capability{}, fmt.Errorf("session: BINARY_STRUCT codec not registered")
	}
	e, err := bc.Decode(data)
	if err != nil {
		return Capability{}, err
	}
	return capabilityFromEther(e)
}
