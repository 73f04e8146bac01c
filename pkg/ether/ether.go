package ether

import (
	"fmt"
	"strings"

	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// Attachment references a binary blob attached to an Ether, either inline
// or by URI (spec §3). Exactly one of URI and InlineBytes may be set; both
// or neither is rejected by Validate.
type Attachment struct {
	ID          string
	URI         string
	InlineBytes []byte
	MediaType   string
	Codec       string
	Shape       []uint32
	DType       string
	SizeBytes   uint64
}

// IsInline reports whether the attachment carries its bytes inline rather
// than by reference.
func (a Attachment) IsInline() bool { return a.InlineBytes != nil }

// Validate enforces the URI/inline mutual-exclusion sum type (spec §3
// Design Note: "Attachments by URI vs inline").
func (a Attachment) Validate() error {
	hasURI := a.URI != ""
	hasInline := a.InlineBytes != nil
	if hasURI == hasInline {
		if hasURI {
			return fmt.Errorf("ether: attachment %q sets both uri and inline_bytes", a.ID)
		}
		return fmt.Errorf("ether: attachment %q sets neither uri nor inline_bytes", a.ID)
	}
	return nil
}

// Ether is the self-describing data envelope carried by every XCP data
// frame (spec §3, §4.2).
type Ether struct {
	Kind          string
	SchemaVersion uint32
	Payload       map[string]Value
	Metadata      map[string]Value
	ExtraFields   map[string]Value
	Attachments   []Attachment
}

// New constructs an Ether with the required fields set and empty maps for
// payload/metadata, matching spec §3's "required, may be empty" rule.
func New(kind string, schemaVersion uint32) *Ether {
	return &Ether{
		Kind:          kind,
		SchemaVersion: schemaVersion,
		Payload:       map[string]Value{},
		Metadata:      map[string]Value{},
	}
}

// Validate checks the required-field and attachment invariants from spec §3.
func (e *Ether) Validate() error {
	if e.Kind == "" {
		return fmt.Errorf("ether: kind is required")
	}
	if e.SchemaVersion < 1 {
		return fmt.Errorf("ether: schema_version must be >= 1")
	}
	if e.Payload == nil {
		return fmt.Errorf("ether: payload must not be nil (may be empty)")
	}
	if e.Metadata == nil {
		return fmt.Errorf("ether: metadata must not be nil (may be empty)")
	}
	for _, a := range e.Attachments {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WithMetadata sets a reserved or free-form metadata key and returns e for
// chaining, mirroring the builder style spec's reserved-key list (§3):
// trace_id, producer, created_at, lineage.
func (e *Ether) WithMetadata(key string, v Value) *Ether {
	if e.Metadata == nil {
		e.Metadata = map[string]Value{}
	}
	e.Metadata[key] = v
	return e
}

// ReservedMetadataKeys lists the metadata keys spec §3 reserves a meaning
// for, used by callers that want to warn on unrecognized reserved-looking
// keys.
var ReservedMetadataKeys = []string{
	xcpconst.MetaTraceID,
	xcpconst.MetaProducer,
	xcpconst.MetaCreated,
	xcpconst.MetaLineage,
}

// IsReservedMetadataKey reports whether key is one of the metadata keys
// spec §3 assigns a meaning to.
func IsReservedMetadataKey(key string) bool {
	for _, k := range ReservedMetadataKeys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
