package codec

import (
	"fmt"
	"sync"

	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// registry is the process-wide codec table (spec §4.3). It follows the
// teacher's map-based registry idiom (pkg/errors/codes.go's
// errorCodeRegistry) generalized to hold live Codec implementations rather
// than static metadata, plus the standard-library driver-registration
// pattern (database/sql.Register) for how implementations join it: each
// codec subpackage registers itself from an init() function, and callers
// pull in the codecs they want with a blank import.
type registry struct {
	mu     sync.RWMutex
	byID   map[xcpconst.CodecID]Codec
	byName map[string]Codec
	frozen bool
}

var global = &registry{
	byID:   make(map[xcpconst.CodecID]Codec),
	byName: make(map[string]Codec),
}

// Register adds c to the process-wide registry. Registration is idempotent
// by ID: registering the same ID a second time with a codec of the same
// Go type is a no-op; registering a different implementation under an
// already-used ID is an error, as is registering after the registry has
// been frozen (spec §4.3).
func Register(c Codec) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.frozen {
		return fmt.Errorf("codec: registry frozen, cannot register %s (%#x)", c.Name(), uint16(c.ID()))
	}
	if existing, ok := global.byID[c.ID()]; ok {
		if fmt.Sprintf("%T", existing) != fmt.Sprintf("%T", c) {
			return fmt.Errorf("codec: id %#x already registered to %T, cannot register %T", uint16(c.ID()), existing, c)
		}
		return nil
	}
	global.byID[c.ID()] = c
	global.byName[c.Name()] = c
	return nil
}

// Freeze prevents further registration. The session engine calls this when
// the first session opens (spec §4.3).
func Freeze() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.frozen = true
}

// IsFrozen reports whether the registry has been frozen.
func IsFrozen() bool {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.frozen
}

// Lookup finds a codec by numeric ID.
func Lookup(id xcpconst.CodecID) (Codec, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	c, ok := global.byID[id]
	return c, ok
}

// LookupByName finds a codec by its registered name.
func LookupByName(name string) (Codec, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	c, ok := global.byName[name]
	return c, ok
}

// RegisteredIDs returns every currently registered codec ID, in no
// particular order. Used by the session engine to build a Capability
// record's supported-codec set.
func RegisteredIDs() []xcpconst.CodecID {
	global.mu.RLock()
	defer global.mu.RUnlock()
	ids := make([]xcpconst.CodecID, 0, len(global.byID))
	for id := range global.byID {
		ids = append(ids, id)
	}
	return ids
}

// resetForTest clears the registry state; only exported test files within
// this module should call it, and only before any session has opened.
func resetForTest() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.byID = make(map[xcpconst.CodecID]Codec)
	global.byName = make(map[string]Codec)
	global.frozen = false
}
