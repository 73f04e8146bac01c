package session

import (
	"sync"
	"time"

	"github.com/xcp-project/xcp/pkg/schema"
	"github.com/xcp-project/xcp/pkg/xcpconst"
	"github.com/xcp-project/xcp/pkg/xcperrors"
)

// assembly holds the chunks received so far for one msg_id (spec §4.5:
// "buffer incoming payloads in arrival order until MORE=0").
type assembly struct {
	channelID  uint32
	bodyCodec  xcpconst.CodecID
	schemaKey  schema.Key
	chunks     [][]byte
	totalBytes uint64
	timer      *time.Timer
}

// assemblyTable tracks in-progress chunk reassemblies, keyed by msg_id.
// Expiry and the aggregate-size ceiling are enforced per spec §4.5 and
// §5's max_inflight_assemblies backpressure rule.
type assemblyTable struct {
	mu                sync.Mutex
	entries           map[uint64]*assembly
	maxAssembledBytes uint64
	maxInflight       int
	timeout           time.Duration
	onExpire          func(msgID uint64)
}

func newAssemblyTable(maxAssembledBytes uint64, maxInflight int, timeout time.Duration, onExpire func(uint64)) *assemblyTable {
	return &assemblyTable{
		entries:           make(map[uint64]*assembly),
		maxAssembledBytes: maxAssembledBytes,
		maxInflight:       maxInflight,
		timeout:           timeout,
		onExpire:          onExpire,
	}
}

// Append adds a chunk for msgID. On the final chunk (more == false) it
// returns the concatenated payload and done == true, removing the entry.
// A non-nil error means the frame must be NACKed and the partial
// assembly (if any) is dropped.
func (t *assemblyTable) Append(msgID uint64, channelID uint32, bodyCodec xcpconst.CodecID, schemaKey schema.Key, chunk []byte, more bool) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.entries[msgID]
	if !ok {
		if len(t.entries) >= t.maxInflight {
			return nil, false, xcperrors.MessageTooLarge("max_inflight_assemblies exceeded")
		}
		a = &assembly{channelID: channelID, bodyCodec: bodyCodec, schemaKey: schemaKey}
		t.entries[msgID] = a
		a.timer = time.AfterFunc(t.timeout, func() { t.expire(msgID) })
	} else {
		a.timer.Reset(t.timeout)
	}

	a.totalBytes += uint64(len(chunk))
	if a.totalBytes > t.maxAssembledBytes {
		a.timer.Stop()
		delete(t.entries, msgID)
		return nil, false, xcperrors.MessageTooLarge("aggregate assembly size exceeds max_assembled_bytes")
	}
	a.chunks = append(a.chunks, chunk)

	if more {
		return nil, false, nil
	}

	a.timer.Stop()
	delete(t.entries, msgID)

	total := 0
	for _, c := range a.chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range a.chunks {
		out = append(out, c...)
	}
	return out, true, nil
}

// Drop removes an in-progress assembly without invoking onExpire, used
// when a session closes (spec §5: "in-flight reassemblies are dropped").
func (t *assemblyTable) Drop(msgID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.entries[msgID]; ok {
		a.timer.Stop()
		delete(t.entries, msgID)
	}
}

// DropAll clears every in-progress assembly, used on close.
func (t *assemblyTable) DropAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, a := range t.entries {
		a.timer.Stop()
		delete(t.entries, id)
	}
}

func (t *assemblyTable) expire(msgID uint64) {
	t.mu.Lock()
	_, ok := t.entries[msgID]
	if ok {
		delete(t.entries, msgID)
	}
	t.mu.Unlock()

	if ok && t.onExpire != nil {
		t.onExpire(msgID)
	}
}
