// Package slot maps keys onto the fixed hash-slot space used to
// partition the key space across backend nodes.
package slot

import "bytes"

// Count is the size of the hash-slot space. Slot numbers are
// crc16(key) mod Count, giving a stable 14-bit partition id.
const Count = 16384

// Router computes the slot of a key. A key may embed a routing tag
// between a delimiter pair (default "{...}"); when present and
// non-empty, only the tag is hashed, so keys sharing a tag always land
// on the same slot.
type Router struct {
	open  byte
	close byte
}

func NewRouter(open, close byte) Router {
	return Router{open: open, close: close}
}

// Default returns a router using "{" and "}" as tag delimiters.
func Default() Router {
	return Router{open: '{', close: '}'}
}

// Slot returns the slot of key. It never fails: a malformed tag
// (missing closing delimiter, or an empty tag) falls back to hashing
// the whole key.
func (r Router) Slot(key []byte) uint16 {
	return crc16(r.routingPart(key)) % Count
}

// HasTag reports whether key carries a usable routing tag.
func (r Router) HasTag(key []byte) bool {
	return len(r.tag(key)) > 0
}

// Tag returns the routing tag of key, or nil if there is none.
func (r Router) Tag(key []byte) []byte {
	return r.tag(key)
}

func (r Router) routingPart(key []byte) []byte {
	if tag := r.tag(key); len(tag) > 0 {
		return tag
	}
	return key
}

// tag extracts the substring between the first opening delimiter and
// the next closing delimiter after it. Returns nil for unbalanced
// delimiters or an empty tag.
func (r Router) tag(key []byte) []byte {
	start := bytes.IndexByte(key, r.open)
	if start < 0 {
		return nil
	}
	rest := key[start+1:]
	end := bytes.IndexByte(rest, r.close)
	if end <= 0 {
		return nil
	}
	return rest[:end]
}
