package bindings

import (
	"strings"
)

// Unbound is the sentinel device id for a key that has not been claimed yet.
const Unbound = "UNBOUND"

// Bindings is the in-memory form of the binding store: an insertion-ordered
// mapping of license key to device id. Serialization preserves the order so
// that a rewrite produces a minimal diff in the backing file.
type Bindings struct {
	order []string
	byKey map[string]string
}

// NewBindings returns an empty binding set.
func NewBindings() *Bindings {
	return &Bindings{byKey: make(map[string]string)}
}

// Parse reads line-oriented `key,device_id` text. Lines are trimmed and split
// on the first comma only, so device ids may themselves contain commas.
// Lines without a comma are skipped.
func Parse(content string) *Bindings {
	b := NewBindings()
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ",") {
			continue
		}
		key, deviceID, _ := strings.Cut(line, ",")
		b.Set(key, deviceID)
	}
	return b
}

// Get returns the device id bound to key.
func (b *Bindings) Get(key string) (string, bool) {
	deviceID, ok := b.byKey[key]
	return deviceID, ok
}

// Set binds key to deviceID, appending the key to the order on first insert.
func (b *Bindings) Set(key, deviceID string) {
	if _, exists := b.byKey[key]; !exists {
		b.order = append(b.order, key)
	}
	b.byKey[key] = deviceID
}

// Len returns the number of records.
func (b *Bindings) Len() int {
	return len(b.order)
}

// Keys returns the keys in insertion order.
func (b *Bindings) Keys() []string {
	keys := make([]string, len(b.order))
	copy(keys, b.order)
	return keys
}

// Serialize writes the full set back to its line-oriented form, one record
// per line in insertion order, with no trailing newline.
func (b *Bindings) Serialize() string {
	lines := make([]string, 0, len(b.order))
	for _, key := range b.order {
		lines = append(lines, key+","+b.byKey[key])
	}
	return strings.Join(lines, "\n")
}
