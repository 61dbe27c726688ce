package bindings

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory RecordStore with injectable failures and write
// accounting.
type memStore struct {
	bindings *Bindings
	token    string

	readErr       error
	writeErr      error
	conflictsLeft int // serve this many ErrVersionConflict before accepting
	reads         int
	writes        int
	appliedWrites int
}

func newMemStore(records map[string]string) *memStore {
	b := NewBindings()
	for key, device := range records {
		b.Set(key, device)
	}
	return &memStore{bindings: b, token: "v1"}
}

func (m *memStore) Read(ctx context.Context) (*Bindings, string, error) {
	m.reads++
	if m.readErr != nil {
		return nil, "", m.readErr
	}
	// Hand out a copy so callers cannot mutate the store in place.
	copied := NewBindings()
	for _, key := range m.bindings.Keys() {
		device, _ := m.bindings.Get(key)
		copied.Set(key, device)
	}
	return copied, m.token, nil
}

func (m *memStore) Write(ctx context.Context, b *Bindings, token string) error {
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return ErrVersionConflict
	}
	if token != m.token {
		return ErrVersionConflict
	}
	m.bindings = b
	m.token += "x"
	m.appliedWrites++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateUnknownKey(t *testing.T) {
	store := newMemStore(map[string]string{"KNOWN": Unbound})
	v := NewValidator(store, 3, testLogger())

	err := v.Validate(context.Background(), "ABSENT", "device-1")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Zero(t, store.writes)
}

func TestValidateBindOnFirstUse(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": Unbound})
	v := NewValidator(store, 3, testLogger())

	require.NoError(t, v.Validate(context.Background(), "KEY1", "device-1"))

	device, ok := store.bindings.Get("KEY1")
	require.True(t, ok)
	assert.Equal(t, "device-1", device)

	// A different device is now rejected.
	err := v.Validate(context.Background(), "KEY1", "device-2")
	assert.ErrorIs(t, err, ErrDeviceMismatch)
}

func TestValidateBoundMatchIsIdempotent(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": "device-1"})
	v := NewValidator(store, 3, testLogger())

	require.NoError(t, v.Validate(context.Background(), "KEY1", "device-1"))
	require.NoError(t, v.Validate(context.Background(), "KEY1", "device-1"))
	assert.Zero(t, store.writes, "already-bound validation must not mutate the store")
}

func TestValidateBindRetriesOnConflict(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": Unbound})
	store.conflictsLeft = 2
	v := NewValidator(store, 3, testLogger())

	require.NoError(t, v.Validate(context.Background(), "KEY1", "device-1"))
	assert.Equal(t, 3, store.writes)
	assert.Equal(t, 1, store.appliedWrites)
}

func TestValidateBindWriteFailure(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": Unbound})
	store.writeErr = ErrStoreUnreachable
	v := NewValidator(store, 3, testLogger())

	err := v.Validate(context.Background(), "KEY1", "device-1")
	assert.ErrorIs(t, err, ErrBindingWrite)

	// The binding is not considered applied.
	device, _ := store.bindings.Get("KEY1")
	assert.Equal(t, Unbound, device)
}

func TestValidateBindConflictBudgetExhausted(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": Unbound})
	store.conflictsLeft = 10
	v := NewValidator(store, 2, testLogger())

	err := v.Validate(context.Background(), "KEY1", "device-1")
	assert.ErrorIs(t, err, ErrBindingWrite)
	assert.Equal(t, 3, store.writes)
}

func TestValidateStoreReadFailure(t *testing.T) {
	store := newMemStore(nil)
	store.readErr = ErrStoreUnreachable
	v := NewValidator(store, 3, testLogger())

	err := v.Validate(context.Background(), "KEY1", "device-1")
	assert.ErrorIs(t, err, ErrStoreUnreachable)
}

// memFastReader wraps a binding set as the mirror path.
type memFastReader struct {
	bindings *Bindings
	err      error
	reads    int
}

func (m *memFastReader) ReadFast(ctx context.Context) (*Bindings, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	return m.bindings, nil
}

func TestValidateFastPathAccept(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": "device-1"})
	fast := &memFastReader{bindings: store.bindings}
	v := NewValidator(store, 3, testLogger()).WithFastReader(fast)

	require.NoError(t, v.Validate(context.Background(), "KEY1", "device-1"))
	assert.Equal(t, 1, fast.reads)
	assert.Zero(t, store.reads, "match on the mirror skips the transactional read")
}

func TestValidateFastPathUnboundFallsBack(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": Unbound})
	fast := &memFastReader{bindings: store.bindings}
	v := NewValidator(store, 3, testLogger()).WithFastReader(fast)

	require.NoError(t, v.Validate(context.Background(), "KEY1", "device-1"))
	assert.Equal(t, 1, store.appliedWrites, "bind must go through the transactional path")
}

func TestValidateFastPathErrorFallsBack(t *testing.T) {
	store := newMemStore(map[string]string{"KEY1": "device-1"})
	fast := &memFastReader{err: ErrStoreUnreachable}
	v := NewValidator(store, 3, testLogger()).WithFastReader(fast)

	require.NoError(t, v.Validate(context.Background(), "KEY1", "device-1"))
	assert.Equal(t, 1, store.reads)
}
