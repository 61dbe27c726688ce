package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notegate/internal/bindings"
	"notegate/internal/notes"
)

// memRecordStore is a minimal in-memory bindings.RecordStore.
type memRecordStore struct {
	mu       sync.Mutex
	bindings *bindings.Bindings
	token    string
	writes   int
}

func newMemRecordStore(records map[string]string) *memRecordStore {
	b := bindings.NewBindings()
	for key, device := range records {
		b.Set(key, device)
	}
	return &memRecordStore{bindings: b, token: "v1"}
}

func (m *memRecordStore) Read(ctx context.Context) (*bindings.Bindings, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := bindings.NewBindings()
	for _, key := range m.bindings.Keys() {
		device, _ := m.bindings.Get(key)
		copied.Set(key, device)
	}
	return copied, m.token, nil
}

func (m *memRecordStore) Write(ctx context.Context, b *bindings.Bindings, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.token {
		return bindings.ErrVersionConflict
	}
	m.bindings = b
	m.token += "x"
	m.writes++
	return nil
}

func (m *memRecordStore) ReadContent(ctx context.Context) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings.Serialize(), m.token, nil
}

func (m *memRecordStore) WriteContent(ctx context.Context, content, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.token {
		return bindings.ErrVersionConflict
	}
	m.bindings = bindings.Parse(content)
	m.token += "x"
	m.writes++
	return nil
}

func newTestService(t *testing.T, store *memRecordStore) RelayService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	validator := bindings.NewValidator(store, 3, logger)
	issuer := bindings.NewIssuer(store, 3, logger)
	extractor := notes.NewExtractor(notes.ExtractorConfig{Timeout: 2 * time.Second}, logger)

	return NewRelayService(validator, issuer, extractor, nil, logger)
}

func notePage() string {
	state := `{"note":{"noteDetailMap":{"id1":{"note":{"type":"image","title":"T","imageList":[{"urlDefault":"u1"}]}}}}}`
	return fmt.Sprintf(`<html><head><script>window.__INITIAL_STATE__=%s;</script></head><body></body></html>`, state)
}

func TestParseValidatesThenExtracts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, notePage())
	}))
	defer server.Close()

	store := newMemRecordStore(map[string]string{"KEY1": bindings.Unbound})
	service := newTestService(t, store)

	desc, err := service.Parse(context.Background(), "KEY1", "device-1", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "T", desc.Title)
	assert.Equal(t, "image", desc.NoteType)
	assert.Equal(t, []string{"u1"}, desc.MediaURLs)

	// The first use bound the key.
	device, _ := store.bindings.Get("KEY1")
	assert.Equal(t, "device-1", device)
}

func TestParseRejectionSkipsExtraction(t *testing.T) {
	var fetched bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
		io.WriteString(w, notePage())
	}))
	defer server.Close()

	store := newMemRecordStore(map[string]string{"KEY1": "other-device"})
	service := newTestService(t, store)

	_, err := service.Parse(context.Background(), "KEY1", "device-1", server.URL)
	assert.ErrorIs(t, err, bindings.ErrDeviceMismatch)
	assert.False(t, fetched, "rejected requests must not fetch the page")
}

func TestParseUnknownKey(t *testing.T) {
	store := newMemRecordStore(nil)
	service := newTestService(t, store)

	_, err := service.Parse(context.Background(), "NOPE", "device-1", "https://example.com")
	assert.ErrorIs(t, err, bindings.ErrInvalidKey)
}

func TestIssueKeyAddsRecord(t *testing.T) {
	store := newMemRecordStore(map[string]string{"KEY1": "device-1"})
	service := newTestService(t, store)

	key, err := service.IssueKey(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z]{5}[0-9]{12}$`, key)
	assert.Equal(t, 2, store.bindings.Len())

	device, ok := store.bindings.Get(key)
	require.True(t, ok)
	assert.Equal(t, bindings.Unbound, device)
}
