package bindings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Store failure taxonomy. Callers branch on these with errors.Is; the
// underlying transport error is carried in the wrapped message.
var (
	// ErrStoreUnreachable covers transport failures, timeouts and
	// unexpected API responses on either read path.
	ErrStoreUnreachable = errors.New("binding store unreachable")

	// ErrStoreNotFound means the backing file does not exist yet. Writers
	// treat this as an empty store and create the file on first write.
	ErrStoreNotFound = errors.New("binding store file not found")

	// ErrVersionConflict means the version token presented with a write no
	// longer matches the remote revision.
	ErrVersionConflict = errors.New("binding store version conflict")
)

// RecordStore is the transactional access path: reads return a version token
// that must be presented on write for optimistic concurrency.
type RecordStore interface {
	Read(ctx context.Context) (*Bindings, string, error)
	Write(ctx context.Context, b *Bindings, token string) error
}

// ContentStore exposes the raw file content for callers that append to the
// store textually instead of rewriting the parsed mapping.
type ContentStore interface {
	ReadContent(ctx context.Context) (content, token string, err error)
	WriteContent(ctx context.Context, content, token string) error
}

// FastReader is the read-only mirror path. It returns no version token, so
// any mutation decided from its result must re-read through a RecordStore
// before writing.
type FastReader interface {
	ReadFast(ctx context.Context) (*Bindings, error)
}

// GitHubStore keeps the binding file in a GitHub repository through the
// contents API, using the blob SHA as the version token. It also serves the
// fast path from the public raw-content mirror.
type GitHubStore struct {
	client  *http.Client
	logger  *slog.Logger
	apiBase string
	rawBase string
	repo    string
	path    string
	branch  string
	token   string
}

// GitHubStoreConfig carries the repository identity and credentials.
type GitHubStoreConfig struct {
	Repo    string // owner/name
	Path    string // file path within the repository
	Branch  string
	Token   string
	Timeout time.Duration

	// Overridable endpoints for tests.
	APIBase string
	RawBase string
}

// NewGitHubStore builds a store client with a bounded-timeout HTTP client.
func NewGitHubStore(cfg GitHubStoreConfig, logger *slog.Logger) *GitHubStore {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	rawBase := cfg.RawBase
	if rawBase == "" {
		rawBase = "https://raw.githubusercontent.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GitHubStore{
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "binding_store")),
		apiBase: apiBase,
		rawBase: rawBase,
		repo:    cfg.Repo,
		path:    cfg.Path,
		branch:  cfg.Branch,
		token:   cfg.Token,
	}
}

// contentsResponse is the subset of the contents API response we consume.
type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

// contentsRequest is the PUT body for create/update.
type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

func (s *GitHubStore) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", s.apiBase, s.repo, s.path)
}

// ReadContent fetches the file through the contents API and returns its
// decoded text plus the blob SHA as the version token.
func (s *GitHubStore) ReadContent(ctx context.Context) (string, string, error) {
	url := s.contentsURL() + "?ref=" + s.branch
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", "", ErrStoreNotFound
	default:
		return "", "", fmt.Errorf("%w: contents API returned status %d", ErrStoreUnreachable, resp.StatusCode)
	}

	var cr contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", "", fmt.Errorf("%w: decoding contents response: %v", ErrStoreUnreachable, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(
		// The API wraps base64 content with newlines.
		stripNewlines(cr.Content),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: decoding file content: %v", ErrStoreUnreachable, err)
	}
	return string(decoded), cr.SHA, nil
}

// WriteContent performs a conditional update of the file. An empty token
// creates the file; otherwise the token must match the current blob SHA or
// ErrVersionConflict is returned.
func (s *GitHubStore) WriteContent(ctx context.Context, content, token string) error {
	message := "Update bindings"
	if token == "" {
		message = "Create bindings file"
	}
	body, err := json.Marshal(contentsRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  s.branch,
		SHA:     token,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding contents request: %v", ErrStoreUnreachable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentsURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// 409 for a stale SHA, 422 when the file appeared underneath a
		// create attempt.
		s.logger.Warn("binding store write conflict",
			slog.Int("status", resp.StatusCode))
		return ErrVersionConflict
	default:
		return fmt.Errorf("%w: contents API returned status %d", ErrStoreUnreachable, resp.StatusCode)
	}
}

// Read returns the parsed binding set plus the version token.
func (s *GitHubStore) Read(ctx context.Context) (*Bindings, string, error) {
	content, token, err := s.ReadContent(ctx)
	if err != nil {
		return nil, "", err
	}
	return Parse(content), token, nil
}

// Write serializes the full set and writes it back conditionally. Every write
// is a full-file rewrite, which keeps the store free of duplicate keys.
func (s *GitHubStore) Write(ctx context.Context, b *Bindings, token string) error {
	return s.WriteContent(ctx, b.Serialize(), token)
}

// ReadFast fetches through the raw-content mirror. The mirror serves no
// revision metadata, so no version token is available on this path.
func (s *GitHubStore) ReadFast(ctx context.Context) (*Bindings, error) {
	url := fmt.Sprintf("%s/%s/%s/%s", s.rawBase, s.repo, s.branch, s.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrStoreNotFound
	default:
		return nil, fmt.Errorf("%w: raw mirror returned status %d", ErrStoreUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading raw content: %v", ErrStoreUnreachable, err)
	}
	return Parse(string(body)), nil
}

func (s *GitHubStore) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
