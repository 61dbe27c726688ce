package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// stateMarker is the global-state assignment the note pages embed in a
	// script tag. Its right-hand side carries the full page payload.
	stateMarker = "window.__INITIAL_STATE__"

	// watermarkFreeScene tags the watermark-free web-quality rendition in
	// an image's infoList.
	watermarkFreeScene = "CRD_WM_WEBP"

	// defaultUserAgent is a browser-like identity; the source pages reject
	// default client identification.
	defaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
)

// Extraction failure taxonomy.
var (
	// ErrUnreachable means the target page could not be fetched with a
	// success status.
	ErrUnreachable = errors.New("target page unreachable")

	// ErrStateNotFound means no script element carries the state marker.
	ErrStateNotFound = errors.New("note data not found in page")

	// ErrMalformedPayload means the embedded JSON could not be parsed or
	// does not have the expected shape.
	ErrMalformedPayload = errors.New("note payload malformed")
)

// Descriptor is the normalized projection of a note page. It is built fresh
// per request and never persisted.
type Descriptor struct {
	Title     string   `json:"title"`
	NoteType  string   `json:"notetype"`
	MediaURLs []string `json:"media_urls"`
}

// Extractor fetches note pages and projects their embedded state blob into
// a Descriptor. The extraction is best-effort over a non-contractual page
// format and is isolated here so it can be swapped without touching the
// validation logic.
type Extractor struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
}

// ExtractorConfig carries fetch tuning.
type ExtractorConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// NewExtractor creates an extractor with a bounded-timeout HTTP client.
func NewExtractor(cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With(slog.String("component", "note_extractor")),
		userAgent: ua,
	}
}

// statePayload mirrors the slice of the embedded state we consume.
type statePayload struct {
	Note struct {
		NoteDetailMap map[string]noteDetail `json:"noteDetailMap"`
	} `json:"note"`
}

type noteDetail struct {
	Note noteData `json:"note"`
}

type noteData struct {
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	ImageList []imageItem `json:"imageList"`
	Video     *videoData  `json:"video"`
}

type imageItem struct {
	URLDefault string      `json:"urlDefault"`
	InfoList   []sceneInfo `json:"infoList"`
}

type sceneInfo struct {
	ImageScene string `json:"imageScene"`
	URL        string `json:"url"`
}

type videoData struct {
	Stream struct {
		H264 []struct {
			URL string `json:"url"`
		} `json:"h264"`
	} `json:"stream"`
}

// Extract fetches url and returns the normalized note descriptor.
func (e *Extractor) Extract(ctx context.Context, url string) (*Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing page: %v", ErrMalformedPayload, err)
	}

	script, found := findStateScript(doc)
	if !found {
		return nil, ErrStateNotFound
	}

	raw, err := extractJSON(script)
	if err != nil {
		return nil, err
	}

	desc, err := project(raw)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "extracted note",
		slog.String("notetype", desc.NoteType),
		slog.Int("media_count", len(desc.MediaURLs)))
	return desc, nil
}

// findStateScript locates the script element carrying the state marker.
func findStateScript(doc *goquery.Document) (string, bool) {
	var script string
	var found bool
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if strings.Contains(text, stateMarker) {
			script = text
			found = true
			return false
		}
		return true
	})
	return script, found
}

// extractionStrategy pulls a candidate JSON object literal out of a script
// body. Strategies are tried in order until one yields valid JSON.
type extractionStrategy func(string) (string, bool)

// strategies, most robust first: the brace scan tolerates trailing markup
// noise that the historical equals-split variant trips over.
var strategies = []extractionStrategy{braceSpan, equalsSplit}

// braceSpan takes the substring between the first `{` and the last `}`
// inclusive.
func braceSpan(script string) (string, bool) {
	start := strings.Index(script, "{")
	end := strings.LastIndex(script, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return script[start : end+1], true
}

// equalsSplit splits on the first `=`, trims, and strips a trailing
// statement terminator if present.
func equalsSplit(script string) (string, bool) {
	_, rhs, ok := strings.Cut(script, "=")
	if !ok {
		return "", false
	}
	candidate := strings.TrimSpace(rhs)
	candidate = strings.TrimSuffix(candidate, ";")
	return candidate, candidate != ""
}

// extractJSON runs the strategy list over the script text and returns the
// first candidate that parses as JSON.
func extractJSON(script string) ([]byte, error) {
	for _, strategy := range strategies {
		candidate, ok := strategy(script)
		if !ok {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}
	return nil, fmt.Errorf("%w: no strategy yielded valid JSON", ErrMalformedPayload)
}

// project navigates note.noteDetailMap, takes its sole entry's note object
// and shapes the descriptor.
func project(raw []byte) (*Descriptor, error) {
	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(payload.Note.NoteDetailMap) == 0 {
		return nil, fmt.Errorf("%w: noteDetailMap is empty", ErrMalformedPayload)
	}

	// Exactly one entry is expected; take its sole value.
	var note noteData
	for _, detail := range payload.Note.NoteDetailMap {
		note = detail.Note
		break
	}

	desc := &Descriptor{Title: note.Title}

	if note.Type == "video" {
		if note.Video == nil || len(note.Video.Stream.H264) == 0 {
			return nil, fmt.Errorf("%w: video note without h264 stream", ErrMalformedPayload)
		}
		desc.NoteType = "video"
		desc.MediaURLs = []string{note.Video.Stream.H264[0].URL}
		return desc, nil
	}

	desc.NoteType = "image"
	desc.MediaURLs = make([]string, 0, len(note.ImageList))
	for _, image := range note.ImageList {
		url := image.URLDefault
		for _, info := range image.InfoList {
			if info.ImageScene == watermarkFreeScene {
				url = info.URL
				break
			}
		}
		desc.MediaURLs = append(desc.MediaURLs, url)
	}
	return desc, nil
}
