// Package adapter maps file and request content into the plain text the
// redaction engine operates on, and back. The engine itself never sees file
// formats; it works on text and offsets only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	slotel "github.com/S-feLayer/SafeLayer-Chat/internal/otel"
)

var tracer = slotel.Tracer("github.com/S-feLayer/SafeLayer-Chat/internal/adapter")

// ErrUnsupportedFormat marks content the service cannot extract text from.
var ErrUnsupportedFormat = errors.New("unsupported content format")

// ContentType identifies how input content should be treated before
// redaction.
type ContentType string

// Supported content types. Every supported type maps text offsets 1:1 to
// original content offsets; formats that would need lossy extraction first
// (PDF, HTML) are unsupported rather than redacted with broken coordinates.
const (
	ContentText     ContentType = "text"
	ContentMarkdown ContentType = "markdown"
	ContentCode     ContentType = "code"
)

var contentExtensions = map[string]ContentType{
	".txt":      ContentText,
	".log":      ContentText,
	".csv":      ContentText,
	".md":       ContentMarkdown,
	".markdown": ContentMarkdown,
	".go":       ContentCode,
	".py":       ContentCode,
	".js":       ContentCode,
	".ts":       ContentCode,
	".java":     ContentCode,
	".rb":       ContentCode,
	".rs":       ContentCode,
	".c":        ContentCode,
	".h":        ContentCode,
	".cpp":      ContentCode,
	".sh":       ContentCode,
	".sql":      ContentCode,
	".json":     ContentCode,
	".yaml":     ContentCode,
	".yml":      ContentCode,
	".toml":     ContentCode,
	".env":      ContentCode,
}

// Valid reports whether t is a supported content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentMarkdown, ContentCode:
		return true
	}
	return false
}

// DetectContentType infers the content type from a filename. PDF, HTML, and
// other formats whose extraction cannot keep exact original offsets are
// unsupported; extraction for those stays outside this service.
func DetectContentType(path string) (ContentType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentExtensions[ext]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// Format describes one supported content type for the formats endpoint.
type Format struct {
	ContentType ContentType `json:"content_type"`
	Extensions  []string    `json:"extensions"`
}

// Formats lists the supported content types and their file extensions,
// sorted for stable output.
func Formats() []Format {
	byType := make(map[ContentType][]string)
	for ext, ct := range contentExtensions {
		byType[ct] = append(byType[ct], ext)
	}
	out := make([]Format, 0, len(byType))
	for ct, exts := range byType {
		sort.Strings(exts)
		out = append(out, Format{ContentType: ct, Extensions: exts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentType < out[j].ContentType })
	return out
}

// Segment maps one contiguous range of extracted text back to the byte range
// of the original content it came from.
type Segment struct {
	TextStart, TextEnd int
	OrigStart, OrigEnd int
}

// OffsetMap maps extracted-text offsets to original content coordinates.
// Segments are sorted by TextStart and non-overlapping.
type OffsetMap []Segment

// ToOriginal converts an offset in the extracted text to an offset in the
// original content. Returns -1 when the offset falls outside every segment.
func (m OffsetMap) ToOriginal(textOff int) int {
	for _, seg := range m {
		if textOff >= seg.TextStart && textOff <= seg.TextEnd {
			return seg.OrigStart + (textOff - seg.TextStart)
		}
	}
	return -1
}

// Document is extracted content ready for redaction. Text is what the engine
// redacts; Offsets maps its coordinates back to the original content, and
// Reembed turns the redacted text back into output bytes. Every supported
// format extracts byte-for-byte, so the map is a single identity segment and
// re-embedding is exact; formats that cannot offer that (PDF, HTML) are
// rejected at extraction.
type Document struct {
	ContentType ContentType
	Text        string
	Offsets     OffsetMap
}

// Reembed produces the output content for a redacted text.
func (d *Document) Reembed(redacted string) []byte {
	return []byte(redacted)
}

// Extractor turns files into Documents, enforcing a size cap.
type Extractor struct {
	maxSize int64
}

// NewExtractor creates a file extractor with a size limit in megabytes.
func NewExtractor(maxSizeMB int) *Extractor {
	return &Extractor{maxSize: int64(maxSizeMB) * 1024 * 1024}
}

// ExtractFile reads a file and extracts its redactable text.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Document, error) {
	_, span := tracer.Start(ctx, "adapter.extract")
	defer span.End()

	ct, err := DetectContentType(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.Size() > e.maxSize {
		return nil, fmt.Errorf("file size %d exceeds limit %d bytes", info.Size(), e.maxSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return Extract(ct, content)
}

// Extract builds a Document from raw content of a known type.
func Extract(ct ContentType, content []byte) (*Document, error) {
	switch ct {
	case ContentText, ContentMarkdown, ContentCode:
		text := string(content)
		return &Document{
			ContentType: ct,
			Text:        text,
			Offsets:     OffsetMap{{TextStart: 0, TextEnd: len(text), OrigStart: 0, OrigEnd: len(content)}},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ct)
	}
}
