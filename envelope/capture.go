package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
)

// PreviewLimit is the maximum size in bytes of ContentPreview.
const PreviewLimit = 512

// Option customizes an envelope built by New.
type Option func(*Envelope)

// WithTags appends capture context tags. Empty values are dropped.
func WithTags(tags ...string) Option {
	return func(e *Envelope) {
		for _, t := range tags {
			if t != "" {
				e.Tags = append(e.Tags, t)
			}
		}
	}
}

// WithContentPointer sets the opaque content locator (e.g. a file path).
func WithContentPointer(ptr string) Option {
	return func(e *Envelope) { e.ContentPointer = ptr }
}

// WithPrivacy sets the privacy classification.
func WithPrivacy(flag PrivacyFlag) Option {
	return func(e *Envelope) { e.PrivacyFlag = flag }
}

// WithEdit marks the envelope as an edit-style capture of path, attaching a
// unified diff from previous to the captured content and a content preview.
func WithEdit(path, previous, current string) Option {
	return func(e *Envelope) {
		e.Diff = UnifiedDiff(path, previous, current)
		e.ContentPreview = Preview(current, PreviewLimit)
	}
}

// WithClock overrides the capture time source.
func WithClock(now func() time.Time) Option {
	return func(e *Envelope) { e.Timestamp = now().UTC().Format(TimestampLayout) }
}

// New builds an envelope for content captured by source in app. A fresh
// UUIDv4 event ID is assigned and the content hash and size are computed
// from content.
func New(source, app string, content []byte, opts ...Option) Envelope {
	e := Envelope{
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC().Format(TimestampLayout),
		Source:      source,
		App:         app,
		ContentHash: Hash(content),
		SizeBytes:   uint64(len(content)),
		Tags:        []string{},
		PrivacyFlag: PrivacyDefault,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Hash returns the hex SHA-256 digest of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Preview returns at most limit bytes of text without splitting a rune.
func Preview(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// UnifiedDiff renders a unified diff between previous and current, labelled
// with the base name of path.
func UnifiedDiff(path, previous, current string) string {
	name := filepath.Base(path)
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: name,
		ToFile:   name,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
