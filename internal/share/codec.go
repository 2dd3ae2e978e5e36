// Package share converts diagram source text to and from compact tokens that
// can be placed directly after '#' in a URL.
//
// A token is the zlib-compressed UTF-8 text, encoded with the unpadded
// base64url alphabet [A-Za-z0-9_-]. Every character of that alphabet is an
// RFC 3986 unreserved character, so tokens never need percent-encoding.
//
//	token := share.Encode(src)
//	text, err := share.Decode(token)
//	switch {
//	case errors.Is(err, share.ErrNoFragment):
//	    // nothing was shared
//	case errors.Is(err, share.ErrCorruptFragment):
//	    // the link is damaged or foreign
//	}
package share

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dshills/sketchlink/internal/logging"
)

// Default limits for decoding.
const (
	DefaultMaxFragmentLength = 4 << 20  // 4 MiB of token characters
	DefaultMaxDecodedSize    = 16 << 20 // 16 MiB of decompressed text
)

var encoding = base64.RawURLEncoding.Strict()

// Codec encodes and decodes share tokens. The zero value is not usable; use
// NewCodec. A Codec is safe for concurrent use.
type Codec struct {
	maxFragmentLength int
	maxDecodedSize    int64
	logger            *logging.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithMaxFragmentLength bounds the number of token characters Decode accepts.
func WithMaxFragmentLength(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxFragmentLength = n
		}
	}
}

// WithMaxDecodedSize bounds the decompressed size in bytes.
func WithMaxDecodedSize(n int64) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxDecodedSize = n
		}
	}
}

// WithLogger sets the logger used to report decode failures.
func WithLogger(l *logging.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCodec creates a codec with the given options.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		maxFragmentLength: DefaultMaxFragmentLength,
		maxDecodedSize:    DefaultMaxDecodedSize,
		logger:            logging.Null(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = NewCodec()

// Encode encodes text with the default codec.
func Encode(text string) string {
	return defaultCodec.Encode(text)
}

// Decode decodes a fragment with the default codec.
func Decode(fragment string) (string, error) {
	return defaultCodec.Decode(fragment)
}

// Encode compresses text and maps it into the fragment-safe alphabet.
// Invalid UTF-8 sequences are replaced with U+FFFD first, so Encode never
// fails. The result is deterministic and never empty.
func (c *Codec) Encode(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}

	var buf bytes.Buffer
	// Only an invalid level makes NewWriterLevel fail, and writes to a
	// bytes.Buffer cannot fail.
	zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	_, _ = io.WriteString(zw, text)
	_ = zw.Close()

	return encoding.EncodeToString(buf.Bytes())
}

// Decode reverses Encode. A single leading '#' is ignored.
//
// It returns ErrNoFragment for empty input and a *DecodeError (matching
// ErrCorruptFragment) for anything that is not a complete, checksummed token
// produced by Encode.
func (c *Codec) Decode(fragment string) (string, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return "", ErrNoFragment
	}

	if len(fragment) > c.maxFragmentLength {
		return "", c.fail(len(fragment), fmt.Sprintf("token longer than %d characters", c.maxFragmentLength), ErrTooLarge)
	}

	if i := strings.IndexFunc(fragment, func(r rune) bool { return !isSafe(r) }); i >= 0 {
		return "", c.fail(len(fragment), fmt.Sprintf("invalid character at offset %d", i), nil)
	}

	raw, err := encoding.DecodeString(fragment)
	if err != nil {
		return "", c.fail(len(fragment), "invalid base64url", err)
	}

	src := bytes.NewReader(raw)
	zr, err := zlib.NewReader(src)
	if err != nil {
		return "", c.fail(len(fragment), "invalid stream header", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, c.maxDecodedSize+1))
	if err != nil {
		return "", c.fail(len(fragment), "invalid compressed data", err)
	}
	if int64(len(out)) > c.maxDecodedSize {
		return "", c.fail(len(fragment), fmt.Sprintf("decoded text exceeds %d bytes", c.maxDecodedSize), ErrTooLarge)
	}
	if src.Len() != 0 {
		return "", c.fail(len(fragment), fmt.Sprintf("%d trailing bytes after stream", src.Len()), nil)
	}
	if !utf8.Valid(out) {
		return "", c.fail(len(fragment), "decoded text is not valid UTF-8", nil)
	}

	return string(out), nil
}

func (c *Codec) fail(length int, reason string, err error) error {
	derr := &DecodeError{Reason: reason, Err: err}
	c.logger.WithField("length", length).Debug("decode failed: %v", derr)
	return derr
}

// IsFragmentSafe reports whether every character of s belongs to the token
// alphabet.
func IsFragmentSafe(s string) bool {
	for _, r := range s {
		if !isSafe(r) {
			return false
		}
	}
	return true
}

func isSafe(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// Stats describes the size effect of encoding a text.
type Stats struct {
	RawBytes   int
	TokenBytes int
}

// Ratio returns TokenBytes/RawBytes, or 0 for empty text.
func (s Stats) Ratio() float64 {
	if s.RawBytes == 0 {
		return 0
	}
	return float64(s.TokenBytes) / float64(s.RawBytes)
}

// Stats encodes text and reports raw and token sizes.
func (c *Codec) Stats(text string) Stats {
	return Stats{
		RawBytes:   len(text),
		TokenBytes: len(c.Encode(text)),
	}
}
