package share

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"

	"github.com/dshills/sketchlink/internal/logging"
)

var safeToken = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

const sequenceDiagram = `sequenceDiagram
    participant Browser
    participant API
    participant Cache
    Browser->>API: GET /diagram
    API->>Cache: lookup
    Cache-->>API: miss
    API-->>Browser: 200 OK
`

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"single char", "x"},
		{"whitespace only", " \t\n\r\n  "},
		{"diagram", sequenceDiagram},
		{"multi-byte", "graph TD; A[Größe] --> B[日本語] --> C[🚀 launch]"},
		{"control chars", "a\x00b\x01c\x7f"},
		{"long", strings.Repeat("flowchart LR\n  A-->B\n", 6000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := Encode(tt.text)
			if token == "" {
				t.Fatal("Encode returned an empty token")
			}
			if !safeToken.MatchString(token) {
				t.Fatalf("token contains unsafe characters: %q", token)
			}

			got, err := Decode(token)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tt.text {
				t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(tt.text))
			}
		})
	}
}

func TestRoundTripHundredThousandChars(t *testing.T) {
	var b strings.Builder
	for i, n := 0, 0; n < 100_000; i++ {
		line := fmt.Sprintf("node%c --> %c\n", 'a'+i%26, 0x4e00+i%500)
		b.WriteString(line)
		n += utf8.RuneCountInString(line)
	}
	text := b.String()
	if n := utf8.RuneCountInString(text); n < 100_000 {
		t.Fatalf("fixture has %d characters", n)
	}

	got, err := Decode(Encode(text))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != text {
		t.Error("round trip mismatch for large input")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	if Encode(sequenceDiagram) != Encode(sequenceDiagram) {
		t.Error("Encode is not deterministic")
	}
}

func TestEncodeCompressesDiagramSource(t *testing.T) {
	text := strings.Repeat(sequenceDiagram, 20)
	stats := NewCodec().Stats(text)
	if stats.TokenBytes >= stats.RawBytes/4 {
		t.Errorf("token is %d bytes for %d raw bytes", stats.TokenBytes, stats.RawBytes)
	}
	if stats.Ratio() <= 0 || stats.Ratio() >= 1 {
		t.Errorf("Ratio() = %v", stats.Ratio())
	}
	if (Stats{}).Ratio() != 0 {
		t.Error("empty Stats ratio should be 0")
	}
}

func TestEncodeNormalizesInvalidUTF8(t *testing.T) {
	text := "ok\xffbad\xc3"
	got, err := Decode(Encode(text))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if want := "ok\uFFFDbad\uFFFD"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeEmptyIsNoFragment(t *testing.T) {
	for _, in := range []string{"", "#"} {
		got, err := Decode(in)
		if !errors.Is(err, ErrNoFragment) {
			t.Errorf("Decode(%q) error = %v, want ErrNoFragment", in, err)
		}
		if errors.Is(err, ErrCorruptFragment) {
			t.Errorf("Decode(%q) reported corruption for empty input", in)
		}
		if got != "" {
			t.Errorf("Decode(%q) = %q, want empty", in, got)
		}
	}
}

func TestDecodeEncodedEmptyString(t *testing.T) {
	got, err := Decode(Encode(""))
	if err != nil {
		t.Fatalf("Decode(Encode(\"\")) error = %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestDecodeLeadingHash(t *testing.T) {
	got, err := Decode("#" + Encode("graph TD"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "graph TD" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	valid := Encode(sequenceDiagram)
	flipped := []byte(valid)
	mid := len(flipped) / 2
	if flipped[mid] == 'A' {
		flipped[mid] = 'B'
	} else {
		flipped[mid] = 'A'
	}

	tests := []struct {
		name string
		in   string
	}{
		{"not a token", "not-a-valid-token!!!"},
		{"trailing garbage", Encode("x") + "garbage"},
		{"percent encoded", "abc%20def"},
		{"plain words", "hello"},
		{"truncated", valid[:len(valid)/2]},
		{"flipped character", string(flipped)},
		{"non-ascii", "ÄÖÜ"},
		{"space", Encode("x") + " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			if err == nil {
				t.Fatalf("Decode(%q) = %q, want error", tt.in, got)
			}
			if !errors.Is(err, ErrCorruptFragment) {
				t.Errorf("error %v does not match ErrCorruptFragment", err)
			}
			var derr *DecodeError
			if !errors.As(err, &derr) {
				t.Errorf("error %T is not a *DecodeError", err)
			}
			if got != "" {
				t.Errorf("Decode returned partial data %q", got)
			}
		})
	}
}

func TestDecodeRejectsNonUTF8Payload(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte{0xff, 0xfe, 0xfd}); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	token := encoding.EncodeToString(buf.Bytes())

	_, err := Decode(token)
	if !errors.Is(err, ErrCorruptFragment) {
		t.Errorf("error = %v, want ErrCorruptFragment", err)
	}
}

func TestDecodeLimits(t *testing.T) {
	t.Run("decoded size", func(t *testing.T) {
		c := NewCodec(WithMaxDecodedSize(64))
		token := c.Encode(strings.Repeat("a", 65))

		_, err := c.Decode(token)
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("error = %v, want ErrTooLarge", err)
		}
		if !errors.Is(err, ErrCorruptFragment) {
			t.Errorf("error = %v, want ErrCorruptFragment", err)
		}

		if _, err := c.Decode(c.Encode(strings.Repeat("a", 64))); err != nil {
			t.Errorf("payload at the limit rejected: %v", err)
		}
	})

	t.Run("fragment length", func(t *testing.T) {
		c := NewCodec(WithMaxFragmentLength(8))
		_, err := c.Decode(c.Encode(sequenceDiagram))
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("error = %v, want ErrTooLarge", err)
		}
	})

	t.Run("compression bomb", func(t *testing.T) {
		c := NewCodec(WithMaxDecodedSize(1 << 10))
		bomb := NewCodec().Encode(strings.Repeat("\x00", 8<<20))
		_, err := c.Decode(bomb)
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("error = %v, want ErrTooLarge", err)
		}
	})

	t.Run("ignored non-positive options", func(t *testing.T) {
		c := NewCodec(WithMaxDecodedSize(0), WithMaxFragmentLength(-1))
		if c.maxDecodedSize != DefaultMaxDecodedSize || c.maxFragmentLength != DefaultMaxFragmentLength {
			t.Errorf("limits changed by invalid options: %d %d", c.maxDecodedSize, c.maxFragmentLength)
		}
	})
}

func TestDecodeFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})
	c := NewCodec(WithLogger(logger))

	if _, err := c.Decode("%%%"); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(buf.String(), "decode failed") {
		t.Errorf("failure not logged: %q", buf.String())
	}
}

func TestIsFragmentSafe(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"AZaz09-_", true},
		{"a+b", false},
		{"a/b", false},
		{"a=", false},
		{"é", false},
	}
	for _, tt := range tests {
		if got := IsFragmentSafe(tt.in); got != tt.want {
			t.Errorf("IsFragmentSafe(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		token := Encode(text)
		if !safeToken.MatchString(token) {
			t.Fatalf("unsafe token %q", token)
		}
		got, err := Decode(token)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if got != text {
			t.Fatalf("got %q, want %q", got, text)
		}
	})
}

func TestDecodeNeverPanicsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.OneOf(
			rapid.StringMatching(`[A-Za-z0-9_-]{0,64}`),
			rapid.String(),
		).Draw(t, "fragment")

		got, err := Decode(in)
		if err != nil && got != "" {
			t.Fatalf("error %v returned with data %q", err, got)
		}
		if err == nil && Encode(got) == "" {
			t.Fatalf("decoded value cannot be re-encoded")
		}
	})
}
