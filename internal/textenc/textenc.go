// Package textenc reads and writes script files in the encoding the database
// tooling expects (Windows-1252 by default).
package textenc

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/pthm/scriptrel"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "windows-1252"

// Codec converts between file bytes and Go strings.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// New returns a codec for a WHATWG encoding label (windows-1252, cp1252,
// latin1, utf-8, ...). An empty name selects DefaultEncoding.
func New(name string) (*Codec, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", scriptrel.ErrConfiguration, name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = name
	}
	return &Codec{name: canonical, enc: enc}, nil
}

// Default returns the Windows-1252 codec.
func Default() *Codec {
	return &Codec{name: DefaultEncoding, enc: charmap.Windows1252}
}

// Name returns the canonical encoding name.
func (c *Codec) Name() string {
	return c.name
}

// Decode turns file bytes into text. Valid UTF-8 input is taken as is, so
// sources edited in a UTF-8 editor and files previously written by this codec
// both read back correctly.
func (c *Codec) Decode(b []byte) (string, error) {
	b = trimBOM(b)
	if utf8.Valid(b) || c.isUTF8() {
		return string(b), nil
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", c.name, err)
	}
	return string(out), nil
}

// Encode turns text into file bytes. Characters the target encoding cannot
// represent are replaced rather than failing the write.
func (c *Codec) Encode(s string) ([]byte, error) {
	if c.isUTF8() {
		return []byte(s), nil
	}
	out, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", c.name, err)
	}
	return out, nil
}

// ReadFile reads and decodes path.
func (c *Codec) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", scriptrel.ErrFilesystem, path, err)
	}
	return c.Decode(b)
}

// WriteFile encodes text and writes it to path.
func (c *Codec) WriteFile(path, text string) error {
	b, err := c.Encode(text)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", scriptrel.ErrFilesystem, path, err)
	}
	return nil
}

func (c *Codec) isUTF8() bool {
	return c.enc == unicode.UTF8
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
