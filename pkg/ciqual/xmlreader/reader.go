// Package xmlreader parses the flat record lists inside the Ciqual XML
// distribution. The upstream files are windows-1252 encoded and known
// to contain unescaped ampersands and stray control bytes, so parsing
// is two-tier: a strict pass first, then a byte-level repair pass that
// cleans the document before handing it back to the strict parser.
package xmlreader

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"

	"github.com/zzgael/ciqual-mcp/pkg/ciqual/internalerr"
)

// Record is one flat record element, exposing child-element text by tag.
type Record struct {
	fields map[string]string
}

// Text returns the text content of a child element. The second return
// is false when the record has no such child.
func (r Record) Text(tag string) (string, bool) {
	v, ok := r.fields[tag]
	return v, ok
}

// RecordReader produces the records named record from an XML document.
type RecordReader interface {
	ReadRecords(r io.Reader, record string) ([]Record, error)
}

// DefaultReaders is the tier order used by ReadFile: strict first,
// byte-level repair as fallback.
var DefaultReaders = []RecordReader{StrictReader{}, RepairingReader{}}

// ReadFile parses the record elements out of a Ciqual XML file, trying
// each reader tier in order. It fails only when every tier fails.
func ReadFile(path, record string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", internalerr.ErrParseFailed, path, err)
	}

	var lastErr error
	for _, reader := range DefaultReaders {
		records, err := reader.ReadRecords(bytes.NewReader(data), record)
		if err == nil {
			return records, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrParseFailed, path, lastErr)
}

// StrictReader parses the document as-is, honoring its declared
// encoding via a charset-aware decoder.
type StrictReader struct{}

func (StrictReader) ReadRecords(r io.Reader, record string) ([]Record, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return decodeRecords(dec, record)
}

// RepairingReader decodes the raw bytes as windows-1252, escapes bare
// ampersands, strips control characters outside tab/newline/CR, and
// parses the repaired text strictly.
type RepairingReader struct{}

func (RepairingReader) ReadRecords(r io.Reader, record string) ([]Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	text, err := charmap.Windows1252.NewDecoder().String(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode windows-1252: %w", err)
	}
	text = repair(text)

	dec := xml.NewDecoder(strings.NewReader(text))
	// The document already became UTF-8 above; ignore the declared encoding.
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return decodeRecords(dec, record)
}

var (
	entityPattern  = regexp.MustCompile(`^&(?:amp|lt|gt|apos|quot|#[0-9]+|#x[0-9a-fA-F]+);`)
	controlPattern = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]|�")
)

func repair(text string) string {
	text = escapeBareAmpersands(text)
	return controlPattern.ReplaceAllString(text, "")
}

// escapeBareAmpersands rewrites every '&' that does not start a valid
// entity reference as '&amp;'.
func escapeBareAmpersands(text string) string {
	if !strings.Contains(text, "&") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] != '&' {
			b.WriteByte(text[i])
			continue
		}
		if m := entityPattern.FindString(text[i:]); m != "" {
			b.WriteString(m)
			i += len(m) - 1
			continue
		}
		b.WriteString("&amp;")
	}
	return b.String()
}

// recordElement captures an arbitrary flat record: any child element's
// name and text content.
type recordElement struct {
	Children []childElement `xml:",any"`
}

type childElement struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

func decodeRecords(dec *xml.Decoder, record string) ([]Record, error) {
	var records []Record
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != record {
			continue
		}
		var elem recordElement
		if err := dec.DecodeElement(&elem, &start); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(elem.Children))
		for _, child := range elem.Children {
			fields[child.XMLName.Local] = child.Text
		}
		records = append(records, Record{fields: fields})
	}
}
