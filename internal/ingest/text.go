package ingest

import (
	"bufio"
	"encoding/base64"
	"io"
	"net/url"
	"strings"

	"github.com/paperdesk/paperdesk/internal/paper/splitter"
)

// TextReader handles plain text: one paragraph per line.
type TextReader struct{}

func (p *TextReader) Read(r io.Reader, filename string) ([]splitter.Paragraph, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var out []splitter.Paragraph
	for sc.Scan() {
		out = append(out, splitter.Paragraph{Text: sc.Text()})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeDataURI returns the payload of a data: URI. Remote URLs are not
// fetched; they report false.
func decodeDataURI(uri string) ([]byte, bool) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, false
	}
	meta, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, false
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, false
		}
		return data, true
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, false
	}
	return []byte(s), true
}
