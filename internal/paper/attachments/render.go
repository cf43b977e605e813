package attachments

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Renderer turns an attachment into display markup. Output must never
// contain placeholder-shaped text, otherwise Substitute is not idempotent.
type Renderer interface {
	RenderImage(n int, img Image) string
	RenderTable(n int, t Table) string
}

// HTMLRenderer renders images as <img> elements and tables verbatim.
// URLFor, when set, supplies an external URL for image n (for example a
// presigned object-storage link); images without a URL are inlined as data URIs.
type HTMLRenderer struct {
	URLFor func(n int) (string, bool)
}

func (r HTMLRenderer) RenderImage(n int, img Image) string {
	if r.URLFor != nil {
		if u, ok := r.URLFor(n); ok {
			return fmt.Sprintf(`<img src="%s" alt="image %d"/>`, u, n)
		}
	}
	return fmt.Sprintf(`<img src="%s" alt="image %d"/>`, DataURI(img), n)
}

func (r HTMLRenderer) RenderTable(_ int, t Table) string {
	return t.HTML
}

// DataURI encodes an image as a data: URI.
func DataURI(img Image) string {
	ct := img.ContentType
	if ct == "" {
		ct = sniff(img.Data)
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func sniff(data []byte) string {
	return http.DetectContentType(data)
}
