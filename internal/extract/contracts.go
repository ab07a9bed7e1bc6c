package extract

import (
	"context"
	"strings"

	"github.com/joseph-ayodele/certificate-verifier/constants"
)

// Document is one uploaded certificate. It is consumed by a single attempt.
type Document struct {
	Name      string
	MediaType string
	Kind      constants.MediaKind
	Data      []byte
}

// NewDocument classifies data by its declared media type.
func NewDocument(name, mediaType string, data []byte) Document {
	return Document{
		Name:      name,
		MediaType: mediaType,
		Kind:      constants.KindFromMediaType(mediaType),
		Data:      data,
	}
}

// PageImage is a rendered PDF page. Page is 1-based.
type PageImage struct {
	Data   []byte // PNG
	Width  int
	Height int
	Page   int
}

// DocumentText holds recognized text per page, in page order.
type DocumentText struct {
	Pages []string
}

// Text joins page texts with a single newline.
func (t DocumentText) Text() string {
	return strings.Join(t.Pages, "\n")
}

// PageSource is an opened PDF that can render its pages one at a time.
type PageSource interface {
	PageCount() int
	Render(ctx context.Context, page int) (PageImage, error)
	Close() error
}

// Rasterizer opens PDF bytes for page rendering.
type Rasterizer interface {
	Open(ctx context.Context, pdf []byte) (PageSource, error)
}

// TextRecognizer runs OCR over one raster image.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}
