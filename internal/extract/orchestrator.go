package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/certificate-verifier/constants"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
)

// PageObserver is notified after each page is recognized.
type PageObserver func(page int, d time.Duration)

// Orchestrator dispatches a document on its media kind and drives OCR over
// every page in order.
type Orchestrator struct {
	rasterizer Rasterizer
	recognizer TextRecognizer
	logger     *slog.Logger
	onPage     PageObserver
}

func NewOrchestrator(r Rasterizer, rec TextRecognizer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{rasterizer: r, recognizer: rec, logger: logger}
}

// WithPageObserver registers fn to be called after each recognized page.
func (o *Orchestrator) WithPageObserver(fn PageObserver) *Orchestrator {
	o.onPage = fn
	return o
}

// Extract recognizes the text of doc. Any page failure aborts the whole
// extraction; no partial text is returned.
func (o *Orchestrator) Extract(ctx context.Context, doc Document) (DocumentText, error) {
	switch doc.Kind {
	case constants.IMAGE:
		start := time.Now()
		txt, err := o.recognizer.Recognize(ctx, doc.Data)
		if err != nil {
			return DocumentText{}, err
		}
		o.observe(1, time.Since(start))
		o.logger.Debug("image recognized", "name", doc.Name, "chars", len(txt))
		return DocumentText{Pages: []string{txt}}, nil
	case constants.PDF:
		return o.extractPDF(ctx, doc)
	default:
		return DocumentText{}, common.UnsupportedMediaError(doc.MediaType)
	}
}

func (o *Orchestrator) extractPDF(ctx context.Context, doc Document) (DocumentText, error) {
	src, err := o.rasterizer.Open(ctx, doc.Data)
	if err != nil {
		return DocumentText{}, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			o.logger.Warn("failed to close page source", "name", doc.Name, "error", cerr)
		}
	}()

	n := src.PageCount()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return DocumentText{}, fmt.Errorf("extract page %d: %w", i, err)
		}
		start := time.Now()
		img, err := src.Render(ctx, i)
		if err != nil {
			return DocumentText{}, err
		}
		txt, err := o.recognizer.Recognize(ctx, img.Data)
		if err != nil {
			return DocumentText{}, err
		}
		o.observe(i, time.Since(start))
		pages = append(pages, txt)
	}
	o.logger.Debug("pdf recognized", "name", doc.Name, "pages", n)
	return DocumentText{Pages: pages}, nil
}

func (o *Orchestrator) observe(page int, d time.Duration) {
	if o.onPage != nil {
		o.onPage(page, d)
	}
}
