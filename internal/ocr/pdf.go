package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFRasterizer validates PDFs with pdfcpu and renders pages with pdftoppm.
type PDFRasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPDFRasterizer(cfg Config, runner Runner, logger *slog.Logger) *PDFRasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &PDFRasterizer{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

// Open parses the document and stages it for rendering. A malformed PDF,
// an empty one, or one above MaxPages is a DecodeError.
func (r *PDFRasterizer) Open(ctx context.Context, pdf []byte) (extract.PageSource, error) {
	if len(pdf) == 0 {
		return nil, common.DecodeError(errors.New("empty document"))
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		r.logger.Warn("pdf validation failed", "bytes", len(pdf), "error", err)
		return nil, common.DecodeError(fmt.Errorf("read pdf: %w", err))
	}
	if n <= 0 {
		return nil, common.DecodeError(errors.New("document has no pages"))
	}
	if r.cfg.MaxPages > 0 && n > r.cfg.MaxPages {
		return nil, common.DecodeError(fmt.Errorf("document has %d pages, limit is %d", n, r.cfg.MaxPages))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "cv-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("stage pdf: %w", err)
	}

	r.logger.Debug("pdf opened", "pages", n, "dpi", r.cfg.DPI)
	return &pdfPages{r: r, dir: dir, path: path, count: n}, nil
}

type pdfPages struct {
	r     *PDFRasterizer
	dir   string
	path  string
	count int
}

func (p *pdfPages) PageCount() int { return p.count }

// Render rasterizes a single 1-based page to PNG.
func (p *pdfPages) Render(ctx context.Context, page int) (extract.PageImage, error) {
	if page < 1 || page > p.count {
		return extract.PageImage{}, fmt.Errorf("page %d out of range 1..%d: %w", page, p.count, common.ErrInvalidInput)
	}

	prefix := filepath.Join(p.dir, "page-"+strconv.Itoa(page))
	pg := strconv.Itoa(page)
	// pdftoppm -r 144 -f N -l N -png -singlefile <in.pdf> <tmp/page-N>
	_, errb, err := p.r.runner.Run(ctx, p.r.cfg.Pdftoppm, nil,
		"-r", strconv.Itoa(p.r.cfg.DPI), "-f", pg, "-l", pg, "-png", "-singlefile", p.path, prefix)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return extract.PageImage{}, ctxErr
		}
		return extract.PageImage{}, common.DecodeError(fmt.Errorf("render page %d: %w: %s", page, err, strings.TrimSpace(string(errb))))
	}

	out := prefix + ".png"
	data, err := os.ReadFile(out)
	if err != nil {
		return extract.PageImage{}, common.DecodeError(fmt.Errorf("render page %d produced no image: %w", page, err))
	}
	_ = os.Remove(out)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return extract.PageImage{}, common.DecodeError(fmt.Errorf("render page %d: %w", page, err))
	}
	return extract.PageImage{Data: data, Width: cfg.Width, Height: cfg.Height, Page: page}, nil
}

func (p *pdfPages) Close() error {
	return os.RemoveAll(p.dir)
}
