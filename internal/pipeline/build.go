package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/metrics"
	"github.com/joseph-ayodele/certificate-verifier/internal/ocr"
)

// NewOCRExtractor wires the pdftoppm rasterizer and the tesseract recognizer
// into an orchestrator. Page latencies go to m when it is set.
func NewOCRExtractor(cfg ocr.Config, m *metrics.Metrics, logger *slog.Logger) *extract.Orchestrator {
	runner := ocr.NewExecRunner(logger)
	o := extract.NewOrchestrator(
		ocr.NewPDFRasterizer(cfg, runner, logger),
		ocr.NewTesseractRecognizer(cfg, runner, logger),
		logger,
	)
	if m != nil {
		o = o.WithPageObserver(m.ObservePage)
	}
	return o
}
