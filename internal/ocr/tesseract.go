package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joseph-ayodele/certificate-verifier/constants"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	reCRLF     = regexp.MustCompile(`\r\n?`)
	reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)
)

// TesseractRecognizer runs English OCR over a single image. Engine
// confidence is not collected.
type TesseractRecognizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractRecognizer(cfg Config, runner Runner, logger *slog.Logger) *TesseractRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &TesseractRecognizer{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

// Recognize returns the text found in img. Empty text is not an error; an
// image that cannot be decoded or processed is a RecognitionError.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", common.RecognitionError(errors.New("empty image"))
	}

	if mt := mimetype.Detect(img); constants.IsHEICMediaType(mt.String()) {
		png, err := convertHEICtoPNG(ctx, t.runner, t.cfg.HeicConverter, img)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			t.logger.Error("heic conversion failed", "converter", t.cfg.HeicConverter, "error", err)
			return "", common.RecognitionError(err)
		}
		img = png
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "", common.RecognitionError(fmt.Errorf("decode image: %w", err))
	}
	t.logger.Debug("recognizing image", "format", format, "bytes", len(img))

	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, img, t.cfg.tesseractArgs()...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", common.RecognitionError(fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb))))
	}
	return cleanText(string(out)), nil
}

// cleanText drops carriage returns, form feeds and ruler lines.
func cleanText(s string) string {
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\f", "")
	s = reBoxNoise.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
