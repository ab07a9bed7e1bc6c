// Package ocr renders PDF pages and recognizes text by driving the
// pdftoppm and tesseract command line tools.
package ocr

import (
	"strconv"

	"github.com/joseph-ayodele/certificate-verifier/internal/common"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for PDF pages, default 144 (2x of 72)
	MaxPages      int    // 0 = no limit; larger documents are refused

	TessdataDir   string
	HeicConverter string // "magick" | "heif-convert" | "sips"

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

// DefaultDPI renders PDF pages at twice the 72 DPI user-space resolution.
const DefaultDPI = 144

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = DefaultDPI
	}
	if c.HeicConverter == "" {
		c.HeicConverter = "magick"
	}
	return c
}

func (c Config) tesseractArgs() []string {
	// tesseract stdin stdout -l <lang>
	args := []string{"stdin", "stdout", "-l", c.TesseractLang}
	if c.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(c.PSM))
	}
	if c.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(c.OEM))
	}
	if c.TessdataDir != "" {
		args = append(args, "--tessdata-dir", c.TessdataDir)
	}
	return args
}

// ConfigFromSettings maps the env-loaded OCR settings onto a Config.
func ConfigFromSettings(s common.OCRConfig) Config {
	return Config{
		Pdftoppm:      s.PdftoppmBin,
		Tesseract:     s.TesseractBin,
		TesseractLang: s.Lang,
		DPI:           s.DPI,
		MaxPages:      s.MaxPages,
		TessdataDir:   s.TessdataDir,
		HeicConverter: s.HeicConverter,
	}
}
