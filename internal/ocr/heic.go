package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// convertHEICtoPNG converts HEIC/HEIF bytes to PNG bytes using the chosen converter.
// converter: "heif-convert" | "magick" | "sips"
func convertHEICtoPNG(ctx context.Context, r Runner, converter string, data []byte) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "cv-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "image.heic")
	out := filepath.Join(tmpDir, "image.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	var errb []byte
	switch converter {
	case "heif-convert":
		_, errb, err = r.Run(ctx, "heif-convert", nil, in, out)
	case "magick":
		_, errb, err = r.Run(ctx, "magick", nil, in, out)
	case "sips":
		_, errb, err = r.Run(ctx, "sips", nil, "-s", "format", "png", in, "--out", out)
	default:
		return nil, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")
	}
	if err != nil {
		return nil, fmt.Errorf("%s convert failed: %w: %s", converter, err, strings.TrimSpace(string(errb)))
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	return png, nil
}
