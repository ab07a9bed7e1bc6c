package extract

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joseph-ayodele/certificate-verifier/constants"
)

// DetectMediaType resolves a document's media type. A declared type wins
// unless it is empty or generic; then the file extension, then content sniffing.
func DetectMediaType(name, declared string, data []byte) string {
	if mt := baseMediaType(declared); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if mt := constants.MediaTypeForExt(filepath.Ext(name)); mt != "" {
		return mt
	}
	return baseMediaType(mimetype.Detect(data).String())
}

// SniffDocument builds a Document whose media type comes from DetectMediaType.
func SniffDocument(name, declared string, data []byte) Document {
	return NewDocument(name, DetectMediaType(name, declared, data), data)
}

func baseMediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(v)
}
