package extract

import (
	"github.com/joseph-ayodele/certificate-verifier/constants"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(MediaTestSuite))

type MediaTestSuite struct{}

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func (s *MediaTestSuite) TestDeclaredTypeWins(c *gc.C) {
	c.Assert(DetectMediaType("scan.bin", "Application/PDF; charset=binary", nil), gc.Equals, "application/pdf")
}

func (s *MediaTestSuite) TestGenericTypeFallsBackToExtension(c *gc.C) {
	c.Assert(DetectMediaType("scan.JPG", "application/octet-stream", nil), gc.Equals, "image/jpeg")
	c.Assert(DetectMediaType("scan.heic", "", nil), gc.Equals, "image/heic")
}

func (s *MediaTestSuite) TestSniffing(c *gc.C) {
	doc := SniffDocument("upload", "", pngMagic)
	c.Assert(doc.MediaType, gc.Equals, "image/png")
	c.Assert(doc.Kind, gc.Equals, constants.IMAGE)

	doc = SniffDocument("notes", "", []byte("plain words"))
	c.Assert(doc.Kind, gc.Equals, constants.OTHER)
}
