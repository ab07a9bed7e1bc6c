package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(IngestTestSuite))

func Test(t *testing.T) {
	gc.TestingT(t)
}

type IngestTestSuite struct{}

func touch(c *gc.C, path string) {
	c.Assert(os.MkdirAll(filepath.Dir(path), 0o755), gc.IsNil)
	c.Assert(os.WriteFile(path, []byte("x"), 0o644), gc.IsNil)
}

func (s *IngestTestSuite) TestScanDirectory(c *gc.C) {
	root := c.MkDir()
	touch(c, filepath.Join(root, "b.PDF"))
	touch(c, filepath.Join(root, "a.png"))
	touch(c, filepath.Join(root, "notes.txt"))
	touch(c, filepath.Join(root, ".hidden.jpg"))
	touch(c, filepath.Join(root, ".cache", "c.jpg"))
	touch(c, filepath.Join(root, "nested", "d.heic"))

	results, stats, err := ScanDirectory(root, true)
	c.Assert(err, gc.IsNil)

	var paths []string
	for _, r := range results {
		c.Assert(r.Err, gc.Equals, "")
		rel, err := filepath.Rel(root, r.Path)
		c.Assert(err, gc.IsNil)
		paths = append(paths, rel)
	}
	c.Assert(paths, gc.DeepEquals, []string{"a.png", "b.PDF", filepath.Join("nested", "d.heic")})
	c.Assert(stats.Matched, gc.Equals, uint32(3))
	c.Assert(stats.Failed, gc.Equals, uint32(0))

	results, _, err = ScanDirectory(root, false)
	c.Assert(err, gc.IsNil)
	c.Assert(results, gc.HasLen, 5)
}

func (s *IngestTestSuite) TestScanDirectoryRequiresRoot(c *gc.C) {
	_, _, err := ScanDirectory("  ", true)
	c.Assert(err, gc.ErrorMatches, "root path is required")

	_, _, err = ScanDirectory(filepath.Join(c.MkDir(), "missing"), true)
	c.Assert(err, gc.NotNil)
}

func (s *IngestTestSuite) TestHelpers(c *gc.C) {
	c.Assert(AllowedExt(".JPEG"), gc.Equals, true)
	c.Assert(AllowedExt("docx"), gc.Equals, false)
	c.Assert(IsHidden("/tmp/.git"), gc.Equals, true)
	c.Assert(IsHidden("/tmp/cert.pdf"), gc.Equals, false)
}

func (s *IngestTestSuite) TestWatchEmitsExistingAndNewFiles(c *gc.C) {
	root := c.MkDir()
	existing := filepath.Join(root, "existing.pdf")
	touch(c, existing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, SkipHidden: true}, nil)
	c.Assert(err, gc.IsNil)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			c.Fatal("timed out waiting for watcher event")
			return ""
		}
	}
	c.Assert(next(), gc.Equals, existing)

	touch(c, filepath.Join(root, "ignored.txt"))
	fresh := filepath.Join(root, "fresh.png")
	touch(c, fresh)
	c.Assert(next(), gc.Equals, fresh)

	cancel()
	for range events {
	}
}

func (s *IngestTestSuite) TestWatchRequiresRoots(c *gc.C) {
	_, _, err := Watch(context.Background(), WatchConfig{}, nil)
	c.Assert(err, gc.ErrorMatches, "no roots provided")
}
