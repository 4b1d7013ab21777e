package ingest

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/suehn/scopy/internal/store"
)

// typeDetector classifies a Capture into one of the spec's six item types
// and extracts plain_text (the raw text for text, rtf and html captures,
// the path list for file captures, empty for the rest). fileGlobs is compiled once from Settings.FileTypeGlobs and
// reused to recognize known document/media extensions for the "file" type.
type typeDetector struct {
	fileGlobs []glob.Glob
}

// newTypeDetector compiles the configured file-type glob patterns
// (gobwas/glob), used to classify file-reference captures.
func newTypeDetector(patterns []string) (*typeDetector, error) {
	d := &typeDetector{}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, err
		}
		d.fileGlobs = append(d.fileGlobs, g)
	}
	return d, nil
}

// Detect classifies c and returns the item type plus its extracted
// plain_text. For file captures, plain_text is the newline-joined path
// list; for image and other captures, plain_text is empty and is stored
// empty (no caption is substituted).
func (d *typeDetector) Detect(c Capture) (store.ItemType, string) {
	if len(c.FileURLs) > 0 {
		return store.ItemTypeFile, d.describeFiles(c.FileURLs)
	}

	switch strings.ToLower(c.TypeHint) {
	case "rtf":
		return store.ItemTypeRTF, string(c.Bytes)
	case "html":
		return store.ItemTypeHTML, string(c.Bytes)
	case "image", "png", "jpeg", "tiff":
		return store.ItemTypeImage, ""
	}

	if len(c.Bytes) > 0 && utf8.Valid(c.Bytes) {
		return store.ItemTypeText, string(c.Bytes)
	}
	if len(c.Bytes) > 0 {
		return store.ItemTypeOther, ""
	}
	return store.ItemTypeOther, ""
}

// matchesFileGlobs reports whether path's extension matches one of the
// configured file-type globs, used by describeFiles to mark unrecognized
// paths in file-reference captures.
func (d *typeDetector) matchesFileGlobs(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, g := range d.fileGlobs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// describeFiles builds the plain_text for a file-reference capture: the
// path list, with paths matching none of the configured file-type globs
// marked "(unrecognized type)" so search/UI can flag them distinctly from
// known document/media types.
func (d *typeDetector) describeFiles(urls []string) string {
	lines := make([]string, len(urls))
	for i, u := range urls {
		if d.matchesFileGlobs(u) {
			lines[i] = u
		} else {
			lines[i] = u + " (unrecognized type)"
		}
	}
	return strings.Join(lines, "\n")
}
