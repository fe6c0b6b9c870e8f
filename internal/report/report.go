// Package report renders full time-frequency maps as PNG heat maps and
// interactive HTML pages.
package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/qscan/internal/fsutil"
	"github.com/banshee-data/qscan/internal/monitoring"
	"github.com/banshee-data/qscan/internal/qtile"
)

// Format selects an output file type.
type Format string

const (
	FormatPNG  Format = "png"
	FormatHTML Format = "html"
)

// ParseFormats parses a comma-separated list such as "png,html".
func ParseFormats(s string) ([]Format, error) {
	var out []Format
	for _, f := range strings.Split(s, ",") {
		switch Format(strings.ToLower(strings.TrimSpace(f))) {
		case FormatPNG:
			out = append(out, FormatPNG)
		case FormatHTML:
			out = append(out, FormatHTML)
		case "":
		default:
			return nil, fmt.Errorf("unknown plot format %q", f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no plot format in %q", s)
	}
	return out, nil
}

// Renderer writes one file per full map and format into a directory.
type Renderer struct {
	fs      fsutil.FileSystem
	dir     string
	formats []Format
	written []string
}

// NewRenderer creates dir on disk if needed.
func NewRenderer(dir string, formats ...Format) (*Renderer, error) {
	return NewRendererFS(fsutil.OSFileSystem{}, dir, formats...)
}

// NewRendererFS is NewRenderer on an arbitrary file system.
func NewRendererFS(fsys fsutil.FileSystem, dir string, formats ...Format) (*Renderer, error) {
	if len(formats) == 0 {
		formats = []Format{FormatPNG}
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	return &Renderer{fs: fsys, dir: dir, formats: formats}, nil
}

// Written returns the paths written so far.
func (r *Renderer) Written() []string {
	return append([]string(nil), r.written...)
}

// Render writes the maps of the chunk centred on GPS time chunkCenter.
// Files are named qmap_<centre>_<window>s.<ext>.
func (r *Renderer) Render(chunkCenter int64, maps []*qtile.FullMap) error {
	for _, m := range maps {
		if m == nil {
			continue
		}
		title := fmt.Sprintf("GPS %d, %d s window", chunkCenter, m.Window)
		for _, f := range r.formats {
			var buf bytes.Buffer
			var err error
			switch f {
			case FormatHTML:
				err = RenderHTML(&buf, m, title)
			default:
				err = RenderPNG(&buf, m, title)
			}
			if err != nil {
				return fmt.Errorf("%s map %d s: %w", f, m.Window, err)
			}
			path := filepath.Join(r.dir, fmt.Sprintf("qmap_%d_%ds.%s", chunkCenter, m.Window, f))
			if err := r.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			r.written = append(r.written, path)
			monitoring.Debugf(1, "report: wrote %s", path)
		}
	}
	return nil
}
