package maskio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"slitmask/internal/mask"
)

// Format names one output product.
type Format string

const (
	FormatXML          Format = "xml"
	FormatFITS         Format = "fits"
	FormatAlignFITS    Format = "align-fits"
	FormatRegions      Format = "regions"
	FormatStarList     Format = "starlist"
	FormatSlitList     Format = "slitlist"
	FormatScript       Format = "script"
	FormatAlignScript  Format = "align-script"
	FormatCoords       Format = "coords"
	FormatAllCoords    Format = "all-coords"
	FormatExcessCoords Format = "excess-coords"
)

var formats = []Format{
	FormatXML, FormatFITS, FormatAlignFITS, FormatRegions, FormatStarList, FormatSlitList,
	FormatScript, FormatAlignScript, FormatCoords, FormatAllCoords, FormatExcessCoords,
}

// Formats lists every supported product.
func Formats() []Format { return slices.Clone(formats) }

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(formats, f) {
		return "", fmt.Errorf("unknown export format %q", s)
	}
	return f, nil
}

// FileName is the conventional file name for a product of mask name.
func (f Format) FileName(name string) string {
	switch f {
	case FormatXML:
		return name + ".xml"
	case FormatFITS:
		return name + ".fits"
	case FormatAlignFITS:
		return name + "_align.fits"
	case FormatRegions:
		return name + ".reg"
	case FormatStarList:
		return name + ".str"
	case FormatSlitList:
		return name + "_SlitList.txt"
	case FormatScript:
		return name + ".sh"
	case FormatAlignScript:
		return name + "_align.sh"
	case FormatCoords:
		return name + ".coords"
	case FormatAllCoords:
		return name + "_all.coords"
	case FormatExcessCoords:
		return name + "_excess.coords"
	}
	return name + "." + string(f)
}

// ContentType is the media type served for a product.
func (f Format) ContentType() string {
	switch f {
	case FormatXML:
		return "application/xml"
	case FormatFITS, FormatAlignFITS:
		return "application/fits"
	}
	return "text/plain; charset=utf-8"
}

// Export writes one product of c to w.
func Export(w io.Writer, c *mask.Configuration, f Format) error {
	switch f {
	case FormatXML:
		return WriteXML(w, c, "")
	case FormatFITS:
		return WriteFITS(w, c, false)
	case FormatAlignFITS:
		return WriteFITS(w, c, true)
	case FormatRegions:
		return WriteRegions(w, c)
	case FormatStarList:
		return WriteStarList(w, c)
	case FormatSlitList:
		return WriteSlitList(w, c)
	case FormatScript:
		return WriteScienceScript(w, c, false)
	case FormatAlignScript:
		return WriteAlignmentScript(w, c, false)
	case FormatCoords:
		return WriteMaskCoords(w, c)
	case FormatAllCoords:
		return WriteAllCoords(w, c)
	case FormatExcessCoords:
		return WriteExcessCoords(w, c)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteProducts writes every product of c into dir and returns the paths
// written. The XML document is written last so that the configuration is only
// marked saved once everything else succeeded. Unsaveable presets skip XML.
func WriteProducts(dir string, c *mask.Configuration) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	var written []string
	for _, f := range formats {
		if f == FormatXML {
			continue
		}
		path := filepath.Join(dir, f.FileName(c.MaskName))
		if err := exportFile(path, c, f); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if c.Saveable() {
		path := filepath.Join(dir, FormatXML.FileName(c.MaskName))
		if err := SaveXML(path, c); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func exportFile(path string, c *mask.Configuration, f Format) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Export(out, c, f); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}
