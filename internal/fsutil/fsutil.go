package fsutil

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var documentExts = map[string]struct{}{
	".xml": {},
}

var pointingExts = map[string]struct{}{
	".yaml": {},
	".yml":  {},
}

// ListDocuments returns every mask document and pointing file under root,
// sorted by path.
func ListDocuments(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsImportable(path) {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// IsMaskDocument checks if a file is an MSC XML document.
func IsMaskDocument(path string) bool {
	_, ok := documentExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsPointingFile checks if a file is a YAML pointing file.
func IsPointingFile(path string) bool {
	_, ok := pointingExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsImportable reports whether path looks like a mask document or pointing file.
func IsImportable(path string) bool {
	return IsMaskDocument(path) || IsPointingFile(path)
}
