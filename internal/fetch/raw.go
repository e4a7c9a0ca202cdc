package fetch

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"strings"
)

// OpenRaw opens a downloaded dataset file for reading; zip archives
// are resolved to their first csv entry. The returned func releases
// the underlying file handles.
func OpenRaw(rawPath string) (io.Reader, func(), error) {
	if strings.HasSuffix(rawPath, ".zip") {
		zipReader, err := zip.OpenReader(rawPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open zip: %w", err)
		}
		for _, file := range zipReader.File {
			if strings.HasSuffix(file.Name, ".csv") {
				entry, err := file.Open()
				if err != nil {
					_ = zipReader.Close()
					return nil, nil, fmt.Errorf("open zip entry %s: %w", file.Name, err)
				}
				return entry, func() {
					_ = entry.Close()
					_ = zipReader.Close()
				}, nil
			}
		}
		_ = zipReader.Close()
		return nil, nil, fmt.Errorf("no csv entry in %s", rawPath)
	}

	file, err := os.Open(rawPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open raw file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
