package utils

import (
	"archive/zip"
	"os"
	"path"
	"time"
)

// ZipEntry is a single in-memory file written into an archive.
type ZipEntry struct {
	Name     string
	Content  []byte
	Modified time.Time
}

// ZipEntries writes entries into a new zip file at target.
func ZipEntries(target string, entries []ZipEntry) error {
	zipFile, err := os.Create(target)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	archive := zip.NewWriter(zipFile)

	for _, entry := range entries {
		header := &zip.FileHeader{
			// Use forward slashes for cross-platform compatibility
			Name:     path.Clean(entry.Name),
			Method:   zip.Deflate,
			Modified: entry.Modified,
		}
		if header.Modified.IsZero() {
			header.Modified = time.Now()
		}
		header.SetMode(0o644)

		writer, err := archive.CreateHeader(header)
		if err != nil {
			archive.Close()
			return err
		}
		if _, err := writer.Write(entry.Content); err != nil {
			archive.Close()
			return err
		}
	}

	return archive.Close()
}
