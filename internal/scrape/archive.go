package scrape

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
)

// BuildArchive zips the named files (relative to dir) into zipPath. The
// archive stores the bare file names, so extraction recreates the download
// directory's layout.
func BuildArchive(zipPath, dir string, names []string) error {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to read %s for archive: %w", name, err)
		}
		if err := zipWriteFile(zw, name, data); err != nil {
			zw.Close()
			return fmt.Errorf("failed to archive %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return f.Sync()
}

func zipWriteFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
