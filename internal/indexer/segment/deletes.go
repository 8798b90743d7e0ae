package segment

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/RoaringBitmap/roaring/v2"
)

// DeletesPath returns the deleted-docs sidecar path of a segment.
func DeletesPath(segPath string) string {
	return segPath + DeletesExtension
}

// writeDeletes atomically replaces the sidecar of segPath with bm.
func writeDeletes(segPath string, bm *roaring.Bitmap) error {
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return fmt.Errorf("encoding deleted docs: %w", err)
	}
	path := DeletesPath(segPath)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing deleted docs: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming deleted docs: %w", err)
	}
	return nil
}

// readDeletes loads the sidecar of segPath; a missing sidecar is an empty
// bitmap.
func readDeletes(segPath string) (*roaring.Bitmap, error) {
	data, err := os.ReadFile(DeletesPath(segPath))
	if errors.Is(err, fs.ErrNotExist) {
		return roaring.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading deleted docs: %w", err)
	}
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decoding deleted docs: %w", err)
	}
	return bm, nil
}
