package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
)

// FilenameEnumerator returns a function which returns consecutively
// numbered filenames, starting at start+1. Numbers are zero padded to
// six digits so that the files sort in order, e.g. frame_000001.png
// for prefix "frame" and extension ".png".
func FilenameEnumerator(start int, prefix, extension string) func() string {
	i := start
	return func() string {
		i++
		return fmt.Sprintf("%v_%06d%v", prefix, i, extension)
	}
}

// mkdirFor creates the parent directory of path
func mkdirFor(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}
	return nil
}
