package checkpointer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore stores each checkpoint in its own file:
//
//	<root>/<env>_<run id>/checkpoint_000001/checkpoint-1
//
// The handle of a checkpoint is the path to its file.
type FileStore struct {
	root string
}

// NewFileStore returns a new FileStore rooted at the absolute form of
// root, so that its handles do not depend on the working directory.
// The directory is created if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("newFileStore: root directory is required")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("newFileStore: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("newFileStore: could not create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the root directory of the FileStore
func (f *FileStore) Root() string {
	return f.root
}

func (f *FileStore) path(meta Meta) string {
	run := fmt.Sprintf("%v_%v", meta.Env, meta.RunID)
	dir := fmt.Sprintf("checkpoint_%06d", meta.Iteration)
	file := fmt.Sprintf("checkpoint-%d", meta.Iteration)
	return filepath.Join(f.root, run, dir, file)
}

// Save writes the checkpoint to a temporary file and renames it into
// place once it is synced to disk
func (f *FileStore) Save(ctx context.Context, obj Serializable,
	meta Meta) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}

	data, err := encode(obj, meta)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}

	path := f.path(meta)
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	return Handle(path), nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("could not write file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("could not sync file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("could not close file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename file: %w", err)
	}
	return nil
}

// Restore reads the checkpoint at path h into obj
func (f *FileStore) Restore(ctx context.Context, obj Serializable, h Handle,
	want Meta) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	data, err := os.ReadFile(string(h))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("restore: %w: %v", ErrNotFound, h)
	} else if err != nil {
		return fmt.Errorf("restore: could not read %v: %w", h, err)
	}

	if err := restore(data, obj, want); err != nil {
		return fmt.Errorf("restore: %v: %w", h, err)
	}
	return nil
}

// List returns the metadata of all checkpoints under the root
// directory, oldest first
func (f *FileStore) List(ctx context.Context) ([]Meta, error) {
	paths, err := filepath.Glob(filepath.Join(f.root, "*", "checkpoint_*",
		"checkpoint-*"))
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	metas := make([]Meta, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		if strings.HasSuffix(path, ".tmp") {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("list: could not read %v: %w", path, err)
		}
		env, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("list: %v: %w", path, err)
		}
		env.Meta.Handle = Handle(path)
		metas = append(metas, env.Meta)
	}

	sortMetas(metas)
	return metas, nil
}

// Close implements the Store interface
func (f *FileStore) Close() error {
	return nil
}

// fileRoot returns the root directory of a FileStore containing h
func fileRoot(h Handle) (string, error) {
	path := filepath.Clean(string(h))
	dir := filepath.Dir(path)
	if !strings.HasPrefix(filepath.Base(path), "checkpoint-") ||
		!strings.HasPrefix(filepath.Base(dir), "checkpoint_") {
		return "", fmt.Errorf("%w: %q is not a checkpoint file", ErrNotFound,
			h)
	}
	return filepath.Dir(filepath.Dir(dir)), nil
}

func sortMetas(metas []Meta) {
	sort.SliceStable(metas, func(i, j int) bool {
		if !metas[i].Created.Equal(metas[j].Created) {
			return metas[i].Created.Before(metas[j].Created)
		}
		return metas[i].Iteration < metas[j].Iteration
	})
}

// exists returns an error wrapping ErrNotFound if path is not a file
func exists(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %v is a directory", ErrNotFound, path)
	}
	return nil
}
