package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuflow/docuflow/internal/core/domain"
)

// Storage is a filesystem-backed object store laid out as
// <base>/<prefix>/<name>. The inbox prefix is where new documents land;
// processed objects are moved out of it so the watcher never re-reads them.
// Object generations come from the file's mtime in nanoseconds, which
// changes whenever the object is rewritten.
type Storage struct {
	basePath    string
	inboxPrefix string
}

func New(basePath, inboxPrefix string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if inboxPrefix == "" {
		inboxPrefix = "inbox"
	}
	if err := os.MkdirAll(filepath.Join(basePath, inboxPrefix), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath, inboxPrefix: inboxPrefix}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Move relocates an object under another prefix, returning the new key.
func (s *Storage) Move(_ context.Context, key, toPrefix string) (string, error) {
	newKey := toPrefix + "/" + filepath.Base(filepath.FromSlash(key))
	src := filepath.Join(s.basePath, filepath.FromSlash(key))
	dst := filepath.Join(s.basePath, filepath.FromSlash(newKey))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create target dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move object: %w", err)
	}
	return newKey, nil
}

// ListInbox enumerates objects currently under the inbox prefix. Hidden
// files and zero-byte files (uploads still in flight) are skipped.
func (s *Storage) ListInbox(_ context.Context) ([]domain.StorageNotification, error) {
	root := filepath.Join(s.basePath, s.inboxPrefix)
	out := make([]domain.StorageNotification, 0)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat inbox object: %w", err)
		}
		if info.Size() == 0 {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return fmt.Errorf("relativize inbox path: %w", err)
		}
		out = append(out, domain.StorageNotification{
			Bucket:      s.basePath,
			ObjectPath:  filepath.ToSlash(rel),
			Generation:  info.ModTime().UnixNano(),
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(filepath.Ext(d.Name())),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk inbox: %w", err)
	}
	return out, nil
}
