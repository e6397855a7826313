package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLocalURLPrefix はローカル保存時の公開パスの接頭辞。
const DefaultLocalURLPrefix = "/uploads/profiles/"

// LocalPhotoStore はローカルディレクトリに写真を保存するPhotoStore。
type LocalPhotoStore struct {
	dir       string
	urlPrefix string
}

// NewLocalPhotoStore はLocalPhotoStoreを生成する。
// urlPrefixが空の場合はDefaultLocalURLPrefixを使う。
func NewLocalPhotoStore(dir, urlPrefix string) *LocalPhotoStore {
	if urlPrefix == "" {
		urlPrefix = DefaultLocalURLPrefix
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalPhotoStore{dir: dir, urlPrefix: urlPrefix}
}

// Dir は保存先ディレクトリを返す。
func (s *LocalPhotoStore) Dir() string {
	return s.dir
}

// Save は<dir>/<name>にファイルを書き込む。
func (s *LocalPhotoStore) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write photo file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close photo file: %w", err)
	}

	return s.urlPrefix + name, nil
}

// Delete は公開パスに対応するファイルを削除する。
// 接頭辞が一致しないパスはErrForeignPathを返す。
func (s *LocalPhotoStore) Delete(_ context.Context, publicPath string) error {
	name, ok := strings.CutPrefix(publicPath, s.urlPrefix)
	if !ok || !validName(name) {
		return ErrForeignPath
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete photo file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PhotoStore = (*LocalPhotoStore)(nil)
