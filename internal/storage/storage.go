// Package storage はプロフィール写真の保存先を提供する。
// ローカルファイルシステムとS3互換オブジェクトストレージを切り替えて使う。
package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
)

// PhotoNamePrefix は保存する写真ファイル名の接頭辞。
const PhotoNamePrefix = "profilePhoto-"

// ErrForeignPath は保存先の管理外のパスを削除しようとした場合のエラー。
var ErrForeignPath = errors.New("path is not managed by this photo store")

// ErrInvalidName はファイル名にディレクトリ区切りなどが含まれる場合のエラー。
var ErrInvalidName = errors.New("invalid photo name")

// PhotoStore はプロフィール写真の保存先インターフェース。
type PhotoStore interface {
	// Save はnameで写真を保存し、ブラウザから参照できる公開パスを返す。
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Delete は公開パスで指定された写真を削除する。存在しない場合はエラーにしない。
	Delete(ctx context.Context, publicPath string) error
}

// NewPhotoName は拡張子extを持つ一意な保存名を生成する。
// extは".png"のようにドット付きで渡す。
func NewPhotoName(ext string) string {
	return PhotoNamePrefix + uuid.NewString() + strings.ToLower(ext)
}

// validName は保存名として安全な値かを判定する。
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
