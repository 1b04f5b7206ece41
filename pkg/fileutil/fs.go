// Package fileutil provides unified file system access for both real and embedded file systems.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotSeekable は開いたファイルがシークできない場合に返される
var ErrNotSeekable = errors.New("file does not support seeking")

// FileSystem は実ファイルシステムと埋め込みファイルシステムを統一的に扱うインターフェース
type FileSystem interface {
	// Open はファイルを開く（大文字小文字を無視）
	Open(name string) (fs.File, error)
	// ReadFile はファイルの内容を読み込む（大文字小文字を無視）
	ReadFile(name string) ([]byte, error)
	// BasePath はベースパスを返す
	BasePath() string
	// IsEmbedded は埋め込みファイルシステムかどうかを返す
	IsEmbedded() bool
}

// Stream は読み込み・シーク可能なファイルハンドル
// read / seek / tell / close をすべて提供する
type Stream interface {
	fs.File
	io.Seeker
}

// OpenStream はファイルをStreamとして開く
// fsysがnilの場合はローカルファイルシステムを使用する
func OpenStream(fsys FileSystem, name string) (Stream, error) {
	if fsys == nil {
		fsys = NewRealFS("")
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	s, ok := f.(Stream)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotSeekable, name)
	}
	return s, nil
}

// Tell は現在の読み込み位置を返す
func Tell(s io.Seeker) (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// RealFS は実ファイルシステムへのアクセスを提供する
type RealFS struct {
	basePath string
}

// NewRealFS は実ファイルシステム用のFileSystemを作成する
func NewRealFS(basePath string) *RealFS {
	return &RealFS{basePath: basePath}
}

func (r *RealFS) Open(name string) (fs.File, error) {
	actualPath, err := r.findFileCaseInsensitive(r.resolvePath(name))
	if err != nil {
		return nil, err
	}
	return os.Open(actualPath)
}

func (r *RealFS) ReadFile(name string) ([]byte, error) {
	actualPath, err := r.findFileCaseInsensitive(r.resolvePath(name))
	if err != nil {
		return nil, err
	}
	return os.ReadFile(actualPath)
}

func (r *RealFS) BasePath() string {
	return r.basePath
}

func (r *RealFS) IsEmbedded() bool {
	return false
}

func (r *RealFS) resolvePath(name string) string {
	// ベースパスなしの絶対パスはそのまま使う
	if r.basePath == "" {
		return name
	}
	// 先頭の "/" や "\" を除去
	cleanName := strings.TrimPrefix(strings.TrimPrefix(name, "/"), "\\")
	return filepath.Join(r.basePath, cleanName)
}

func (r *RealFS) findFileCaseInsensitive(path string) (string, error) {
	// まず直接アクセスを試みる
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// 大文字小文字を無視して検索
	return FindFileCaseInsensitive(filepath.Dir(path), filepath.Base(path))
}

// EmbedFS は埋め込みファイルシステム（または任意のfs.FS）へのアクセスを提供する
type EmbedFS struct {
	fsys     fs.FS
	basePath string
}

// NewEmbedFS は埋め込みファイルシステム用のFileSystemを作成する
func NewEmbedFS(fsys fs.FS, basePath string) *EmbedFS {
	return &EmbedFS{fsys: fsys, basePath: basePath}
}

func (e *EmbedFS) Open(name string) (fs.File, error) {
	actualPath, err := e.findFileCaseInsensitive(e.resolvePath(name))
	if err != nil {
		return nil, err
	}
	return e.fsys.Open(actualPath)
}

func (e *EmbedFS) ReadFile(name string) ([]byte, error) {
	actualPath, err := e.findFileCaseInsensitive(e.resolvePath(name))
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(e.fsys, actualPath)
}

func (e *EmbedFS) BasePath() string {
	return e.basePath
}

func (e *EmbedFS) IsEmbedded() bool {
	return true
}

func (e *EmbedFS) resolvePath(name string) string {
	// 先頭の "/" や "\" を除去
	cleanName := strings.TrimPrefix(strings.TrimPrefix(name, "/"), "\\")
	if cleanName == "" {
		cleanName = "."
	}
	if e.basePath != "" && cleanName != "." {
		return e.basePath + "/" + cleanName
	}
	if e.basePath != "" {
		return e.basePath
	}
	return cleanName
}

func (e *EmbedFS) findFileCaseInsensitive(path string) (string, error) {
	// まず直接アクセスを試みる
	if f, err := e.fsys.Open(path); err == nil {
		f.Close()
		return path, nil
	}

	// fs.FSでは "/" を使用
	dir := strings.ReplaceAll(filepath.Dir(path), "\\", "/")
	return FindFileCaseInsensitiveFS(e.fsys, dir, filepath.Base(path))
}
