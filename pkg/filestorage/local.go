// Package filestorage 本地磁盘文件存储：上传材料以 UUID 重命名，按子目录分组保存。
package filestorage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidPath = errors.New("非法的文件路径")
	ErrTooLarge    = errors.New("文件超过大小限制")
)

// Storage 文件存储接口，返回值为相对存储根目录的路径（写入数据库）
type Storage interface {
	Save(r io.Reader, originalName, subDir string) (string, error)
	Delete(relPath string) error
	FullPath(relPath string) (string, error)
}

// LocalStorage 本地文件系统实现
type LocalStorage struct {
	basePath string
	maxBytes int64
	logger   *zap.Logger
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage 创建本地存储并确保根目录存在；maxBytes <= 0 表示不限制
func NewLocalStorage(basePath string, maxBytes int64, logger *zap.Logger) (*LocalStorage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("解析存储目录失败: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录 %s 失败: %w", abs, err)
	}
	logger.Info("本地存储目录就绪", zap.String("path", abs))

	return &LocalStorage{basePath: abs, maxBytes: maxBytes, logger: logger}, nil
}

// Save 写入文件，文件名为 uuid + 原扩展名
func (ls *LocalStorage) Save(r io.Reader, originalName, subDir string) (string, error) {
	dir, err := ls.resolve(subDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建子目录失败: %w", err)
	}

	name := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))
	dstPath := filepath.Join(dir, name)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("创建目标文件失败: %w", err)
	}

	src := r
	if ls.maxBytes > 0 {
		src = io.LimitReader(r, ls.maxBytes+1)
	}
	n, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("写入文件失败: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("关闭文件失败: %w", closeErr)
	case ls.maxBytes > 0 && n > ls.maxBytes:
		_ = os.Remove(dstPath)
		return "", ErrTooLarge
	}

	rel := filepath.ToSlash(filepath.Join(subDir, name))
	ls.logger.Info("文件已保存",
		zap.String("original", originalName),
		zap.String("path", rel),
		zap.Int64("bytes", n),
	)
	return rel, nil
}

// Delete 删除文件；文件不存在视为成功
func (ls *LocalStorage) Delete(relPath string) error {
	if relPath == "" {
		return nil
	}
	full, err := ls.resolve(relPath)
	if err != nil {
		return err
	}
	if full == ls.basePath {
		return ErrInvalidPath
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			ls.logger.Warn("待删除文件不存在", zap.String("path", relPath))
			return nil
		}
		return fmt.Errorf("删除文件失败: %w", err)
	}

	ls.logger.Info("文件已删除", zap.String("path", relPath))
	return nil
}

// FullPath 返回文件在磁盘上的绝对路径
func (ls *LocalStorage) FullPath(relPath string) (string, error) {
	if relPath == "" {
		return "", ErrInvalidPath
	}
	return ls.resolve(relPath)
}

// resolve 拼接并确保结果位于存储根目录之内
func (ls *LocalStorage) resolve(rel string) (string, error) {
	full := filepath.Join(ls.basePath, filepath.FromSlash(rel))
	if full != ls.basePath && !strings.HasPrefix(full, ls.basePath+string(os.PathSeparator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}
