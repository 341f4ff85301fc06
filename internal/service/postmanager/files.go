package postmanager

import (
	"errors"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// writeFileAtomic 先写同目录临时文件再 rename，读者看不到半截内容
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// fileBackup 写入前的文件内容，exists 为 false 表示原来没有这个文件
type fileBackup struct {
	path   string
	data   []byte
	exists bool
}

func backupFiles(paths ...string) ([]fileBackup, error) {
	backups := make([]fileBackup, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		switch {
		case err == nil:
			backups = append(backups, fileBackup{path: p, data: data, exists: true})
		case errors.Is(err, os.ErrNotExist):
			backups = append(backups, fileBackup{path: p})
		default:
			return nil, err
		}
	}
	return backups, nil
}

// restoreFiles 尽力恢复，失败只记日志
func restoreFiles(backups []fileBackup) {
	for _, b := range backups {
		var err error
		if b.exists {
			err = writeFileAtomic(b.path, b.data)
		} else if rmErr := os.Remove(b.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
		if err != nil {
			klog.Warningf("[postmanager] 恢复文件失败: path=%s, error=%v", b.path, err)
		}
	}
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			klog.Warningf("[postmanager] 回滚文件失败: path=%s, error=%v", p, err)
		}
	}
}
