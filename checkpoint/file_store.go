package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
)

const indexFile = "checkpoint.json"

// fileEntry 索引中的一条记录
type fileEntry struct {
	Info
	File string `json:"file"`
}

// FileStore 基于文件的检查点存储，适合单节点训练。
// 检查点路径即目录：每个检查点写入一个 JSON 文件，目录下的
// checkpoint.json 按保存顺序记录现存检查点。所有写入先写临时文件再重命名。
type FileStore struct {
	mu        sync.Mutex
	maxToKeep int
	closed    bool
	logger    *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore 创建文件存储
func NewFileStore(maxToKeep int, logger *zap.Logger) *FileStore {
	if maxToKeep <= 0 {
		maxToKeep = DefaultMaxToKeep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		maxToKeep: maxToKeep,
		logger:    logger.With(zap.String("store", "file_checkpoint")),
	}
}

// Save 保存检查点
func (s *FileStore) Save(ctx context.Context, ckpt *Checkpoint) error {
	if err := prepare(ckpt); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	if err := os.MkdirAll(ckpt.Path, 0755); err != nil {
		return types.NewCheckpointError("create checkpoint directory", err)
	}
	entries, err := readIndex(ckpt.Path)
	if err != nil {
		return err
	}

	data, err := json.Marshal(ckpt)
	if err != nil {
		return types.NewCheckpointError("marshal checkpoint", err)
	}
	name := fmt.Sprintf("model.ckpt-%d-%s.json", ckpt.GlobalStep, shortID(ckpt.ID))
	if err := writeAtomic(filepath.Join(ckpt.Path, name), data); err != nil {
		return types.NewCheckpointError("write checkpoint "+name, err)
	}

	entries = append(entries, fileEntry{Info: ckpt.Info(), File: name})
	var pruned []fileEntry
	if len(entries) > s.maxToKeep {
		pruned = entries[:len(entries)-s.maxToKeep]
		entries = entries[len(entries)-s.maxToKeep:]
	}
	if err := writeIndex(ckpt.Path, entries); err != nil {
		return err
	}

	for _, e := range pruned {
		if err := os.Remove(filepath.Join(ckpt.Path, e.File)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove old checkpoint", zap.String("file", e.File), zap.Error(err))
		}
	}

	s.logger.Debug("checkpoint saved to file",
		zap.String("checkpoint_id", ckpt.ID),
		zap.String("file", name),
		zap.Int64("global_step", ckpt.GlobalStep))
	return nil
}

// LoadLatest 加载最新检查点
func (s *FileStore) LoadLatest(ctx context.Context, path string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStoreClosed
	}

	entries, err := readIndex(path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, notFound(path)
	}
	latest := entries[len(entries)-1]

	data, err := os.ReadFile(filepath.Join(path, latest.File))
	if err != nil {
		return nil, types.NewCheckpointError("read checkpoint "+latest.File, err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, types.NewCheckpointError("unmarshal checkpoint "+latest.File, err)
	}
	return &ckpt, nil
}

// List 列出检查点
func (s *FileStore) List(ctx context.Context, path string) ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStoreClosed
	}

	entries, err := readIndex(path)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		infos = append(infos, entries[i].Info)
	}
	return infos, nil
}

// Close 关闭存储
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func readIndex(dir string) ([]fileEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewCheckpointError("read checkpoint index", err)
	}
	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, types.NewCheckpointError("unmarshal checkpoint index", err)
	}
	return entries, nil
}

func writeIndex(dir string, entries []fileEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return types.NewCheckpointError("marshal checkpoint index", err)
	}
	if err := writeAtomic(filepath.Join(dir, indexFile), data); err != nil {
		return types.NewCheckpointError("write checkpoint index", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeAtomic 写入临时文件后重命名
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
