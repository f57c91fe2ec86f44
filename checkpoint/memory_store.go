package checkpoint

import (
	"context"
	"sync"

	"github.com/BaSui01/videoflow/types"
)

// MemoryStore 进程内检查点存储，适合测试与不需要持久化的短训练
type MemoryStore struct {
	mu        sync.RWMutex
	paths     map[string][]*Checkpoint
	maxToKeep int
	closed    bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储；maxToKeep <= 0 时使用 DefaultMaxToKeep
func NewMemoryStore(maxToKeep int) *MemoryStore {
	if maxToKeep <= 0 {
		maxToKeep = DefaultMaxToKeep
	}
	return &MemoryStore{
		paths:     make(map[string][]*Checkpoint),
		maxToKeep: maxToKeep,
	}
}

// Save 保存检查点
func (s *MemoryStore) Save(ctx context.Context, ckpt *Checkpoint) error {
	if err := prepare(ckpt); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	list := append(s.paths[ckpt.Path], clone(ckpt))
	if len(list) > s.maxToKeep {
		list = append([]*Checkpoint(nil), list[len(list)-s.maxToKeep:]...)
	}
	s.paths[ckpt.Path] = list
	return nil
}

// LoadLatest 加载最新检查点
func (s *MemoryStore) LoadLatest(ctx context.Context, path string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	list := s.paths[path]
	if len(list) == 0 {
		return nil, notFound(path)
	}
	return clone(list[len(list)-1]), nil
}

// List 列出检查点
func (s *MemoryStore) List(ctx context.Context, path string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	list := s.paths[path]
	infos := make([]Info, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		infos = append(infos, list[i].Info())
	}
	return infos, nil
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errStoreClosed = types.NewError(types.ErrCheckpointIO, "checkpoint store is closed")

func clone(c *Checkpoint) *Checkpoint {
	out := *c
	out.Tensors = make(map[string]Tensor, len(c.Tensors))
	for name, t := range c.Tensors {
		out.Tensors[name] = Tensor{
			Shape: append([]int(nil), t.Shape...),
			Data:  append([]float64(nil), t.Data...),
		}
	}
	return &out
}
