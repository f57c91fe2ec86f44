package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/videoflow/c3d"
	"github.com/BaSui01/videoflow/nn"
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// DefaultMaxToKeep 每个路径默认保留的检查点数量
const DefaultMaxToKeep = 5

// Tensor 张量的可序列化形式
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Checkpoint 一次参数快照
type Checkpoint struct {
	ID         string            `json:"id"`
	Path       string            `json:"path"`
	GlobalStep int64             `json:"global_step"`
	Epoch      int               `json:"epoch"`
	CreatedAt  time.Time         `json:"created_at"`
	Tensors    map[string]Tensor `json:"tensors"`
}

// Info 检查点元数据，不含张量
type Info struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	GlobalStep int64     `json:"global_step"`
	Epoch      int       `json:"epoch"`
	CreatedAt  time.Time `json:"created_at"`
}

// Info 返回检查点元数据
func (c *Checkpoint) Info() Info {
	return Info{ID: c.ID, Path: c.Path, GlobalStep: c.GlobalStep, Epoch: c.Epoch, CreatedAt: c.CreatedAt}
}

// Store 检查点存储接口
type Store interface {
	// Save 保存检查点，超出保留数量的旧检查点被删除
	Save(ctx context.Context, ckpt *Checkpoint) error

	// LoadLatest 加载路径下最新的检查点，不存在时返回 CHECKPOINT_NOT_FOUND
	LoadLatest(ctx context.Context, path string) (*Checkpoint, error)

	// List 按保存顺序从新到旧列出路径下的检查点
	List(ctx context.Context, path string) ([]Info, error)

	// Close 释放存储资源
	Close() error
}

// FromParameters 复制参数集的当前值生成检查点，之后的训练不影响快照
func FromParameters(path string, globalStep int64, epoch int, params *nn.ParameterSet) *Checkpoint {
	ckpt := &Checkpoint{
		ID:         uuid.New().String(),
		Path:       path,
		GlobalStep: globalStep,
		Epoch:      epoch,
		CreatedAt:  time.Now(),
		Tensors:    make(map[string]Tensor, params.Len()),
	}
	for _, p := range params.Params() {
		ckpt.Tensors[p.Name] = Tensor{
			Shape: p.Value.Shape(),
			Data:  append([]float64(nil), p.Value.Data()...),
		}
	}
	return ckpt
}

// Restore 把检查点写回参数集。
// 先校验所有变量都存在且形状一致，校验失败时参数集保持不变。
func (c *Checkpoint) Restore(params *nn.ParameterSet) error {
	values := make([]*tensor.Tensor, 0, params.Len())
	for _, p := range params.Params() {
		saved, ok := c.Tensors[p.Name]
		if !ok {
			return types.NewError(types.ErrCheckpointIO,
				fmt.Sprintf("checkpoint %s has no variable %s", c.ID, p.Name))
		}
		v, err := tensor.FromData(saved.Data, saved.Shape...)
		if err != nil {
			return types.NewCheckpointError("decode variable "+p.Name, err)
		}
		if !v.SameShape(p.Value) {
			if err := inputChannelMismatch(p.Name, saved.Shape, p.Value.Shape()); err != nil {
				return err
			}
			return types.NewShapeError("checkpoint variable %s has shape %s, model expects %s",
				p.Name, v, p.Value)
		}
		values = append(values, v)
	}
	for i, p := range params.Params() {
		if err := p.Value.CopyFrom(values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Names 返回检查点中的变量名（排序）
func (c *Checkpoint) Names() []string {
	names := make([]string, 0, len(c.Tensors))
	for n := range c.Tensors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// inputChannelMismatch 首层卷积核的输入通道不一致说明模型配置与检查点不符
func inputChannelMismatch(name string, saved, want []int) error {
	if name != c3d.InputKernelName || len(saved) != 5 || len(want) != 5 || saved[3] == want[3] {
		return nil
	}
	return types.NewConfigError("checkpoint was trained on %d-channel clips, model is configured for %d channels",
		saved[3], want[3])
}

func prepare(ckpt *Checkpoint) error {
	if ckpt == nil {
		return types.NewCheckpointError("nil checkpoint", nil)
	}
	if ckpt.Path == "" {
		return types.NewError(types.ErrCheckpointIO, "checkpoint path is empty")
	}
	if ckpt.ID == "" {
		ckpt.ID = uuid.New().String()
	}
	if ckpt.CreatedAt.IsZero() {
		ckpt.CreatedAt = time.Now()
	}
	return nil
}

func notFound(path string) error {
	return types.NewError(types.ErrCheckpointNotFound, "no checkpoint found under "+path)
}
