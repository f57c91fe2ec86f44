package c3d

import (
	"context"
	"fmt"

	"github.com/BaSui01/videoflow/nn"
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// Scope 提取器变量名前缀
const Scope = "c3d"

// pool5Perm 将 (B, D, H, W, C) 重排为 (B, D, C, H, W) 后再展平
var pool5Perm = []int{0, 1, 4, 2, 3}

// Embedder 将一个视频片段映射为定长嵌入
type Embedder interface {
	// Embed 输入 (batch, clip_length, height, width, channels)，输出 (batch, embedding_dim)
	Embed(ctx context.Context, clip *tensor.Tensor) (*tensor.Tensor, error)
	EmbeddingDim() int
}

// Extractor C3D 片段特征提取器。
// 只持有共享 ParameterSet 的引用，所有片段使用同一组权重。
type Extractor struct {
	cfg    Config
	params *nn.ParameterSet
	convs  [8]*nn.Conv3D
	dense  *nn.Dense
}

var _ Embedder = (*Extractor)(nil)

// Trace 一次前向的中间激活，供 Backward 使用
type Trace struct {
	params  *nn.ParameterSet
	convIn  [8]*tensor.Tensor
	convOut [8]*tensor.Tensor
	pools   [5]*nn.PoolTrace
	permed  []int
	flat    *tensor.Tensor
}

// Parameters 返回产生该次前向的参数集
func (t *Trace) Parameters() *nn.ParameterSet {
	return t.params
}

// InputKernelName 第一层卷积核，形状 [3, 3, 3, channels, width]，决定可接受的片段通道数
const InputKernelName = Scope + "/wc1"

// VariableNames 返回提取器创建的全部变量名，顺序与创建顺序一致
func VariableNames() []string {
	names := make([]string, 0, 2*len(convNames)+2)
	for _, n := range convNames {
		names = append(names, Scope+"/wc"+n)
	}
	names = append(names, Scope+"/wd1")
	for _, n := range convNames {
		names = append(names, Scope+"/bc"+n)
	}
	return append(names, Scope+"/bd1")
}

// New 在 params 中创建提取器变量，返回提取器与其权重衰减项。
// 配置错误在创建任何变量之前返回。
func New(cfg Config, params *nn.ParameterSet, init *nn.Initializer) (*Extractor, nn.Penalties, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if params == nil || init == nil {
		return nil, nil, types.NewError(types.ErrInternalError, "c3d extractor requires a parameter set and an initializer")
	}

	normal := init.TruncatedNormal(cfg.WeightStddev)
	target := nn.WithTarget(cfg.Target)
	var penalties nn.Penalties

	weights := make([]*nn.Parameter, len(convNames))
	in := cfg.Channels
	for i, n := range convNames {
		w, pen, err := params.NewVariable(Scope+"/wc"+n, []int{3, 3, 3, in, cfg.ChannelWidths[i]}, normal, target, nn.WithDecay(0))
		if err != nil {
			return nil, nil, fmt.Errorf("create wc%s: %w", n, err)
		}
		penalties = penalties.Merge(pen)
		weights[i] = w
		in = cfg.ChannelWidths[i]
	}
	wd, pen, err := params.NewVariable(Scope+"/wd1", []int{cfg.FlattenedDim(), cfg.EmbeddingDim}, normal, target,
		nn.WithDecay(cfg.DenseWeightDecay))
	if err != nil {
		return nil, nil, fmt.Errorf("create wd1: %w", err)
	}
	penalties = penalties.Merge(pen)

	e := &Extractor{cfg: cfg, params: params}
	for i, n := range convNames {
		b, _, err := params.NewVariable(Scope+"/bc"+n, []int{cfg.ChannelWidths[i]}, normal, target)
		if err != nil {
			return nil, nil, fmt.Errorf("create bc%s: %w", n, err)
		}
		conv, err := nn.NewConv3D(weights[i], b)
		if err != nil {
			return nil, nil, err
		}
		conv.Workers = cfg.Workers
		e.convs[i] = conv
	}
	bd, _, err := params.NewVariable(Scope+"/bd1", []int{cfg.EmbeddingDim}, normal, target)
	if err != nil {
		return nil, nil, fmt.Errorf("create bd1: %w", err)
	}
	if e.dense, err = nn.NewDense(wd, bd); err != nil {
		return nil, nil, err
	}
	return e, penalties, nil
}

// EmbeddingDim 嵌入维度
func (e *Extractor) EmbeddingDim() int { return e.cfg.EmbeddingDim }

// KeepProb 返回配置的 dropout 保留概率（仅记录，不参与计算）
func (e *Extractor) KeepProb() float64 { return e.cfg.KeepProb }

// Config 返回提取器配置
func (e *Extractor) Config() Config { return e.cfg }

// Parameters 返回共享参数集
func (e *Extractor) Parameters() *nn.ParameterSet { return e.params }

// Embed 计算片段嵌入，相同输入与权重得到相同结果
func (e *Extractor) Embed(ctx context.Context, clip *tensor.Tensor) (*tensor.Tensor, error) {
	out, _, err := e.Forward(ctx, clip)
	return out, err
}

func (e *Extractor) checkClip(clip *tensor.Tensor) error {
	if clip.Rank() != 5 {
		return types.NewShapeError("clip must be (batch, %d, %d, %d, %d), got %s",
			e.cfg.ClipLength, e.cfg.Height, e.cfg.Width, e.cfg.Channels, clip)
	}
	if clip.Dim(1) != e.cfg.ClipLength || clip.Dim(2) != e.cfg.Height ||
		clip.Dim(3) != e.cfg.Width || clip.Dim(4) != e.cfg.Channels {
		return types.NewShapeError("clip must be (batch, %d, %d, %d, %d), got %s",
			e.cfg.ClipLength, e.cfg.Height, e.cfg.Width, e.cfg.Channels, clip)
	}
	return nil
}

// Forward 计算片段嵌入并返回反向所需的中间激活
func (e *Extractor) Forward(ctx context.Context, clip *tensor.Tensor) (*tensor.Tensor, *Trace, error) {
	if err := e.checkClip(clip); err != nil {
		return nil, nil, err
	}

	trace := &Trace{params: e.params}
	x := clip
	for bi, convs := range blocks {
		for _, ci := range convs {
			trace.convIn[ci] = x
			y, err := e.convs[ci].Forward(ctx, x)
			if err != nil {
				return nil, nil, fmt.Errorf("conv%s: %w", convNames[ci], err)
			}
			x = nn.ReLU(y)
			trace.convOut[ci] = x
		}
		pooled, pt, err := poolWindows[bi].Forward(x)
		if err != nil {
			return nil, nil, fmt.Errorf("pool%d: %w", bi+1, err)
		}
		trace.pools[bi] = pt
		x = pooled
	}

	permed, err := tensor.Permute(x, pool5Perm)
	if err != nil {
		return nil, nil, err
	}
	trace.permed = permed.Shape()
	flat, err := permed.Reshape(permed.Dim(0), permed.Len()/permed.Dim(0))
	if err != nil {
		return nil, nil, err
	}
	if flat.Dim(1) != e.dense.InputDim() {
		return nil, nil, types.NewConfigError("flattened pool5 dim %d does not match wd1 input dim %d",
			flat.Dim(1), e.dense.InputDim())
	}
	trace.flat = flat

	out, err := e.dense.Forward(flat)
	if err != nil {
		return nil, nil, err
	}
	return out, trace, nil
}

// Backward 将嵌入梯度反传到共享参数，只累加梯度，不修改参数值
func (e *Extractor) Backward(ctx context.Context, trace *Trace, dEmbedding *tensor.Tensor) error {
	if trace.params != e.params {
		return types.NewError(types.ErrInternalError, "trace was produced by a different parameter set")
	}
	dflat, err := e.dense.Backward(trace.flat, dEmbedding)
	if err != nil {
		return fmt.Errorf("dense: %w", err)
	}
	dpermed, err := dflat.Reshape(trace.permed...)
	if err != nil {
		return err
	}
	d, err := tensor.Permute(dpermed, tensor.InversePermutation(pool5Perm))
	if err != nil {
		return err
	}

	for bi := len(blocks) - 1; bi >= 0; bi-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d, err = poolWindows[bi].Backward(trace.pools[bi], d); err != nil {
			return fmt.Errorf("pool%d: %w", bi+1, err)
		}
		convs := blocks[bi]
		for k := len(convs) - 1; k >= 0; k-- {
			ci := convs[k]
			if d, err = nn.ReLUBackward(trace.convOut[ci], d); err != nil {
				return fmt.Errorf("relu%s: %w", convNames[ci], err)
			}
			if d, err = e.convs[ci].Backward(ctx, trace.convIn[ci], d); err != nil {
				return fmt.Errorf("conv%s: %w", convNames[ci], err)
			}
		}
	}
	return nil
}
