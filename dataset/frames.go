package dataset

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// frameExtensions 可识别的帧图像扩展名
var frameExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// FrameOptions 帧目录数据源选项
type FrameOptions struct {
	Shuffle bool
	Seed    int64
	Workers int
	Logger  *zap.Logger
}

// videoEntry 一个视频的帧文件与标签
type videoEntry struct {
	dir    string
	frames []string
	label  int
}

// FrameDirectory 从目录树读取视频：<root>/<class>/<video>/<frame>.png|jpg。
// 类别目录按名称排序得到标签下标；每个视频取排序后的前 num_steps 帧，
// 缩放到 height×width，像素归一化到 [0, 1]。
type FrameDirectory struct {
	root    string
	shape   Shape
	opts    FrameOptions
	classes []string
	videos  []videoEntry
	order   []int
	pos     int
	logger  *zap.Logger
}

var _ Input = (*FrameDirectory)(nil)

// NewFrameDirectory 扫描目录并创建数据源；帧数不足的视频在扫描时报错
func NewFrameDirectory(root string, shape Shape, opts FrameOptions) (*FrameDirectory, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if shape.Channels != 1 && shape.Channels != 3 {
		return nil, types.NewConfigError("frame directory supports 1 or 3 channels, got %d", shape.Channels)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &FrameDirectory{
		root:   root,
		shape:  shape,
		opts:   opts,
		logger: logger.With(zap.String("component", "frame_directory")),
	}
	if err := d.scan(); err != nil {
		return nil, err
	}
	if len(d.classes) > shape.NumClasses {
		return nil, types.NewConfigError("found %d classes under %s but num_classes is %d",
			len(d.classes), root, shape.NumClasses)
	}
	if d.EpochSize() == 0 {
		return nil, types.NewError(types.ErrDataSource,
			fmt.Sprintf("%d videos under %s are fewer than one batch of %d", len(d.videos), root, shape.BatchSize))
	}

	d.logger.Info("frame directory scanned",
		zap.String("root", root),
		zap.Int("classes", len(d.classes)),
		zap.Int("videos", len(d.videos)),
		zap.Int("epoch_size", d.EpochSize()))

	d.Reset(0)
	return d, nil
}

func (d *FrameDirectory) scan() error {
	classDirs, err := os.ReadDir(d.root)
	if err != nil {
		return types.NewError(types.ErrDataSource, "read dataset root").WithCause(err)
	}
	for _, cd := range classDirs {
		if !cd.IsDir() {
			continue
		}
		label := len(d.classes)
		d.classes = append(d.classes, cd.Name())

		classPath := filepath.Join(d.root, cd.Name())
		videoDirs, err := os.ReadDir(classPath)
		if err != nil {
			return types.NewError(types.ErrDataSource, "read class directory "+classPath).WithCause(err)
		}
		for _, vd := range videoDirs {
			if !vd.IsDir() {
				continue
			}
			dir := filepath.Join(classPath, vd.Name())
			frames, err := listFrames(dir)
			if err != nil {
				return err
			}
			if len(frames) < d.shape.NumSteps {
				return types.NewError(types.ErrDataSource,
					fmt.Sprintf("video %s has %d frames, need %d", dir, len(frames), d.shape.NumSteps))
			}
			d.videos = append(d.videos, videoEntry{dir: dir, frames: frames[:d.shape.NumSteps], label: label})
		}
	}
	return nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewError(types.ErrDataSource, "read video directory "+dir).WithCause(err)
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}

// Classes 返回按标签下标排列的类别名
func (d *FrameDirectory) Classes() []string {
	return append([]string(nil), d.classes...)
}

// NumVideos 视频数量
func (d *FrameDirectory) NumVideos() int { return len(d.videos) }

// EpochSize 每轮完整批次数，末尾不足一批的视频被丢弃
func (d *FrameDirectory) EpochSize() int { return len(d.videos) / d.shape.BatchSize }
func (d *FrameDirectory) BatchSize() int { return d.shape.BatchSize }
func (d *FrameDirectory) NumSteps() int  { return d.shape.NumSteps }

// Reset 重置读取位置；启用 Shuffle 时以 seed+epoch 打乱顺序
func (d *FrameDirectory) Reset(epoch int) {
	d.order = make([]int, len(d.videos))
	for i := range d.order {
		d.order[i] = i
	}
	if d.opts.Shuffle {
		rng := rand.New(rand.NewSource(d.opts.Seed + int64(epoch)))
		rng.Shuffle(len(d.order), func(i, j int) { d.order[i], d.order[j] = d.order[j], d.order[i] })
	}
	d.pos = 0
}

// Next 读取下一批视频，批内视频并行解码
func (d *FrameDirectory) Next(ctx context.Context) (*Batch, error) {
	B := d.shape.BatchSize
	if d.pos+B > len(d.order) {
		return nil, types.NewError(types.ErrDataSource, "frame directory epoch exhausted")
	}
	picked := d.order[d.pos : d.pos+B]
	d.pos += B

	videos := tensor.New(d.shape.Dims()...)
	labels := make([]int, B)
	per := videos.Len() / B

	eg, ctx := errgroup.WithContext(ctx)
	if d.opts.Workers > 0 {
		eg.SetLimit(d.opts.Workers)
	}
	for b, idx := range picked {
		v := d.videos[idx]
		labels[b] = v.label
		dst := videos.Data()[b*per : (b+1)*per]
		eg.Go(func() error {
			return d.loadVideo(ctx, v, dst)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &Batch{Videos: videos, Labels: labels}, nil
}

// loadVideo 解码一个视频的全部帧到 dst，布局 (num_steps, height, width, channels)
func (d *FrameDirectory) loadVideo(ctx context.Context, v videoEntry, dst []float64) error {
	frameLen := d.shape.Height * d.shape.Width * d.shape.Channels
	for t, path := range v.frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.loadFrame(path, dst[t*frameLen:(t+1)*frameLen]); err != nil {
			return types.NewError(types.ErrDataSource, "decode frame "+path).WithCause(err)
		}
	}
	return nil
}

func (d *FrameDirectory) loadFrame(path string, dst []float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return err
	}
	resized := resize.Resize(uint(d.shape.Width), uint(d.shape.Height), img, resize.Bilinear)

	bounds := resized.Bounds()
	C := d.shape.Channels
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			rf, gf, bf := float64(r>>8)/255.0, float64(g>>8)/255.0, float64(b>>8)/255.0
			if C == 1 {
				dst[idx] = (rf + gf + bf) / 3
			} else {
				dst[idx], dst[idx+1], dst[idx+2] = rf, gf, bf
			}
			idx += C
		}
	}
	return nil
}
