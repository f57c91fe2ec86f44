package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/videoflow/training"

// Instruments 训练循环使用的 tracer 与 OTel 指标。
// 在 Init 之前创建时绑定到 noop 全局 provider。
type Instruments struct {
	tracer trace.Tracer
	meter  metric.Meter

	stepTotal       metric.Int64Counter
	stepDuration    metric.Float64Histogram
	epochDuration   metric.Float64Histogram
	checkpointTotal metric.Int64Counter
}

// NewInstruments 从全局 provider 创建训练指标
func NewInstruments() (*Instruments, error) {
	in := &Instruments{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error

	in.stepTotal, err = in.meter.Int64Counter("training.step.total",
		metric.WithDescription("Total number of model steps"),
		metric.WithUnit("{step}"))
	if err != nil {
		return nil, err
	}

	in.stepDuration, err = in.meter.Float64Histogram("training.step.duration",
		metric.WithDescription("Model step duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	in.epochDuration, err = in.meter.Float64Histogram("training.epoch.duration",
		metric.WithDescription("Epoch duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	in.checkpointTotal, err = in.meter.Int64Counter("training.checkpoint.total",
		metric.WithDescription("Total number of checkpoint saves"),
		metric.WithUnit("{checkpoint}"))
	if err != nil {
		return nil, err
	}

	return in, nil
}

// StartEpoch 开始一轮的 span
func (in *Instruments) StartEpoch(ctx context.Context, epoch int, train bool, lr float64) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "training.epoch",
		trace.WithAttributes(
			attribute.Int("epoch", epoch),
			attribute.Bool("train", train),
			attribute.Float64("learning_rate", lr),
		))
}

// StartCheckpoint 开始一次检查点保存的 span
func (in *Instruments) StartCheckpoint(ctx context.Context, path string, globalStep int64) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "training.checkpoint",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int64("global_step", globalStep),
		))
}

// RecordStep 记录一步
func (in *Instruments) RecordStep(ctx context.Context, train bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("train", train))
	in.stepTotal.Add(ctx, 1, attrs)
	in.stepDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEpoch 记录一轮耗时
func (in *Instruments) RecordEpoch(ctx context.Context, train bool, duration time.Duration) {
	in.epochDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("train", train)))
}

// RecordCheckpoint 记录一次检查点保存
func (in *Instruments) RecordCheckpoint(ctx context.Context, success bool) {
	in.checkpointTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
