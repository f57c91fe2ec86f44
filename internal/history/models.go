package history

import "time"

// 运行状态
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// 标量摘要标签
const (
	TagTrainingLoss = "Training Loss"
	TagLearningRate = "Learning Rate"
)

// TrainingRun 一次训练运行
type TrainingRun struct {
	ID          string `gorm:"primaryKey;size:36"`
	Status      string `gorm:"size:16;index"`
	SavePath    string `gorm:"size:512"`
	BatchSize   int
	NumSteps    int
	C3DNumSteps int
	NumClasses  int
	MaxEpochs   int
	Error       string `gorm:"size:2048"`
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// EpochSummary 一轮的汇总
type EpochSummary struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"size:36;index:idx_epoch_run"`
	Epoch        int    `gorm:"index:idx_epoch_run"`
	Mode         string `gorm:"size:16"`
	LearningRate float64
	Perplexity   float64
	Steps        int
	Seconds      float64
	CreatedAt    time.Time
}

// ScalarSummary 按全局步记录的标量
type ScalarSummary struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"size:36;index:idx_scalar_run_tag"`
	Tag       string `gorm:"size:64;index:idx_scalar_run_tag"`
	Step      int64
	Value     float64
	CreatedAt time.Time
}
