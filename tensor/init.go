package tensor

import "math/rand"

// FillTruncatedNormal 以截断正态分布填充（|x| > 2σ 的样本重新采样）
func (t *Tensor) FillTruncatedNormal(rng *rand.Rand, mean, stddev float64) {
	for i := range t.data {
		for {
			v := rng.NormFloat64()
			if v >= -2 && v <= 2 {
				t.data[i] = mean + v*stddev
				break
			}
		}
	}
}

// FillUniform 以 [lo, hi) 均匀分布填充
func (t *Tensor) FillUniform(rng *rand.Rand, lo, hi float64) {
	for i := range t.data {
		t.data[i] = lo + rng.Float64()*(hi-lo)
	}
}

// Fill 以常量填充
func (t *Tensor) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}
