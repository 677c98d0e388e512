package training

import (
	"fmt"
	"math"

	"github.com/salmap/go-salmap/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric names, also used as scalar tag suffixes
const (
	MetricKLDiv = "kl_div"
	MetricSim   = "sim"
	MetricSCC   = "scc"
	MetricAUROC = "auroc"
	MetricLoss  = "loss"
)

// DefaultSCCWindow is the side of the square window used by SpatialCorrelation
const DefaultSCCWindow = 8

// Contribution is the sufficient statistic one batch adds to an accumulator
type Contribution struct {
	Sum   float64 // Sum of per-sample values
	Count int     // Number of samples

	// Score-bin histograms for ranking metrics
	Positives []float64
	Negatives []float64
}

// Accumulator keeps running statistics for one metric over an epoch.
// Measure is side-effect free; Add commits a measured contribution, which
// lets a caller measure several metrics before committing any of them.
type Accumulator interface {
	Name() string
	Measure(pred, ref *tensor.Tensor) (Contribution, error)
	Add(c Contribution)
	Compute() float64
	Reset()
}

// meanAccumulator averages per-sample values
type meanAccumulator struct {
	sum   float64
	count int
}

func (m *meanAccumulator) Add(c Contribution) {
	m.sum += c.Sum
	m.count += c.Count
}

// Compute returns the mean per-sample value, or 0 before any update
func (m *meanAccumulator) Compute() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *meanAccumulator) Reset() {
	m.sum = 0
	m.count = 0
}

// rows returns per-sample float64 views of two [N, D] tensors
func rows(pred, ref *tensor.Tensor) ([][]float64, [][]float64, error) {
	if len(pred.Shape) != 2 || !tensor.SameShape(pred.Shape, ref.Shape) {
		return nil, nil, fmt.Errorf("expected matching [N D] tensors, got %v and %v: %w", pred.Shape, ref.Shape, ErrShapeMismatch)
	}
	n, d := pred.Shape[0], pred.Shape[1]
	p := make([][]float64, n)
	r := make([][]float64, n)
	for i := 0; i < n; i++ {
		p[i] = toFloat64(pred.Data[i*d : (i+1)*d])
		r[i] = toFloat64(ref.Data[i*d : (i+1)*d])
	}
	return p, r, nil
}

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// KLDivergence is the mean over samples of KL(pred || ref) for
// distribution-normalized rows
type KLDivergence struct {
	meanAccumulator
	Eps float64
}

// NewKLDivergence creates a KL divergence accumulator
func NewKLDivergence() *KLDivergence {
	return &KLDivergence{Eps: 1e-8}
}

// Name returns the metric name
func (k *KLDivergence) Name() string { return MetricKLDiv }

// Measure computes sum p*log(p/q) per sample with q clamped to Eps
func (k *KLDivergence) Measure(pred, ref *tensor.Tensor) (Contribution, error) {
	p, q, err := rows(pred, ref)
	if err != nil {
		return Contribution{}, err
	}
	var sum float64
	for i := range p {
		for j, v := range q[i] {
			q[i][j] = math.Max(v, k.Eps)
		}
		sum += stat.KullbackLeibler(p[i], q[i])
	}
	return Contribution{Sum: sum, Count: len(p)}, nil
}

// CosineSimilarity is the mean per-sample cosine similarity
type CosineSimilarity struct {
	meanAccumulator
}

// NewCosineSimilarity creates a cosine similarity accumulator
func NewCosineSimilarity() *CosineSimilarity {
	return &CosineSimilarity{}
}

// Name returns the metric name
func (c *CosineSimilarity) Name() string { return MetricSim }

// Measure computes the cosine of each row pair; a zero row scores 0
func (c *CosineSimilarity) Measure(pred, ref *tensor.Tensor) (Contribution, error) {
	p, r, err := rows(pred, ref)
	if err != nil {
		return Contribution{}, err
	}
	var sum float64
	for i := range p {
		norm := floats.Norm(p[i], 2) * floats.Norm(r[i], 2)
		if norm == 0 {
			continue
		}
		sum += floats.Dot(p[i], r[i]) / norm
	}
	return Contribution{Sum: sum, Count: len(p)}, nil
}

// SpatialCorrelation high-pass filters both maps with a 3x3 Laplacian and
// averages the Pearson correlation of every Window x Window patch (stride 1).
// Patches where either map is flat contribute 0.
type SpatialCorrelation struct {
	meanAccumulator
	Window int
}

// NewSpatialCorrelation creates a spatial correlation accumulator
func NewSpatialCorrelation() *SpatialCorrelation {
	return &SpatialCorrelation{Window: DefaultSCCWindow}
}

// Name returns the metric name
func (s *SpatialCorrelation) Name() string { return MetricSCC }

// Measure scores every [H, W] map pair in the batch
func (s *SpatialCorrelation) Measure(pred, ref *tensor.Tensor) (Contribution, error) {
	if len(pred.Shape) != 3 || !tensor.SameShape(pred.Shape, ref.Shape) {
		return Contribution{}, fmt.Errorf("expected matching [N H W] tensors, got %v and %v: %w", pred.Shape, ref.Shape, ErrShapeMismatch)
	}
	n, h, w := pred.Shape[0], pred.Shape[1], pred.Shape[2]
	plane := h * w

	var sum float64
	for i := 0; i < n; i++ {
		a := laplacian(pred.Data[i*plane:(i+1)*plane], h, w)
		b := laplacian(ref.Data[i*plane:(i+1)*plane], h, w)
		sum += windowedCorrelation(a, b, h, w, s.Window)
	}
	return Contribution{Sum: sum, Count: n}, nil
}

var laplacianKernel = [3][3]float64{
	{-1, -1, -1},
	{-1, 8, -1},
	{-1, -1, -1},
}

// laplacian convolves an h x w map with laplacianKernel, replicating edges
func laplacian(m []float32, h, w int) []float64 {
	out := make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for ky := -1; ky <= 1; ky++ {
				sy := min(max(y+ky, 0), h-1)
				for kx := -1; kx <= 1; kx++ {
					sx := min(max(x+kx, 0), w-1)
					acc += laplacianKernel[ky+1][kx+1] * float64(m[sy*w+sx])
				}
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func windowedCorrelation(a, b []float64, h, w, window int) float64 {
	wh := min(window, h)
	ww := min(window, w)
	xs := make([]float64, wh*ww)
	ys := make([]float64, wh*ww)

	var sum float64
	var count int
	for y0 := 0; y0+wh <= h; y0++ {
		for x0 := 0; x0+ww <= w; x0++ {
			k := 0
			for y := y0; y < y0+wh; y++ {
				for x := x0; x < x0+ww; x++ {
					xs[k] = a[y*w+x]
					ys[k] = b[y*w+x]
					k++
				}
			}
			r := stat.Correlation(xs, ys, nil)
			if !math.IsNaN(r) && !math.IsInf(r, 0) {
				sum += r
			}
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// ROCPoint represents a point on the ROC curve
type ROCPoint struct {
	Threshold float32
	TPR       float64 // True Positive Rate (Recall)
	FPR       float64 // False Positive Rate (1 - Specificity)
}

// AUROC treats every pixel as a binary detection and computes the area under
// the ROC curve from score-bin histograms, so memory stays constant over an
// epoch
type AUROC struct {
	positives []float64
	negatives []float64
}

// NewAUROC creates an AUROC accumulator over ScoreBins levels
func NewAUROC() *AUROC {
	return &AUROC{
		positives: make([]float64, ScoreBins),
		negatives: make([]float64, ScoreBins),
	}
}

// Name returns the metric name
func (a *AUROC) Name() string { return MetricAUROC }

// Measure histograms score bins by label
func (a *AUROC) Measure(pred, ref *tensor.Tensor) (Contribution, error) {
	if len(pred.Shape) != 1 || !tensor.SameShape(pred.Shape, ref.Shape) {
		return Contribution{}, fmt.Errorf("expected matching flat tensors, got %v and %v: %w", pred.Shape, ref.Shape, ErrShapeMismatch)
	}

	c := Contribution{
		Positives: make([]float64, ScoreBins),
		Negatives: make([]float64, ScoreBins),
		Count:     pred.NumElems,
	}
	for i, v := range pred.Data {
		bin := int(v)
		if bin < 0 || bin >= ScoreBins {
			return Contribution{}, fmt.Errorf("score bin %d out of range [0, %d)", bin, ScoreBins)
		}
		if ref.Data[i] >= SalientThreshold {
			c.Positives[bin]++
		} else {
			c.Negatives[bin]++
		}
	}
	return c, nil
}

// Add merges a contribution's histograms
func (a *AUROC) Add(c Contribution) {
	if len(c.Positives) != ScoreBins || len(c.Negatives) != ScoreBins {
		return
	}
	floats.Add(a.positives, c.Positives)
	floats.Add(a.negatives, c.Negatives)
}

// Curve returns ROC points from the highest threshold down
func (a *AUROC) Curve() []ROCPoint {
	totalPos := floats.Sum(a.positives)
	totalNeg := floats.Sum(a.negatives)
	if totalPos == 0 || totalNeg == 0 {
		return nil
	}

	points := []ROCPoint{{Threshold: 1, TPR: 0, FPR: 0}}
	var tp, fp float64
	for bin := ScoreBins - 1; bin >= 0; bin-- {
		tp += a.positives[bin]
		fp += a.negatives[bin]
		points = append(points, ROCPoint{
			Threshold: float32(bin) / ScoreBins,
			TPR:       tp / totalPos,
			FPR:       fp / totalNeg,
		})
	}
	return points
}

// Compute returns the trapezoidal area under the curve, or 0 when either
// class is absent
func (a *AUROC) Compute() float64 {
	points := a.Curve()
	auc := 0.0
	for i := 1; i < len(points); i++ {
		auc += (points[i].FPR - points[i-1].FPR) * (points[i].TPR + points[i-1].TPR) / 2.0
	}
	return auc
}

// Reset clears both histograms
func (a *AUROC) Reset() {
	clear(a.positives)
	clear(a.negatives)
}

// MetricSet groups the four saliency metrics of one split
type MetricSet struct {
	KLDiv *KLDivergence
	Sim   *CosineSimilarity
	SCC   *SpatialCorrelation
	AUROC *AUROC
}

// NewMetricSet creates a fresh set of accumulators
func NewMetricSet() *MetricSet {
	return &MetricSet{
		KLDiv: NewKLDivergence(),
		Sim:   NewCosineSimilarity(),
		SCC:   NewSpatialCorrelation(),
		AUROC: NewAUROC(),
	}
}

// Accumulators returns the accumulators in reporting order
func (ms *MetricSet) Accumulators() []Accumulator {
	return []Accumulator{ms.KLDiv, ms.Sim, ms.SCC, ms.AUROC}
}

// Measurement is a batch's measured but uncommitted contribution to a MetricSet
type Measurement struct {
	contributions []Contribution
}

// Measure computes the contribution of one converted batch without touching
// the accumulators
func (ms *MetricSet) Measure(c Converted) (Measurement, error) {
	accs := ms.Accumulators()
	pairs := []Pair{c.Divergence, c.Similarity, c.Correlation, c.Classification}

	contributions := make([]Contribution, len(accs))
	for i, acc := range accs {
		contrib, err := acc.Measure(pairs[i].Pred, pairs[i].Ref)
		if err != nil {
			return Measurement{}, fmt.Errorf("%s: %w", acc.Name(), err)
		}
		contributions[i] = contrib
	}
	return Measurement{contributions: contributions}, nil
}

// Commit adds a measurement to the accumulators. A zero Measurement is ignored.
func (ms *MetricSet) Commit(m Measurement) {
	if len(m.contributions) == 0 {
		return
	}
	for i, acc := range ms.Accumulators() {
		acc.Add(m.contributions[i])
	}
}

// Update feeds one converted batch to all four accumulators. Every metric is
// measured before any is committed, so a failing batch leaves the set unchanged.
func (ms *MetricSet) Update(c Converted) error {
	m, err := ms.Measure(c)
	if err != nil {
		return err
	}
	ms.Commit(m)
	return nil
}

// Compute returns every metric value keyed by name
func (ms *MetricSet) Compute() map[string]float64 {
	values := make(map[string]float64, 4)
	for _, acc := range ms.Accumulators() {
		values[acc.Name()] = acc.Compute()
	}
	return values
}

// Reset clears all four accumulators
func (ms *MetricSet) Reset() {
	for _, acc := range ms.Accumulators() {
		acc.Reset()
	}
}
