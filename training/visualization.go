package training

import (
	"encoding/json"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"time"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	LossCurves   PlotType = "training_curves"
	MetricCurves PlotType = "metric_curves"
	ROCCurve     PlotType = "roc_curve"
)

// PlotData represents the universal JSON format for the sidecar plotting service
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`

	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "scatter"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Label string      `json:"label,omitempty"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel  string `json:"x_axis_label"`
	YAxisLabel  string `json:"y_axis_label"`
	XAxisScale  string `json:"x_axis_scale"`
	YAxisScale  string `json:"y_axis_scale"`
	ShowLegend  bool   `json:"show_legend"`
	ShowGrid    bool   `json:"show_grid"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Interactive bool   `json:"interactive"`
}

// ToJSON converts plot data to JSON string
func (pd PlotData) ToJSON() (string, error) {
	data, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data: %w", err)
	}
	return string(data), nil
}

// VisualizationCollector records epoch scalars and ROC curves for the
// plotting sidecar. It is a scalar Sink; Flush sends the plots when a
// PlottingService is attached and enabled.
type VisualizationCollector struct {
	modelName string
	service   *PlottingService

	mu        sync.Mutex
	scalars   map[string][]DataPoint
	rocPoints []ROCPoint
}

// NewVisualizationCollector creates a collector. service may be nil.
func NewVisualizationCollector(modelName string, service *PlottingService) *VisualizationCollector {
	return &VisualizationCollector{
		modelName: modelName,
		service:   service,
		scalars:   make(map[string][]DataPoint),
	}
}

// Capabilities returns CapScalars
func (vc *VisualizationCollector) Capabilities() Capability { return CapScalars }

// AddScalar records value at step under tag
func (vc *VisualizationCollector) AddScalar(tag string, value float64, step int) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.scalars[tag] = append(vc.scalars[tag], DataPoint{X: step, Y: value})
	return nil
}

// AddImage is not supported
func (vc *VisualizationCollector) AddImage(string, image.Image, int) error {
	return ErrUnsupportedArtifact
}

// RecordROC keeps the latest ROC curve, typically AUROC.Curve() after a test pass
func (vc *VisualizationCollector) RecordROC(points []ROCPoint) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.rocPoints = append([]ROCPoint(nil), points...)
}

// Series returns a copy of the points recorded under tag
func (vc *VisualizationCollector) Series(tag string) []DataPoint {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return append([]DataPoint(nil), vc.scalars[tag]...)
}

// Plots returns every plot that has data
func (vc *VisualizationCollector) Plots() []PlotData {
	var plots []PlotData
	for _, pd := range []PlotData{vc.GenerateLossCurvesPlot(), vc.GenerateMetricCurvesPlot(), vc.GenerateROCCurvePlot()} {
		if len(pd.Series) > 0 {
			plots = append(plots, pd)
		}
	}
	return plots
}

// Flush sends every plot to the attached service
func (vc *VisualizationCollector) Flush() error {
	if vc.service == nil || !vc.service.IsEnabled() {
		return nil
	}
	plots := vc.Plots()
	if len(plots) == 0 {
		return nil
	}
	resp, err := vc.service.BatchSendPlots(plots)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plotting service rejected batch: %s", resp.Message)
	}
	return nil
}

// Close is a no-op
func (vc *VisualizationCollector) Close() error { return nil }

func (vc *VisualizationCollector) lineSeries(filter func(tag string) bool) []SeriesData {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	tags := make([]string, 0, len(vc.scalars))
	for tag := range vc.scalars {
		if filter(tag) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	series := make([]SeriesData, 0, len(tags))
	for _, tag := range tags {
		s := SeriesData{
			Name: tag,
			Type: "line",
			Data: append([]DataPoint(nil), vc.scalars[tag]...),
			Style: map[string]interface{}{
				"line_width": 2,
			},
		}
		if strings.HasPrefix(tag, SplitValidation.Prefix()+"_") {
			s.Style["line_style"] = "dashed"
		}
		series = append(series, s)
	}
	return series
}

func isLossTag(tag string) bool {
	return strings.HasSuffix(tag, "_"+MetricLoss)
}

// GenerateLossCurvesPlot plots every *_loss scalar over epochs
func (vc *VisualizationCollector) GenerateLossCurvesPlot() PlotData {
	return PlotData{
		PlotType:  LossCurves,
		Title:     fmt.Sprintf("Training Curves - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    vc.lineSeries(isLossTag),
		Config: PlotConfig{
			XAxisLabel:  "Epoch",
			YAxisLabel:  "Loss",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// GenerateMetricCurvesPlot plots every saliency metric scalar over epochs
func (vc *VisualizationCollector) GenerateMetricCurvesPlot() PlotData {
	return PlotData{
		PlotType:  MetricCurves,
		Title:     fmt.Sprintf("Saliency Metrics - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    vc.lineSeries(func(tag string) bool { return !isLossTag(tag) }),
		Config: PlotConfig{
			XAxisLabel:  "Epoch",
			YAxisLabel:  "Value",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// GenerateROCCurvePlot plots the recorded ROC curve against the diagonal
func (vc *VisualizationCollector) GenerateROCCurvePlot() PlotData {
	vc.mu.Lock()
	points := append([]ROCPoint(nil), vc.rocPoints...)
	vc.mu.Unlock()

	pd := PlotData{
		PlotType:  ROCCurve,
		Title:     fmt.Sprintf("ROC Curve - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Config: PlotConfig{
			XAxisLabel:  "False Positive Rate",
			YAxisLabel:  "True Positive Rate",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       600,
			Height:      600,
			Interactive: true,
		},
	}
	if len(points) == 0 {
		return pd
	}

	curve := SeriesData{
		Name:  "ROC Curve",
		Type:  "line",
		Data:  make([]DataPoint, len(points)),
		Style: map[string]interface{}{"color": "#FF6B6B", "line_width": 2},
	}
	for i, p := range points {
		curve.Data[i] = DataPoint{X: p.FPR, Y: p.TPR}
	}
	random := SeriesData{
		Name:  "Random Classifier",
		Type:  "line",
		Data:  []DataPoint{{X: 0.0, Y: 0.0}, {X: 1.0, Y: 1.0}},
		Style: map[string]interface{}{"color": "#95A5A6", "line_width": 1, "line_style": "dashed"},
	}
	pd.Series = []SeriesData{curve, random}
	return pd
}
