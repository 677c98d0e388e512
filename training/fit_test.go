package training

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// fakeProvider serves fixed iterators
type fakeProvider struct {
	train, val, test *sliceIterator
	prepares         int
	err              error
}

func (p *fakeProvider) Prepare() error {
	p.prepares++
	return p.err
}

func (p *fakeProvider) Train() BatchIterator { return p.train }
func (p *fakeProvider) Val() BatchIterator   { return p.val }
func (p *fakeProvider) Test() BatchIterator  { return p.test }

func newFakeProvider(t *testing.T) *fakeProvider {
	return &fakeProvider{
		train: newSliceIterator(makeBatches(t, 3, 2, 4, 1)),
		val:   newSliceIterator(makeBatches(t, 2, 2, 4, 2)),
		test:  newSliceIterator(makeBatches(t, 2, 1, 4, 3)),
	}
}

func newTestSession(t *testing.T, sinks []Sink) (*Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	model := newDummyNet(t, 11)
	s := NewSession(model, NewMSELoss("mean"), newAdam(t, model), sinks, SessionOptions{Out: &out, HideProgress: true})
	return s, &out
}

func TestFitSequencing(t *testing.T) {
	images := &recordingSink{caps: CapImages}
	scalars := &recordingSink{caps: CapScalars}
	session, out := newTestSession(t, []Sink{images, scalars})
	provider := newFakeProvider(t)

	summaries, err := Fit(session, provider, 2)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
	if provider.prepares != 1 {
		t.Errorf("Expected Prepare once, got %d", provider.prepares)
	}

	expectedImages := []string{
		"training_images_epoch_0", "validation_images_epoch_0", "visualization_images_epoch_0",
		"training_images_epoch_1", "validation_images_epoch_1", "visualization_images_epoch_1",
	}
	if len(images.images) != len(expectedImages) {
		t.Fatalf("Expected %d images, got %d", len(expectedImages), len(images.images))
	}
	for i, tag := range expectedImages {
		if images.images[i].tag != tag {
			t.Errorf("Image %d: expected %s, got %s", i, tag, images.images[i].tag)
		}
	}

	expectedTags := append(ScalarTags(SplitTrain), ScalarTags(SplitValidation)...)
	if len(scalars.scalars) != 2*len(expectedTags) {
		t.Fatalf("Expected %d scalars, got %d", 2*len(expectedTags), len(scalars.scalars))
	}
	for i, rec := range scalars.scalars {
		if rec.tag != expectedTags[i%len(expectedTags)] || rec.step != i/len(expectedTags) {
			t.Errorf("Scalar %d: got %s@%d", i, rec.tag, rec.step)
		}
	}
	if scalars.scalars[0].value != summaries[0].Train.MeanLoss {
		t.Errorf("Expected train_loss %v, got %v", summaries[0].Train.MeanLoss, scalars.scalars[0].value)
	}
	if images.flushes != 1 || scalars.flushes != 1 {
		t.Errorf("Expected one flush per sink, got %d and %d", images.flushes, scalars.flushes)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	expectedLines := []string{"Epoch 1/2", strings.Repeat("-", 100), "Training Loss: ", "Validation Loss: ", "Epoch 2/2"}
	for i, prefix := range expectedLines {
		if i >= len(lines) || !strings.HasPrefix(lines[i], prefix) {
			t.Fatalf("Line %d: expected prefix %q, got lines %q", i, prefix, lines)
		}
	}
}

func TestFitResetsMetricsPerEpoch(t *testing.T) {
	session, _ := newTestSession(t, nil)
	if _, err := Fit(session, newFakeProvider(t), 3); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	// One epoch: 3 batches of 2 train samples, 2 batches of 2 validation samples
	if n := session.Metrics[SplitTrain].Sim.count; n != 6 {
		t.Errorf("Expected 6 train samples after reset, got %d", n)
	}
	if n := session.Metrics[SplitValidation].Sim.count; n != 4 {
		t.Errorf("Expected 4 validation samples after reset, got %d", n)
	}
	if n := session.Metrics[SplitTest].Sim.count; n != 0 {
		t.Errorf("Expected no test samples, got %d", n)
	}
}

func TestFitErrors(t *testing.T) {
	session, _ := newTestSession(t, nil)
	if _, err := Fit(session, newFakeProvider(t), 0); err == nil {
		t.Error("Expected error for zero epochs")
	}

	provider := newFakeProvider(t)
	provider.err = errors.New("archive missing")
	if _, err := Fit(session, provider, 1); err == nil || !strings.Contains(err.Error(), "archive missing") {
		t.Errorf("Expected prepare error, got %v", err)
	}

	empty := newFakeProvider(t)
	empty.val = newSliceIterator(nil)
	summaries, err := Fit(session, empty, 2)
	if !errors.Is(err, ErrZeroBatches) {
		t.Errorf("Expected ErrZeroBatches, got %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("Expected no completed epochs, got %d", len(summaries))
	}
}

func TestFitSinkFailuresAreWarnings(t *testing.T) {
	broken := &recordingSink{caps: CapScalars | CapImages, err: errors.New("sink offline")}
	session, out := newTestSession(t, []Sink{broken})

	if _, err := Fit(session, newFakeProvider(t), 1); err != nil {
		t.Fatalf("Expected sink failures not to abort Fit, got %v", err)
	}
	if !strings.Contains(out.String(), "Warning:") {
		t.Errorf("Expected warnings in output, got %q", out.String())
	}
}

func TestTest(t *testing.T) {
	images := &recordingSink{caps: CapImages}
	scalars := &recordingSink{caps: CapScalars}
	session, out := newTestSession(t, []Sink{images, scalars})
	provider := newFakeProvider(t)

	result, values, err := Test(session, provider)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if result.Split != SplitTest || result.Batches != 2 {
		t.Errorf("Unexpected result %+v", result)
	}
	for _, tag := range ScalarTags(SplitTest) {
		if _, ok := values[tag]; !ok {
			t.Errorf("Missing %s", tag)
		}
	}
	if len(scalars.scalars) != 5 || scalars.scalars[0].tag != "test_loss" {
		t.Errorf("Unexpected scalars %+v", scalars.scalars)
	}
	if len(images.images) != 1 || images.images[0].tag != "test_images_epoch_0" {
		t.Errorf("Unexpected images %+v", images.images)
	}
	if !strings.Contains(out.String(), "Test Loss: ") {
		t.Errorf("Expected test loss line, got %q", out.String())
	}
	if session.Model.(interface{ IsTraining() bool }).IsTraining() {
		t.Error("Expected model in eval mode after Test")
	}
}

func TestFitEpochCallback(t *testing.T) {
	session, out := newTestSession(t, nil)
	var epochs []int
	session.OnEpochEnd = func(s EpochSummary) error {
		epochs = append(epochs, s.Epoch)
		if s.Epoch == 1 {
			return errors.New("disk full")
		}
		return nil
	}

	if _, err := Fit(session, newFakeProvider(t), 2); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if len(epochs) != 2 || epochs[0] != 0 || epochs[1] != 1 {
		t.Errorf("Expected callback for epochs 0 and 1, got %v", epochs)
	}
	if !strings.Contains(out.String(), "Warning: epoch 1 callback failed: disk full") {
		t.Errorf("Expected callback warning, got:\n%s", out.String())
	}
}

func TestFitStartEpoch(t *testing.T) {
	images := &recordingSink{caps: CapImages}
	scalars := &recordingSink{caps: CapScalars}
	session, out := newTestSession(t, []Sink{images, scalars})
	session.StartEpoch = 3

	summaries, err := Fit(session, newFakeProvider(t), 2)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Epoch != 3 || summaries[1].Epoch != 4 {
		t.Fatalf("Expected epochs 3 and 4, got %+v", summaries)
	}

	if images.images[0].tag != "training_images_epoch_3" {
		t.Errorf("Expected first snapshot tagged for epoch 3, got %s", images.images[0].tag)
	}
	for _, rec := range scalars.scalars {
		if rec.step < 3 {
			t.Errorf("Expected scalar steps from 3, got %s@%d", rec.tag, rec.step)
		}
	}
	if !strings.Contains(out.String(), "Epoch 4/5") || !strings.Contains(out.String(), "Epoch 5/5") {
		t.Errorf("Expected epoch headers 4/5 and 5/5, got:\n%s", out.String())
	}

	session.StartEpoch = -1
	if _, err := Fit(session, newFakeProvider(t), 1); err == nil {
		t.Error("Expected error for a negative start epoch")
	}
}
