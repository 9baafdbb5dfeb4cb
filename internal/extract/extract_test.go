package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"
)

type engineFunc func(ctx context.Context, data []byte) (string, float64, error)

func (f engineFunc) Extract(ctx context.Context, data []byte) (string, float64, error) {
	return f(ctx, data)
}

func TestRun_success(t *testing.T) {
	e := engineFunc(func(ctx context.Context, data []byte) (string, float64, error) {
		return "def foo():", 0.9, nil
	})

	res := Run(context.Background(), e, 7, []byte("png"), time.Second)

	if res.Status != StatusSuccess {
		t.Fatalf("Status: got %s, want success (%s)", res.Status, res.ErrorDetail)
	}
	if res.Text != "def foo():" || res.Confidence != 0.9 {
		t.Errorf("Result: got %q conf %v", res.Text, res.Confidence)
	}
	if res.SourceFrame != 7 {
		t.Errorf("SourceFrame: got %d, want 7", res.SourceFrame)
	}
}

func TestRun_engineErrorBecomesFailureStatus(t *testing.T) {
	e := engineFunc(func(ctx context.Context, data []byte) (string, float64, error) {
		return "", 0, errors.New("unreadable image")
	})

	res := Run(context.Background(), e, 1, nil, time.Second)

	if res.Status != StatusFailure {
		t.Fatalf("Status: got %s, want failure", res.Status)
	}
	if res.ErrorDetail != "unreadable image" {
		t.Errorf("ErrorDetail: got %q", res.ErrorDetail)
	}
}

func TestRun_timeBudgetExceeded(t *testing.T) {
	e := engineFunc(func(ctx context.Context, data []byte) (string, float64, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", 1, nil
	})

	res := Run(context.Background(), e, 1, nil, 10*time.Millisecond)

	if res.Status != StatusFailure {
		t.Fatalf("Status: got %s, want failure on timeout", res.Status)
	}
	if res.ErrorDetail != "extraction timed out" {
		t.Errorf("ErrorDetail: got %q", res.ErrorDetail)
	}
}

func TestRun_zeroConfidenceSuccessIsNotFailure(t *testing.T) {
	e := engineFunc(func(ctx context.Context, data []byte) (string, float64, error) {
		return "", 0, nil
	})

	res := Run(context.Background(), e, 1, nil, time.Second)

	if res.Status != StatusSuccess {
		t.Errorf("empty recognition should be Success with confidence 0, got %s", res.Status)
	}
	if res.Confidence != 0 || res.Text != "" {
		t.Errorf("got %q conf %v", res.Text, res.Confidence)
	}
}

func TestRun_clampsConfidenceIntoUnitRange(t *testing.T) {
	e := engineFunc(func(ctx context.Context, data []byte) (string, float64, error) {
		return "x", 87.0, nil // engine reporting on a 0-100 scale
	})

	res := Run(context.Background(), e, 1, nil, time.Second)

	if res.Confidence != 1 {
		t.Errorf("Confidence: got %v, want clamped to 1", res.Confidence)
	}
}

func TestAssemble_filtersLowConfidenceWords(t *testing.T) {
	words := []word{
		{text: "def", conf: 0.95, minY: 0, maxY: 10},
		{text: "noise", conf: 0.2, minY: 0, maxY: 10},
		{text: "foo():", conf: 0.85, minY: 0, maxY: 10},
	}

	text, conf := assemble(words, 0.5)

	if text != "def foo():" {
		t.Errorf("text: got %q", text)
	}
	want := (0.95 + 0.85) / 2
	if conf < want-1e-9 || conf > want+1e-9 {
		t.Errorf("conf: got %v, want %v", conf, want)
	}
}

func TestAssemble_lineBreaksOnVerticalGap(t *testing.T) {
	words := []word{
		{text: "line1", conf: 0.9, minY: 0, maxY: 10},
		{text: "cont", conf: 0.9, minY: 2, maxY: 10},
		{text: "line2", conf: 0.9, minY: 20, maxY: 30},
	}

	text, _ := assemble(words, 0)

	if text != "line1 cont\nline2" {
		t.Errorf("text: got %q", text)
	}
}

func TestAssemble_nothingAccepted(t *testing.T) {
	words := []word{
		{text: "  ", conf: 0.9},
		{text: "blur", conf: 0.1},
	}

	text, conf := assemble(words, 0.5)

	if text != "" || conf != 0 {
		t.Errorf("got %q conf %v, want empty text and zero confidence", text, conf)
	}
}

func TestGrayscalePNG_preservesInputAndDecodes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 0xFF
	}
	src.Set(1, 1, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}
	in := buf.Bytes()
	orig := append([]byte(nil), in...)

	out, err := grayscalePNG(in)
	if err != nil {
		t.Fatalf("grayscalePNG: %v", err)
	}
	if !bytes.Equal(in, orig) {
		t.Error("input bytes were mutated")
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, _ := img.At(1, 1).RGBA()
	if r != g || g != b {
		t.Errorf("pixel not gray: r=%d g=%d b=%d", r, g, b)
	}
}

func TestGrayscalePNG_rejectsGarbage(t *testing.T) {
	if _, err := grayscalePNG([]byte("not an image")); err == nil {
		t.Error("expected error for undecodable input")
	}
}
