package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract is an Engine backed by the gosseract binding. A fresh client is
// created per call so results depend only on the input bytes and this
// configuration.
type Tesseract struct {
	// Language is the trained-data name passed to Tesseract (e.g. "eng").
	Language string
	// Whitelist, if non-empty, restricts recognition to these characters.
	Whitelist string
	// ConfidenceThreshold drops recognized words below this score (in [0,1])
	// from the assembled text and the reported confidence.
	ConfidenceThreshold float64

	clientFactory func() *gosseract.Client
}

// NewTesseract returns an engine recognizing the given language.
func NewTesseract(language, whitelist string, confidenceThreshold float64) *Tesseract {
	return &Tesseract{
		Language:            language,
		Whitelist:           whitelist,
		ConfidenceThreshold: confidenceThreshold,
		clientFactory:       gosseract.NewClient,
	}
}

// Extract implements Engine. Screen text is often light-on-dark, so the
// frame is grayscaled before recognition.
func (t *Tesseract) Extract(ctx context.Context, data []byte) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	prepared, err := grayscalePNG(data)
	if err != nil {
		return "", 0, err
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(prepared); err != nil {
		return "", 0, fmt.Errorf("set image: %w", err)
	}
	if t.Language != "" {
		if err := c.SetLanguage(t.Language); err != nil {
			return "", 0, fmt.Errorf("set language: %w", err)
		}
	}
	if t.Whitelist != "" {
		if err := c.SetVariable("tessedit_char_whitelist", t.Whitelist); err != nil {
			return "", 0, fmt.Errorf("set whitelist: %w", err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", 0, fmt.Errorf("recognize: %w", err)
	}

	words := make([]word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, word{
			text: b.Word,
			conf: b.Confidence / 100.0,
			minY: b.Box.Min.Y,
			maxY: b.Box.Max.Y,
		})
	}

	text, conf := assemble(words, t.ConfidenceThreshold)
	return text, conf, nil
}

// word is one recognized token with its normalized confidence and vertical
// extent, used for line reconstruction.
type word struct {
	text string
	conf float64
	minY int
	maxY int
}

// assemble joins accepted words into text, starting a new line when a word
// sits fully below the previous one, and returns the mean confidence of the
// accepted words. No accepted words yields ("", 0): ran to completion,
// found nothing.
func assemble(words []word, threshold float64) (string, float64) {
	var b strings.Builder
	var sum float64
	n := 0
	prevMaxY := 0

	for _, w := range words {
		text := strings.TrimSpace(w.text)
		if text == "" || w.conf < threshold {
			continue
		}
		if n > 0 {
			if w.minY >= prevMaxY {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(text)
		sum += w.conf
		n++
		prevMaxY = w.maxY
	}

	if n == 0 {
		return "", 0
	}
	return b.String(), clampConfidence(sum / float64(n))
}

// grayscalePNG decodes an encoded image, converts it to grayscale, and
// re-encodes it as PNG. The input slice is never modified.
func grayscalePNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	gray := imaging.Grayscale(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("encode grayscale frame: %w", err)
	}
	return buf.Bytes(), nil
}
