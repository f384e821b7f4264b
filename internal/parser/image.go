package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxImageEdge caps the long edge before the image is sent to the vision
// model, bounding upload size and processing cost.
const maxImageEdge = 2000

// parseImage transcribes an image through the vision-capable completion
// model. With OCR disabled it returns a fixed placeholder and makes no
// network call.
func (p *Parser) parseImage(ctx context.Context, data []byte, opts Options) (string, map[string]any, error) {
	if !opts.OCREnabled || p.vision == nil {
		return OCRPlaceholder, map[string]any{
			"format":     "image",
			"ocr_engine": "disabled",
		}, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	img = downscale(img, maxImageEdge)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	text, visionModel, err := p.vision.DescribeImage(ctx, dataURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}

	bounds := img.Bounds()
	metadata := map[string]any{
		"format":       "image",
		"image_format": format,
		"width":        bounds.Dx(),
		"height":       bounds.Dy(),
		"ocr_engine":   "vision-model",
		"ocr_model":    visionModel,
	}
	return text, metadata, nil
}

// downscale resizes the image so its long edge does not exceed maxEdge,
// preserving aspect ratio. Images already within the cap pass through.
func downscale(img image.Image, maxEdge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	long := w
	if h > long {
		long = h
	}
	if long <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(long)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
