package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // JPEG format support
	_ "image/png"  // PNG format support

	"github.com/disintegration/imaging"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // WebP format support (YouTube thumbnails)
)

const (
	defaultContrast   = 30.0 // percent
	defaultSaturation = 30.0 // percent
)

// ProcessorConfig holds the enhancement applied to artwork before display
type ProcessorConfig struct {
	Contrast   float64
	Saturation float64
}

// ArtProcessor turns raw artwork bytes into a square, LED-friendly image
type ArtProcessor struct {
	logger *zap.Logger
	config ProcessorConfig
}

// NewArtProcessor creates a processor with the default enhancement
func NewArtProcessor(logger *zap.Logger) *ArtProcessor {
	return &ArtProcessor{
		logger: logger,
		config: ProcessorConfig{
			Contrast:   defaultContrast,
			Saturation: defaultSaturation,
		},
	}
}

// Process decodes imageData, fits it into a size x size square (aspect kept,
// black letterbox) and boosts contrast and saturation.
// Decode failures wrap domain.ErrDecode.
func (p *ArtProcessor) Process(imageData []byte, size int) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d: %w", size, domain.ErrDecode)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w: %v", domain.ErrDecode, err)
	}

	bounds := img.Bounds()
	if bounds.Dy() == 0 || bounds.Dx() == 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d: %w", bounds.Dx(), bounds.Dy(), domain.ErrDecode)
	}

	fitted := imaging.Fit(img, size, size, imaging.Lanczos)
	fitted = imaging.AdjustContrast(fitted, p.config.Contrast)
	fitted = imaging.AdjustSaturation(fitted, p.config.Saturation)

	canvas := imaging.New(size, size, color.Black)
	result := imaging.PasteCenter(canvas, fitted)

	p.logger.Debug("Artwork processed",
		zap.String("format", format),
		zap.Int("srcW", bounds.Dx()),
		zap.Int("srcH", bounds.Dy()),
		zap.Int("size", size))

	return result, nil
}
