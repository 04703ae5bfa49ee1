package imagefilter

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/egress"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImage(seed int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 24, 16))
	for y := range 16 {
		for x := range 24 {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x*10 + seed),
				G: uint8(y*15 + seed*3),
				B: uint8((x + y) * 5),
				A: 255,
			})
		}
	}
	return img
}

// writeImages writes n png images into a new directory,
// plus a file without extension and a text file.
func writeImages(t *testing.T, n int) string {
	t.Helper()

	dir := t.TempDir()
	for idx := range n {
		require.NoError(t, imaging.Save(newTestImage(idx), filepath.Join(dir, fmt.Sprintf("img_%02d.png", idx))))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("skipped"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skipped"), 0o644))

	return dir
}

func pixels(t *testing.T, img image.Image) []uint8 {
	t.Helper()
	return imaging.Clone(img).Pix
}

func Test_Run(t *testing.T) {
	inputDir := writeImages(t, 7)

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			assert := assert.New(t)

			outputDir := filepath.Join(t.TempDir(), "out")

			cfg := NewConfig(inputDir, outputDir)
			cfg.Run.Workers = workers

			report, err := Run(t.Context(), cfg)
			require.NoError(t, err)

			// One splitter, five filters per lane, one writer
			assert.Len(report.Stages, 2+5*workers)

			splitter, ok := report.Stage("splitter")
			require.True(t, ok)
			assert.Equal(uint64(7), splitter.Sent)

			entries, err := os.ReadDir(outputDir)
			require.NoError(t, err)
			require.Len(t, entries, 7)

			chain := cfg.Chain()
			for idx := range 7 {
				name := fmt.Sprintf("img_%02d.png", idx)

				got, err := imaging.Open(filepath.Join(outputDir, name))
				require.NoError(t, err)

				src, err := imaging.Open(filepath.Join(inputDir, name))
				require.NoError(t, err)

				assert.Equal(pixels(t, Apply(src, chain)), pixels(t, got), name)
			}
		})
	}
}

func Test_Run_ordered(t *testing.T) {
	assert := assert.New(t)

	inputDir := writeImages(t, 5)

	buf := egress.NewBufferWriter[*Frame]()

	cfg := NewConfig(inputDir, filepath.Join(t.TempDir(), "out"))
	cfg.Run.Workers = 2
	cfg.Run.Stream = true
	cfg.Run.FanIn = ordo.FanInArrival

	_, err := Run(t.Context(), cfg, buf)
	require.NoError(t, err)

	frames := buf.Items()
	require.Len(t, frames, 5)
	for idx, frame := range frames {
		assert.Equal(fmt.Sprintf("img_%02d.png", idx), frame.Name)
		assert.Equal(image.Rect(0, 0, 24, 16), frame.Image.Bounds())
	}
}

func Test_Run_decodeError(t *testing.T) {
	assert := assert.New(t)

	inputDir := writeImages(t, 2)
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "broken.png"), []byte("not a png"), 0o644))

	outputDir := filepath.Join(t.TempDir(), "out")

	_, err := Run(t.Context(), NewConfig(inputDir, outputDir))
	assert.Error(err)

	var stageErr *ordo.StageError
	assert.ErrorAs(err, &stageErr)
	assert.Equal("splitter", stageErr.Name)

	// The output directory is not created when the run fails
	_, err = os.Stat(outputDir)
	assert.ErrorIs(err, os.ErrNotExist)
}

func Test_Filters(t *testing.T) {
	assert := assert.New(t)

	src := newTestImage(1)

	gray := Grayscale()(src)
	nrgba := imaging.Clone(gray)
	for idx := 0; idx < len(nrgba.Pix); idx += 4 {
		assert.Equal(nrgba.Pix[idx], nrgba.Pix[idx+1])
		assert.Equal(nrgba.Pix[idx], nrgba.Pix[idx+2])
	}

	for _, f := range NewConfig("in", "out").Chain() {
		assert.Equal(src.Bounds(), f.Filter(src).Bounds(), f.Name)
	}
}

func Test_Config(t *testing.T) {
	assert := assert.New(t)

	_, err := Build(NewConfig("", ""))
	assert.ErrorIs(err, config.ErrInvalid)

	cfg := NewConfig("in", "out")
	cfg.Saturation = -150
	_, err = Build(cfg)
	assert.ErrorIs(err, config.ErrInvalid)

	cfg = NewConfig("in", "out")
	cfg.Gamma = 0
	cfg.Extensions = nil
	_, err = Build(cfg)
	assert.NoError(err)
	assert.Equal(DefaultConfigGamma, cfg.Gamma)
	assert.Equal(DefaultConfigExtensions, cfg.Extensions)
}

func Test_Run_thumbnails(t *testing.T) {
	assert := assert.New(t)

	inputDir := writeImages(t, 4)

	root := t.TempDir()
	outputDir := filepath.Join(root, "out")
	thumbDir := filepath.Join(root, "thumbs")

	buf := egress.NewBufferWriter[*Frame]()

	cfg := NewConfig(inputDir, outputDir)
	cfg.Run.Workers = 2
	cfg.ThumbnailDir = thumbDir
	cfg.ThumbnailSize = 8

	report, err := Run(t.Context(), cfg, buf)
	require.NoError(t, err)

	// Splitter, filters, tee, writer, thumbnailer and thumbnail writer
	assert.Len(report.Stages, 5+5*2)

	tee, ok := report.Stage("tee")
	require.True(t, ok)
	assert.Equal(uint64(4), tee.Received)
	assert.Equal(uint64(8), tee.Sent)

	// The full size branch is not affected by the thumbnails
	frames := buf.Items()
	require.Len(t, frames, 4)
	for idx, frame := range frames {
		assert.Equal(fmt.Sprintf("img_%02d.png", idx), frame.Name)
		assert.Equal(image.Rect(0, 0, 24, 16), frame.Image.Bounds())
	}

	for idx := range 4 {
		name := fmt.Sprintf("img_%02d.png", idx)

		full, err := imaging.Open(filepath.Join(outputDir, name))
		require.NoError(t, err)
		assert.Equal(image.Rect(0, 0, 24, 16), full.Bounds(), name)

		thumb, err := imaging.Open(filepath.Join(thumbDir, name))
		require.NoError(t, err)
		assert.Equal(image.Rect(0, 0, 8, 8), thumb.Bounds(), name)
	}
}
