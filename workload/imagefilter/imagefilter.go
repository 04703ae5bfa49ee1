// Package imagefilter applies a chain of filters to every image of a directory.
//
// Each worker lane runs the filters as separate stages:
// saturation, emboss, gamma, sharpen and grayscale.
// The filtered images are written with the same name into the output directory.
// When a thumbnail directory is set, a tee after the lanes also sends every
// filtered image to a thumbnail branch with its own ordered sink.
package imagefilter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/egress"
	"github.com/FerroO2000/ordo/ingress"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"github.com/FerroO2000/ordo/processor"
	"github.com/FerroO2000/ordo/workload"
	"github.com/disintegration/imaging"
)

var (
	embossKernel  = [9]float64{-2, -1, 0, -1, 1, 1, 0, 1, 2}
	sharpenKernel = [9]float64{0, -1, 0, -1, 5, -1, 0, -1, 0}
)

//////////////
//  CONFIG  //
//////////////

// Default values for the image filter configuration.
const (
	DefaultConfigSaturation = 20.0
	DefaultConfigGamma      = 0.2
	DefaultConfigFollow     = false

	DefaultConfigThumbnailSize = 128
)

// DefaultConfigExtensions contains the extensions of the images
// that can be decoded and encoded.
var DefaultConfigExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff"}

// Config structs contains the configuration of the image filter workload.
type Config struct {
	Run *workload.RunConfig

	// InputDir is the directory of the source images.
	// It is required.
	InputDir string

	// OutputDir is the directory of the filtered images.
	// It is required.
	OutputDir string

	// Extensions filters the files of the input directory.
	//
	// Default: [.png .jpg .jpeg .gif .bmp .tif .tiff]
	Extensions []string

	// Saturation is the saturation change in percent, in the range [-100, 100].
	//
	// Default: 20
	Saturation float64

	// Gamma is the gamma correction applied to the images.
	//
	// Default: 0.2
	Gamma float64

	// Follow states whether the images added to the input directory
	// while the graph runs are processed too.
	//
	// Default: false
	Follow bool

	// ThumbnailDir is the directory of the thumbnails of the filtered images.
	// If empty, no thumbnail is written.
	ThumbnailDir string

	// ThumbnailSize is the size in pixels of the square thumbnails.
	//
	// Default: 128
	ThumbnailSize int
}

// NewConfig returns the default configuration of the workload.
func NewConfig(inputDir, outputDir string) *Config {
	return &Config{
		Run: workload.NewRunConfig(),

		InputDir:   inputDir,
		OutputDir:  outputDir,
		Extensions: DefaultConfigExtensions,
		Saturation: DefaultConfigSaturation,
		Gamma:      DefaultConfigGamma,
		Follow:     DefaultConfigFollow,

		ThumbnailSize: DefaultConfigThumbnailSize,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	c.Run.Validate(ac)

	config.CheckRequired(ac, "InputDir", c.InputDir)
	config.CheckRequired(ac, "OutputDir", c.OutputDir)

	config.CheckLen(ac, "Extensions", &c.Extensions, DefaultConfigExtensions)

	config.CheckInRange(ac, "Saturation", c.Saturation, -100, 100)

	config.CheckGreaterThanZero(ac, "Gamma", &c.Gamma, DefaultConfigGamma)

	if c.ThumbnailDir != "" {
		config.CheckGreaterThanZero(ac, "ThumbnailSize", &c.ThumbnailSize, DefaultConfigThumbnailSize)
	}
}

/////////////
//  FRAME  //
/////////////

// Frame is an image flowing through the filters.
type Frame struct {
	// Name is the base name of the image file.
	Name string
	// Path is the path of the source image.
	Path string

	Image image.Image
}

// cloneFrame copies the frame for a branch of the tee.
// The image is shared, since the filters always return a new one.
func cloneFrame(frame *Frame) *Frame {
	clone := *frame
	return &clone
}

func decodeFrame(entry ingress.FileEntry) (*Frame, error) {
	img, err := imaging.Open(entry.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", entry.Name, err)
	}

	return &Frame{
		Name:  entry.Name,
		Path:  entry.Path,
		Image: img,
	}, nil
}

type frameEncoder struct{}

func (frameEncoder) Name(_ uint64, frame *Frame) string {
	return frame.Name
}

func (frameEncoder) Encode(w io.Writer, frame *Frame) error {
	format, err := imaging.FormatFromFilename(frame.Name)
	if err != nil {
		return err
	}

	return imaging.Encode(w, frame.Image, format)
}

///////////////
//  FILTERS  //
///////////////

// Filter transforms an image.
type Filter func(img image.Image) image.Image

// Saturate returns the filter changing the saturation by the given percentage.
func Saturate(percentage float64) Filter {
	return func(img image.Image) image.Image {
		return imaging.AdjustSaturation(img, percentage)
	}
}

// Emboss returns the emboss filter.
func Emboss() Filter {
	return func(img image.Image) image.Image {
		return imaging.Convolve3x3(img, embossKernel, nil)
	}
}

// Gamma returns the gamma correction filter.
func Gamma(gamma float64) Filter {
	return func(img image.Image) image.Image {
		return imaging.AdjustGamma(img, gamma)
	}
}

// Sharpen returns the sharpen filter.
func Sharpen() Filter {
	return func(img image.Image) image.Image {
		return imaging.Convolve3x3(img, sharpenKernel, nil)
	}
}

// Grayscale returns the grayscale filter.
func Grayscale() Filter {
	return func(img image.Image) image.Image {
		return imaging.Grayscale(img)
	}
}

// NamedFilter is a filter run by its own stage.
type NamedFilter struct {
	Name   string
	Filter Filter
}

// Chain returns the filters of the workload, in order.
func (c *Config) Chain() []NamedFilter {
	return []NamedFilter{
		{Name: "saturate", Filter: Saturate(c.Saturation)},
		{Name: "emboss", Filter: Emboss()},
		{Name: "gamma", Filter: Gamma(c.Gamma)},
		{Name: "sharpen", Filter: Sharpen()},
		{Name: "grayscale", Filter: Grayscale()},
	}
}

// Apply runs the filters on the image on the calling goroutine.
func Apply(img image.Image, filters []NamedFilter) image.Image {
	for _, f := range filters {
		img = f.Filter(img)
	}
	return img
}

func filterStep(f NamedFilter) ordo.LaneStep[*Frame] {
	return ordo.LaneStep[*Frame]{
		Name: f.Name,
		New: func(int) ordo.Action[*Frame] {
			return processor.NewTransformStage(f.Name, func(_ context.Context, frame *Frame) (*Frame, error) {
				frame.Image = f.Filter(frame.Image)
				return frame, nil
			})
		},
	}
}

func thumbnailStage(size int) ordo.Action[*Frame] {
	return processor.NewTransformStage("thumbnail", func(_ context.Context, frame *Frame) (*Frame, error) {
		frame.Image = imaging.Thumbnail(frame.Image, size, size, imaging.Lanczos)
		return frame, nil
	})
}

/////////////
//  GRAPH  //
/////////////

// Build returns the graph of the workload.
// The filtered frames are also written to the extra writers, if any.
func Build(cfg *Config, extra ...egress.Writer[*Frame]) (*ordo.Graph[*Frame], error) {
	tel := telemetry.NewTelemetry("workload", "imagefilter")
	if err := config.NewValidator(tel).Validate(cfg); err != nil {
		return nil, err
	}

	dirCfg := ingress.NewDirConfig(cfg.InputDir)
	dirCfg.Extensions = cfg.Extensions
	dirCfg.Follow = cfg.Follow

	chain := cfg.Chain()
	steps := make([]ordo.LaneStep[*Frame], 0, len(chain))
	for _, f := range chain {
		steps = append(steps, filterStep(f))
	}

	writer := workload.Writer(egress.NewDirWriter[*Frame](frameEncoder{}, egress.NewDirConfig(cfg.OutputDir)), extra...)
	sink := workload.NewSink(cfg.Run, writer)

	farm := &ordo.Farm[*Frame]{
		Workers: cfg.Run.Workers,

		SourceName: "splitter",
		Source:     ingress.NewSource(ingress.Map(ingress.NewDirLister(dirCfg), decodeFrame), nil),

		Steps: steps,

		SinkName: "writer",
		Sink:     sink,
	}

	withThumbnails := cfg.ThumbnailDir != ""
	if withThumbnails {
		farm.SinkName = "tee"
		farm.Sink = processor.NewTee(cloneFrame)
	}

	g := ordo.NewGraph[*Frame](cfg.Run.GraphConfig("imagefilter"))
	layout, err := farm.Build(g)
	if err != nil {
		return nil, err
	}

	if withThumbnails {
		thumbWriter := egress.NewDirWriter[*Frame](frameEncoder{}, egress.NewDirConfig(cfg.ThumbnailDir))

		writerID := g.AddStage("writer", sink)
		thumbID := g.AddStage("thumbnailer", thumbnailStage(cfg.ThumbnailSize))
		thumbWriterID := g.AddStage("thumbnail-writer", workload.NewSink(cfg.Run, thumbWriter))

		// The filtered images are the first output of the tee
		for _, edge := range [][2]ordo.StageID{
			{layout.Sink, writerID},
			{layout.Sink, thumbID},
			{thumbID, thumbWriterID},
		} {
			if err := g.AddEdge(edge[0], edge[1]); err != nil {
				return nil, err
			}
		}
	}

	tel.LogInfo("graph built", "workers", cfg.Run.Workers, "input_dir", cfg.InputDir, "follow", cfg.Follow, "thumbnails", withThumbnails)

	return g, nil
}

// Run builds and runs the workload.
func Run(ctx context.Context, cfg *Config, extra ...egress.Writer[*Frame]) (*ordo.Report, error) {
	g, err := Build(cfg, extra...)
	if err != nil {
		return nil, err
	}

	return g.Start(ctx)
}

// EncodeFrame encodes the image of the frame in the format
// matching the extension of its name.
func EncodeFrame(frame *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := (frameEncoder{}).Encode(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
