// Package fractal renders a grayscale Mandelbrot image one row per fragment.
//
// Each worker lane runs two steps: the first iterates every pixel of the row
// up to Iter1 times, the second continues the pixels that did not escape for
// up to Iter2 more iterations and computes the gray levels. The rows are
// written in order as raw 8-bit pixels, Size bytes per row.
package fractal

import (
	"context"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/egress"
	"github.com/FerroO2000/ordo/ingress"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"github.com/FerroO2000/ordo/processor"
	"github.com/FerroO2000/ordo/workload"
)

// Bounds of the rendered region of the complex plane.
const (
	originReal = -2.125
	originImag = -1.5
	planeRange = 3.0
)

//////////////
//  CONFIG  //
//////////////

// Default values for the fractal configuration.
const (
	DefaultConfigSize  = 512
	DefaultConfigIter1 = 1000
	DefaultConfigIter2 = 1000
)

// Config structs contains the configuration of the fractal workload.
type Config struct {
	Run *workload.RunConfig

	// Output is the path of the raw image.
	// It is required.
	Output string

	// Size is the width and the height of the image.
	//
	// Default: 512
	Size int

	// Iter1 is the number of iterations of the first step.
	//
	// Default: 1000
	Iter1 int

	// Iter2 is the number of iterations of the second step.
	//
	// Default: 1000
	Iter2 int
}

// NewConfig returns the default configuration of the workload.
func NewConfig(output string) *Config {
	return &Config{
		Run: workload.NewRunConfig(),

		Output: output,
		Size:   DefaultConfigSize,
		Iter1:  DefaultConfigIter1,
		Iter2:  DefaultConfigIter2,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	c.Run.Validate(ac)

	config.CheckRequired(ac, "Output", c.Output)

	config.CheckGreaterThanZero(ac, "Size", &c.Size, DefaultConfigSize)

	config.CheckGreaterThanZero(ac, "Iter1", &c.Iter1, DefaultConfigIter1)

	config.CheckNotNegative(ac, "Iter2", &c.Iter2, DefaultConfigIter2)
}

///////////
//  ROW  //
///////////

// Row is one row of the image, carried through the lane steps.
type Row struct {
	// Index is the index of the row, from the top of the image.
	Index int

	// A and B are the real and imaginary parts of every pixel
	// after the first step.
	A []float64
	B []float64
	// K is the last iteration reached by every pixel.
	K []int

	// Line contains the gray levels of the row.
	Line []byte
}

// NewRow returns an empty row of the given size.
func NewRow(index, size int) *Row {
	return &Row{
		Index: index,

		A:    make([]float64, size),
		B:    make([]float64, size),
		K:    make([]int, size),
		Line: make([]byte, size),
	}
}

func (r *Row) step() float64 {
	return planeRange / float64(len(r.Line))
}

func (r *Row) imag() float64 {
	return originImag + r.step()*float64(r.Index)
}

// IterateA runs the first step on the row.
func IterateA(row *Row, iter1 int) {
	step := row.step()
	im := row.imag()

	for j := range row.Line {
		a := originReal + step*float64(j)
		cr := a
		b := im
		k := 0

		for ii := range iter1 {
			a2 := a * a
			b2 := b * b
			if a2+b2 > 4 {
				break
			}

			b = 2*a*b + im
			a = a2 - b2 + cr
			k = ii
		}

		row.A[j] = a
		row.B[j] = b
		row.K[j] = k
	}
}

// IterateB runs the second step on the row and computes its gray levels.
func IterateB(row *Row, iter1, iter2 int) {
	step := row.step()
	im := row.imag()
	total := float64(iter1 + iter2)

	for j := range row.Line {
		cr := originReal + step*float64(j)

		// Only the pixels still bounded at the end of the first step
		if row.K[j] == iter1-1 {
			a, b := row.A[j], row.B[j]

			for ii := iter1; ii < iter1+iter2; ii++ {
				a2 := a * a
				b2 := b * b
				if a2+b2 > 4 {
					break
				}

				b = 2*a*b + im
				a = a2 - b2 + cr
				row.K[j] = ii
			}

			row.A[j], row.B[j] = a, b
		}

		row.Line[j] = uint8(255 - float64(row.K[j])*255/total)
	}
}

// Render computes the whole image on the calling goroutine.
func Render(size, iter1, iter2 int) []byte {
	img := make([]byte, 0, size*size)

	for idx := range size {
		row := NewRow(idx, size)
		IterateA(row, iter1)
		IterateB(row, iter1, iter2)
		img = append(img, row.Line...)
	}

	return img
}

/////////////
//  GRAPH  //
/////////////

func encodeRow(row *Row) ([]byte, error) {
	return row.Line, nil
}

// Build returns the graph of the workload.
// The rows are also written to the extra writers, if any.
func Build(cfg *Config, extra ...egress.Writer[*Row]) (*ordo.Graph[*Row], error) {
	tel := telemetry.NewTelemetry("workload", "fractal")
	if err := config.NewValidator(tel).Validate(cfg); err != nil {
		return nil, err
	}

	size := cfg.Size
	iter1 := cfg.Iter1
	iter2 := cfg.Iter2

	rows := ingress.Map(ingress.NewRange(uint64(size)), func(idx uint64) (*Row, error) {
		return NewRow(int(idx), size), nil
	})

	writer := workload.Writer(egress.NewFileWriter(encodeRow, egress.NewFileConfig(cfg.Output)), extra...)

	farm := &ordo.Farm[*Row]{
		Workers: cfg.Run.Workers,

		SourceName: "generator",
		Source:     ingress.NewSource(rows, nil),

		Steps: []ordo.LaneStep[*Row]{
			{
				Name: "fractal-a",
				New: func(int) ordo.Action[*Row] {
					return processor.NewTransformStage("fractal_a", func(_ context.Context, row *Row) (*Row, error) {
						IterateA(row, iter1)
						return row, nil
					})
				},
			},
			{
				Name: "fractal-b",
				New: func(int) ordo.Action[*Row] {
					return processor.NewTransformStage("fractal_b", func(_ context.Context, row *Row) (*Row, error) {
						IterateB(row, iter1, iter2)
						return row, nil
					})
				},
			},
		},

		SinkName: "writer",
		Sink:     workload.NewSink(cfg.Run, writer),
	}

	g := ordo.NewGraph[*Row](cfg.Run.GraphConfig("fractal"))
	if _, err := farm.Build(g); err != nil {
		return nil, err
	}

	tel.LogInfo("graph built", "workers", cfg.Run.Workers, "size", size, "iter1", iter1, "iter2", iter2)

	return g, nil
}

// Run builds and runs the workload.
func Run(ctx context.Context, cfg *Config, extra ...egress.Writer[*Row]) (*ordo.Report, error) {
	g, err := Build(cfg, extra...)
	if err != nil {
		return nil, err
	}

	return g.Start(ctx)
}
