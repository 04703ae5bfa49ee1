package main

import (
	"github.com/FerroO2000/ordo/workload/fractal"
	"github.com/spf13/cobra"
)

const (
	flagSize  = "size"
	flagIter1 = "iter1"
	flagIter2 = "iter2"
)

func (a *app) fractalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fractal",
		Short: "Render a Mandelbrot image row by row",
		Long: `fractal renders a size x size grayscale Mandelbrot image. Every row is
a fragment, iterated in two steps on its worker lane. The image is
written as raw 8-bit pixels.`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			runCfg, err := a.runConfig()
			if err != nil {
				return err
			}

			cfg := fractal.NewConfig(a.v.GetString(flagOutput))
			cfg.Run = runCfg
			cfg.Size = a.v.GetInt(flagSize)
			cfg.Iter1 = a.v.GetInt(flagIter1)
			cfg.Iter2 = a.v.GetInt(flagIter2)

			report, err := fractal.Run(cmd.Context(), cfg, kafkaWriters(a, rowLine)...)

			return a.finish(cmd, "fractal", "generator", runCfg, report, err)
		},
	}

	flags := cmd.Flags()
	flags.StringP(flagOutput, "o", "fractal.raw", "raw image file")
	flags.Int(flagSize, fractal.DefaultConfigSize, "width and height of the image")
	flags.Int(flagIter1, fractal.DefaultConfigIter1, "iterations of the first step")
	flags.Int(flagIter2, fractal.DefaultConfigIter2, "iterations of the second step")

	return cmd
}

func rowLine(row *fractal.Row) ([]byte, error) {
	return row.Line, nil
}
