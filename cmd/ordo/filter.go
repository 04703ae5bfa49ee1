package main

import (
	"github.com/FerroO2000/ordo/workload/imagefilter"
	"github.com/spf13/cobra"
)

const (
	flagSaturation = "saturation"
	flagGamma      = "gamma"
	flagExtensions = "ext"
	flagFollow     = "follow"

	flagThumbnails    = "thumbnails"
	flagThumbnailSize = "thumbnail-size"
)

func (a *app) filterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter <input-dir>",
		Short: "Apply a chain of filters to the images of a directory",
		Long: `filter decodes the images of the directory and runs them through
saturation, emboss, gamma, sharpen and grayscale stages on the worker
lanes. The results are written with the same names into the output directory.
With --thumbnails the filtered images are also scaled down into a second directory.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			runCfg, err := a.runConfig()
			if err != nil {
				return err
			}

			cfg := imagefilter.NewConfig(args[0], a.v.GetString(flagOutput))
			cfg.Run = runCfg
			cfg.Saturation = a.v.GetFloat64(flagSaturation)
			cfg.Gamma = a.v.GetFloat64(flagGamma)
			cfg.Extensions = a.v.GetStringSlice(flagExtensions)
			cfg.Follow = a.v.GetBool(flagFollow)
			cfg.ThumbnailDir = a.v.GetString(flagThumbnails)
			cfg.ThumbnailSize = a.v.GetInt(flagThumbnailSize)

			report, err := imagefilter.Run(cmd.Context(), cfg, kafkaWriters(a, imagefilter.EncodeFrame)...)

			return a.finish(cmd, "filter", "splitter", runCfg, report, err)
		},
	}

	flags := cmd.Flags()
	flags.StringP(flagOutput, "o", "", "output directory, required")
	flags.Float64(flagSaturation, imagefilter.DefaultConfigSaturation, "saturation change in percent")
	flags.Float64(flagGamma, imagefilter.DefaultConfigGamma, "gamma correction")
	flags.StringSlice(flagExtensions, imagefilter.DefaultConfigExtensions, "extensions of the images to process")
	flags.Bool(flagFollow, imagefilter.DefaultConfigFollow, "also process the images added while running")
	flags.String(flagThumbnails, "", "directory of the thumbnails of the filtered images")
	flags.Int(flagThumbnailSize, imagefilter.DefaultConfigThumbnailSize, "size of the square thumbnails")

	return cmd
}
