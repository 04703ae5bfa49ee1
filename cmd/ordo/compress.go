package main

import (
	"github.com/FerroO2000/ordo/ingress"
	"github.com/FerroO2000/ordo/workload/blockzip"
	"github.com/spf13/cobra"
)

const (
	flagOutput    = "output"
	flagBlockSize = "block-size"
	flagCodec     = "codec"
	flagLevel     = "level"
)

func (a *app) compressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <file>",
		Short: "Compress a file in independent blocks",
		Long: `compress splits the file into blocks, compresses them on the worker
lanes and concatenates the compressed blocks in order. The output is a
multi-member gzip (or multi-frame zstd) stream.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			runCfg, err := a.runConfig()
			if err != nil {
				return err
			}

			codec := blockzip.Codec(a.v.GetString(flagCodec))

			output := a.v.GetString(flagOutput)
			if output == "" {
				output = args[0] + codecExt(codec)
			}

			cfg := blockzip.NewConfig(args[0], output)
			cfg.Run = runCfg
			cfg.BlockSize = a.v.GetInt(flagBlockSize)
			cfg.Codec = codec
			cfg.Level = a.v.GetInt(flagLevel)

			report, err := blockzip.Run(cmd.Context(), cfg, kafkaWriters(a, blockData)...)

			return a.finish(cmd, "compress", "slicer", runCfg, report, err)
		},
	}

	flags := cmd.Flags()
	flags.StringP(flagOutput, "o", "", "compressed file, defaults to the input path plus the codec extension")
	flags.Int(flagBlockSize, blockzip.DefaultConfigBlockSize, "size of the uncompressed blocks in bytes")
	flags.String(flagCodec, string(blockzip.DefaultConfigCodec), "compression format (gzip, zstd)")
	flags.Int(flagLevel, blockzip.DefaultConfigLevel, "compression level, 0 selects the default of the codec")

	return cmd
}

func codecExt(codec blockzip.Codec) string {
	if codec == blockzip.CodecZstd {
		return ".zst"
	}
	return ".gz"
}

func blockData(block ingress.Block) ([]byte, error) {
	return block.Data, nil
}
