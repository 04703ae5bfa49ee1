package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/egress"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"github.com/FerroO2000/ordo/workload"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "ORDO"

// Names of the flags shared by every workload.
const (
	flagConfig          = "config"
	flagEnvFile         = "env-file"
	flagLogLevel        = "log-level"
	flagOTelEndpoint    = "otel-endpoint"
	flagWorkers         = "workers"
	flagStream          = "stream"
	flagFanIn           = "fan-in"
	flagChannelCapacity = "channel-capacity"
	flagMaxPending      = "max-pending"
	flagKafkaBrokers    = "kafka-brokers"
	flagKafkaTopic      = "kafka-topic"
	flagQuestDB         = "questdb"
)

// app holds the state shared by the commands.
// Every setting is read from viper, so a flag can also be set
// with an ORDO_ environment variable or in the configuration file.
type app struct {
	v   *viper.Viper
	tel *telemetry.Telemetry

	shutdownProviders telemetry.ShutdownFunc
}

func newApp() *app {
	return &app{
		v:   viper.New(),
		tel: telemetry.NewTelemetry("cmd", "ordo"),
	}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ordo",
		Short: "Run ordered parallel pipeline workloads",
		Long: `ordo splits an input into fragments, processes them on parallel
worker lanes and writes the results in the original order.`,

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: a.setup,
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "configuration file (yaml, toml or json)")
	flags.String(flagEnvFile, ".env", "dotenv file loaded before reading the environment, ignored if missing")
	flags.String(flagLogLevel, "info", "minimum level of the logs (debug, info, warn, error)")
	flags.String(flagOTelEndpoint, "", "OTLP gRPC collector address, telemetry is not exported when empty")

	flags.Int(flagWorkers, workload.DefaultRunConfigWorkers, "number of parallel worker lanes")
	flags.Bool(flagStream, workload.DefaultRunConfigStream, "write the fragments as soon as they are in order")
	flags.String(flagFanIn, workload.DefaultRunConfigFanIn.String(), "policy used by the sink to drain the lanes (round-robin, arrival)")
	flags.Uint64(flagChannelCapacity, workload.DefaultRunConfigChannelCapacity, "capacity of the channels between the stages")
	flags.Uint64(flagMaxPending, workload.DefaultRunConfigMaxPending, "maximum number of fragments buffered by a streaming sink, 0 means no bound")

	flags.StringSlice(flagKafkaBrokers, nil, "Kafka brokers, the results are also published when a topic is set")
	flags.String(flagKafkaTopic, "", "Kafka topic receiving the results")
	flags.String(flagQuestDB, "", "QuestDB address (host:port) receiving the run report")

	cmd.AddCommand(
		a.compressCmd(),
		a.fractalCmd(),
		a.filterCmd(),
	)

	return cmd
}

// setup loads the configuration and installs the telemetry.
// It runs before every workload command.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if cfgFile := a.v.GetString(flagConfig); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	level, err := telemetry.ParseLevel(a.v.GetString(flagLogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	logCfg := telemetry.NewLogConfig()
	logCfg.Level = level
	logCfg.Output = cmd.ErrOrStderr()
	telemetry.SetupLogging(logCfg)

	providerCfg := telemetry.NewProviderConfig()
	providerCfg.Endpoint = a.v.GetString(flagOTelEndpoint)

	shutdown, err := telemetry.SetupProviders(cmd.Context(), providerCfg)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	a.shutdownProviders = shutdown

	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	if a.shutdownProviders == nil {
		return nil
	}
	return a.shutdownProviders(ctx)
}

// runConfig returns the topology shared by the workloads.
func (a *app) runConfig() (*workload.RunConfig, error) {
	fanIn, err := ordo.ParseFanInMode(a.v.GetString(flagFanIn))
	if err != nil {
		return nil, err
	}

	cfg := workload.NewRunConfig()
	cfg.Workers = a.v.GetInt(flagWorkers)
	cfg.Stream = a.v.GetBool(flagStream)
	cfg.FanIn = fanIn
	cfg.ChannelCapacity = a.v.GetUint64(flagChannelCapacity)
	cfg.MaxPending = a.v.GetUint64(flagMaxPending)

	return cfg, nil
}

// kafkaWriters returns the Kafka writer publishing the results,
// or nothing if no topic is configured.
func kafkaWriters[P any](a *app, encode egress.Encoder[P]) []egress.Writer[P] {
	topic := a.v.GetString(flagKafkaTopic)
	if topic == "" {
		return nil
	}

	cfg := egress.NewKafkaConfig(topic)
	if brokers := a.v.GetStringSlice(flagKafkaBrokers); len(brokers) > 0 {
		cfg.Brokers = brokers
	}

	return []egress.Writer[P]{egress.NewKafkaWriter(encode, cfg)}
}

// finish prints the execution time and records the run.
// It returns the error of the run.
func (a *app) finish(cmd *cobra.Command, name, sourceName string, runCfg *workload.RunConfig, report *ordo.Report, runErr error) error {
	if report == nil {
		return runErr
	}

	var fragments uint64
	if source, ok := report.Stage(sourceName); ok {
		fragments = source.Sent
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Execution time: %.6f sec\n", report.Elapsed.Seconds())

	a.tel.LogInfo("run completed",
		"workload", name, "run_id", report.RunID, "workers", runCfg.Workers,
		"fragments", fragments, "elapsed", report.Elapsed, "failed", runErr != nil,
	)

	if addr := a.v.GetString(flagQuestDB); addr != "" {
		cfg := egress.NewQuestDBConfig()
		cfg.Address = addr

		recorder := egress.NewRunRecorder(cfg)
		info := egress.RunInfo{
			Workload:  name,
			Workers:   runCfg.Workers,
			Fragments: fragments,
			Err:       runErr,
		}

		if err := recorder.Init(cmd.Context()); err != nil {
			a.tel.LogError("invalid questdb configuration", err)
		} else if err := recorder.Record(context.WithoutCancel(cmd.Context()), report, info); err != nil {
			a.tel.LogError("failed to record the run", err, "address", addr)
		}
	}

	return runErr
}
