package egress

import (
	"context"
	"errors"
	"time"

	"github.com/FerroO2000/ordo"
	"github.com/FerroO2000/ordo/internal/config"
	"github.com/FerroO2000/ordo/internal/telemetry"
	qdb "github.com/questdb/go-questdb-client/v3"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the QuestDB run recorder configuration.
const (
	DefaultQuestDBConfigAddress    = "localhost:9000"
	DefaultQuestDBConfigRunTable   = "ordo_runs"
	DefaultQuestDBConfigStageTable = "ordo_stages"
)

// QuestDBConfig structs contains the configuration for the QuestDB run recorder.
type QuestDBConfig struct {
	// Address of the QuestDB server.
	//
	// Default: "localhost:9000"
	Address string

	// RunTable is the table with one row per run.
	//
	// Default: "ordo_runs"
	RunTable string

	// StageTable is the table with one row per stage of a run.
	//
	// Default: "ordo_stages"
	StageTable string
}

// NewQuestDBConfig returns the default configuration for the QuestDB run recorder.
func NewQuestDBConfig() *QuestDBConfig {
	return &QuestDBConfig{
		Address:    DefaultQuestDBConfigAddress,
		RunTable:   DefaultQuestDBConfigRunTable,
		StageTable: DefaultQuestDBConfigStageTable,
	}
}

// Validate checks the configuration.
func (c *QuestDBConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Address", &c.Address, DefaultQuestDBConfigAddress)
	config.CheckNotEmpty(ac, "RunTable", &c.RunTable, DefaultQuestDBConfigRunTable)
	config.CheckNotEmpty(ac, "StageTable", &c.StageTable, DefaultQuestDBConfigStageTable)
}

///////////
//  ROW  //
///////////

// QuestDBColumnType represents the type of a column.
// It does not include the symbol column since it is defined
// as a stand-alone struct in the row.
type QuestDBColumnType int

const (
	// QuestDBColumnTypeBool defines a boolean column.
	QuestDBColumnTypeBool QuestDBColumnType = iota
	// QuestDBColumnTypeInt defines an integer column.
	QuestDBColumnTypeInt
	// QuestDBColumnTypeFloat defines a float column.
	QuestDBColumnTypeFloat
	// QuestDBColumnTypeString defines a string column.
	QuestDBColumnTypeString
)

// QuestDBColumn represents a column of a row.
type QuestDBColumn struct {
	Name  string
	Type  QuestDBColumnType
	Value any
}

// QuestDBSymbol represents a symbol column.
// A symbol column must be inserted before any other column.
type QuestDBSymbol struct {
	Name  string
	Value string
}

// QuestDBRow represents a row to be inserted into the database.
type QuestDBRow struct {
	Table     string
	Symbols   []QuestDBSymbol
	Columns   []QuestDBColumn
	Timestamp time.Time
}

////////////////
//  RECORDER  //
////////////////

// RunInfo describes the workload of a run.
type RunInfo struct {
	// Workload is the name of the workload (e.g. "compress").
	Workload string
	// Workers is the number of parallel lanes.
	Workers int
	// Fragments is the number of fragments emitted by the source.
	Fragments uint64
	// Err is the error of the run, if any.
	Err error
}

// RunRecorder stores the reports of the runs into QuestDB,
// so that the elapsed times of different configurations can be compared.
type RunRecorder struct {
	tel *telemetry.Telemetry
	cfg *QuestDBConfig
}

// NewRunRecorder returns a new QuestDB run recorder.
// If cfg is nil, the default configuration is used.
func NewRunRecorder(cfg *QuestDBConfig) *RunRecorder {
	if cfg == nil {
		cfg = NewQuestDBConfig()
	}

	return &RunRecorder{
		tel: telemetry.NewTelemetry("egress", "questdb_recorder"),
		cfg: cfg,
	}
}

// Init validates the configuration.
func (rr *RunRecorder) Init(_ context.Context) error {
	return config.NewValidator(rr.tel).Validate(rr.cfg)
}

// Rows returns the rows describing the run: one in the run table
// and one per stage in the stage table.
func (rr *RunRecorder) Rows(report *ordo.Report, info RunInfo) []*QuestDBRow {
	runID := report.RunID.String()

	errMsg := ""
	if info.Err != nil {
		errMsg = info.Err.Error()
	}

	rows := make([]*QuestDBRow, 0, len(report.Stages)+1)
	rows = append(rows, &QuestDBRow{
		Table: rr.cfg.RunTable,
		Symbols: []QuestDBSymbol{
			{Name: "graph", Value: report.Graph},
			{Name: "workload", Value: info.Workload},
		},
		Columns: []QuestDBColumn{
			{Name: "run_id", Type: QuestDBColumnTypeString, Value: runID},
			{Name: "workers", Type: QuestDBColumnTypeInt, Value: int64(info.Workers)},
			{Name: "fragments", Type: QuestDBColumnTypeInt, Value: int64(info.Fragments)},
			{Name: "elapsed_ms", Type: QuestDBColumnTypeFloat, Value: durationToMs(report.Elapsed)},
			{Name: "failed", Type: QuestDBColumnTypeBool, Value: info.Err != nil},
			{Name: "error", Type: QuestDBColumnTypeString, Value: errMsg},
		},
		Timestamp: report.StartTime,
	})

	for _, stage := range report.Stages {
		rows = append(rows, &QuestDBRow{
			Table: rr.cfg.StageTable,
			Symbols: []QuestDBSymbol{
				{Name: "graph", Value: report.Graph},
				{Name: "stage", Value: stage.Name},
			},
			Columns: []QuestDBColumn{
				{Name: "run_id", Type: QuestDBColumnTypeString, Value: runID},
				{Name: "state", Type: QuestDBColumnTypeString, Value: stage.State.String()},
				{Name: "received", Type: QuestDBColumnTypeInt, Value: int64(stage.Received)},
				{Name: "sent", Type: QuestDBColumnTypeInt, Value: int64(stage.Sent)},
				{Name: "elapsed_ms", Type: QuestDBColumnTypeFloat, Value: durationToMs(stage.Elapsed)},
				{Name: "failed", Type: QuestDBColumnTypeBool, Value: stage.Err != nil},
			},
			Timestamp: report.StartTime,
		})
	}

	return rows
}

func durationToMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Record inserts the rows describing the run into QuestDB.
func (rr *RunRecorder) Record(ctx context.Context, report *ordo.Report, info RunInfo) (err error) {
	ctx, span := rr.tel.NewTrace(ctx, "record run")
	defer span.End()

	senderPool, err := qdb.PoolFromOptions(
		qdb.WithAddress(rr.cfg.Address),
		qdb.WithHttp(),
		qdb.WithRetryTimeout(time.Second),
	)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, senderPool.Close(context.Background()))
	}()

	sender, err := senderPool.Sender(ctx)
	if err != nil {
		return err
	}

	rows := rr.Rows(report, info)
	if err := insertRows(ctx, sender, rows); err != nil {
		return errors.Join(err, sender.Close(ctx))
	}

	// Closing the sender flushes the rows
	if err := sender.Close(ctx); err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("inserted_rows", len(rows)))
	rr.tel.LogInfo("run recorded", "run_id", report.RunID, "rows", len(rows))

	return nil
}

func insertRows(ctx context.Context, sender qdb.LineSender, rows []*QuestDBRow) error {
	for _, row := range rows {
		query := sender.Table(row.Table)

		for _, symbol := range row.Symbols {
			query.Symbol(symbol.Name, symbol.Value)
		}

		for _, col := range row.Columns {
			switch col.Type {
			case QuestDBColumnTypeBool:
				query.BoolColumn(col.Name, col.Value.(bool))
			case QuestDBColumnTypeInt:
				query.Int64Column(col.Name, col.Value.(int64))
			case QuestDBColumnTypeFloat:
				query.Float64Column(col.Name, col.Value.(float64))
			case QuestDBColumnTypeString:
				query.StringColumn(col.Name, col.Value.(string))
			}
		}

		if err := query.At(ctx, row.Timestamp); err != nil {
			return err
		}
	}

	return nil
}
