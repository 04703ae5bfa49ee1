package ordo

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/FerroO2000/ordo/connector"
	"github.com/FerroO2000/ordo/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func newFragConn[P any](capacity uint64) fragConn[P] {
	return connector.NewRingBuffer[*Fragment[P]](capacity)
}

//////////////
//  REPORT  //
//////////////

// StageReport is the outcome of a single stage.
type StageReport struct {
	ID       StageID
	Name     string
	State    StageState
	Received uint64
	Sent     uint64
	Elapsed  time.Duration
	Err      error
}

// Report is the outcome of a graph run.
type Report struct {
	// RunID identifies the run in the logs.
	RunID uuid.UUID
	// Graph is the name of the graph.
	Graph string
	// StartTime is the time the first stage was started.
	StartTime time.Time
	// Elapsed is the wall-clock time between the start of the first stage
	// and the termination of the last one.
	Elapsed time.Duration
	// Stages contains a report for each stage, indexed by [StageID].
	Stages []StageReport
}

// Stage returns the report of the stage with the given name.
func (r *Report) Stage(name string) (StageReport, bool) {
	for _, stage := range r.Stages {
		if stage.Name == name {
			return stage, true
		}
	}

	return StageReport{}, false
}

//////////////
//  RUNNER  //
//////////////

type runnerStage[P any] struct {
	node  *stageNode[P]
	ports *Ports[P]

	elapsed time.Duration
	err     error
}

type runner[P any] struct {
	graphName string
	tel       *telemetry.Telemetry

	stages []*runnerStage[P]

	failOnce sync.Once
	failErr  error
	cancel   context.CancelCauseFunc
}

func newRunner[P any](graphName string, tel *telemetry.Telemetry, stages []*runnerStage[P]) *runner[P] {
	return &runner[P]{
		graphName: graphName,
		tel:       tel,

		stages: stages,
	}
}

// fail records the first failure and cancels the run.
func (r *runner[P]) fail(err error) {
	r.failOnce.Do(func() {
		r.failErr = err
		r.cancel(err)
	})
}

func (r *runner[P]) run(ctx context.Context) (*Report, error) {
	runID := uuid.New()
	tel := r.tel.With("run_id", runID.String())

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	r.cancel = cancel

	ctx, span := tel.NewTrace(runCtx, "run graph")
	defer span.End()

	tel.LogInfo("starting", "stages", len(r.stages))

	group, groupCtx := errgroup.WithContext(ctx)

	startTime := time.Now()

	for _, stage := range r.stages {
		group.Go(func() error {
			return r.runStage(groupCtx, stage)
		})
	}

	// Failures are recorded by fail, in order of occurrence
	_ = group.Wait()

	elapsed := time.Since(startTime)

	report := &Report{
		RunID:     runID,
		Graph:     r.graphName,
		StartTime: startTime,
		Elapsed:   elapsed,
		Stages:    make([]StageReport, 0, len(r.stages)),
	}

	for _, stage := range r.stages {
		report.Stages = append(report.Stages, StageReport{
			ID:       stage.node.id,
			Name:     stage.node.name,
			State:    stage.ports.State(),
			Received: stage.ports.Received(),
			Sent:     stage.ports.Sent(),
			Elapsed:  stage.elapsed,
			Err:      stage.err,
		})
	}

	if r.failErr != nil {
		tel.LogError("run failed", r.failErr, "elapsed", elapsed)
		return report, r.failErr
	}

	tel.LogInfo("run completed", "elapsed", elapsed)

	return report, nil
}

func (r *runner[P]) runStage(ctx context.Context, stage *runnerStage[P]) error {
	ports := stage.ports
	startTime := time.Now()

	ports.setState(StageStateWaitingForInput)
	ports.tel.LogDebug("running")

	err := r.invoke(ctx, stage)
	if err != nil {
		err = &StageError{
			Stage: stage.node.id,
			Name:  stage.node.name,
			Err:   err,
		}

		r.fail(err)
	}

	// Outputs are closed on every exit path, and the producers
	// still sending to this stage are released with a broken pipe
	ports.CloseAll()
	ports.abandonInputs()
	ports.setState(StageStateTerminated)

	stage.elapsed = time.Since(startTime)
	stage.err = err

	if err != nil {
		ports.tel.LogDebug("terminated with error", "error", err, "elapsed", stage.elapsed)
	} else {
		ports.tel.LogDebug("terminated", "elapsed", stage.elapsed)
	}

	return err
}

func (r *runner[P]) invoke(ctx context.Context, stage *runnerStage[P]) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrStagePanic, rec, debug.Stack())
		}
	}()

	return stage.node.action.Run(ctx, stage.ports)
}
