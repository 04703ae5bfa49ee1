package egress

import (
	"context"
	"errors"

	"github.com/FerroO2000/ordo"
)

// Writer is the sequential output of a sink stage.
//
// Open is called once when the sink starts. Write is called for every
// fragment in increasing sequence order. Commit makes the output visible
// once every fragment has been written; Abort discards it when the run fails.
// Exactly one of Commit and Abort is called after a successful Open.
type Writer[P any] interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, seqNum uint64, payload P) error
	Commit(ctx context.Context) error
	Abort() error
}

// Encoder converts a payload into the bytes written by a writer.
type Encoder[P any] func(payload P) ([]byte, error)

// BytesEncoder is the encoder of byte slice payloads.
func BytesEncoder(payload []byte) ([]byte, error) {
	return payload, nil
}

// multiWriter duplicates the writes to all the writers.
type multiWriter[P any] struct {
	writers []Writer[P]
	opened  int
}

// MultiWriter returns a writer that duplicates its writes to all the given writers.
// The output is committed only if every writer accepted all the fragments.
func MultiWriter[P any](writers ...Writer[P]) Writer[P] {
	return &multiWriter[P]{
		writers: writers,
	}
}

func (mw *multiWriter[P]) Init(ctx context.Context) error {
	for _, w := range mw.writers {
		if initializer, ok := w.(ordo.Initializer); ok {
			if err := initializer.Init(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func (mw *multiWriter[P]) Open(ctx context.Context) error {
	for _, w := range mw.writers {
		if err := w.Open(ctx); err != nil {
			mw.abortOpened()
			return err
		}
		mw.opened++
	}

	return nil
}

func (mw *multiWriter[P]) abortOpened() {
	for _, w := range mw.writers[:mw.opened] {
		_ = w.Abort()
	}
	mw.opened = 0
}

func (mw *multiWriter[P]) Write(ctx context.Context, seqNum uint64, payload P) error {
	for _, w := range mw.writers {
		if err := w.Write(ctx, seqNum, payload); err != nil {
			return err
		}
	}

	return nil
}

// Commit commits the writers in order. A failed commit aborts the
// writers not yet committed.
func (mw *multiWriter[P]) Commit(ctx context.Context) error {
	for idx, w := range mw.writers {
		if err := w.Commit(ctx); err != nil {
			for _, rest := range mw.writers[idx+1:] {
				_ = rest.Abort()
			}
			return err
		}
	}

	return nil
}

func (mw *multiWriter[P]) Abort() error {
	errs := make([]error, 0, len(mw.writers))
	for _, w := range mw.writers {
		errs = append(errs, w.Abort())
	}

	return errors.Join(errs...)
}
