// Package ingress contains the source stages of a graph.
//
// A source stage pulls items from a [Generator], numbers them by emission
// order and distributes them round-robin across its outputs.
package ingress

import (
	"context"
	"errors"

	"github.com/FerroO2000/ordo"
)

// ErrGeneratorNotOpen is returned when a generator is used before Open.
var ErrGeneratorNotOpen = errors.New("generator is not open")

// Generator is a sequential reader of items.
// Next returns io.EOF once there are no more items.
type Generator[T any] interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (T, error)
	Close() error
}

type mapGenerator[T, P any] struct {
	gen Generator[T]
	fn  func(T) (P, error)
}

// Map returns a generator that converts the items of gen with fn.
// An error returned by fn stops the source.
func Map[T, P any](gen Generator[T], fn func(T) (P, error)) Generator[P] {
	return &mapGenerator[T, P]{
		gen: gen,
		fn:  fn,
	}
}

func (mg *mapGenerator[T, P]) Init(ctx context.Context) error {
	if initializer, ok := mg.gen.(ordo.Initializer); ok {
		return initializer.Init(ctx)
	}
	return nil
}

func (mg *mapGenerator[T, P]) Open(ctx context.Context) error {
	return mg.gen.Open(ctx)
}

func (mg *mapGenerator[T, P]) Next(ctx context.Context) (P, error) {
	item, err := mg.gen.Next(ctx)
	if err != nil {
		var zero P
		return zero, err
	}

	return mg.fn(item)
}

func (mg *mapGenerator[T, P]) Close() error {
	return mg.gen.Close()
}
