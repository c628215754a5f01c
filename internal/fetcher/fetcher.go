// Package fetcher provides the typed batch-fetch primitive: given a list of
// inputs it issues the corresponding node commands with bounded concurrency
// and merges the decoded results, preserving input order.
package fetcher

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Getter is the only capability the fetcher needs from the transport.
type Getter interface {
	Get(ctx context.Context, command string) ([]byte, error)
}

// Fetcher knows how to translate an input to a node command and decode the
// response.
type Fetcher[In, Out any] struct {
	// Command renders the node path for one input.
	Command func(In) string

	// Decode turns a sanitized response body into the output value. The
	// command is passed through for error reporting.
	Decode func(command string, body []byte) (Out, error)
}

// Result pairs an input with its decoded output.
type Result[In, Out any] struct {
	Input  In
	Output Out
}

// Fetch issues one command per input with at most concurrency in-flight
// calls. Outputs preserve the input order. Any single failure fails the
// whole batch with the error of the lowest-index failing input.
func Fetch[In, Out any](
	ctx context.Context,
	client Getter,
	f Fetcher[In, Out],
	ins []In,
	concurrency int,
) ([]Result[In, Out], error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result[In, Out], len(ins))
	errs := make([]error, len(ins))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, in := range ins {
		group.Go(func() error {
			command := f.Command(in)

			body, err := client.Get(groupCtx, command)
			if err != nil {
				errs[i] = err
				return err
			}

			out, err := f.Decode(command, body)
			if err != nil {
				errs[i] = err
				return err
			}

			results[i] = Result[In, Out]{Input: in, Output: out}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, firstError(errs, err)
	}

	return results, nil
}

// FetchMerged runs two fetchers over the same inputs, issuing both commands
// per input concurrently, and combines each pair of outputs with merge.
func FetchMerged[In, A, B, C any](
	ctx context.Context,
	client Getter,
	f1 Fetcher[In, A],
	f2 Fetcher[In, B],
	merge func(A, B) C,
	ins []In,
	concurrency int,
) ([]Result[In, C], error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result[In, C], len(ins))
	errs := make([]error, len(ins))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, in := range ins {
		group.Go(func() error {
			var (
				a A
				b B
			)

			inner, innerCtx := errgroup.WithContext(groupCtx)
			inner.Go(func() error {
				command := f1.Command(in)
				body, err := client.Get(innerCtx, command)
				if err != nil {
					return err
				}
				a, err = f1.Decode(command, body)
				return err
			})
			inner.Go(func() error {
				command := f2.Command(in)
				body, err := client.Get(innerCtx, command)
				if err != nil {
					return err
				}
				b, err = f2.Decode(command, body)
				return err
			})

			if err := inner.Wait(); err != nil {
				errs[i] = err
				return err
			}

			results[i] = Result[In, C]{Input: in, Output: merge(a, b)}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, firstError(errs, err)
	}

	return results, nil
}

// firstError picks the lowest-index recorded error. Cancellation errors
// caused by another input's failure are skipped unless nothing else was
// recorded.
func firstError(errs []error, fallback error) error {
	var cancelled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if cancelled == nil {
				cancelled = err
			}
			continue
		}
		return err
	}
	if cancelled != nil {
		return cancelled
	}
	return fallback
}
