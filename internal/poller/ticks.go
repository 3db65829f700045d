package poller

import (
	"context"

	"hpcmarket/internal/session"
)

// Fetch loads one value from the backend.
type Fetch[T any] func(ctx context.Context) (T, error)

// Single polls one collection. set replaces it wholesale on success; onErr
// decides what a failed fetch does to the data (nil keeps it as is).
func Single[T any](fetch Fetch[T], set func(*session.Data, T), onErr func(*session.Data, error)) Tick {
	return func(ctx context.Context) (func(*session.Data), error) {
		v, err := fetch(ctx)
		if err != nil {
			if onErr == nil {
				return nil, err
			}
			return func(d *session.Data) { onErr(d, err) }, err
		}
		return func(d *session.Data) { set(d, v) }, nil
	}
}

// Dependent polls primary and, only when proceed(primary) holds, secondary.
// When proceed is false the secondary fetch is skipped for the tick entirely.
// Both fetches resolve before the single apply is returned, so the data never
// pairs a primary value with a secondary fetched under an older primary.
//
// apply receives fetched=false when the secondary was skipped, and the
// secondary error when it failed. onErr handles a failed primary.
func Dependent[P, S any](
	primary Fetch[P],
	proceed func(P) bool,
	secondary Fetch[S],
	apply func(d *session.Data, p P, s S, fetched bool, secErr error),
	onErr func(*session.Data, error),
) Tick {
	return func(ctx context.Context) (func(*session.Data), error) {
		p, err := primary(ctx)
		if err != nil {
			if onErr == nil {
				return nil, err
			}
			return func(d *session.Data) { onErr(d, err) }, err
		}

		var (
			s       S
			secErr  error
			fetched bool
		)
		if proceed(p) {
			fetched = true
			s, secErr = secondary(ctx)
		}

		return func(d *session.Data) { apply(d, p, s, fetched, secErr) }, secErr
	}
}
