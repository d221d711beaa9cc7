package card

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPollInterval is used when WaitOptions.PollInterval is not set.
const DefaultPollInterval = 200 * time.Millisecond

// WaitOptions controls WaitForCard.
type WaitOptions struct {
	// Index selects the reader.
	Index int

	// Timeout bounds the whole wait, measured from the call. Zero or
	// negative means wait until the context is done.
	Timeout time.Duration

	// PollInterval is the pause between attempts.
	PollInterval time.Duration

	// WaitForReader keeps retrying past Timeout while no reader is
	// attached. Only a card that is missing from a present reader is then
	// subject to Timeout.
	WaitForReader bool
}

// Connect opens the reader at index and powers up the card, without
// waiting. It returns ErrNoReader or ErrNoCard (possibly wrapped) when
// either is missing. The caller owns the returned Conn.
func Connect(t Transport, index int) (Conn, error) {
	conn, err := t.Open(index)
	if err != nil {
		return nil, err
	}

	if err := conn.Connect(); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// WaitForCard polls the reader until a card can be connected, the timeout
// runs out, or ctx is done.
//
// On timeout the error matches ErrTimeout and the cause of the last failed
// attempt (ErrNoCard or ErrNoReader). Errors other than those two stop the
// wait at once. The call blocks; interactive callers run it off their
// input loop.
func WaitForCard(ctx context.Context, t Transport, opts WaitOptions) (Conn, error) {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		conn, err := Connect(t, opts.Index)
		if err == nil {
			return conn, nil
		}

		bounded := !deadline.IsZero()
		switch {
		case errors.Is(err, ErrNoCard):
		case errors.Is(err, ErrNoReader):
			if opts.WaitForReader {
				bounded = false
			}
		default:
			return nil, fmt.Errorf("WaitForCard: %w", err)
		}

		sleep := poll
		if bounded {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, fmt.Errorf("WaitForCard: %w: %w", ErrTimeout, err)
			}
			if remaining < sleep {
				sleep = remaining
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
