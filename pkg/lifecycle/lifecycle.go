// Package lifecycle holds helpers for resources that are opened, shared by
// concurrent users and eventually disposed.
package lifecycle

import (
	"context"
	"io"

	"go.uber.org/multierr"
)

// Resource is something that can be opened and closed.
type Resource interface {
	Open(ctx context.Context) error
	io.Closer
}

// Opener is a helper to abstract the pattern of opening multiple things,
// exiting early if any open fails, and closing any of the opened things
// in the case of failure.
type Opener struct {
	opened []io.Closer
	err    error
}

// Open attempts to open the resource. If an error has happened already
// then no calls are made to the resource.
func (o *Opener) Open(ctx context.Context, res Resource) {
	if o.err != nil {
		return
	}
	o.err = res.Open(ctx)
	if o.err == nil {
		o.opened = append(o.opened, res)
	}
}

// Done returns the error of the first open and closes in reverse
// order any opens that have already happened if there was an error.
func (o *Opener) Done() error {
	if o.err == nil {
		return nil
	}
	for i := len(o.opened) - 1; i >= 0; i-- {
		_ = o.opened[i].Close()
	}
	return o.err
}

// Closer is a helper to abstract the pattern of closing multiple
// things and keeping track of every encountered error.
type Closer struct {
	err error
}

// Close closes cl and records its error, if any.
func (c *Closer) Close(cl io.Closer) {
	c.err = multierr.Append(c.err, cl.Close())
}

// Done returns the combined errors of all closes.
func (c *Closer) Done() error {
	return c.err
}
