// Package lpc stands for "Local Procedure Call": a typed request/response over Go channels, used to ask a
// long-running goroutine for something and wait for its answer.
package lpc

import (
	"context"
	"errors"

	"github.com/alanbriolat/loop-client/generic"
	"github.com/alanbriolat/loop-client/internal/sync_"
)

var (
	ErrClosed     = errors.New("command response already sent")
	ErrNoResponse = errors.New("no response")
)

type Command[Arg any, Response any] struct {
	arg      Arg
	response generic.Result[Response]
	done     sync_.Event
}

func NewCommand[Arg any, Response any](arg Arg) *Command[Arg, Response] {
	return &Command[Arg, Response]{
		arg:      arg,
		response: generic.Err[Response](ErrNoResponse),
	}
}

func (c *Command[Arg, Response]) Arg() Arg {
	return c.arg
}

// Respond sets the successful response. Only the first Respond or RespondError has any effect.
func (c *Command[Arg, Response]) Respond(response Response) error {
	return c.finish(generic.Ok(response))
}

func (c *Command[Arg, Response]) RespondError(err error) error {
	return c.finish(generic.Err[Response](err))
}

// Close abandons the command; a waiter without a response gets ErrNoResponse.
func (c *Command[Arg, Response]) Close() {
	c.done.Set()
}

func (c *Command[Arg, Response]) Wait() (Response, error) {
	<-c.done.Wait()
	return c.response.Parts()
}

// WaitContext is like Wait but gives up when ctx is done.
func (c *Command[Arg, Response]) WaitContext(ctx context.Context) (Response, error) {
	select {
	case <-c.done.Wait():
		return c.response.Parts()
	case <-ctx.Done():
		var zero Response
		return zero, ctx.Err()
	}
}

func (c *Command[Arg, Response]) finish(result generic.Result[Response]) error {
	if c.done.IsSet() {
		return ErrClosed
	}
	c.response = result
	c.done.Set()
	return nil
}
