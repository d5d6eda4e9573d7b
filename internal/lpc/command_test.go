package lpc

import (
	"context"
	"errors"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func TestCommand_Close(t *testing.T) {
	assert := assert_.New(t)

	c := NewCommand[int, int](1)
	c.Close()
	_, err := c.Wait()
	assert.ErrorIs(err, ErrNoResponse)
}

func TestCommand_Respond(t *testing.T) {
	assert := assert_.New(t)
	exampleError := errors.New("example error")

	a := NewCommand[int, int](1)
	assert.NoError(a.Respond(3))
	v, err := a.Wait()
	assert.NoError(err)
	assert.Equal(3, v)
	assert.ErrorIs(a.Respond(4), ErrClosed)
	assert.ErrorIs(a.RespondError(exampleError), ErrClosed)

	b := NewCommand[int, int](1)
	assert.NoError(b.RespondError(exampleError))
	_, err = b.Wait()
	assert.ErrorIs(err, exampleError)
	assert.ErrorIs(b.Respond(4), ErrClosed)
}

func TestCommand_WaitContext(t *testing.T) {
	assert := assert_.New(t)

	c := NewCommand[string, string]("ping")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.WaitContext(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)

	go func() { _ = c.Respond(c.Arg() + "-pong") }()
	v, err := c.WaitContext(context.Background())
	assert.NoError(err)
	assert.Equal("ping-pong", v)
}

func BenchmarkCommand_New_Respond_Wait(b *testing.B) {
	commands := make(chan *Command[int, int], 1)
	go func() {
		for c := range commands {
			_ = c.Respond(c.Arg())
		}
	}()
	for i := 0; i < b.N; i++ {
		c := NewCommand[int, int](i)
		commands <- c
		_, _ = c.Wait()
	}
	close(commands)
}
