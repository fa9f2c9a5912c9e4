package token

import (
	"context"

	"github.com/google/uuid"

	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/signature"
)

// Task is an opaque handle to an in flight token request. Its concrete
// content is owned by the store, callers only pass it back to CancelTask.
type Task struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the unique identifier of the task, useful for debugging.
func (self *Task) ID() string {
	return self.id
}

// Wait blocks until the task completion callback has run.
func (self *Task) Wait() {
	<-self.done
}

// RequestAccessTokenTask is the asynchronous variant of
// RequestAccessToken. When the token is cached locally the completion
// runs synchronously and the returned task is nil. Otherwise the network
// request proceeds in the background and the returned Task can cancel
// it.
func (self *Store) RequestAccessTokenTask(name string, factor signature.Factor, completion func(Token, error)) *Task {
	if tok, found := self.LocalToken(name); found {
		completion(tok, nil)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(task.done)
		defer cancel()
		completion(self.RequestAccessToken(ctx, name, factor))
	}()
	return task
}

// CancelTask cancels an in flight token request, best effort: the server
// may still complete the operation. It is safe to call with a nil task.
func (self *Store) CancelTask(task *Task) {
	if nil == task {
		return
	}
	task.cancel()
}
