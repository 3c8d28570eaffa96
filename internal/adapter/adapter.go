// Package adapter holds the pieces shared by the chat model adapters that sit
// between eino and vendor SDKs.
package adapter

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// APIError is a remote failure carrying the HTTP status the provider answered with.
type APIError struct {
	Provider string
	Status   int
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.Status, e.Err)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// SingleChunkStream runs generate and exposes its result as a one-element
// stream, for providers that are only called in non-streaming mode.
func SingleChunkStream(ctx context.Context, generate func(context.Context) (*schema.Message, error)) (*schema.StreamReader[*schema.Message], error) {
	msg, err := generate(ctx)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
