package wallet

import (
	"errors"
	"fmt"

	"wallet-bridge/go-backend/pkg/models"
)

var ErrUnexpectedResponse = errors.New("unexpected response type")

// ResponseError is an Error or Panic response reported by the engine.
type ResponseError struct {
	Kind    string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}

const panicKind = "panic"

// IsPanic reports whether err carries a Panic response.
func IsPanic(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr) && respErr.Kind == panicKind
}

func responseError(resp models.Response) error {
	switch resp.Type {
	case models.RespError:
		var payload models.ErrorPayload
		if err := resp.Decode(&payload); err != nil {
			return &ResponseError{Kind: "unknown", Message: string(resp.Payload)}
		}
		return &ResponseError{Kind: payload.Type, Message: payload.Error}
	case models.RespPanic:
		var msg string
		if err := resp.Decode(&msg); err != nil {
			msg = string(resp.Payload)
		}
		return &ResponseError{Kind: panicKind, Message: msg}
	default:
		return nil
	}
}

func expectType(resp models.Response, want string) error {
	if resp.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResponse, resp.Type, want)
	}
	return nil
}
