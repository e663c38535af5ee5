package rpc

import (
	"errors"

	"wallet-bridge/go-backend/internal/engine"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeEngineError    = -32000
	codeHandleClosed   = -32010
	codeRateLimited    = -32029

	codeEnvelopeUnknown = -32080
	codeEnvelopeRetired = -32081
)

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid params"}
}

func rpcRateLimited() *rpcError {
	return &rpcError{Code: codeRateLimited, Message: "rate limit exceeded"}
}

func rpcEngineError(err error) *rpcError {
	if errors.Is(err, engine.ErrHandleClosed) {
		return &rpcError{Code: codeHandleClosed, Message: err.Error()}
	}
	return &rpcError{Code: codeEngineError, Message: err.Error()}
}
