package models

import (
	"encoding/json"
	"fmt"
)

// Response is the envelope returned by a message handler.
type Response struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	RespAccount                       = "Account"
	RespAccounts                      = "Accounts"
	RespAddresses                     = "Addresses"
	RespAddressesWithUnspentOutputs   = "AddressesWithUnspentOutputs"
	RespOutputIDs                     = "OutputIds"
	RespOutput                        = "Output"
	RespOutputs                       = "Outputs"
	RespTransactions                  = "Transactions"
	RespGeneratedAddress              = "GeneratedAddress"
	RespBalance                       = "Balance"
	RespStrongholdPasswordIsAvailable = "StrongholdPasswordIsAvailable"
	RespGeneratedMnemonic             = "GeneratedMnemonic"
	RespNodeInfo                      = "NodeInfo"
	RespError                         = "Error"
	RespPanic                         = "Panic"
	RespOk                            = "Ok"
)

type ErrorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewResponse builds a response envelope with an encoded payload.
func NewResponse(kind string, payload any) (Response, error) {
	if payload == nil {
		return Response{Type: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	return Response{Type: kind, Payload: raw}, nil
}

func ParseResponse(text string) (Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Type == "" {
		return Response{}, fmt.Errorf("decode response: missing type")
	}
	return resp, nil
}

func (r Response) Decode(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("response %s has no payload", r.Type)
	}
	return json.Unmarshal(r.Payload, v)
}

// String renders the response for logs without leaking generated secrets.
func (r Response) String() string {
	switch r.Type {
	case RespGeneratedMnemonic:
		return "GeneratedMnemonic(<omitted>)"
	case RespOk:
		return "Ok(())"
	}
	if len(r.Payload) == 0 {
		return r.Type + "()"
	}
	return r.Type + "(" + string(r.Payload) + ")"
}
