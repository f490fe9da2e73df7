package transfer

import (
	"context"
	"encoding/json"
	"fmt"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// releaser is implemented by queues that drop a message on Receive and need
// it handed back explicitly. SQS redelivers after the visibility timeout.
type releaser interface {
	Release(ctx context.Context, msg queueMessage) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

const payloadKindSubmit = "transfer.submitted.v1"

type queuePayload struct {
	Kind    string  `json:"kind"`
	Request Request `json:"request"`
}

func encodePayload(req Request) (string, error) {
	body, err := json.Marshal(queuePayload{Kind: payloadKindSubmit, Request: req})
	if err != nil {
		return "", fmt.Errorf("transfer: failed to encode payload: %w", err)
	}
	return string(body), nil
}

func decodePayload(body string) (Request, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Request{}, fmt.Errorf("transfer: failed to decode payload: %w", err)
	}
	if payload.Kind != payloadKindSubmit {
		return Request{}, fmt.Errorf("transfer: unknown payload kind %q", payload.Kind)
	}
	return payload.Request, nil
}
