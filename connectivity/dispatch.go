package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/sidekick/idgen"
)

// Message is one operation request on the dispatch path. Type names the
// operation; Payload is its JSON argument.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers one Message. Exactly one of Result and Error is set
// when OK is true or false respectively; a noop route answers OK with no
// result.
type Response struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Error codes carried by Response.Code.
const (
	CodeUnknownOperation = "unknown_operation"
	CodeInvalidPayload   = "invalid_payload"
	CodePanic            = "panic"
	CodeTimeout          = "timeout"
	CodeFailed           = "failed"
)

// Dispatch routes msg through Call and wraps the outcome. Failures never
// escape as Go errors: they come back as a Response with OK false, so a
// message loop can answer every message it reads.
func (r *Router) Dispatch(ctx context.Context, msg Message) Response {
	resp := Response{ID: msg.ID, Type: msg.Type}
	if resp.ID == "" {
		resp.ID = idgen.Request()
	}
	if msg.Type == "" {
		resp.Error = "connectivity: message without type"
		resp.Code = CodeInvalidPayload
		return resp
	}

	payload := []byte(msg.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	out, err := r.Call(ctx, msg.Type, payload)
	if err != nil {
		resp.Error = err.Error()
		resp.Code = ErrorCode(err)
		r.logger.DebugContext(ctx, "dispatch failed",
			"id", resp.ID, "type", msg.Type, "code", resp.Code, "error", err)
		return resp
	}

	resp.OK = true
	switch {
	case len(out) == 0:
	case json.Valid(out):
		resp.Result = out
	default:
		quoted, _ := json.Marshal(string(out))
		resp.Result = quoted
	}
	return resp
}

// DispatchJSON decodes one Message from raw and dispatches it. Undecodable
// input still yields a Response.
func (r *Router) DispatchJSON(ctx context.Context, raw []byte) Response {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Response{
			ID:    idgen.Request(),
			Error: fmt.Sprintf("connectivity: decode message: %v", err),
			Code:  CodeInvalidPayload,
		}
	}
	return r.Dispatch(ctx, msg)
}

// ErrorCode classifies err into one of the Code constants.
func ErrorCode(err error) string {
	var notFound *ErrServiceNotFound
	var invalid *ErrInvalidPayload
	var panicked *ErrPanic
	switch {
	case errors.As(err, &notFound):
		return CodeUnknownOperation
	case errors.As(err, &invalid):
		return CodeInvalidPayload
	case errors.As(err, &panicked):
		return CodePanic
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeFailed
	}
}
