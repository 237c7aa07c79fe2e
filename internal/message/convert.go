// Package message converts between the canonical Message type and the
// loosely-typed representations used at process boundaries (inference
// backend, persistence layer, HTTP surface). All boundary code goes
// through Normalize/Denormalize; nothing else inspects raw shapes.
package message

import (
	"fmt"
	"time"

	"agentloop/internal/domain"
)

// Normalize converts a raw boundary representation into a canonical Message.
// It fails with domain.ErrMalformedMessage for a missing or unknown role,
// or for fields of the wrong shape. A missing timestamp is stamped with the
// current time; a present but unparseable one is rejected.
func Normalize(raw map[string]any) (domain.Message, error) {
	var msg domain.Message

	roleVal, ok := raw["role"]
	if !ok {
		return msg, fmt.Errorf("%w: missing role", domain.ErrMalformedMessage)
	}
	roleStr, ok := roleVal.(string)
	if !ok {
		return msg, fmt.Errorf("%w: role is not a string", domain.ErrMalformedMessage)
	}
	role := domain.Role(roleStr)
	if !role.Valid() {
		return msg, fmt.Errorf("%w: unknown role %q", domain.ErrMalformedMessage, roleStr)
	}
	msg.Role = role

	if v, ok := raw["content"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return msg, fmt.Errorf("%w: content is not a string", domain.ErrMalformedMessage)
		}
		msg.Content = s
	}

	if v, ok := raw["tool_call_id"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return msg, fmt.Errorf("%w: tool_call_id is not a string", domain.ErrMalformedMessage)
		}
		msg.ToolCallID = s
	}

	if v, ok := raw["tool_calls"]; ok && v != nil {
		items, ok := v.([]any)
		if !ok {
			return msg, fmt.Errorf("%w: tool_calls is not a list", domain.ErrMalformedMessage)
		}
		for i, item := range items {
			call, err := normalizeToolCall(item)
			if err != nil {
				return msg, fmt.Errorf("%w: tool_calls[%d]: %v", domain.ErrMalformedMessage, i, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}

	if v, ok := raw["timestamp"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return msg, fmt.Errorf("%w: timestamp is not a string", domain.ErrMalformedMessage)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return msg, fmt.Errorf("%w: bad timestamp %q", domain.ErrMalformedMessage, s)
		}
		msg.Timestamp = ts.UTC()
	} else {
		msg.Timestamp = time.Now().UTC()
	}

	return msg, nil
}

func normalizeToolCall(item any) (domain.ToolCall, error) {
	var call domain.ToolCall
	m, ok := item.(map[string]any)
	if !ok {
		return call, fmt.Errorf("not a mapping")
	}

	name, ok := m["name"].(string)
	if !ok || name == "" {
		return call, fmt.Errorf("missing tool name")
	}
	call.Name = name

	if v, ok := m["call_id"]; ok && v != nil {
		id, ok := v.(string)
		if !ok {
			return call, fmt.Errorf("call_id is not a string")
		}
		call.CallID = id
	}

	if v, ok := m["arguments"]; ok && v != nil {
		args, ok := v.(map[string]any)
		if !ok {
			return call, fmt.Errorf("arguments is not a mapping")
		}
		call.Arguments = args
	}

	return call, nil
}

// Denormalize converts a canonical Message into the raw boundary form.
// Normalize(Denormalize(m)) returns m for any valid Message.
func Denormalize(m domain.Message) map[string]any {
	raw := map[string]any{
		"role":      string(m.Role),
		"content":   m.Content,
		"timestamp": m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if m.ToolCallID != "" {
		raw["tool_call_id"] = m.ToolCallID
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]any, 0, len(m.ToolCalls))
		for _, call := range m.ToolCalls {
			entry := map[string]any{
				"call_id": call.CallID,
				"name":    call.Name,
			}
			if call.Arguments != nil {
				entry["arguments"] = call.Arguments
			}
			calls = append(calls, entry)
		}
		raw["tool_calls"] = calls
	}
	return raw
}

// NormalizeAll converts a slice of raw messages, failing on the first
// malformed entry.
func NormalizeAll(raws []map[string]any) ([]domain.Message, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	msgs := make([]domain.Message, 0, len(raws))
	for i, raw := range raws {
		msg, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DenormalizeAll converts a slice of canonical messages into raw form.
func DenormalizeAll(msgs []domain.Message) []map[string]any {
	raws := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		raws = append(raws, Denormalize(msg))
	}
	return raws
}
