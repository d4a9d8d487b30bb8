package protocol

// Payload helpers. Frame payloads arrive as arbitrary-shaped JSON objects;
// these accessors centralize the type assertions so consumers never index
// the map directly.

// Status returns the "status" payload field, or "" when absent.
func (e *StreamEvent) Status() string {
	return e.StringField("status")
}

// StringField returns the named payload field as a string, or "" when the
// field is absent or not a string.
func (e *StreamEvent) StringField(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}

// IntField returns the named payload field as an int. JSON numbers decode
// as float64, so both representations are accepted. The second return value
// reports whether the field was present and numeric.
func (e *StreamEvent) IntField(key string) (int, bool) {
	if e.Payload == nil {
		return 0, false
	}
	switch n := e.Payload[key].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// BoolField returns the named payload field as a bool, false when absent.
func (e *StreamEvent) BoolField(key string) bool {
	if e.Payload == nil {
		return false
	}
	b, _ := e.Payload[key].(bool)
	return b
}

// TaskID returns the task correlation identifier carried by this frame, if any.
func (e *StreamEvent) TaskID() string {
	return e.StringField("taskId")
}

// ExecutionID returns the execution correlation identifier carried by this
// frame, if any.
func (e *StreamEvent) ExecutionID() string {
	return e.StringField("executionId")
}

// PendingInputs decodes the "pendingInputs" payload field.
func (e *StreamEvent) PendingInputs() []PendingInput {
	if e.Payload == nil {
		return nil
	}
	return DecodePendingInputs(e.Payload["pendingInputs"])
}

// DecodePendingInputs converts a decoded JSON value into pending inputs.
// Entries missing a field name are dropped.
func DecodePendingInputs(v any) []PendingInput {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var inputs []PendingInput
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		in := PendingInput{
			StepID:      stringAt(m, "stepId"),
			Field:       stringAt(m, "field"),
			Description: stringAt(m, "description"),
		}
		if in.Field == "" {
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// NestedString walks the payload through the given keys and returns the
// string at the end of the path, or "" when any hop is missing.
func (e *StreamEvent) NestedString(path ...string) string {
	if e.Payload == nil || len(path) == 0 {
		return ""
	}
	m := e.Payload
	for i, key := range path {
		if i == len(path)-1 {
			return stringAt(m, key)
		}
		next, ok := m[key].(map[string]any)
		if !ok {
			return ""
		}
		m = next
	}
	return ""
}

// NestedMap walks the payload through the given keys and returns the object
// at the end of the path, or nil when any hop is missing.
func (e *StreamEvent) NestedMap(path ...string) map[string]any {
	m := e.Payload
	for _, key := range path {
		if m == nil {
			return nil
		}
		next, ok := m[key].(map[string]any)
		if !ok {
			return nil
		}
		m = next
	}
	return m
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
