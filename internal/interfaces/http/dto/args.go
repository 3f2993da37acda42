// Package dto extracts operation arguments from HTTP requests.
package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
)

// Reserved body keys carrying the ERP credentials of a write call.
const (
	UsernameKey = "$username"
	PasswordKey = "$password"
)

// ErrNotAnObject is returned when a call body is valid JSON but not an object
var ErrNotAnObject = errors.New("request body must be a JSON object")

// QueryArgs keeps the first value of every query key.
func QueryArgs(query url.Values) map[string]any {
	args := make(map[string]any, len(query))
	for key, values := range query {
		if len(values) > 0 {
			args[key] = values[0]
		}
	}
	return args
}

// BodyArgs decodes a JSON object body. An empty body yields no arguments.
func BodyArgs(body io.Reader) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	if raw[0] != '{' {
		return nil, ErrNotAnObject
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// TakeCredentials removes the reserved credential keys from args and
// returns their string values.
func TakeCredentials(args map[string]any) (username, password string) {
	username = takeString(args, UsernameKey)
	password = takeString(args, PasswordKey)
	return username, password
}

func takeString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	delete(args, key)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
