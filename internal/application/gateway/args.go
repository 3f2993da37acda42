package gateway

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// decodeArgs decodes call arguments into out. Values are weakly typed so
// that query strings such as "5000" or "true" are accepted, and string
// values holding JSON objects or arrays are parsed.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       jsonStringHook,
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Map, reflect.Slice, reflect.Struct, reflect.Interface:
	default:
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return data, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return data, nil
	}
	return v, nil
}

// millis converts a timeout argument in milliseconds. Zero keeps the default.
func millis(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
