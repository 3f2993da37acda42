package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// searchReadPage is the envelope /web/dataset/search_read answers with.
type searchReadPage struct {
	Length  int             `json:"length"`
	Records json.RawMessage `json:"records"`
}

// unwrapRecords returns the records array of a search_read reply. Replies
// that already are arrays are returned unchanged.
func unwrapRecords(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	var page searchReadPage
	if err := json.Unmarshal(trimmed, &page); err != nil || page.Records == nil {
		return raw
	}
	return page.Records
}

func decodeRecords(raw json.RawMessage) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
