package courier

import (
	"fmt"
	"strconv"
	"strings"
)

// candidate names a field inside an optional wrapper object. Wrapper is a
// dotted path; empty means the top level.
type candidate struct {
	wrapper string
	field   string
}

// Providers disagree on where they put things, so each value is looked up
// in order until one is found.
var (
	consignmentIDCandidates = []candidate{
		{"consignment", "consignment_id"},
		{"data.consignment", "consignment_id"},
		{"data", "consignment_id"},
		{"", "consignment_id"},
		{"result", "consignment_id"},
		{"payload", "consignment_id"},
		{"response", "consignment_id"},
		{"consignment", "id"},
		{"data", "id"},
		{"", "id"},
	}
	trackingNumberCandidates = []candidate{
		{"consignment", "tracking_code"},
		{"data.consignment", "tracking_code"},
		{"data", "tracking_code"},
		{"", "tracking_code"},
		{"data", "tracking_number"},
		{"", "tracking_number"},
		{"result", "tracking_number"},
	}
	trackingURLCandidates = []candidate{
		{"consignment", "tracking_url"},
		{"data", "tracking_url"},
		{"", "tracking_url"},
		{"result", "tracking_url"},
	}
	labelURLCandidates = []candidate{
		{"consignment", "label_url"},
		{"data", "label_url"},
		{"", "label_url"},
		{"data", "label"},
	}
	statusCandidates = []candidate{
		{"consignment", "status"},
		{"data", "delivery_status"},
		{"", "delivery_status"},
		{"data", "status"},
		{"result", "status"},
		{"payload", "status"},
		{"response", "status"},
		{"", "status"},
	}
	eventsCandidates = []candidate{
		{"data", "events"},
		{"data", "tracking_events"},
		{"", "events"},
		{"", "tracking_events"},
		{"result", "events"},
		{"data", "history"},
		{"", "history"},
	}
)

func lookup(body map[string]any, c candidate) (any, bool) {
	node := body
	if c.wrapper != "" {
		for _, part := range strings.Split(c.wrapper, ".") {
			next, ok := node[part].(map[string]any)
			if !ok {
				return nil, false
			}
			node = next
		}
	}
	v, ok := node[c.field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// firstString returns the first candidate that resolves to a non-empty
// scalar, rendered as a string.
func firstString(body map[string]any, candidates []candidate) string {
	for _, c := range candidates {
		v, ok := lookup(body, c)
		if !ok {
			continue
		}
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

func firstList(body map[string]any, candidates []candidate) []any {
	for _, c := range candidates {
		v, ok := lookup(body, c)
		if !ok {
			continue
		}
		if list, ok := v.([]any); ok {
			return list
		}
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := scalarString(v); s != "" {
				return s
			}
		}
	}
	return ""
}
