package grading

import "encoding/json"

// mustJSON serializes a result for the SSE result event. Both BatchResult
// and SingleCharResult are plain JSON-tagged structs, so marshal failure
// here would indicate a programming error, not a runtime condition.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"serialization failed"}`
	}
	return string(b)
}
