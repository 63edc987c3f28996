package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedMessage marks a stream entry that can never be processed.
var ErrMalformedMessage = errors.New("malformed scan request")

// StreamMessage is a raw stream entry with string fields.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// ScanRequestMessage asks for one problem to be scanned.
type ScanRequestMessage struct {
	ProblemID int64
	Threshold *float64
}

// ParseScanRequest reads {problemId, threshold?} from a stream entry.
func ParseScanRequest(msg *StreamMessage) (*ScanRequestMessage, error) {
	raw, ok := msg.Fields["problemId"]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: missing problemId", ErrMalformedMessage)
	}

	problemID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || problemID <= 0 {
		return nil, fmt.Errorf("%w: invalid problemId %q", ErrMalformedMessage, raw)
	}

	req := &ScanRequestMessage{ProblemID: problemID}

	if raw, ok := msg.Fields["threshold"]; ok && strings.TrimSpace(raw) != "" {
		threshold, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid threshold %q", ErrMalformedMessage, raw)
		}
		req.Threshold = &threshold
	}

	return req, nil
}
