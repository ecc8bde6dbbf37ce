// Package frame codes the client binary frame format: a 13-character
// millisecond timestamp followed by the encoded image.
package frame

import (
	"fmt"
	"math"
	"strconv"
)

const timestampLen = 13

// Parse splits a client frame into its embedded capture timestamp (fractional
// seconds) and image payload.
func Parse(data []byte) (timestamp float64, image []byte, err error) {
	if len(data) <= timestampLen {
		return 0, nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	millis, err := strconv.ParseFloat(string(data[:timestampLen]), 64)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse frame timestamp: %w", err)
	}
	return millis / 1000, data[timestampLen:], nil
}

// Encode prefixes an image with the 13-character millisecond timestamp.
func Encode(timestamp float64, image []byte) []byte {
	prefix := fmt.Sprintf("%013d", int64(math.Round(timestamp*1000)))
	return append([]byte(prefix), image...)
}
