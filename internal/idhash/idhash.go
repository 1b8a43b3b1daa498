// Package idhash derives stable identifiers from the fields that make a
// record unique, so retries and mirrors agree on keys without coordination.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// digest hashes the '|'-joined parts and returns the first n bytes as hex.
func digest(n int, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:n])
}

// ComputeReportID keys a yield report: one per opportunity per tick.
// 64 hex characters.
func ComputeReportID(tickID, protocol, name, oppType string) string {
	return digest(sha256.Size, tickID, protocol, name, oppType)
}

// ComputeExecutionID keys an execution attempt by opportunity, route, amount
// and the exact quote body. 32 hex characters.
func ComputeExecutionID(protocol, name, inputMint, outputMint string, amount uint64, quote []byte) string {
	q := sha256.Sum256(quote)
	return digest(16, protocol, name, inputMint, outputMint,
		strconv.FormatUint(amount, 10), hex.EncodeToString(q[:]))
}
