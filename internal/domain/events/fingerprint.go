package events

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// FingerprintLength is the number of hex characters kept from the digest.
const FingerprintLength = 32

const defaultMarker = "{{ default }}"

// Fingerprint hashes the raw exception fields. Absent fields are passed as "".
func Fingerprint(exceptionType, exceptionValue, stacktrace string) string {
	sum := sha256.Sum256([]byte(exceptionType + ":" + exceptionValue + ":" + stacktrace))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

var normalizers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "<uuid>"},
	{regexp.MustCompile(`(?i)\b0x[0-9a-f]+\b`), "<hex>"},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8,}\b`), "<hex>"},
	{regexp.MustCompile(`(?:[A-Za-z]:)?(?:[\\/][\w.\-]+){2,}[\\/]?`), "<path>"},
	{regexp.MustCompile(`\d+(?:\.\d+)?`), "<n>"},
}

// NormalizeMessage replaces the dynamic parts of an exception message (uuids,
// hex literals, filesystem paths, numbers) with placeholders.
func NormalizeMessage(s string) string {
	for _, n := range normalizers {
		s = n.re.ReplaceAllString(s, n.repl)
	}
	return s
}

// NormalizedFingerprint groups on the exception type, the normalized message
// and the frame signatures of the stack, ignoring line numbers and locals.
func NormalizedFingerprint(exceptionType, exceptionValue string, frames []Frame) string {
	sigs := make([]string, 0, len(frames))
	for _, f := range frames {
		file := f.Filename
		if file == "" {
			file = f.AbsPath
		}
		sigs = append(sigs, f.Module+"|"+file+":"+f.Function)
	}
	return Fingerprint(exceptionType, NormalizeMessage(exceptionValue), strings.Join(sigs, "\n"))
}

// Grouper derives the grouping key for an extracted event.
type Grouper struct {
	// Normalize strips dynamic values from messages and line numbers from
	// frames before hashing. When false the raw fields are hashed.
	Normalize bool
}

// Key returns the fingerprint for x. A client-supplied fingerprint overrides
// the default key; "{{ default }}" entries expand to it.
func (g Grouper) Key(x Extracted) string {
	def := g.defaultKey(x)
	if len(x.Fingerprint) == 0 {
		return def
	}
	parts := make([]string, len(x.Fingerprint))
	custom := false
	for i, p := range x.Fingerprint {
		if p == defaultMarker {
			parts[i] = def
			continue
		}
		parts[i] = p
		custom = true
	}
	if !custom {
		return def
	}
	return Fingerprint("custom", strings.Join(parts, "\x1f"), "")
}

func (g Grouper) defaultKey(x Extracted) string {
	if g.Normalize {
		return NormalizedFingerprint(x.ExceptionType, x.ExceptionValue, x.Frames)
	}
	return Fingerprint(x.ExceptionType, x.ExceptionValue, x.Stacktrace)
}
