// Package events turns a decoded "event" item payload into the fields the
// aggregator stores and groups on. Nothing in here touches the network or the
// database.
package events

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Frame is one stack frame of the primary exception.
type Frame struct {
	Filename string
	AbsPath  string
	Module   string
	Function string
	Lineno   string
}

// Extracted holds the optional fields of one event. Empty strings stand in
// for absent values.
type Extracted struct {
	EventID        string
	ExceptionType  string
	ExceptionValue string
	// Stacktrace is the canonical (sorted keys, compact) JSON form of the
	// primary exception's stacktrace.
	Stacktrace string
	Frames     []Frame
	Culprit    string

	Platform    string
	Environment string
	Release     string
	Level       string

	Tags     string
	Contexts string
	Extra    string

	// Fingerprint is the client-supplied grouping override, if any.
	Fingerprint []string
}

// Extract reads every field independently; a missing or oddly typed field
// only blanks that field.
func Extract(payload gjson.Result) Extracted {
	x := Extracted{
		EventID:     Scalar(payload.Get("event_id")),
		Platform:    Scalar(payload.Get("platform")),
		Environment: Scalar(payload.Get("environment")),
		Release:     Scalar(payload.Get("release")),
		Level:       Scalar(payload.Get("level")),
		Tags:        blob(payload.Get("tags")),
		Contexts:    blob(payload.Get("contexts")),
		Extra:       blob(payload.Get("extra")),
	}

	first := payload.Get("exception.values.0")
	if !first.Exists() {
		// Some SDKs send the exception list without the "values" wrapper.
		if ex := payload.Get("exception"); ex.IsArray() {
			first = ex.Get("0")
		}
	}
	if first.IsObject() {
		x.ExceptionType = Scalar(first.Get("type"))
		x.ExceptionValue = Scalar(first.Get("value"))
		if st := first.Get("stacktrace"); st.IsObject() {
			x.Stacktrace = canonical(st.Raw)
			x.Frames = frames(st.Get("frames"))
		}
	}

	if x.ExceptionValue == "" {
		x.ExceptionValue = message(payload)
	}

	x.Culprit = culprit(payload, x.Frames)

	if fp := payload.Get("fingerprint"); fp.IsArray() {
		for _, part := range fp.Array() {
			if s := Scalar(part); s != "" {
				x.Fingerprint = append(x.Fingerprint, s)
			}
		}
	}
	return x
}

func message(payload gjson.Result) string {
	for _, path := range []string{"message", "message.formatted", "message.message", "logentry.message", "logentry.formatted"} {
		if s := Scalar(payload.Get(path)); s != "" {
			return s
		}
	}
	return ""
}

func culprit(payload gjson.Result, fr []Frame) string {
	if c := payload.Get("culprit"); c.Exists() && c.Type != gjson.Null {
		return c.String()
	}
	if len(fr) == 0 {
		return ""
	}
	last := fr[len(fr)-1]
	filename := last.Filename
	if filename == "" {
		filename = last.AbsPath
	}
	return fmt.Sprintf("%s:%s:%s", filename, last.Function, last.Lineno)
}

func frames(list gjson.Result) []Frame {
	if !list.IsArray() {
		return nil
	}
	var out []Frame
	for _, f := range list.Array() {
		if !f.IsObject() {
			continue
		}
		out = append(out, Frame{
			Filename: Scalar(f.Get("filename")),
			AbsPath:  Scalar(f.Get("abs_path")),
			Module:   Scalar(f.Get("module")),
			Function: Scalar(f.Get("function")),
			Lineno:   Scalar(f.Get("lineno")),
		})
	}
	return out
}

// str returns scalars as strings and "" for null, objects and arrays.
// Scalar renders strings, numbers and booleans as text. Anything else is "".
func Scalar(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return r.String()
	default:
		return ""
	}
}

// blob serializes non-empty JSON containers; empty or absent values yield "".
func blob(r gjson.Result) string {
	switch {
	case r.IsObject() && len(r.Map()) > 0:
	case r.IsArray() && len(r.Array()) > 0:
	default:
		return ""
	}
	return string(pretty.Ugly([]byte(r.Raw)))
}

// canonical renders JSON with sorted keys and no insignificant whitespace so
// that semantically equal stacktraces hash identically.
func canonical(raw string) string {
	opts := *pretty.DefaultOptions
	opts.SortKeys = true
	sorted := pretty.PrettyOptions([]byte(raw), &opts)
	return string(pretty.Ugly(sorted))
}
