package envelope

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/xerrors"
)

var (
	// ErrEmptyEnvelope is returned for empty bodies and for envelopes with no
	// parseable items after the header line.
	ErrEmptyEnvelope = xerrors.New("empty envelope")
	// ErrMalformedEncoding is returned when the (decompressed) body is not UTF-8.
	ErrMalformedEncoding = xerrors.New("invalid data encoding")
)

// itemHeaderKeys are the keys an item header line may carry. A JSON object
// made only of these keys plus a string "type" is treated as an item header
// when resynchronising after a malformed line.
var itemHeaderKeys = map[string]bool{
	"type":            true,
	"length":          true,
	"filename":        true,
	"content_type":    true,
	"attachment_type": true,
	"item_count":      true,
	"platform":        true,
}

// Item is one (header, payload) record inside an envelope.
type Item struct {
	Type   ItemType
	Header gjson.Result
	// Payload is the parsed JSON payload; only meaningful when IsJSON is set.
	Payload gjson.Result
	IsJSON  bool
	// Raw is the payload exactly as it appeared on the wire.
	Raw string
}

// Filename returns the attachment filename declared in the item header.
func (i Item) Filename() string { return i.Header.Get("filename").String() }

// ContentType returns the declared content type of the payload.
func (i Item) ContentType() string { return i.Header.Get("content_type").String() }

// Envelope is a decoded wire envelope.
type Envelope struct {
	Header gjson.Result
	Items  []Item
}

// EventID is the envelope-level event id. It takes precedence over any
// event id embedded in an item payload.
func (e *Envelope) EventID() string { return e.Header.Get("event_id").String() }

// DSN is the client DSN declared in the envelope header, if any.
func (e *Envelope) DSN() string { return e.Header.Get("dsn").String() }

// SentAt is the client send time declared in the envelope header, if any.
func (e *Envelope) SentAt() string { return e.Header.Get("sent_at").String() }

// PublicKeyFromDSN extracts the public key (the userinfo part) of a DSN such
// as https://<key>@host/42. It returns "" when the DSN carries no key.
func PublicKeyFromDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return ""
	}
	return u.User.Username()
}

// Decode splits an already-decompressed body into the envelope header and its
// items. Malformed item headers are skipped; the rest of the stream is still
// processed.
func Decode(data []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyEnvelope
	}
	if !utf8.Valid(data) {
		return nil, ErrMalformedEncoding
	}

	lines := strings.Split(string(data), "\n")
	env := &Envelope{Header: parseObject(lines[0])}

	i := 1
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			i++
			continue
		}

		hdr := parseObject(line)
		if !hdr.Exists() {
			// Skip the broken header and, unless the next line is itself an
			// item header, the payload it introduced.
			i++
			if i < len(lines) && strings.TrimSpace(lines[i]) != "" && !looksLikeItemHeader(lines[i]) {
				i++
			}
			continue
		}

		typ := "unknown"
		if t := hdr.Get("type"); t.Type == gjson.String {
			typ = t.String()
		}

		i++
		if i >= len(lines) {
			break
		}

		var raw string
		if length := hdr.Get("length"); length.Type == gjson.Number && length.Int() > 0 {
			raw, i = readLength(lines, i, length.Int())
		} else {
			raw = lines[i]
			i++
		}

		item := Item{
			Type:   ParseItemType(typ),
			Header: hdr,
			Raw:    raw,
		}
		if gjson.Valid(raw) {
			item.Payload = gjson.Parse(raw)
			item.IsJSON = true
		}
		env.Items = append(env.Items, item)
	}

	if len(env.Items) == 0 {
		return nil, ErrEmptyEnvelope
	}
	return env, nil
}

// readLength concatenates lines starting at i until length UTF-8 bytes have
// been consumed, re-inserting the newlines removed by the split.
func readLength(lines []string, i int, length int64) (string, int) {
	var sb strings.Builder
	remaining := length
	for i < len(lines) && remaining > 0 {
		line := lines[i]
		sb.WriteString(line)
		remaining -= int64(len(line))
		if remaining > 0 {
			sb.WriteByte('\n')
			remaining--
		}
		i++
	}
	return sb.String(), i
}

// parseObject returns the parsed line when it is a JSON object and an empty
// (non-existent) result otherwise.
func parseObject(line string) gjson.Result {
	if !gjson.Valid(line) {
		return gjson.Result{}
	}
	res := gjson.Parse(line)
	if !res.IsObject() {
		return gjson.Result{}
	}
	return res
}

func looksLikeItemHeader(line string) bool {
	hdr := parseObject(line)
	if !hdr.Exists() || hdr.Get("type").Type != gjson.String {
		return false
	}
	ok := true
	hdr.ForEach(func(key, _ gjson.Result) bool {
		if !itemHeaderKeys[key.String()] {
			ok = false
		}
		return ok
	})
	return ok
}
