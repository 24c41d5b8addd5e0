package envelope_test

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
)

const singleEvent = `{"event_id":"e1"}
{"type":"event"}
{"event_id":"e1","timestamp":"2024-10-01T10:12:17Z","platform":"python","level":"error","message":"test error"}
`

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("SingleEvent", func(t *testing.T) {
		t.Parallel()
		env, err := envelope.Decode([]byte(singleEvent))
		require.NoError(t, err)
		require.Equal(t, "e1", env.EventID())
		require.Len(t, env.Items, 1)

		item := env.Items[0]
		require.Equal(t, envelope.KindEvent, item.Type.Kind)
		require.True(t, item.IsJSON)
		require.Equal(t, "test error", item.Payload.Get("message").String())
		require.Equal(t, "python", item.Payload.Get("platform").String())
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		_, err := envelope.Decode(nil)
		require.ErrorIs(t, err, envelope.ErrEmptyEnvelope)
		_, err = envelope.Decode([]byte("\n\n  \n"))
		require.ErrorIs(t, err, envelope.ErrEmptyEnvelope)
	})

	t.Run("HeaderOnly", func(t *testing.T) {
		t.Parallel()
		_, err := envelope.Decode([]byte(`{"event_id":"e1"}` + "\n"))
		require.ErrorIs(t, err, envelope.ErrEmptyEnvelope)
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		t.Parallel()
		_, err := envelope.Decode([]byte{'{', '}', '\n', 0xff, 0xfe, '\n'})
		require.ErrorIs(t, err, envelope.ErrMalformedEncoding)
	})

	t.Run("MalformedEnvelopeHeader", func(t *testing.T) {
		t.Parallel()
		body := `{"event_id":"test123"` + "\n" +
			`{"type":"event"}` + "\n" +
			`{"event_id":"test123","level":"error"}` + "\n"
		env, err := envelope.Decode([]byte(body))
		require.NoError(t, err)
		require.Empty(t, env.EventID())
		require.Len(t, env.Items, 1)
	})

	t.Run("BlankLinesBetweenItems", func(t *testing.T) {
		t.Parallel()
		body := `{}` + "\n\n" +
			`{"type":"event"}` + "\n" +
			`{"message":"a"}` + "\n\n\n" +
			`{"type":"session"}` + "\n" +
			`{"sid":"s1"}` + "\n"
		env, err := envelope.Decode([]byte(body))
		require.NoError(t, err)
		require.Len(t, env.Items, 2)
		require.Equal(t, envelope.KindEvent, env.Items[0].Type.Kind)
		require.Equal(t, envelope.KindSession, env.Items[1].Type.Kind)
	})

	t.Run("LengthSpansNewlines", func(t *testing.T) {
		t.Parallel()
		payload := "line one\nline two\nline three"
		body := `{}` + "\n" +
			`{"type":"attachment","length":` + strconv.Itoa(len(payload)) + `,"filename":"log.txt"}` + "\n" +
			payload + "\n" +
			`{"type":"client_report"}` + "\n" +
			`{}` + "\n"
		env, err := envelope.Decode([]byte(body))
		require.NoError(t, err)
		require.Len(t, env.Items, 2)
		require.Equal(t, payload, env.Items[0].Raw)
		require.False(t, env.Items[0].IsJSON)
		require.Equal(t, "log.txt", env.Items[0].Filename())
		require.Equal(t, envelope.KindClientReport, env.Items[1].Type.Kind)
	})

	t.Run("LengthCountsUTF8Bytes", func(t *testing.T) {
		t.Parallel()
		payload := `{"message":"héllo ✓"}`
		body := "{}\n" +
			`{"type":"event","length":` + strconv.Itoa(len(payload)) + "}\n" +
			payload + "\n" +
			`{"type":"session"}` + "\n" +
			`{"sid":"s"}` + "\n"
		env, err := envelope.Decode([]byte(body))
		require.NoError(t, err)
		require.Len(t, env.Items, 2)
		require.Equal(t, "héllo ✓", env.Items[0].Payload.Get("message").String())
	})

	t.Run("MalformedItemHeaderInMiddle", func(t *testing.T) {
		t.Parallel()
		body := "{}\n" +
			`{"type":"event"}` + "\n" +
			`{"message":"before"}` + "\n" +
			`{"type":"event"` + "\n" +
			`{"message":"orphan","event_id":"x"}` + "\n" +
			`{"type":"event"}` + "\n" +
			`{"message":"after"}` + "\n"
		env, err := envelope.Decode([]byte(body))
		require.NoError(t, err)
		require.Len(t, env.Items, 2)
		require.Equal(t, "before", env.Items[0].Payload.Get("message").String())
		require.Equal(t, "after", env.Items[1].Payload.Get("message").String())
	})

	t.Run("GarbageLineFollowedByHeader", func(t *testing.T) {
		t.Parallel()
		body := "{}\n" +
			"not json at all\n" +
			`{"type":"event"}` + "\n" +
			`{"message":"kept"}` + "\n"
		env, err := envelope.Decode([]byte(body))
		require.NoError(t, err)
		require.Len(t, env.Items, 1)
		require.Equal(t, "kept", env.Items[0].Payload.Get("message").String())
	})

	t.Run("UnknownType", func(t *testing.T) {
		t.Parallel()
		body := "{}\n" + `{"type":"profile"}` + "\n" + `{"some":"data"}` + "\n"
		env, err := envelope.Decode([]byte(body))
		require.NoError(t, err)
		require.Equal(t, envelope.KindUnknown, env.Items[0].Type.Kind)
		require.Equal(t, "unknown:profile", env.Items[0].Type.Token())
	})
}

// Payload fields consumed by the extractor survive decoding unchanged.
func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	event := map[string]any{
		"event_id":    "abc",
		"platform":    "go",
		"culprit":     "main.go:run:10",
		"environment": "production",
		"release":     "1.2.3",
		"tags":        map[string]any{"region": "eu"},
		"exception": map[string]any{
			"values": []any{map[string]any{
				"type":  "ValueError",
				"value": "bad\nvalue",
				"stacktrace": map[string]any{
					"frames": []any{map[string]any{"filename": "app.py", "function": "main", "lineno": float64(42)}},
				},
			}},
		},
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	body := "{}\n" + `{"type":"event","length":` + strconv.Itoa(len(raw)) + "}\n" + string(raw) + "\n"
	env, err := envelope.Decode([]byte(body))
	require.NoError(t, err)
	require.Len(t, env.Items, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.Items[0].Payload.Raw), &got))
	require.Equal(t, event, got)
}

func TestParseItemType(t *testing.T) {
	t.Parallel()

	for name, kind := range map[string]envelope.ItemKind{
		"event":         envelope.KindEvent,
		"session":       envelope.KindSession,
		"sessions":      envelope.KindSessions,
		"transaction":   envelope.KindTransaction,
		"attachment":    envelope.KindAttachment,
		"client_report": envelope.KindClientReport,
		"replay_event":  envelope.KindUnknown,
	} {
		assert.Equal(t, kind, envelope.ParseItemType(name).Kind, name)
	}
	assert.Equal(t, "event", envelope.ParseItemType("event").Token())
}

func TestPublicKeyFromDSN(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc123", envelope.PublicKeyFromDSN("https://abc123@errors.example.com/42"))
	require.Empty(t, envelope.PublicKeyFromDSN("https://errors.example.com/42"))
	require.Empty(t, envelope.PublicKeyFromDSN(""))
}

func TestDecompress(t *testing.T) {
	t.Parallel()

	plain := []byte(singleEvent)

	t.Run("Gzip", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write(plain)
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		// Detected by magic bytes without a declared encoding.
		out, err := envelope.Decompress(buf.Bytes(), "", 0)
		require.NoError(t, err)
		require.Equal(t, plain, out)

		out, err = envelope.Decompress(buf.Bytes(), "gzip", 0)
		require.NoError(t, err)
		require.Equal(t, plain, out)
	})

	t.Run("Zstd", func(t *testing.T) {
		t.Parallel()
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		compressed := enc.EncodeAll(plain, nil)
		require.NoError(t, enc.Close())

		out, err := envelope.Decompress(compressed, "zstd", 0)
		require.NoError(t, err)
		require.Equal(t, plain, out)
	})

	t.Run("Brotli", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, err := bw.Write(plain)
		require.NoError(t, err)
		require.NoError(t, bw.Close())

		out, err := envelope.Decompress(buf.Bytes(), "br", 0)
		require.NoError(t, err)
		require.Equal(t, plain, out)
	})

	t.Run("PlainFallback", func(t *testing.T) {
		t.Parallel()
		out, err := envelope.Decompress(plain, "gzip", 0)
		require.NoError(t, err)
		require.Equal(t, plain, out)
	})

	t.Run("TooLarge", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write([]byte(strings.Repeat("a", 4096)))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		_, err = envelope.Decompress(buf.Bytes(), "", 1024)
		require.ErrorIs(t, err, envelope.ErrBodyTooLarge)
	})
}
