package ingest

import (
	"context"
	"encoding/base64"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"cdr.dev/slog/v3"
	"github.com/google/uuid"

	"github.com/bryanwahyu/errorhub/internal/domain/attachments"
	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	"github.com/bryanwahyu/errorhub/internal/domain/textutil"
)

// BindAttachment decides where an attachment item goes. Without a cursor
// there is no group to attach to and ok is false. The returned attachment
// carries the capped inline payload.
func BindAttachment(cursor *errorgroups.ErrorGroup, item envelope.Item) (a *attachments.Attachment, ok bool) {
	if cursor == nil {
		return nil, false
	}
	raw := item.Raw
	a = &attachments.Attachment{
		GroupID:     cursor.ID,
		Filename:    sanitizeFilename(item.Filename()),
		ContentType: item.ContentType(),
		Size:        int64(len(raw)),
	}
	if isText(raw) {
		a.Encoding = attachments.EncodingText
		a.Data = textutil.Truncate(raw, attachments.MaxBytes)
	} else {
		a.Encoding = attachments.EncodingBase64
		// 4 output bytes per 3 input bytes.
		limit := attachments.MaxBytes / 4 * 3
		if len(raw) > limit {
			raw = raw[:limit]
		}
		a.Data = base64.StdEncoding.EncodeToString([]byte(raw))
	}
	return a, true
}

func (s *Service) handleAttachment(ctx context.Context, scope *scopes.Scope, cursor *errorgroups.ErrorGroup, item envelope.Item) (bool, error) {
	a, ok := BindAttachment(cursor, item)
	if !ok {
		s.Logger.Debug(ctx, "dropping attachment without a preceding event",
			slog.F("scope_id", scope.ID),
			slog.F("filename", item.Filename()),
		)
		return false, nil
	}
	a.CreatedAt = s.Clock.Now().Unix()

	if s.Blobs != nil {
		key := scopeKey(scope.ID, cursor.ID, uuid.NewString()+"-"+a.Filename)
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		url, err := s.Blobs.Put(ctx, key, contentType, blobPayload(item.Raw))
		if err == nil {
			a.Encoding = attachments.EncodingObject
			a.Data = url
		} else {
			s.Logger.Warn(ctx, "attachment upload failed, storing inline",
				slog.F("key", key),
				slog.Error(err),
			)
		}
	}
	return true, s.Attachments.SaveAttachment(ctx, a)
}

// blobPayload caps an object upload at attachments.MaxBytes. Size on the
// attachment keeps the original length.
func blobPayload(raw string) []byte {
	if len(raw) <= attachments.MaxBytes {
		return []byte(raw)
	}
	if isText(raw) {
		return []byte(textutil.Truncate(raw, attachments.MaxBytes))
	}
	return []byte(raw[:attachments.MaxBytes])
}

func scopeKey(scopeID, groupID int64, name string) string {
	return path.Join(strconv.FormatInt(scopeID, 10), strconv.FormatInt(groupID, 10), name)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "unknown"
	}
	return name
}

// isText treats valid UTF-8 without NUL bytes as text.
func isText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}
