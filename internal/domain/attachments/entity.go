package attachments

import (
	"context"

	"github.com/bryanwahyu/errorhub/internal/domain/textutil"
)

const (
	// MaxBytes caps the stored payload of one attachment, inline or in the
	// blob store.
	MaxBytes = 100000

	MaxFilenameBytes    = 255
	MaxContentTypeBytes = 255
)

// Encoding tells how Data is stored.
type Encoding string

const (
	EncodingText   Encoding = "text"
	EncodingBase64 Encoding = "base64"
	// EncodingObject means Data is the URL of an object in the blob store.
	EncodingObject Encoding = "object"
)

// Attachment belongs to exactly one error group.
type Attachment struct {
	ID          int64    `json:"id" db:"id"`
	GroupID     int64    `json:"group_id" db:"group_id"`
	Filename    string   `json:"filename" db:"filename"`
	ContentType string   `json:"content_type,omitempty" db:"content_type"`
	Size        int64    `json:"size" db:"size"`
	Encoding    Encoding `json:"encoding" db:"encoding"`
	Data        string   `json:"data" db:"data"`
	CreatedAt   int64    `json:"created_at" db:"created_at"`
}

func (a *Attachment) Clamp() {
	a.Filename = textutil.Truncate(a.Filename, MaxFilenameBytes)
	a.ContentType = textutil.Truncate(a.ContentType, MaxContentTypeBytes)
}

// Repository port
type Repository interface {
	SaveAttachment(ctx context.Context, a *Attachment) error
	ListAttachments(ctx context.Context, groupID int64) ([]*Attachment, error)
}

// BlobStore port for payloads kept outside the database.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (url string, err error)
}
