package envelope

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/xerrors"
)

// DefaultMaxDecompressed bounds the size of a decompressed envelope.
const DefaultMaxDecompressed = 20 << 20

// ErrBodyTooLarge is returned when a body inflates past the configured limit.
var ErrBodyTooLarge = xerrors.New("envelope too large")

// Decompress undoes the transport compression of an envelope body. The
// declared encoding picks the codec; without one, gzip is tried when the
// body starts with the gzip magic. Any decoding failure falls back to the
// body as received, which the decoder then treats as plain text.
func Decompress(body []byte, encoding string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxDecompressed
	}

	var (
		out []byte
		err error
	)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		out, err = inflate(body, limit, gunzip)
	case "deflate":
		out, err = inflate(body, limit, unzlib)
		if err != nil && !xerrors.Is(err, ErrBodyTooLarge) {
			out, err = inflate(body, limit, unflate)
		}
	case "br":
		out, err = inflate(body, limit, unbrotli)
	case "zstd":
		out, err = inflate(body, limit, unzstd)
	default:
		if !isGzip(body) {
			return body, nil
		}
		out, err = inflate(body, limit, gunzip)
	}

	if xerrors.Is(err, ErrBodyTooLarge) {
		return nil, err
	}
	if err != nil {
		return body, nil
	}
	return out, nil
}

func isGzip(b []byte) bool {
	return len(b) > 2 && b[0] == 0x1f && b[1] == 0x8b
}

type opener func(io.Reader) (io.ReadCloser, error)

func inflate(body []byte, limit int64, open opener) ([]byte, error) {
	rc, err := open(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	out, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}

func gunzip(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) }

func unzlib(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) }

func unflate(r io.Reader) (io.ReadCloser, error) { return flate.NewReader(r), nil }

func unbrotli(r io.Reader) (io.ReadCloser, error) { return io.NopCloser(brotli.NewReader(r)), nil }

func unzstd(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
