package minio

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// ResultArchive stores screening responses as
// <prefix>/<yyyy>/<mm>/<dd>/<job id>.json.
type ResultArchive struct {
	client *Client
	prefix string
	now    func() time.Time
}

func NewResultArchive(client *Client, prefix string) *ResultArchive {
	return &ResultArchive{client: client, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

// Archive uploads resp and returns its location with a presigned URL.  A
// presign failure leaves URL empty rather than failing the upload.
func (a *ResultArchive) Archive(ctx context.Context, jobID string, resp *shapetypes.ScreenResponse) (*shapetypes.ArchivedResult, error) {
	key := a.key(jobID)
	size, err := a.client.PutJSON(ctx, key, resp)
	if err != nil {
		return nil, err
	}
	ref := &shapetypes.ArchivedResult{Bucket: a.client.Bucket(), Key: key, Size: size}
	u, expires, err := a.client.PresignGet(ctx, key)
	if err != nil {
		a.client.logger.Warn("archived result has no download URL", logging.String("key", key), logging.Err(err))
		return ref, nil
	}
	ref.URL = u
	ref.ExpiresAt = &expires
	return ref, nil
}

func (a *ResultArchive) key(jobID string) string {
	return path.Join(a.prefix, a.now().UTC().Format("2006/01/02"), sanitizeKey(jobID)+".json")
}

// sanitizeKey keeps job ids from escaping the prefix.
func sanitizeKey(s string) string {
	if s == "" {
		return "unnamed"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return "unnamed"
	}
	return out
}
