package gcs

import (
	"log/slog"
	"time"
)

// Object is the normalized metadata of a stored object. It is fetched per
// request and never cached.
type Object struct {
	ID          string
	Bucket      string
	Name        string
	Size        int64
	Generation  int64
	ContentType string
	MediaLink   string
	CRC32C      string // base64 of the big-endian Castagnoli checksum
	Updated     time.Time
}

// objectResponse is the JSON shape of an object resource. The API encodes
// int64 fields as strings.
type objectResponse struct {
	ID          string `json:"id"`
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	Size        int64  `json:"size,string"`
	Generation  int64  `json:"generation,string"`
	ContentType string `json:"contentType"`
	MediaLink   string `json:"mediaLink"`
	CRC32C      string `json:"crc32c"`
	Updated     string `json:"updated"`
}

// listResponse is one page of an objects.list call.
type listResponse struct {
	NextPageToken string           `json:"nextPageToken"`
	Prefixes      []string         `json:"prefixes"`
	Items         []objectResponse `json:"items"`
}

// rewriteResponse is the JSON shape of one objects.rewrite step.
type rewriteResponse struct {
	Done                bool            `json:"done"`
	RewriteToken        string          `json:"rewriteToken"`
	TotalBytesRewritten int64           `json:"totalBytesRewritten,string"`
	ObjectSize          int64           `json:"objectSize,string"`
	Resource            *objectResponse `json:"resource"`
}

// toObject converts the wire shape into an Object. An unparseable timestamp
// is logged and left zero rather than failing the call.
func (r *objectResponse) toObject(logger *slog.Logger) Object {
	return Object{
		ID:          r.ID,
		Bucket:      r.Bucket,
		Name:        r.Name,
		Size:        r.Size,
		Generation:  r.Generation,
		ContentType: r.ContentType,
		MediaLink:   r.MediaLink,
		CRC32C:      r.CRC32C,
		Updated:     parseTimestamp(r.Updated, r.Name, logger),
	}
}

func parseTimestamp(value, name string, logger *slog.Logger) time.Time {
	if value == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		logger.Warn("unparseable object timestamp",
			slog.String("name", name),
			slog.String("value", value),
		)

		return time.Time{}
	}

	return t.UTC()
}
