// Package license manages license records stored as a JSON array inside a
// remote gist.
package license

import (
	"context"
	"errors"
	"time"
)

// TimeLayout is the timestamp format of the created and expired fields.
const TimeLayout = "2006-01-02 15:04:05"

// ErrLicenseNotFound means no record in the document carries the given key.
var ErrLicenseNotFound = errors.New("license not found")

// ErrBadContent means the document body is not a JSON array.
var ErrBadContent = errors.New("gist content is not a JSON array of licenses")

// ErrInvalidDays means a create request asked for a non-positive lifetime.
var ErrInvalidDays = errors.New("expired_days must be greater than zero")

// License is one record of the stored document.
type License struct {
	License string `json:"license"`
	User    string `json:"user"`
	Plan    string `json:"plan"`
	Machine string `json:"machine"`
	Created string `json:"created"`
	Expired string `json:"expired"`
}

// Record is a License merged with the fields derived at read time. The merge
// is explicit so it stays obvious which fields are stored and which are
// computed.
type Record struct {
	License
	IsExpired bool   `json:"is_expired"`
	GistID    string `json:"gist_id"`
	GistName  string `json:"gist_name"`
}

// UpdateFields is a partial license update. Nil fields keep their stored
// value.
type UpdateFields struct {
	User    *string `json:"user"`
	Plan    *string `json:"plan"`
	Machine *string `json:"machine"`
	Created *string `json:"created"`
	Expired *string `json:"expired"`
}

// Store is the slice of the gist client the registry needs: whole-document
// reads and writes plus the document's display name. There is no partial
// update at the remote layer.
type Store interface {
	Content(ctx context.Context, gistID, fileName string) (string, error)
	WriteContent(ctx context.Context, gistID, fileName, content string) error
	DisplayName(ctx context.Context, gistID string) (string, error)
}

// expiredAt parses the record's expiry timestamp in local time.
func (l *License) expiredAt() (time.Time, bool) {
	if l.Expired == "" {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(TimeLayout, l.Expired, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// isExpiredAt reports whether the license is expired at now. A missing or
// malformed expiry never counts as expired.
func (l *License) isExpiredAt(now time.Time) bool {
	t, ok := l.expiredAt()
	if !ok {
		return false
	}
	return now.After(t)
}
