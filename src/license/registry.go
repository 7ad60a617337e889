package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// maxKeyAttempts bounds the retry-on-collision loop during Create.
const maxKeyAttempts = 5

// Registry implements the license lifecycle over a Store. Every operation is
// a whole-document read-modify-write with no revision guard: two concurrent
// writers to the same gist race and the last write wins. The remote store
// offers no conditional write, so this is an accepted limitation.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry returns a Registry over store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
	}
}

// List returns every license record in the gist's document, in stored order,
// with the derived fields attached. Non-object array elements are skipped.
func (r *Registry) List(ctx context.Context, gistID string) ([]Record, error) {
	entries, err := r.readDocument(ctx, gistID)
	if err != nil {
		return nil, err
	}

	gistName, err := r.store.DisplayName(ctx, gistID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	records := make([]Record, 0, len(entries))
	for _, raw := range entries {
		lic, ok := decodeEntry(raw)
		if !ok {
			continue
		}

		records = append(records, Record{
			License:   lic,
			IsExpired: lic.isExpiredAt(now),
			GistID:    gistID,
			GistName:  gistName,
		})
	}

	return records, nil
}

// Create appends a new license to the document and writes it back. The key
// comes from GenerateKey, retried on the off chance it collides with an
// existing record. An empty or brand-new document starts as an empty array.
func (r *Registry) Create(ctx context.Context, gistID, user, plan, machine string, expiredDays int) (*Record, error) {
	if expiredDays <= 0 {
		return nil, fmt.Errorf("expired_days %d: %w", expiredDays, ErrInvalidDays)
	}

	entries, err := r.readDocument(ctx, gistID)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(entries))
	for _, raw := range entries {
		if lic, ok := decodeEntry(raw); ok {
			existing[lic.License] = true
		}
	}

	key := GenerateKey()
	for attempt := 1; existing[key]; attempt++ {
		if attempt >= maxKeyAttempts {
			return nil, fmt.Errorf("could not generate a unique license key after %d attempts", maxKeyAttempts)
		}
		key = GenerateKey()
	}

	createdAt := r.now()
	lic := License{
		License: key,
		User:    user,
		Plan:    plan,
		Machine: machine,
		Created: createdAt.Format(TimeLayout),
		Expired: createdAt.AddDate(0, 0, expiredDays).Format(TimeLayout),
	}

	raw, err := json.Marshal(lic)
	if err != nil {
		return nil, err
	}
	entries = append(entries, raw)

	if err := r.writeDocument(ctx, gistID, entries); err != nil {
		return nil, err
	}

	gistName, err := r.store.DisplayName(ctx, gistID)
	if err != nil {
		return nil, err
	}

	return &Record{
		License:   lic,
		IsExpired: false,
		GistID:    gistID,
		GistName:  gistName,
	}, nil
}

// Update merges the provided fields into the record whose key matches
// licenseKey and writes the document back. Fields left nil keep their stored
// value, and every other record is carried over untouched.
func (r *Registry) Update(ctx context.Context, gistID, licenseKey string, fields UpdateFields) (*Record, error) {
	entries, err := r.readDocument(ctx, gistID)
	if err != nil {
		return nil, err
	}

	idx := findEntry(entries, licenseKey)
	if idx < 0 {
		return nil, fmt.Errorf("license %q in gist %q: %w", licenseKey, gistID, ErrLicenseNotFound)
	}

	// Merge through a generic map so fields outside the License schema
	// survive the rewrite.
	var entry map[string]any
	if err := json.Unmarshal(entries[idx], &entry); err != nil {
		return nil, fmt.Errorf("license %q holds malformed data: %w", licenseKey, err)
	}

	if fields.User != nil {
		entry["user"] = *fields.User
	}
	if fields.Plan != nil {
		entry["plan"] = *fields.Plan
	}
	if fields.Machine != nil {
		entry["machine"] = *fields.Machine
	}
	if fields.Created != nil {
		entry["created"] = *fields.Created
	}
	if fields.Expired != nil {
		entry["expired"] = *fields.Expired
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	entries[idx] = raw

	if err := r.writeDocument(ctx, gistID, entries); err != nil {
		return nil, err
	}

	gistName, err := r.store.DisplayName(ctx, gistID)
	if err != nil {
		return nil, err
	}

	var lic License
	if err := json.Unmarshal(raw, &lic); err != nil {
		return nil, err
	}

	return &Record{
		License:   lic,
		IsExpired: lic.isExpiredAt(r.now()),
		GistID:    gistID,
		GistName:  gistName,
	}, nil
}

// Delete removes the record whose key matches licenseKey and writes the
// reduced document back.
func (r *Registry) Delete(ctx context.Context, gistID, licenseKey string) error {
	entries, err := r.readDocument(ctx, gistID)
	if err != nil {
		return err
	}

	idx := findEntry(entries, licenseKey)
	if idx < 0 {
		return fmt.Errorf("license %q in gist %q: %w", licenseKey, gistID, ErrLicenseNotFound)
	}

	entries = append(entries[:idx], entries[idx+1:]...)

	return r.writeDocument(ctx, gistID, entries)
}

// DeleteExpired removes every record whose expiry is parsable and strictly in
// the past, in a single write. Records with a missing or malformed expiry are
// retained. Returns the number removed and a summary message.
func (r *Registry) DeleteExpired(ctx context.Context, gistID string) (int, string, error) {
	entries, err := r.readDocument(ctx, gistID)
	if err != nil {
		return 0, "", err
	}

	now := r.now()
	kept := make([]json.RawMessage, 0, len(entries))
	for _, raw := range entries {
		lic, ok := decodeEntry(raw)
		if ok && lic.isExpiredAt(now) {
			continue
		}
		kept = append(kept, raw)
	}

	deleted := len(entries) - len(kept)
	if deleted > 0 {
		if err := r.writeDocument(ctx, gistID, kept); err != nil {
			return 0, "", err
		}
	}

	message := fmt.Sprintf("Deleted %d expired license(s) from gist '%s'.", deleted, gistID)
	return deleted, message, nil
}

// readDocument fetches and parses the gist's primary file as a JSON array.
// Elements keep their raw bytes so untouched records round-trip unchanged.
func (r *Registry) readDocument(ctx context.Context, gistID string) ([]json.RawMessage, error) {
	content, err := r.store.Content(ctx, gistID, "")
	if err != nil {
		return nil, err
	}

	return parseDocument(content)
}

func (r *Registry) writeDocument(ctx context.Context, gistID string, entries []json.RawMessage) error {
	if len(entries) == 0 {
		return r.store.WriteContent(ctx, gistID, "", "[]")
	}

	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	return r.store.WriteContent(ctx, gistID, "", string(b))
}

func parseDocument(content string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, ErrBadContent
	}

	return entries, nil
}

// decodeEntry reports a raw array element as a License. ok is false for
// non-object elements and objects that don't fit the license schema.
func decodeEntry(raw json.RawMessage) (License, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return License{}, false
	}

	var lic License
	if err := json.Unmarshal(trimmed, &lic); err != nil {
		return License{}, false
	}

	return lic, true
}

func findEntry(entries []json.RawMessage, licenseKey string) int {
	for i, raw := range entries {
		if lic, ok := decodeEntry(raw); ok && lic.License == licenseKey {
			return i
		}
	}
	return -1
}
