package compute

import "context"

// DefaultMetadataItems is the default limit on image metadata entries.
const DefaultMetadataItems = 128

// maxMetadataLength bounds both keys and values.
const maxMetadataLength = 255

// MetadataQuota is a QuotaChecker with a fixed per-request item limit.
type MetadataQuota struct {
	MaxItems int
}

var _ QuotaChecker = MetadataQuota{}

// CheckMetadataQuota implements QuotaChecker.
func (q MetadataQuota) CheckMetadataQuota(_ context.Context, metadata map[string]string) error {
	limit := q.MaxItems
	if limit <= 0 {
		limit = DefaultMetadataItems
	}
	if len(metadata) > limit {
		return &QuotaExceededError{Resource: "metadata_items", Limit: limit, Got: len(metadata)}
	}
	for k, v := range metadata {
		if k == "" {
			return &InvalidMetadataError{Reason: "metadata property key blank"}
		}
		if len(k) > maxMetadataLength || len(v) > maxMetadataLength {
			return &InvalidMetadataError{Reason: "metadata property key or value greater than 255 characters"}
		}
	}
	return nil
}
