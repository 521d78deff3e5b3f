package entity

import (
	"bytes"
	"sort"
	"strings"
)

// OriginKind identifies the storage backend a source descriptor points at
type OriginKind string

const (
	OriginLocal OriginKind = "local"
	OriginS3    OriginKind = "s3"
	OriginMinIO OriginKind = "minio"
)

const (
	S3Scheme    = "s3://"
	MinIOScheme = "minio://"
)

// SupportedExtensions lists the image suffixes a load keeps, lowercase
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".bmp"}

// ClassifySource maps a source descriptor to its origin kind.
// Anything without a recognised scheme prefix is a local directory path.
func ClassifySource(source string) OriginKind {
	switch {
	case strings.HasPrefix(source, S3Scheme):
		return OriginS3
	case strings.HasPrefix(source, MinIOScheme):
		return OriginMinIO
	default:
		return OriginLocal
	}
}

// HasScheme reports whether source starts with something shaped like "scheme://"
func HasScheme(source string) bool {
	i := strings.Index(source, "://")
	if i <= 0 {
		return false
	}
	for _, r := range source[:i] {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isOther := (r >= '0' && r <= '9') || r == '+' || r == '-' || r == '.'
		if !isAlpha && !isOther {
			return false
		}
	}
	return true
}

// IsImageKey reports whether name ends with a supported extension, ignoring case
func IsImageKey(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range SupportedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ObjectInfo is a candidate object found while listing an origin
type ObjectInfo struct {
	ID   string
	Size int64
}

// ObjectRecord is one image fully read into memory
type ObjectRecord struct {
	ID   string
	Data []byte
}

// Reader returns a new reader over the record positioned at offset 0
func (r ObjectRecord) Reader() *bytes.Reader {
	return bytes.NewReader(r.Data)
}

// LoadResult maps object identifiers to in-memory image streams
type LoadResult map[string]*bytes.Reader

// Keys returns the identifiers in lexical order
func (r LoadResult) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalBytes sums the full size of every stream regardless of read position
func (r LoadResult) TotalBytes() int64 {
	var total int64
	for _, rd := range r {
		total += rd.Size()
	}
	return total
}
