package domain

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/crypto/blake2b"
)

type ImageStatus string

const (
	ImageStatusUploaded ImageStatus = "uploaded"
	ImageStatusAnalyzed ImageStatus = "analyzed"
	ImageStatusError    ImageStatus = "error"
)

// Image is the in-memory form of one uploaded image. File is the live
// binary handle; it is nil when the bytes are not available in memory.
type Image struct {
	ID           string
	Filename     string // Original upload filename
	Slug         string // Sanitized filename used for exports
	Preview      string // Inline data URI thumbnail
	AITitle      string
	AITags       []string
	AIConfidence float64
	UserTitle    string
	UserTags     []string
	Status       ImageStatus
	Error        string
	File         File
	Original     File // Full-resolution source, if kept separately
}

// ImageRecord is the durable form of an Image, without its bytes.
type ImageRecord struct {
	ID           string
	SessionID    string
	GroupID      string
	Position     int // Order within the owning group
	Filename     string
	Slug         string
	Preview      string
	AITitle      string
	AITags       []string
	AIConfidence float64
	UserTitle    string
	UserTags     []string
	Status       ImageStatus
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ImageRepository persists image metadata records.
type ImageRepository interface {
	Get(ctx context.Context, id string) (*ImageRecord, error)
	// Put upserts by id. Changing GroupID moves the image in place.
	Put(ctx context.Context, image *ImageRecord) error
	Delete(ctx context.Context, id string) error
	ListBySession(ctx context.Context, sessionID string) ([]ImageRecord, error)
	ListByGroup(ctx context.Context, groupID string) ([]ImageRecord, error)
}

// Blob holds the raw bytes of one image, keyed 1:1 by image id.
type Blob struct {
	ImageID     string
	ContentType string
	Size        int64
	Checksum    []byte // blake2b-256 of Data
	Data        []byte
	CreatedAt   time.Time
}

// BlobStore abstracts raw image byte storage. Blobs are write-once.
type BlobStore interface {
	Get(ctx context.Context, imageID string) (*Blob, error)
	Put(ctx context.Context, blob *Blob) error
	Exists(ctx context.Context, imageID string) (bool, error)
	Delete(ctx context.Context, imageID string) error
}

// Checksum returns the blake2b-256 digest stored alongside blob bytes.
func Checksum(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// Intact reports whether the blob's bytes still match its checksum.
func (b *Blob) Intact() bool {
	return int64(len(b.Data)) == b.Size && bytes.Equal(Checksum(b.Data), b.Checksum)
}
