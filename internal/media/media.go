package media

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrAlreadyExists = errors.New("object already exists")
	ErrDisabled      = errors.New("media storage is not configured")
)

// File is one uploaded attachment waiting to be stored.
type File struct {
	FieldName   string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// FileURL is a stored attachment and a temporary link to download it.
type FileURL struct {
	Key         string `json:"key"`
	FieldName   string `json:"name"`
	ContentType string `json:"type,omitempty"`
	URL         string `json:"url"`
}

// Store keeps session attachments in object storage.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	ListURLs(ctx context.Context, prefix string) ([]FileURL, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Prefix is the key prefix holding every attachment of a session.
func Prefix(sessionID string) string {
	return sessionID + "/"
}

// ObjectKey names the object of one attachment.
func ObjectKey(sessionID, fieldName string) string {
	return Prefix(sessionID) + path.Base("/"+fieldName)
}

// FieldName recovers the attachment name from an object key.
func FieldName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Disabled is the Store used when no object storage is configured. Reads
// return nothing and writes fail with ErrDisabled.
type Disabled struct{}

func (Disabled) Put(context.Context, string, io.Reader, int64, string) error {
	return ErrDisabled
}

func (Disabled) ListURLs(context.Context, string) ([]FileURL, error) {
	return nil, nil
}

func (Disabled) DeletePrefix(context.Context, string) error {
	return nil
}
