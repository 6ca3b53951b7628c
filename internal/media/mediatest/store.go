// Package mediatest provides an in-memory media.Store for tests.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/i474232898/surfvault/internal/media"
)

var ErrInjected = errors.New("injected media failure")

type Object struct {
	Data        []byte
	ContentType string
}

// Store keeps objects in memory. Setting FailPut, FailList or FailDelete
// makes the matching operation return ErrInjected. FailPutField fails only
// the uploads of that attachment name.
type Store struct {
	mu      sync.Mutex
	objects map[string]Object

	FailPut      bool
	FailPutField string
	FailList     bool
	FailDelete   bool
}

func NewStore() *Store {
	return &Store{objects: make(map[string]Object)}
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	s.mu.Lock()
	fail := s.FailPut || (s.FailPutField != "" && media.FieldName(key) == s.FailPutField)
	_, exists := s.objects[key]
	s.mu.Unlock()

	if fail {
		return ErrInjected
	}
	if exists {
		return fmt.Errorf("%w: %s", media.ErrAlreadyExists, key)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{Data: data, ContentType: contentType}
	return nil
}

func (s *Store) ListURLs(_ context.Context, prefix string) ([]media.FileURL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailList {
		return nil, ErrInjected
	}
	var files []media.FileURL
	for _, key := range s.keysLocked(prefix) {
		files = append(files, media.FileURL{
			Key:         key,
			FieldName:   media.FieldName(key),
			ContentType: s.objects[key].ContentType,
			URL:         "memory://" + key,
		})
	}
	return files, nil
}

func (s *Store) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDelete {
		return ErrInjected
	}
	for _, key := range s.keysLocked(prefix) {
		delete(s.objects, key)
	}
	return nil
}

// Keys lists the stored keys under prefix in order.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(prefix)
}

func (s *Store) Get(key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}

func (s *Store) keysLocked(prefix string) []string {
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
