// Package catalog serves the bird sounds and bird maps collections from a
// local mirror of the content bucket.
package catalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// Collection names a content collection. It is also its directory name.
type Collection string

// Known collections.
const (
	BirdSounds Collection = "bird_sounds"
	BirdMaps   Collection = "bird_maps"
)

const assetsDir = "assets"

// ErrUnknownCollection is returned for collections other than BirdSounds and BirdMaps.
var ErrUnknownCollection = errors.NewStd("unknown collection")

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	return c == BirdSounds || c == BirdMaps
}

// Entry is one metadata document. Raw is served unchanged.
type Entry struct {
	ID  string
	DTS float64 // creation timestamp used for ordering, 0 when absent
	Raw json.RawMessage
}

// MarshalJSON emits the original document.
func (e Entry) MarshalJSON() ([]byte, error) {
	return e.Raw, nil
}

// Store reads collections from root. Listings are cached for the configured TTL.
type Store struct {
	root  string
	cache *cache.Cache
}

// NewStore returns a store over root. A ttl <= 0 disables caching.
func NewStore(root string, ttl time.Duration) *Store {
	s := &Store{root: root}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

// Root returns the mirror directory.
func (s *Store) Root() string {
	return s.root
}

// Invalidate drops cached listings, e.g. after a mirror sync.
func (s *Store) Invalidate() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

// List returns the entries of c, newest first. A limit <= 0 returns all.
// Files that cannot be parsed are skipped.
func (s *Store) List(c Collection, limit int) ([]Entry, error) {
	if !c.Valid() {
		return nil, unknownCollection(c)
	}

	entries, err := s.load(c)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) load(c Collection) ([]Entry, error) {
	if s.cache != nil {
		if cached, found := s.cache.Get(string(c)); found {
			return cached.([]Entry), nil
		}
	}

	paths, err := filepath.Glob(filepath.Join(s.root, string(c), "*.json"))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		entry, err := readEntry(path)
		if err != nil {
			GetLogger().Warn("skipping unreadable catalog entry",
				logger.String("collection", string(c)),
				logger.String("file", filepath.Base(path)),
				logger.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DTS != entries[j].DTS {
			return entries[i].DTS > entries[j].DTS
		}
		return entries[i].ID < entries[j].ID
	})

	if s.cache != nil {
		s.cache.SetDefault(string(c), entries)
	}
	// callers may truncate, never append
	return entries[:len(entries):len(entries)], nil
}

// Get returns one entry by id.
func (s *Store) Get(c Collection, id string) (Entry, error) {
	if !c.Valid() {
		return Entry{}, unknownCollection(c)
	}
	if !safeName(id) {
		return Entry{}, notFound(c, id)
	}

	entry, err := readEntry(filepath.Join(s.root, string(c), id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, notFound(c, id)
		}
		return Entry{}, errors.New(err).
			Component("catalog").
			Category(errors.CategoryFileParsing).
			Context("collection", string(c)).
			Context("id", id).
			Build()
	}
	return entry, nil
}

// AssetPath resolves an asset file of c. Names that would leave the assets
// directory and missing files are reported as not found.
func (s *Store) AssetPath(c Collection, name string) (string, error) {
	if !c.Valid() {
		return "", unknownCollection(c)
	}
	if !safeName(name) {
		return "", notFound(c, name)
	}

	path := filepath.Join(s.root, string(c), assetsDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", notFound(c, name)
	}
	return path, nil
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from a validated name
	if err != nil {
		return Entry{}, err
	}
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return Entry{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	entry := Entry{
		ID:  strings.TrimSuffix(filepath.Base(path), ".json"),
		Raw: json.RawMessage(data),
	}
	if dts, err := obj.GetFloat64("dts"); err == nil {
		entry.DTS = dts
	}
	return entry, nil
}

// safeName accepts plain file names only.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func unknownCollection(c Collection) error {
	return errors.New(fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))).
		Component("catalog").
		Category(errors.CategoryValidation).
		Build()
}

func notFound(c Collection, name string) error {
	return errors.Newf("%s entry %q not found", c, name).
		Component("catalog").
		Category(errors.CategoryNotFound).
		Context("collection", string(c)).
		Build()
}
