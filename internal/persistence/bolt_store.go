package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	bucketContent  = []byte("content")
	bucketTags     = []byte("tags")
	bucketTagIndex = []byte("tag_by_name")
	bucketAssoc    = []byte("content_tags")
	bucketVersions = []byte("versions")
)

// BoltStore is the default Store adapter, backed by a single embedded
// BoltDB file. Modeled on the teacher's WorkflowStore: per-bucket layout,
// a hot in-memory tag-name index, and archival-before-delete versioning,
// generalized here from workflows/executions to content/tags.
type BoltStore struct {
	db *bbolt.DB
	mu sync.RWMutex

	tagByName map[string]int64
	nextTagID int64

	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
}

// Open creates or attaches to a BoltDB file at path, creating buckets and
// warming the tag-name index if empty.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketContent, bucketTags, bucketTagIndex, bucketAssoc, bucketVersions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	meter := otel.Meter("cogniblock-orchestrator")
	readLatency, _ := meter.Float64Histogram("cogniblock_store_read_ms")
	writeLatency, _ := meter.Float64Histogram("cogniblock_store_write_ms")

	store := &BoltStore{db: db, tagByName: make(map[string]int64), readLatency: readLatency, writeLatency: writeLatency}
	if err := store.warmTagIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("warm tag index: %w", err)
	}
	return store, nil
}

// Close releases the underlying BoltDB file handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) warmTagIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTagIndex)
		return bucket.ForEach(func(k, v []byte) error {
			var id int64
			if err := json.Unmarshal(v, &id); err != nil {
				return err
			}
			s.tagByName[string(k)] = id
			if id > s.nextTagID {
				s.nextTagID = id
			}
			return nil
		})
	})
}

// StoreContent persists a new content record, assigning it the next
// monotonic ID within the content bucket.
func (s *BoltStore) StoreContent(ctx context.Context, content Content) (int64, error) {
	start := time.Now()
	defer func() {
		s.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("op", "store_content")))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketContent)
		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		id = int64(next)
		content.ID = id

		data, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("marshal content: %w", err)
		}
		return bucket.Put(idKey(id), data)
	})
	if err != nil {
		return 0, fmt.Errorf("store content: %w", err)
	}
	return id, nil
}

// ListExistingTags returns up to limit tags from the hot in-memory index.
func (s *BoltStore) ListExistingTags(ctx context.Context, limit int) ([]ExistingTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ExistingTag, 0, min(limit, len(s.tagByName)))
	for name, id := range s.tagByName {
		if len(out) >= limit {
			break
		}
		out = append(out, ExistingTag{ID: id, Name: name})
	}
	return out, nil
}

// UpsertTag returns the existing tag ID for name, or creates one.
func (s *BoltStore) UpsertTag(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, found := s.tagByName[name]; found {
		return id, nil
	}

	s.nextTagID++
	id := s.nextTagID

	err := s.db.Update(func(tx *bbolt.Tx) error {
		tagBucket := tx.Bucket(bucketTags)
		data, err := json.Marshal(struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}{ID: id, Name: name})
		if err != nil {
			return err
		}
		if err := tagBucket.Put(idKey(id), data); err != nil {
			return err
		}

		indexBucket := tx.Bucket(bucketTagIndex)
		idData, err := json.Marshal(id)
		if err != nil {
			return err
		}
		return indexBucket.Put([]byte(name), idData)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert tag: %w", err)
	}

	s.tagByName[name] = id
	return id, nil
}

// Associate records that contentID carries tagID at confidence.
func (s *BoltStore) Associate(ctx context.Context, contentID, tagID int64, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAssoc)
		key := fmt.Sprintf("%d:%d", contentID, tagID)
		data, err := json.Marshal(confidence)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
}

// SetContentPublic flips a stored content's visibility, archiving the prior
// record first the way the teacher archives before overwriting, and records
// the publication-specific title/description/timestamp spec.md §6 names
// separately from the content's own internal Title.
func (s *BoltStore) SetContentPublic(ctx context.Context, contentID int64, public bool, publicTitle, publicDescription string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketContent)
		key := idKey(contentID)
		data := bucket.Get(key)
		if data == nil {
			return fmt.Errorf("content %d not found", contentID)
		}

		var content Content
		if err := json.Unmarshal(data, &content); err != nil {
			return fmt.Errorf("unmarshal content: %w", err)
		}

		versionBucket := tx.Bucket(bucketVersions)
		versionKey := fmt.Sprintf("%d:%d", contentID, time.Now().UnixNano())
		if err := versionBucket.Put([]byte(versionKey), data); err != nil {
			return fmt.Errorf("archive content: %w", err)
		}

		content.IsPublic = public
		content.PublicTitle = publicTitle
		content.PublicDescription = publicDescription
		content.PublishedAt = publishedAt
		updated, err := json.Marshal(content)
		if err != nil {
			return err
		}
		return bucket.Put(key, updated)
	})
}

func idKey(id int64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}
