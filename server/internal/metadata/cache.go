package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("video_info")

// CacheEntry is the stored metadata of a YouTube video.
// Formats holds the serialized, already normalized format list.
type CacheEntry struct {
	VideoID      string    `json:"video_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Duration     int64     `json:"duration"`
	Views        int64     `json:"views"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Formats      string    `json:"formats"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Cache is a bbolt backed key value store of video metadata.
// Entries are never evicted.
type Cache struct {
	db  *bolt.DB
	now func() time.Time
}

func NewCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Touch returns the entry of videoID bumping its access counters.
// The read and the bump happen in the same transaction.
func (c *Cache) Touch(videoID string) (*CacheEntry, bool, error) {
	var (
		entry CacheEntry
		found bool
	)

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		v := b.Get([]byte(videoID))
		if v == nil {
			return nil
		}

		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("corrupted cache entry %s: %w", videoID, err)
		}

		entry.AccessCount++
		entry.LastAccessed = c.now()

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		found = true
		return b.Put([]byte(videoID), data)
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	return &entry, true, nil
}

// Put stores e, keeping the creation time and counters of a previous entry.
func (c *Cache) Put(e CacheEntry) error {
	if e.VideoID == "" {
		return fmt.Errorf("cache entry without video id")
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		now := c.now()

		e.CreatedAt = now
		e.UpdatedAt = now
		e.LastAccessed = now
		e.AccessCount = 1

		if v := b.Get([]byte(e.VideoID)); v != nil {
			var prev CacheEntry
			if err := json.Unmarshal(v, &prev); err == nil {
				e.CreatedAt = prev.CreatedAt
				e.AccessCount = prev.AccessCount + 1
			}
		}

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(e.VideoID), data)
	})
}
