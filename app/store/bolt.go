package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	articlesBktName = "articles"
	datesBktName    = "dates"
)

// Bolt is a storage that uses BoltDB as a backend. Articles are keyed
// by URL, with a secondary date index for listing by publication date.
type Bolt struct {
	db *bolt.DB
}

// NewBolt creates new Bolt storage.
func NewBolt(dir string) (*Bolt, error) {
	db, err := bolt.Open(path.Join(dir, "articles.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to make boltdb for %s: %w", dir, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{articlesBktName, datesBktName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create top-level bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("make buckets: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Put puts article to storage, skipping it if the URL is already present.
func (b *Bolt) Put(_ context.Context, a Article) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(articlesBktName))

		if bkt.Get([]byte(a.URL)) != nil {
			return ErrAlreadyExists
		}

		if a.ID == "" {
			a.ID = uuid.NewString()
		}

		bts, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal article: %w", err)
		}

		if err := bkt.Put([]byte(a.URL), bts); err != nil {
			return fmt.Errorf("put article to storage: %w", err)
		}

		idx := tx.Bucket([]byte(datesBktName))
		if err := idx.Put([]byte(dateKey(a.Date(), a.URL)), []byte(a.URL)); err != nil {
			return fmt.Errorf("put date index entry: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("update storage: %w", err)
	}

	return nil
}

// List returns articles from storage matching the request.
func (b *Bolt) List(_ context.Context, req ListRequest) ([]Article, error) {
	var result []Article
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(articlesBktName))

		collect := func(v []byte) error {
			var a Article
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("unmarshal article: %w", err)
			}
			if req.Source != "" && a.Source != req.Source {
				return nil
			}
			result = append(result, a)
			return nil
		}

		if req.Date != "" {
			c := tx.Bucket([]byte(datesBktName)).Cursor()
			prefix := []byte(req.Date + "/")
			for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
				bts := bkt.Get(v)
				if bts == nil {
					continue
				}
				if err := collect(bts); err != nil {
					return err
				}
			}
			return nil
		}

		if err := bkt.ForEach(func(_, v []byte) error { return collect(v) }); err != nil {
			return fmt.Errorf("foreach: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("view storage: %w", err)
	}
	return result, nil
}

// Get returns article from storage by its URL.
func (b *Bolt) Get(_ context.Context, url string) (a Article, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(articlesBktName))

		bts := bkt.Get([]byte(url))
		if bts == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(bts, &a); err != nil {
			return fmt.Errorf("unmarshal article: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Article{}, ErrNotFound
		}
		return Article{}, fmt.Errorf("view storage: %w", err)
	}

	return a, nil
}

// Delete removes article and its date index entry from storage.
func (b *Bolt) Delete(_ context.Context, url string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(articlesBktName))

		bts := bkt.Get([]byte(url))
		if bts == nil {
			return nil
		}

		var a Article
		if err := json.Unmarshal(bts, &a); err != nil {
			return fmt.Errorf("unmarshal article: %w", err)
		}

		if err := bkt.Delete([]byte(url)); err != nil {
			return fmt.Errorf("remove: %w", err)
		}

		if err := tx.Bucket([]byte(datesBktName)).Delete([]byte(dateKey(a.Date(), url))); err != nil {
			return fmt.Errorf("remove date index entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("update storage: %w", err)
	}

	return nil
}

// Close closes the storage.
func (b *Bolt) Close() error { return b.db.Close() }

func dateKey(date, url string) string { return date + "/" + url }
