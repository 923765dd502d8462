package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franklinbaldo/baliza/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketContent        = []byte("content")
	bucketContentByHash  = []byte("content_by_hash")
	bucketRequests       = []byte("requests")
	bucketRequestsByTask = []byte("requests_by_task")
	bucketTasks          = []byte("tasks")
)

// BoltStore is the single-writer embedded Content Store, Request Log, and
// Task Store. bbolt serializes all write transactions, which is the exact
// discipline the spec requires of the Writer's backing store.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the BoltDB file at dbPath and
// idempotently creates every bucket this package uses.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketContent, bucketContentByHash, bucketRequests, bucketRequestsByTask, bucketTasks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PersistSuccess implements the dedup contract in a single bbolt write
// transaction: the content-by-hash lookup, the blob insert-or-increment,
// and the Request Log insert all commit atomically.
func (s *BoltStore) PersistSuccess(entry *types.RequestLogEntry, blob *types.ContentBlob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketContent)
		hb := tx.Bucket(bucketContentByHash)
		rb := tx.Bucket(bucketRequests)
		ib := tx.Bucket(bucketRequestsByTask)

		if raw := hb.Get([]byte(blob.ContentSHA256)); raw != nil {
			contentID := string(raw)
			data := cb.Get([]byte(contentID))
			if data == nil {
				return fmt.Errorf("content_by_hash index points at missing blob %s", contentID)
			}
			var existing types.ContentBlob
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("unmarshal existing blob: %w", err)
			}
			existing.ReferenceCount++
			existing.LastSeenAt = blob.LastSeenAt
			encoded, err := json.Marshal(&existing)
			if err != nil {
				return fmt.Errorf("marshal blob: %w", err)
			}
			if err := cb.Put([]byte(existing.ContentID), encoded); err != nil {
				return fmt.Errorf("put blob: %w", err)
			}
			entry.ContentID = existing.ContentID
		} else {
			if blob.ReferenceCount < 1 {
				blob.ReferenceCount = 1
			}
			encoded, err := json.Marshal(blob)
			if err != nil {
				return fmt.Errorf("marshal blob: %w", err)
			}
			if err := cb.Put([]byte(blob.ContentID), encoded); err != nil {
				return fmt.Errorf("put blob: %w", err)
			}
			if err := hb.Put([]byte(blob.ContentSHA256), []byte(blob.ContentID)); err != nil {
				return fmt.Errorf("put content_by_hash index: %w", err)
			}
			entry.ContentID = blob.ContentID
		}

		reqData, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal request log entry: %w", err)
		}
		if err := rb.Put([]byte(entry.RequestID), reqData); err != nil {
			return fmt.Errorf("put request log entry: %w", err)
		}
		return ib.Put(taskIndexKey(entry), []byte(entry.RequestID))
	})
}

// PersistError inserts a Request Log row with no content reference.
func (s *BoltStore) PersistError(entry *types.RequestLogEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketRequests)
		ib := tx.Bucket(bucketRequestsByTask)

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal request log entry: %w", err)
		}
		if err := rb.Put([]byte(entry.RequestID), data); err != nil {
			return fmt.Errorf("put request log entry: %w", err)
		}
		return ib.Put(taskIndexKey(entry), []byte(entry.RequestID))
	})
}

// taskIndexKey builds the (endpoint_name, data_date, current_page) secondary
// index key the spec requires on the Request Log, with the request id
// appended so repeated attempts at the same page don't collide.
func taskIndexKey(entry *types.RequestLogEntry) []byte {
	key := fmt.Sprintf("%s\x1f%06d\x1f%s", indexPrefix(entry.EndpointName, entry.DataDate.Format("20060102")), entry.CurrentPage, entry.RequestID)
	return []byte(key)
}

// indexPrefix builds the scan prefix used by ListRequestsForTask.
func indexPrefix(endpointName, dataDateYYYYMMDD string) string {
	return endpointName + "\x1f" + dataDateYYYYMMDD
}

func (s *BoltStore) GetContentByHash(sha256hex string) (*types.ContentBlob, error) {
	var blob *types.ContentBlob
	err := s.db.View(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketContentByHash)
		cb := tx.Bucket(bucketContent)
		raw := hb.Get([]byte(sha256hex))
		if raw == nil {
			return nil
		}
		data := cb.Get(raw)
		if data == nil {
			return fmt.Errorf("content_by_hash index points at missing blob")
		}
		var b types.ContentBlob
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		blob = &b
		return nil
	})
	return blob, err
}

func (s *BoltStore) GetContent(contentID string) (*types.ContentBlob, error) {
	var blob *types.ContentBlob
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContent).Get([]byte(contentID))
		if data == nil {
			return nil
		}
		var b types.ContentBlob
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		blob = &b
		return nil
	})
	return blob, err
}

func (s *BoltStore) ListContent() ([]*types.ContentBlob, error) {
	var out []*types.ContentBlob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContent).ForEach(func(_, v []byte) error {
			var b types.ContentBlob
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			out = append(out, &b)
			return nil
		})
	})
	return out, err
}

// ListRequestsForTask scans the (endpoint_name, data_date) prefix of the
// secondary index, then filters by modality in memory — the index key
// deliberately omits modality so one prefix scan covers every modality
// variant of an endpoint+date pair, which keeps the bucket layout simple
// at the cost of an extra in-memory comparison per row.
func (s *BoltStore) ListRequestsForTask(endpointName string, dataDateYYYYMMDD string, modality *int) ([]*types.RequestLogEntry, error) {
	prefix := indexPrefix(endpointName, dataDateYYYYMMDD)
	var requestIDs [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRequestsByTask).Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			requestIDs = append(requestIDs, append([]byte(nil), v...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []*types.RequestLogEntry
	err = s.db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketRequests)
		for _, id := range requestIDs {
			data := rb.Get(id)
			if data == nil {
				continue
			}
			var e types.RequestLogEntry
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			if !sameModality(e.Modality, modality) {
				continue
			}
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func sameModality(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *BoltStore) CreateTaskIfAbsent(task *types.Task) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(task.TaskID)) != nil {
			return nil
		}
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		created = true
		return b.Put([]byte(task.TaskID), data)
	})
	return created, err
}

func (s *BoltStore) GetTask(taskID string) (*types.Task, error) {
	var task *types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(taskID))
		if data == nil {
			return nil
		}
		var t types.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		task = &t
		return nil
	})
	return task, err
}

func (s *BoltStore) ListTasks() ([]*types.Task, error) {
	var out []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(_, v []byte) error {
			var t types.Task
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListTasksByStatus(statuses ...types.TaskStatus) ([]*types.Task, error) {
	want := make(map[types.TaskStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	all, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	var out []*types.Task
	for _, t := range all {
		if want[t.Status] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *BoltStore) UpdateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Put([]byte(task.TaskID), data)
	})
}
