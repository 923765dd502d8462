package storage

import "github.com/franklinbaldo/baliza/pkg/types"

// Store is the persistence interface the Writer mutates and every other
// component reads through. The only implementation is the bbolt-backed
// BoltStore; the interface exists so the Writer and Coordinator can be
// tested against an in-memory fake.
type Store interface {
	// PersistSuccess performs the dedup contract in one logical
	// transaction: look up blob.ContentSHA256; if found, increment its
	// reference_count and bump last_seen_at; otherwise insert blob as a
	// new row. Either way, entry.ContentID is set to the resulting
	// content id before the Request Log row is inserted.
	PersistSuccess(entry *types.RequestLogEntry, blob *types.ContentBlob) error

	// PersistError inserts a Request Log row with no ContentID, for a
	// request that never produced a persistable body.
	PersistError(entry *types.RequestLogEntry) error

	GetContentByHash(sha256hex string) (*types.ContentBlob, error)
	GetContent(contentID string) (*types.ContentBlob, error)
	ListContent() ([]*types.ContentBlob, error)

	ListRequestsForTask(endpointName string, dataDate string, modality *int) ([]*types.RequestLogEntry, error)

	// Task Store
	CreateTaskIfAbsent(task *types.Task) (created bool, err error)
	GetTask(taskID string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	ListTasksByStatus(statuses ...types.TaskStatus) ([]*types.Task, error)
	UpdateTask(task *types.Task) error

	Close() error
}
