package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/google/uuid"

	"github.com/franklinbaldo/baliza/pkg/planner"
	"github.com/franklinbaldo/baliza/pkg/pncp"
	"github.com/franklinbaldo/baliza/pkg/writer"
)

var (
	dbPath     = flag.String("db", "baliza.db", "Path to the baliza database file")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to backup the database before migration (default: <db>.backup)")
)

// legacyResponse is the unified-table row shape used before the Content
// Store / Request Log / Task Store split: one record per HTTP response,
// with no separate dedup or task bookkeeping.
type legacyResponse struct {
	EndpointName string `json:"endpoint_name"`
	URL          string `json:"url"`
	DataDate     string `json:"data_date"` // YYYYMMDD
	Modality     *int   `json:"modality,omitempty"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	StatusCode   int    `json:"status_code"`
	Body         []byte `json:"body"`
	TotalRecords *int   `json:"total_records,omitempty"`
	TotalPages   *int   `json:"total_pages,omitempty"`
	ExtractedAt  string `json:"extracted_at"` // RFC3339
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("BALIZA Database Migration Tool - legacy responses -> split schema")
	log.Println("==================================================================")

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", *dbPath)
	}

	log.Printf("Database: %s", *dbPath)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = *dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(*dbPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("backup created successfully")
	}

	db, err := bolt.Open(*dbPath, 0600, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := migrateLegacyResponses(db, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("\nMigration completed successfully.")
		log.Println("Old 'legacy_responses' bucket has been preserved for rollback if needed.")
	}
}

// migrateLegacyResponses reads every row out of the legacy_responses bucket
// and, for each one, reconstructs the equivalent Content Store blob,
// Request Log entry, and Task Store row. This is opt-in and never run
// implicitly by the Coordinator: a database with no legacy_responses
// bucket is already on the split schema and this is a no-op.
func migrateLegacyResponses(db *bolt.DB, dryRun bool) error {
	var rows []legacyResponse

	err := db.View(func(tx *bolt.Tx) error {
		legacy := tx.Bucket([]byte("legacy_responses"))
		if legacy == nil {
			log.Println("no 'legacy_responses' bucket found - database is already using the split schema")
			return nil
		}
		return legacy.ForEach(func(k, v []byte) error {
			var row legacyResponse
			if err := json.Unmarshal(v, &row); err != nil {
				log.Printf("skipping invalid JSON for key %s: %v", k, err)
				return nil
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		log.Println("no legacy rows found to migrate")
		return nil
	}
	log.Printf("found %d legacy rows to migrate", len(rows))

	if dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		log.Println("1. Create 'content', 'content_by_hash', 'requests', 'requests_by_task', 'tasks' buckets")
		log.Printf("2. Migrate %d legacy rows into content-addressed blobs and request log entries", len(rows))
		log.Println("3. Synthesize one Task Store row per distinct (endpoint, date, modality)")
		log.Println("4. Preserve 'legacy_responses' bucket for rollback")
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		contentBucket, err := tx.CreateBucketIfNotExists([]byte("content"))
		if err != nil {
			return fmt.Errorf("create content bucket: %w", err)
		}
		hashBucket, err := tx.CreateBucketIfNotExists([]byte("content_by_hash"))
		if err != nil {
			return fmt.Errorf("create content_by_hash bucket: %w", err)
		}
		requestsBucket, err := tx.CreateBucketIfNotExists([]byte("requests"))
		if err != nil {
			return fmt.Errorf("create requests bucket: %w", err)
		}
		requestsByTaskBucket, err := tx.CreateBucketIfNotExists([]byte("requests_by_task"))
		if err != nil {
			return fmt.Errorf("create requests_by_task bucket: %w", err)
		}
		tasksBucket, err := tx.CreateBucketIfNotExists([]byte("tasks"))
		if err != nil {
			return fmt.Errorf("create tasks bucket: %w", err)
		}

		migrated := 0
		for _, row := range rows {
			contentID, err := migrateContent(contentBucket, hashBucket, row.Body)
			if err != nil {
				return err
			}

			requestID := uuid.New().String()
			dataDate, err := time.Parse(pncp.DateFormat, row.DataDate)
			if err != nil {
				return fmt.Errorf("legacy row has unparseable data_date %q: %w", row.DataDate, err)
			}
			extractedAt, err := time.Parse(time.RFC3339, row.ExtractedAt)
			if err != nil {
				extractedAt = time.Now()
			}
			entry := map[string]interface{}{
				"request_id":     requestID,
				"endpoint_name":  row.EndpointName,
				"endpoint_url":   row.URL,
				"modality":       row.Modality,
				"response_code":  row.StatusCode,
				"data_date":      dataDate,
				"total_records":  row.TotalRecords,
				"total_pages":    row.TotalPages,
				"current_page":   row.Page,
				"page_size":      row.PageSize,
				"content_id":     contentID,
				"extracted_at":   extractedAt,
			}
			entryBytes, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := requestsBucket.Put([]byte(requestID), entryBytes); err != nil {
				return err
			}
			indexKey := fmt.Sprintf("%s\x1f%s\x1f%06d\x1f%s", row.EndpointName, pncp.FormatDate(dataDate), row.Page, requestID)
			if err := requestsByTaskBucket.Put([]byte(indexKey), []byte(requestID)); err != nil {
				return err
			}

			if err := migrateTask(tasksBucket, row); err != nil {
				return err
			}

			migrated++
			if migrated%100 == 0 {
				log.Printf("  migrated %d/%d...", migrated, len(rows))
			}
		}

		log.Printf("migrated %d/%d legacy rows", migrated, len(rows))
		log.Println("preserved 'legacy_responses' bucket for rollback")
		return nil
	})
}

// migrateContent applies the same dedup-by-sha256 contract BoltStore uses
// at runtime, so tasks discovered post-migration see the same ContentID a
// live run would have produced for identical bytes.
func migrateContent(contentBucket, hashBucket *bolt.Bucket, payload []byte) (string, error) {
	payload = []byte(strings.TrimSpace(string(payload)))
	sum := sha256.Sum256(payload)
	hexSum := hex.EncodeToString(sum[:])

	if existing := hashBucket.Get([]byte(hexSum)); existing != nil {
		contentID := string(existing)
		var blob map[string]interface{}
		if err := json.Unmarshal(contentBucket.Get([]byte(contentID)), &blob); err != nil {
			return "", fmt.Errorf("read content blob %s: %w", contentID, err)
		}
		refs, _ := blob["reference_count"].(float64)
		blob["reference_count"] = int(refs) + 1
		blob["last_seen_at"] = time.Now()
		blobBytes, err := json.Marshal(blob)
		if err != nil {
			return "", err
		}
		return contentID, contentBucket.Put([]byte(contentID), blobBytes)
	}

	contentID := writer.ContentID(hexSum)
	now := time.Now()
	blob := map[string]interface{}{
		"content_id":      contentID,
		"payload":         payload,
		"content_sha256":  hexSum,
		"byte_size":       len(payload),
		"reference_count": 1,
		"first_seen_at":   now,
		"last_seen_at":    now,
	}
	blobBytes, err := json.Marshal(blob)
	if err != nil {
		return "", err
	}
	if err := contentBucket.Put([]byte(contentID), blobBytes); err != nil {
		return "", err
	}
	if err := hashBucket.Put([]byte(hexSum), []byte(contentID)); err != nil {
		return "", err
	}
	return contentID, nil
}

// migrateTask synthesizes a Task Store row if one doesn't already exist
// for this row's (endpoint, date, modality). Status is always PARTIAL with
// an empty missing_pages list; the Reconciler's next pass rebuilds
// missing_pages from the migrated Request Log rows and sets COMPLETE once
// every page is present.
func migrateTask(tasksBucket *bolt.Bucket, row legacyResponse) error {
	dataDate, err := time.Parse(pncp.DateFormat, row.DataDate)
	if err != nil {
		return fmt.Errorf("legacy row has unparseable data_date %q: %w", row.DataDate, err)
	}
	taskID := planner.TaskID(row.EndpointName, dataDate, row.Modality)

	if tasksBucket.Get([]byte(taskID)) != nil {
		return nil // already synthesized from an earlier row of the same task
	}

	task := map[string]interface{}{
		"task_id":       taskID,
		"endpoint_name": row.EndpointName,
		"data_date":     dataDate,
		"modality":      row.Modality,
		"status":        "PARTIAL",
		"total_pages":   row.TotalPages,
		"total_records": row.TotalRecords,
		"missing_pages": []int{},
		"created_at":    time.Now(),
		"updated_at":    time.Now(),
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return tasksBucket.Put([]byte(taskID), taskBytes)
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
