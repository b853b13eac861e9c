package shares

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/types"
)

var (
	bucketFiles = []byte("files")
	bucketDirs  = []byte("dirs")
	bucketMeta  = []byte("meta")
)

var (
	metaMarker    = []byte("marker")
	metaShares    = []byte("shares")
	metaScannedAt = []byte("scannedAt")
)

// repositoryMarker identifies a database file as a share repository.
// TryValidate rejects files without it, so a truncated or foreign
// upload never gets attached to the index.
const repositoryMarker = "slskgo-shares-1"

// LocalRepositoryName is the file name of the local host's repository
// under <data-dir>/shares.
const LocalRepositoryName = "local.db"

// AgentRepositoryName returns the file name used for a repository
// uploaded by the named agent.
func AgentRepositoryName(agent string) string {
	return agentRepositoryName(agent)
}

// Record is one indexed file: the peer-visible File plus the path it
// lives at on the owning host. For remote hosts LocalPath is only
// meaningful to the agent that produced the repository.
type Record struct {
	File      types.File `json:"file"`
	LocalPath string     `json:"localPath"`
}

// Repository is one host's share content store: a bbolt file with the
// files, dirs and meta buckets. The local repository is produced by
// the scanner; remote repositories arrive as agent uploads.
type Repository struct {
	db   *bolt.DB
	path string
}

// OpenRepository opens or creates a repository file and stamps the
// marker.
func OpenRepository(path string) (*Repository, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open share repository: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketFiles, bucketDirs, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return tx.Bucket(bucketMeta).Put(metaMarker, []byte(repositoryMarker))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, path: path}, nil
}

// TryValidate opens a candidate repository file read-only and checks
// its shape. It is called on agent uploads before they replace a live
// host binding.
func TryValidate(path string) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open candidate repository: %w: %w", err, errdefs.ErrShareValidation)
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketFiles, bucketDirs, bucketMeta} {
			if tx.Bucket(bucket) == nil {
				return errdefs.ShareValidationf("bucket %s missing", bucket)
			}
		}
		if string(tx.Bucket(bucketMeta).Get(metaMarker)) != repositoryMarker {
			return errdefs.ShareValidationf("repository marker missing or unrecognised")
		}
		return nil
	})
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the backing file path.
func (r *Repository) Path() string {
	return r.path
}

// Delete closes the repository and removes its backing file. Used when
// an agent disconnects and its upload is discarded.
func (r *Repository) Delete() error {
	if err := r.db.Close(); err != nil {
		return err
	}
	return os.Remove(r.path)
}

// SetShares records the share roots this repository was built from.
func (r *Repository) SetShares(shares []types.Share) error {
	data, err := json.Marshal(shares)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaShares, data)
	})
}

// Shares returns the recorded share roots.
func (r *Repository) Shares() ([]types.Share, error) {
	var shares []types.Share
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(metaShares)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &shares)
	})
	return shares, err
}

// Clear drops all indexed files and directories, keeping meta. The
// scanner calls it before refilling.
func (r *Repository) Clear() error {
	return r.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketFiles, bucketDirs} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutFiles upserts a batch of records keyed by virtual path.
func (r *Repository) PutFiles(records []Record) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		for i := range records {
			data, err := json.Marshal(&records[i])
			if err != nil {
				return err
			}
			if err := b.Put([]byte(records[i].File.Path), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutDirectories writes the directory table: each key is a virtual
// directory, each value the sorted list of file keys under it.
func (r *Repository) PutDirectories(dirs map[string][]string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDirs)
		for dir, files := range dirs {
			sort.Strings(files)
			data, err := json.Marshal(files)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(dir), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Find returns the record stored under a virtual path.
func (r *Repository) Find(virtual string) (Record, error) {
	var record Record
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(virtual))
		if data == nil {
			return errdefs.NotFoundf("file %q is not shared", virtual)
		}
		return json.Unmarshal(data, &record)
	})
	return record, err
}

// ForEachFile calls fn for every record in key order. Returning an
// error from fn stops the iteration; io.EOF stops it cleanly.
func (r *Repository) ForEachFile(fn func(Record) error) error {
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			return fn(record)
		})
	})
	if err == io.EOF {
		return nil
	}
	return err
}

// Directory returns the listing stored under a virtual directory.
func (r *Repository) Directory(dir string) (types.Directory, error) {
	listing := types.Directory{Path: dir}
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDirs).Get([]byte(dir))
		if data == nil {
			return errdefs.NotFoundf("directory %q is not shared", dir)
		}
		var keys []string
		if err := json.Unmarshal(data, &keys); err != nil {
			return err
		}
		files := tx.Bucket(bucketFiles)
		for _, key := range keys {
			raw := files.Get([]byte(key))
			if raw == nil {
				continue
			}
			var record Record
			if err := json.Unmarshal(raw, &record); err != nil {
				return err
			}
			listing.Files = append(listing.Files, record.File)
		}
		return nil
	})
	return listing, err
}

// Browse returns every directory listing in key order.
func (r *Repository) Browse() ([]types.Directory, error) {
	var dirs []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDirs).ForEach(func(k, v []byte) error {
			dirs = append(dirs, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	listings := make([]types.Directory, 0, len(dirs))
	for _, dir := range dirs {
		listing, err := r.Directory(dir)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

// Counts returns the number of indexed files and directories.
func (r *Repository) Counts() (files, dirs int, err error) {
	err = r.db.View(func(tx *bolt.Tx) error {
		files = tx.Bucket(bucketFiles).Stats().KeyN
		dirs = tx.Bucket(bucketDirs).Stats().KeyN
		return nil
	})
	return files, dirs, err
}

// MarkScanned stamps the completion time of the last successful scan.
func (r *Repository) MarkScanned(at time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaScannedAt, []byte(at.UTC().Format(time.RFC3339)))
	})
}

// ScannedAt returns the last scan completion time, zero if never
// scanned.
func (r *Repository) ScannedAt() (time.Time, error) {
	var at time.Time
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(metaScannedAt)
		if data == nil {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, string(data))
		if err != nil {
			return err
		}
		at = parsed
		return nil
	})
	return at, err
}

// WriteTo streams a consistent snapshot of the repository file. The
// agent uses it to upload its repository to the controller.
func (r *Repository) WriteTo(w io.Writer) (int64, error) {
	var n int64
	err := r.db.View(func(tx *bolt.Tx) error {
		written, err := tx.WriteTo(w)
		n = written
		return err
	})
	return n, err
}
