package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/kvdoc/pkg/jsonpath"
	bolt "go.etcd.io/bbolt"
)

// backupBucket is the fixed bucket name used inside a backup file; a backup
// file is itself a tiny single-bucket bbolt database.
var backupBucket = []byte("data")

// BoltEngine implements Engine on top of go.etcd.io/bbolt, treating one CF
// as one bucket.
type BoltEngine struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the kvdoc database file under dataDir.
func Open(dataDir string) (*BoltEngine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "kvdoc.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	return &BoltEngine{db: db}, nil
}

func (e *BoltEngine) Close() error {
	return e.db.Close()
}

func (e *BoltEngine) CFExists(cf string) (bool, error) {
	exists := false
	err := e.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket([]byte(cf)) != nil
		return nil
	})
	return exists, err
}

func (e *BoltEngine) CreateCF(cf string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte(cf))
		if err == bolt.ErrBucketExists {
			return newError(InvalidColumnFamily, "create_cf", cf, fmt.Errorf("column family already exists"))
		}
		if err != nil {
			return newError(Io, "create_cf", cf, err)
		}
		return nil
	})
}

func (e *BoltEngine) DropCF(cf string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(cf))
		if err == bolt.ErrBucketNotFound {
			return newError(InvalidColumnFamily, "drop_cf", cf, fmt.Errorf("column family does not exist"))
		}
		if err != nil {
			return newError(Io, "drop_cf", cf, err)
		}
		return nil
	})
}

func (e *BoltEngine) bucket(tx *bolt.Tx, op, cf string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(cf))
	if b == nil {
		return nil, newError(InvalidColumnFamily, op, cf, fmt.Errorf("column family does not exist"))
	}
	return b, nil
}

func (e *BoltEngine) GetCF(cf, key string, out any) error {
	var raw []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		b, err := e.bucket(tx, "get_cf", cf)
		if err != nil {
			return err
		}
		v := b.Get([]byte(key))
		if v == nil {
			return newError(KeyNotFound, "get_cf", cf, fmt.Errorf("key %q not found", key))
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(Serialization, "get_cf", cf, err)
	}
	return nil
}

func (e *BoltEngine) InsertCF(cf, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return newError(Serialization, "insert_cf", cf, err)
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := e.bucket(tx, "insert_cf", cf)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), data); err != nil {
			return newError(Io, "insert_cf", cf, err)
		}
		return nil
	})
}

func (e *BoltEngine) DeleteCF(cf, key string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := e.bucket(tx, "delete_cf", cf)
		if err != nil {
			return err
		}
		if err := b.Delete([]byte(key)); err != nil {
			return newError(Io, "delete_cf", cf, err)
		}
		return nil
	})
}

func (e *BoltEngine) BatchInsertCF(cf string, pairs []KeyValue) error {
	encoded := make([][]byte, len(pairs))
	for i, kv := range pairs {
		data, err := json.Marshal(kv.Value)
		if err != nil {
			return newError(Serialization, "batch_insert_cf", cf, fmt.Errorf("item %d: %w", i, err))
		}
		encoded[i] = data
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := e.bucket(tx, "batch_insert_cf", cf)
		if err != nil {
			return err
		}
		for i, kv := range pairs {
			if err := b.Put([]byte(kv.Key), encoded[i]); err != nil {
				return newError(Io, "batch_insert_cf", cf, err)
			}
		}
		return nil
	})
}

// scanRange walks cf per opts and returns matching {key, value} pairs in
// the requested direction, decoding each value as raw JSON.
func (e *BoltEngine) scanRange(cf string, opts RangeOptions) ([]KeyValue, error) {
	var results []KeyValue
	err := e.db.View(func(tx *bolt.Tx) error {
		b, err := e.bucket(tx, "get_range_cf", cf)
		if err != nil {
			return err
		}
		c := b.Cursor()
		count := 0
		within := func() bool { return opts.Limit <= 0 || count < opts.Limit }
		to := opts.To
		if to == "" {
			to = maxKeySentinel
		}

		if opts.Dir == Reverse {
			k, v := c.Seek([]byte(to))
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
			for ; k != nil && within() && (opts.From == "" || string(k) >= opts.From); k, v = c.Prev() {
				var val any
				if err := json.Unmarshal(v, &val); err != nil {
					return newError(Serialization, "get_range_cf", cf, err)
				}
				results = append(results, KeyValue{Key: string(k), Value: val})
				count++
			}
			return nil
		}

		for k, v := c.Seek([]byte(opts.From)); k != nil && within() && string(k) < to; k, v = c.Next() {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return newError(Serialization, "get_range_cf", cf, err)
			}
			results = append(results, KeyValue{Key: string(k), Value: val})
			count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *BoltEngine) GetRangeCF(cf string, opts RangeOptions, out any) error {
	pairs, err := e.scanRange(cf, opts)
	if err != nil {
		return err
	}
	values := make([]any, len(pairs))
	for i, kv := range pairs {
		values[i] = kv.Value
	}
	return remarshal(values, out, cf, "get_range_cf")
}

func (e *BoltEngine) GetRangeCFWithKeys(cf string, opts RangeOptions) ([]KeyValue, error) {
	return e.scanRange(cf, opts)
}

// queryAll decodes every value in cf, in bucket iteration order.
func (e *BoltEngine) queryAll(cf string) ([]KeyValue, error) {
	var pairs []KeyValue
	err := e.db.View(func(tx *bolt.Tx) error {
		b, err := e.bucket(tx, "query_cf", cf)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return newError(Serialization, "query_cf", cf, err)
			}
			pairs = append(pairs, KeyValue{Key: string(k), Value: val})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (e *BoltEngine) QueryCF(cf, expr string, out any) error {
	matched, err := e.queryCFWithKeys(cf, expr)
	if err != nil {
		return err
	}
	values := make([]any, len(matched))
	for i, kv := range matched {
		values[i] = kv.Value
	}
	return remarshal(values, out, cf, "query_cf")
}

func (e *BoltEngine) QueryCFWithKeys(cf, expr string) ([]KeyValue, error) {
	return e.queryCFWithKeys(cf, expr)
}

func (e *BoltEngine) queryCFWithKeys(cf, expr string) ([]KeyValue, error) {
	compiled, err := jsonpath.Parse(expr)
	if err != nil {
		return nil, newError(Query, "query_cf", cf, err)
	}
	pairs, err := e.queryAll(cf)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(pairs))
	for i, kv := range pairs {
		values[i] = kv.Value
	}
	idx, err := compiled.MatchIndices(values)
	if err != nil {
		return nil, newError(Query, "query_cf", cf, err)
	}
	matched := make([]KeyValue, len(idx))
	for i, j := range idx {
		matched[i] = pairs[j]
	}
	return matched, nil
}

// remarshal round-trips values through JSON into out, the same "marshal the
// assembled slice, then unmarshal into the caller's type" trick used to give
// GetRangeCF/QueryCF a generic-looking <T> result without generic methods
// (Go interfaces can't have type-parameterized methods).
func remarshal(values []any, out any, cf, op string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return newError(Serialization, op, cf, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newError(Serialization, op, cf, err)
	}
	return nil
}

// CreateBackup snapshots cf into a standalone single-bucket bbolt file at
// path. See DESIGN.md for why this, rather than a native per-CF SST export,
// is how kvdoc realizes spec.md's backup contract on top of bbolt.
func (e *BoltEngine) CreateBackup(cf, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return newError(Io, "create_backup", cf, err)
	}
	backupDB, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return newError(Io, "create_backup", cf, err)
	}
	defer backupDB.Close()

	err = e.db.View(func(srcTx *bolt.Tx) error {
		srcBucket, err := e.bucket(srcTx, "create_backup", cf)
		if err != nil {
			return err
		}
		return backupDB.Update(func(dstTx *bolt.Tx) error {
			dstBucket, err := dstTx.CreateBucketIfNotExists(backupBucket)
			if err != nil {
				return err
			}
			return srcBucket.ForEach(func(k, v []byte) error {
				return dstBucket.Put(append([]byte(nil), k...), append([]byte(nil), v...))
			})
		})
	})
	if err != nil {
		if se, ok := err.(*Error); ok {
			return se
		}
		return newError(Io, "create_backup", cf, err)
	}
	return nil
}

// RestoreBackup replaces cf's contents with the snapshot at path.
func (e *BoltEngine) RestoreBackup(cf, path string) error {
	backupDB, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return newError(Io, "restore_backup", cf, err)
	}
	defer backupDB.Close()

	return e.db.Update(func(dstTx *bolt.Tx) error {
		if dstTx.Bucket([]byte(cf)) != nil {
			if err := dstTx.DeleteBucket([]byte(cf)); err != nil {
				return newError(Io, "restore_backup", cf, err)
			}
		}
		dstBucket, err := dstTx.CreateBucket([]byte(cf))
		if err != nil {
			return newError(Io, "restore_backup", cf, err)
		}
		return backupDB.View(func(srcTx *bolt.Tx) error {
			srcBucket := srcTx.Bucket(backupBucket)
			if srcBucket == nil {
				return newError(Io, "restore_backup", cf, fmt.Errorf("backup file has no data bucket"))
			}
			return srcBucket.ForEach(func(k, v []byte) error {
				return dstBucket.Put(append([]byte(nil), k...), append([]byte(nil), v...))
			})
		})
	})
}

func (e *BoltEngine) CFSizeOf(cf string) (CFSize, error) {
	var size CFSize
	err := e.db.View(func(tx *bolt.Tx) error {
		b, err := e.bucket(tx, "get_cf_size", cf)
		if err != nil {
			return err
		}
		var total int64
		_ = b.ForEach(func(k, v []byte) error {
			total += int64(len(k) + len(v))
			return nil
		})
		size.SSTBytes = total
		return nil
	})
	return size, err
}
