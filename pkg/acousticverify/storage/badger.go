package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"github.com/vmihailenco/msgpack/v5"
)

// Key layout:
//
//	emb:<fingerprint id>:<segment index, 8 digits>  -> msgpack EmbeddingRecord
//	reg:<fingerprint id>                            -> msgpack Registration
//	meta:dimension                                  -> msgpack int
const (
	embPrefix    = "emb:"
	regPrefix    = "reg:"
	dimensionKey = "meta:dimension"
)

// BadgerStore keeps records in an embedded BadgerDB. Each Insert runs in one
// read-write transaction.
type BadgerStore struct {
	db *badger.DB
}

type BadgerOptions struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string

	InMemory bool

	// Logger receives badger's warnings and errors. Nil silences badger.
	Logger badger.Logger
}

func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("storage: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(nil)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func embKey(fingerprintID string, segmentIndex int) []byte {
	return fmt.Appendf(nil, "%s%s:%08d", embPrefix, fingerprintID, segmentIndex)
}

func embFingerprintPrefix(fingerprintID string) []byte {
	return []byte(embPrefix + fingerprintID + ":")
}

func regKey(fingerprintID string) []byte {
	return []byte(regPrefix + fingerprintID)
}

func getMsgpack(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, v)
	})
}

func setMsgpack(txn *badger.Txn, key []byte, v any) error {
	val, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, val)
}

// scan calls fn with the value of every key under prefix.
func scan(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error { return fn(key, val) }); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerStore) Insert(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dim, err := checkBatch(records)
	if err != nil || dim == 0 {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return putRecords(txn, fingerprintID, records, dim)
	})
}

// Replace deletes the records of fingerprintID and writes records in one
// read-write transaction.
func (b *BadgerStore) Replace(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dim, err := checkBatch(records)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := deleteEmbeddings(txn, fingerprintID); err != nil {
			return err
		}
		if dim == 0 {
			return nil
		}
		return putRecords(txn, fingerprintID, records, dim)
	})
}

func putRecords(txn *badger.Txn, fingerprintID string, records []models.EmbeddingRecord, dim int) error {
	var stored int
	err := getMsgpack(txn, []byte(dimensionKey), &stored)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		if err := setMsgpack(txn, []byte(dimensionKey), dim); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("reading stored dimension: %w", err)
	case stored != dim:
		return dimensionError(dim, stored)
	}

	for _, r := range records {
		r.FingerprintID = fingerprintID
		if err := setMsgpack(txn, embKey(fingerprintID, r.SegmentIndex), r); err != nil {
			return err
		}
	}
	return nil
}

// deleteEmbeddings removes every record of fingerprintID. The stored
// dimension is dropped with the last record.
func deleteEmbeddings(txn *badger.Txn, fingerprintID string) error {
	if err := deletePrefix(txn, embFingerprintPrefix(fingerprintID)); err != nil {
		return err
	}
	if len(firstKey(txn, []byte(embPrefix))) > 0 {
		return nil
	}
	err := txn.Delete([]byte(dimensionKey))
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("clearing stored dimension: %w", err)
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return fmt.Errorf("deleting %s: %w", k, err)
		}
	}
	return nil
}

// firstKey returns the first key under prefix, or nil.
func firstKey(txn *badger.Txn, prefix []byte) []byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	if !it.ValidForPrefix(prefix) {
		return nil
	}
	return it.Item().KeyCopy(nil)
}

func (b *BadgerStore) DeleteByFingerprintID(ctx context.Context, fingerprintID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return deleteEmbeddings(txn, fingerprintID)
	})
}

func (b *BadgerStore) Search(ctx context.Context, vector []float64, topK int, filterFingerprintID string) ([]models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	prefix := []byte(embPrefix)
	if filterFingerprintID != "" {
		prefix = embFingerprintPrefix(filterFingerprintID)
	}

	var hits []models.SearchHit
	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefix, func(key, val []byte) error {
			var r models.EmbeddingRecord
			if err := msgpack.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			if len(r.Vector) != len(vector) {
				return dimensionError(len(vector), len(r.Vector))
			}
			hits = append(hits, hitOf(r, vector))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nearest(hits, topK), nil
}

func (b *BadgerStore) SaveRegistration(ctx context.Context, reg models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return setMsgpack(txn, regKey(reg.FingerprintID), reg)
	})
}

func (b *BadgerStore) GetRegistration(ctx context.Context, fingerprintID string) (*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var reg models.Registration
	err := b.db.View(func(txn *badger.Txn) error {
		return getMsgpack(txn, regKey(fingerprintID), &reg)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (b *BadgerStore) FindByDigest(ctx context.Context, sha256 string) ([]models.Registration, error) {
	all, err := b.ListRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Registration
	for _, reg := range all {
		if reg.WholeDigest.SHA256 == sha256 {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (b *BadgerStore) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Registration
	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(regPrefix), func(key, val []byte) error {
			var reg models.Registration
			if err := msgpack.Unmarshal(val, &reg); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			out = append(out, reg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRegistrations(out)
	return out, nil
}

func (b *BadgerStore) DeleteRegistration(ctx context.Context, fingerprintID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(regKey(fingerprintID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(regKey(fingerprintID))
	})
}

// badgerLogger routes badger warnings and errors to the application logger.
type badgerLogger struct {
	log *logger.Logger
}

// NewBadgerLogger adapts l for badger. Info output is dropped and debug output
// is kept at DEBUG.
func NewBadgerLogger(l *logger.Logger) badger.Logger {
	if l == nil {
		l = logger.GetLogger()
	}
	return badgerLogger{log: l.With("badger")}
}

func (b badgerLogger) Errorf(f string, v ...interface{}) {
	b.log.Errorf(strings.TrimSpace(f), v...)
}

func (b badgerLogger) Warningf(f string, v ...interface{}) {
	b.log.Warnf(strings.TrimSpace(f), v...)
}

func (b badgerLogger) Infof(string, ...interface{}) {}

func (b badgerLogger) Debugf(f string, v ...interface{}) {
	b.log.Debugf(strings.TrimSpace(f), v...)
}
