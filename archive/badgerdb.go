/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
	"github.com/parley-im/parley/log"
)

type badgerDBArchive struct {
	db *badger.DB
}

func newBadgerDB(dataDir string) (*badgerDBArchive, error) {
	if err := os.MkdirAll(filepath.Dir(dataDir), os.ModePerm); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	log.Infof("message archive opened at %s", dataDir)
	return &badgerDBArchive{db: db}, nil
}

func (b *badgerDBArchive) Store(_ context.Context, r Record) error {
	if len(r.ID) == 0 {
		r.ID = uuid.New().String()
	}
	var buf bytes.Buffer
	if err := r.ToBytes(&buf); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.recordKey(&r), buf.Bytes())
	})
}

func (b *badgerDBArchive) Fetch(_ context.Context, account, peer string, limit int) ([]Record, error) {
	var records []Record
	prefix := b.peerPrefix(account, peer)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		iter := txn.NewIterator(opts)
		defer iter.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for iter.Seek(seek); iter.ValidForPrefix(prefix); iter.Next() {
			val, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var r Record
			if err := r.FromBytes(bytes.NewBuffer(val)); err != nil {
				return err
			}
			records = append(records, r)
			if limit > 0 && len(records) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (b *badgerDBArchive) Close(_ context.Context) error {
	return b.db.Close()
}

func (b *badgerDBArchive) peerPrefix(account, peer string) []byte {
	return []byte("msg:" + account + ":" + peer + ":")
}

// recordKey sorts lexicographically by timestamp within a peer prefix.
func (b *badgerDBArchive) recordKey(r *Record) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s:%020d:%s", r.Account, r.Peer, r.Stamp.UnixNano(), r.ID))
}
