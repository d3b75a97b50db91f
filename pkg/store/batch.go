package store

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// Batch accumulates writes across the tables of one store. Nothing is
// visible until CommitBatch applies the whole batch in one transaction.
type Batch struct {
	owner *kvStore
	ops   []batchOp
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

func (b *Batch) remove(key []byte) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

func (s *kvStore) NewBatch() *Batch {
	return &Batch{owner: s}
}

func (s *kvStore) CommitBatch(b *Batch) error {
	if b.owner != s {
		return fmt.Errorf("batch does not belong to store %s", s.path)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, op := range b.ops {
			if op.delete {
				if err := txn.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit batch of %d operations: %w", len(b.ops), err)
	}
	b.ops = nil
	return nil
}
