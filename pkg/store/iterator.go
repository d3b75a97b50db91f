package store

import (
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/kvcontainer/pkg/block"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
)

// blockIterator walks one container's block keys inside a long-lived read
// transaction. It must be closed before the store is closed.
type blockIterator struct {
	txn    *badgerdb.Txn
	it     *badgerdb.Iterator
	ns     int    // length of the table namespace
	scope  []byte // namespace + container prefix
	filter KeyFilter
	closed bool
}

func (s *kvStore) newBlockIterator(containerPrefix string, filter KeyFilter) (BlockIterator, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	scope := s.blocks.key(containerPrefix)
	txn := s.db.NewTransaction(false)

	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = scope
	opts.PrefetchSize = 64

	bi := &blockIterator{
		txn:    txn,
		it:     txn.NewIterator(opts),
		ns:     len(s.blocks.ns),
		scope:  scope,
		filter: filter,
	}
	bi.SeekToFirst()
	return bi, nil
}

func (bi *blockIterator) localKey() string {
	return string(bi.it.Item().Key()[len(bi.scope):])
}

// skip advances past entries the filter rejects.
func (bi *blockIterator) skip() {
	for bi.it.ValidForPrefix(bi.scope) {
		if bi.filter == nil || bi.filter.Filter(bi.localKey()) {
			return
		}
		bi.it.Next()
	}
}

func (bi *blockIterator) SeekToFirst() {
	if bi.closed {
		return
	}
	bi.it.Seek(bi.scope)
	bi.skip()
}

func (bi *blockIterator) HasNext() bool {
	if bi.closed {
		return false
	}
	return bi.it.ValidForPrefix(bi.scope)
}

func (bi *blockIterator) NextBlock() (*block.Data, error) {
	if !bi.HasNext() {
		return nil, containererrors.NewNotFoundError(string(bi.scope), "next block")
	}

	item := bi.it.Item()
	key := string(item.Key()[bi.ns:])
	raw, err := item.ValueCopy(nil)

	bi.it.Next()
	bi.skip()

	if err != nil {
		return nil, containererrors.NewIOError("", "failed to read block "+key, err)
	}
	return block.Decode(key, raw)
}

func (bi *blockIterator) Close() error {
	if bi.closed {
		return nil
	}
	bi.closed = true
	bi.it.Close()
	bi.txn.Discard()
	return nil
}
