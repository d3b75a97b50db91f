package store

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"syscall"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/kvcontainer/internal/logger"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
)

// badgerLogger routes badger's internal logging through internal/logger,
// tagged with the store path. Badger is chatty at info level, so its info
// lines are demoted to debug.
type badgerLogger struct {
	path string
}

func (l badgerLogger) Errorf(format string, args ...any) {
	logger.StoreLogf(slog.LevelError, l.path, "badger: "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	logger.StoreLogf(slog.LevelWarn, l.path, "badger: "+format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	logger.StoreLogf(slog.LevelDebug, l.path, "badger: "+format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	logger.StoreLogf(slog.LevelDebug, l.path, "badger: "+format, args...)
}

func badgerOptions(path string, opts Options) badgerdb.Options {
	bo := badgerdb.DefaultOptions(path).
		WithLogger(badgerLogger{path: path}).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(max(opts.NumVersionsToKeep, 1)).
		WithBlockCacheSize(opts.BlockCacheSize).
		WithIndexCacheSize(opts.IndexCacheSize)

	if opts.MemTableSize > 0 {
		bo = bo.WithMemTableSize(opts.MemTableSize)
	}
	if opts.ValueLogFileSize > 0 {
		bo = bo.WithValueLogFileSize(opts.ValueLogFileSize)
	}
	return bo
}

// openBadger opens the badger directory at path. When create is true the
// directory must not exist yet; otherwise it must.
func openBadger(path string, opts Options, create bool) (*badgerdb.DB, error) {
	_, statErr := os.Stat(path)
	switch {
	case create && statErr == nil:
		return nil, containererrors.NewAlreadyExistsError(path)
	case !create && errors.Is(statErr, os.ErrNotExist):
		return nil, containererrors.NewMissingStoreFileError(path)
	case statErr != nil && !errors.Is(statErr, os.ErrNotExist):
		return nil, containererrors.NewStoreOpenError(path, statErr)
	}

	db, err := badgerdb.Open(badgerOptions(path, opts))
	if err != nil {
		if isLockError(err) {
			return nil, containererrors.NewResourceBusyError(path, "store is already open")
		}
		return nil, containererrors.NewStoreOpenError(path, err)
	}
	return db, nil
}

// isLockError reports whether badger refused to open because another
// instance holds the directory lock. Badger formats the cause into the
// message rather than wrapping it, so both forms are checked.
func isLockError(err error) bool {
	if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	return strings.Contains(err.Error(), "Cannot acquire directory lock")
}
