package cache

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/util"
)

// Watcher reports keys changed in a store by other processes.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

// Facade bundles the three stores. The stores do not coordinate: a key set
// in Session is invisible to Local and the other way round.
type Facade struct {
	Session *KV
	Local   *KV
	Memory  *Memory

	closer io.Closer
}

// NewFacade builds a Facade on explicit backends.
func NewFacade(session, local Backend) *Facade {
	f := &Facade{
		Session: NewKV("session", session),
		Local:   NewKV("local", local),
		Memory:  NewMemory(),
	}
	if c, ok := local.(io.Closer); ok {
		f.closer = c
	}
	return f
}

// Open builds the Facade described by cfg: a MapBackend for the session
// store and the configured persistent backend for the local store.
func Open(ctx context.Context, cfg *config.Config, sb *util.StateBox) (*Facade, error) {
	local, err := openLocal(ctx, cfg.Storage, sb)
	if err != nil {
		return nil, err
	}
	return NewFacade(NewMapBackend(), local), nil
}

func openLocal(ctx context.Context, sc config.StorageConfig, sb *util.StateBox) (Backend, error) {
	switch sc.Backend {
	case config.StorageBackendSQLite:
		dsn := sc.DSN
		if dsn == "" {
			if err := sb.EnsureDir(sb.StorageDir()); err != nil {
				return nil, err
			}
			dsn = filepath.Join(sb.StorageDir(), "chatdesk.db")
		}
		if sb.IsReadOnly() {
			dsn = fmt.Sprintf("file:%s?mode=ro", dsn)
		}
		return OpenSQLBackend(ctx, DriverSQLite, dsn)
	case config.StorageBackendPostgres:
		return OpenSQLBackend(ctx, DriverPostgres, sc.DSN)
	default:
		var opts []FileBackendOption
		if sc.Encrypt {
			opts = append(opts, WithPassphrase(sc.Passphrase))
		}
		b, err := OpenFileBackend(sb, filepath.Join(sb.StorageDir(), "local.json"), opts...)
		if err != nil {
			return nil, err
		}
		log.Debugf("persistent store: %s", b.Path())
		return b, nil
	}
}

// Watcher returns the change notifier of the local store, or nil when the
// backend cannot report changes.
func (f *Facade) Watcher() Watcher {
	if w, ok := f.Local.Backend().(Watcher); ok {
		return w
	}
	return nil
}

// Close releases the persistent backend.
func (f *Facade) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
