package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const connectTimeout = 10 * time.Second

// OpenFunc opens a connection to the named logical database.
type OpenFunc func(ctx context.Context, database string) (*gorm.DB, error)

// Pool hands out one connection per logical database. Cached connections
// are returned as is; database/sql reconnects underneath them. A connection
// is only checked, and dropped if dead, after a caller reports a failed
// write through Invalidate.
type Pool struct {
	open  OpenFunc
	ping  func(ctx context.Context, db *gorm.DB) error
	close func(db *gorm.DB) error

	logger *zap.Logger

	connects singleflight.Group

	mu    sync.Mutex
	conns map[string]*gorm.DB
}

func NewPool(open OpenFunc, logger *zap.Logger) (*Pool, error) {
	if open == nil {
		return nil, errors.New("open func is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		open:   open,
		ping:   ping,
		close:  closeDB,
		logger: logger,
		conns:  make(map[string]*gorm.DB),
	}, nil
}

// DSNOpener opens databases with NewPostgres, deriving the DSN per database.
func DSNOpener(dsnFor func(database string) string) OpenFunc {
	return func(ctx context.Context, database string) (*gorm.DB, error) {
		return NewPostgres(ctx, dsnFor(database))
	}
}

// Get returns the cached connection for database or opens one. Concurrent
// callers for the same database share a single open; callers for other
// databases never wait on it.
func (p *Pool) Get(ctx context.Context, database string) (*gorm.DB, error) {
	database = strings.TrimSpace(database)
	if database == "" {
		return nil, errors.New("database name is required")
	}

	if db, ok := p.cached(database); ok {
		return db, nil
	}

	ch := p.connects.DoChan(database, func() (any, error) {
		if db, ok := p.cached(database); ok {
			return db, nil
		}

		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectTimeout)
		defer cancel()

		db, err := p.open(openCtx, database)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.conns[database] = db
		p.mu.Unlock()

		p.logger.Info("database connection established", zap.String("database", database))
		return db, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connect to database %q: %w", database, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("connect to database %q: %w", database, res.Err)
		}
		return res.Val.(*gorm.DB), nil
	}
}

// Invalidate checks db after a failed operation and drops it from the pool
// when it no longer answers, so the next Get reconnects.
func (p *Pool) Invalidate(ctx context.Context, database string, db *gorm.DB) {
	database = strings.TrimSpace(database)
	if db == nil {
		return
	}

	if err := p.ping(ctx, db); err != nil {
		p.drop(database, db, err)
	}
}

func (p *Pool) drop(database string, db *gorm.DB, cause error) {
	p.mu.Lock()
	current, ok := p.conns[database]
	if !ok || current != db {
		p.mu.Unlock()
		return
	}
	delete(p.conns, database)
	p.mu.Unlock()

	p.logger.Warn("dropping stale database connection",
		zap.String("database", database),
		zap.Error(cause),
	)
	if err := p.close(db); err != nil {
		p.logger.Debug("close stale connection failed", zap.String("database", database), zap.Error(err))
	}
}

// Ping checks the named database, connecting first if needed. A connection
// that fails the check is dropped.
func (p *Pool) Ping(ctx context.Context, database string) error {
	db, err := p.Get(ctx, database)
	if err != nil {
		return err
	}
	if err := p.ping(ctx, db); err != nil {
		p.drop(strings.TrimSpace(database), db, err)
		return err
	}
	return nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, db := range p.conns {
		if err := p.close(db); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
		delete(p.conns, name)
	}
	return errors.Join(errs...)
}

func (p *Pool) cached(database string) (*gorm.DB, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	db, ok := p.conns[database]
	return db, ok
}
