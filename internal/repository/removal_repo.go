package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kursadbilgin/dncl-gateway/internal/domain"
)

const connectionCheckTimeout = 5 * time.Second

// DBResolver yields the connection for a logical database. Invalidate is
// called after a failed write so the resolver can drop a dead connection.
type DBResolver interface {
	Get(ctx context.Context, database string) (*gorm.DB, error)
	Invalidate(ctx context.Context, database string, db *gorm.DB)
}

type RemovalRepository interface {
	RecordRemoval(ctx context.Context, record domain.AuditRecord) error
}

type GormRemovalRepo struct {
	dbs      DBResolver
	database string
}

func NewGormRemovalRepo(dbs DBResolver, database string) (*GormRemovalRepo, error) {
	if dbs == nil {
		return nil, errors.New("db resolver is required")
	}
	if strings.TrimSpace(database) == "" {
		return nil, errors.New("database name is required")
	}
	return &GormRemovalRepo{dbs: dbs, database: database}, nil
}

func (r *GormRemovalRepo) RecordRemoval(ctx context.Context, record domain.AuditRecord) error {
	if strings.TrimSpace(record.PhoneNumber) == "" || strings.TrimSpace(record.ListName) == "" {
		return fmt.Errorf("%w: audit record requires phone number and list name", domain.ErrValidation)
	}

	db, err := r.dbs.Get(ctx, r.database)
	if err != nil {
		return fmt.Errorf("resolve audit database: %w", err)
	}

	if err := db.WithContext(ctx).Create(removalModelFromDomain(record)).Error; err != nil {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectionCheckTimeout)
		r.dbs.Invalidate(checkCtx, r.database, db)
		cancel()
		return fmt.Errorf("insert removal audit row: %w", err)
	}
	return nil
}
