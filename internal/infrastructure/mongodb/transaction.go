package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// SessionRunner is satisfied by both pkg/mongodb clients
type SessionRunner interface {
	WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error
}

// TransactionManager implements domain.TransactionManager on MongoDB
// multi-document transactions. The repositories pick the session up from
// the context they are handed.
type TransactionManager struct {
	client SessionRunner
}

// NewTransactionManager wraps a client exposing WithTransaction
func NewTransactionManager(client SessionRunner) *TransactionManager {
	return &TransactionManager{client: client}
}

// WithinTransaction runs fn in a transaction, joining the caller's session
// when ctx already carries one
func (m *TransactionManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	return m.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx)
	})
}
