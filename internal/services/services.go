package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshua-takyi/tourbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is a 1-based page request as read from the query string.
type Page struct {
	Page  int
	Limit int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

func inTx(ctx context.Context, tx models.TxRunner, fn func(ctx context.Context) error) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.WithTransaction(ctx, fn)
}

// ParseID turns a path parameter into an ObjectID, reporting ErrBadRequest
// for anything malformed.
func ParseID(kind, raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid %s id %q: %w", kind, raw, models.ErrBadRequest)
	}
	return id, nil
}

func validationError(err error) error {
	return fmt.Errorf("%v: %w", err, models.ErrBadRequest)
}

// pick copies the allowed keys of in into a fresh map.
func pick(in map[string]interface{}, allowed ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(allowed))
	for _, k := range allowed {
		if v, ok := in[k]; ok {
			out[k] = v
		}
	}
	return out
}
