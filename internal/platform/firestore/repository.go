package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers wrapping Firestore collection access. Every helper
// enlists in the transaction carried by ctx when one is present.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	decode     Decoder[T]
}

// NewBaseRepository constructs a BaseRepository bound to a collection.
func NewBaseRepository[T any](provider *Provider, collection string, decode Decoder[T]) *BaseRepository[T] {
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		decode:     decode,
	}
}

// Get fetches the document by ID.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return zero, err
	}
	return r.GetRef(ctx, doc)
}

// GetRef fetches an arbitrary document reference, e.g. one in a subcollection.
func (r *BaseRepository[T]) GetRef(ctx context.Context, doc *firestore.DocumentRef) (T, error) {
	var zero T
	var (
		snap *firestore.DocumentSnapshot
		err  error
	)
	if tx, ok := TxFromContext(ctx); ok {
		snap, err = tx.Get(doc)
	} else {
		snap, err = doc.Get(ctx)
	}
	if err != nil {
		return zero, WrapError(r.op("get"), err)
	}
	value, err := r.decode(snap)
	if err != nil {
		return zero, fmt.Errorf("firestore: decode document %s: %w", doc.ID, err)
	}
	return value, nil
}

// GetAll fetches several documents, preserving order. Missing documents are reported via found.
func (r *BaseRepository[T]) GetAll(ctx context.Context, ids []string) (values []T, found []bool, err error) {
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := r.DocumentRef(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, ref)
	}
	var snaps []*firestore.DocumentSnapshot
	if tx, ok := TxFromContext(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		client, cerr := r.provider.Client(ctx)
		if cerr != nil {
			return nil, nil, cerr
		}
		snaps, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, nil, WrapError(r.op("get_all"), err)
	}
	values = make([]T, len(snaps))
	found = make([]bool, len(snaps))
	for i, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		value, err := r.decode(snap)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
		}
		values[i] = value
		found[i] = true
	}
	return values, found, nil
}

// Set upserts value under id.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	return r.SetRef(ctx, doc, value)
}

// SetRef upserts value at doc.
func (r *BaseRepository[T]) SetRef(ctx context.Context, doc *firestore.DocumentRef, value any) error {
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(r.op("set"), tx.Set(doc, value))
	}
	_, err := doc.Set(ctx, value)
	return WrapError(r.op("set"), err)
}

// CreateRef inserts value at doc, failing with a conflict when the document exists.
func (r *BaseRepository[T]) CreateRef(ctx context.Context, doc *firestore.DocumentRef, value any) error {
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(r.op("create"), tx.Create(doc, value))
	}
	_, err := doc.Create(ctx, value)
	return WrapError(r.op("create"), err)
}

// Delete removes the document.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(r.op("delete"), tx.Delete(doc))
	}
	_, err = doc.Delete(ctx)
	return WrapError(r.op("delete"), err)
}

// Query executes a query built from base and returns decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, base firestore.Query, build QueryBuilder) ([]T, error) {
	query := base
	if build != nil {
		query = build(query)
	}
	var iter *firestore.DocumentIterator
	if tx, ok := TxFromContext(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var out []T
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.decode(snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

// Collection returns the bound collection reference.
func (r *BaseRepository[T]) Collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

// DocumentRef exposes the underlying document reference.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && strings.TrimSpace(r.collection) != "" {
		name = strings.TrimSpace(r.collection)
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}
