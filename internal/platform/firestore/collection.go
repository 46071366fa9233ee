package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded entity with its Firestore metadata.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Encoder converts an entity into the value written to Firestore.
type Encoder[T any] func(value T) (any, error)

// Decoder hydrates an entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises a collection query before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed access to a single Firestore collection.
type Collection[T any] struct {
	provider *Provider
	name     string
	encode   Encoder[T]
	decode   Decoder[T]
}

// NewCollection binds a typed helper to a collection. Nil codecs fall back to Firestore's native
// struct mapping.
func NewCollection[T any](provider *Provider, name string, encode Encoder[T], decode Decoder[T]) *Collection[T] {
	if encode == nil {
		encode = func(value T) (any, error) { return value, nil }
	}
	if decode == nil {
		decode = func(snap *firestore.DocumentSnapshot) (T, error) {
			var target T
			err := snap.DataTo(&target)
			return target, err
		}
	}
	return &Collection[T]{
		provider: provider,
		name:     strings.TrimSpace(name),
		encode:   encode,
		decode:   decode,
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Create writes a new document and fails with a conflict when the id is already taken.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	payload, err := c.encode(value)
	if err != nil {
		return fmt.Errorf("firestore: encode %s/%s: %w", c.name, id, err)
	}
	if _, err := doc.Create(ctx, payload); err != nil {
		return WrapError(c.op("create"), err)
	}
	return nil
}

// Set replaces or merges the document under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	payload, err := c.encode(value)
	if err != nil {
		return fmt.Errorf("firestore: encode %s/%s: %w", c.name, id, err)
	}
	if _, err := doc.Set(ctx, payload, opts...); err != nil {
		return WrapError(c.op("set"), err)
	}
	return nil
}

// Update applies field updates to an existing document. A missing document is reported as not found.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Update(ctx, updates, preconds...); err != nil {
		return WrapError(c.op("update"), err)
	}
	return nil
}

// Get fetches and decodes a document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return c.decodeSnapshot(snap)
}

// Delete removes a document. Deleting a missing document is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil {
		return WrapError(c.op("delete"), err)
	}
	return nil
}

// Query runs a query built on the collection and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		decoded, err := c.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Ref returns the collection reference from the shared client.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if c.name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the document reference for id, for use inside transactions.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("firestore: %s document id is required", c.name)
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Decode converts a snapshot obtained elsewhere (for example in a transaction) into a Document.
func (c *Collection[T]) Decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	return c.decodeSnapshot(snap)
}

// Encode exposes the collection encoder for transactional writes.
func (c *Collection[T]) Encode(value T) (any, error) {
	return c.encode(value)
}

func (c *Collection[T]) decodeSnapshot(snap *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := c.decode(snap)
	if err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       entity,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (c *Collection[T]) op(action string) string {
	name := c.name
	if name == "" {
		name = "firestore"
	}
	return name + "." + action
}
