package store

import (
	"context"
	"errors"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on Cloud Firestore, using the client created from the
// Firebase app.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreStore wraps an initialized Firestore client.
func NewFirestoreStore(client *firestore.Client, logger *zap.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, logger: logger}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Document{}, firestoreError("get "+collection+"/"+id, err)
	}
	return Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

func (s *FirestoreStore) query(collection string, q Query) firestore.Query {
	fq := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	return fq
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	snaps, err := s.query(collection, q).Documents(ctx).GetAll()
	if err != nil {
		return nil, firestoreError("query "+collection, err)
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}
	return docs, nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection, id string, fields Fields) (string, error) {
	coll := s.client.Collection(collection)
	ref := coll.NewDoc()
	if id != "" {
		ref = coll.Doc(id)
	}
	if _, err := ref.Create(ctx, toFirestore(fields)); err != nil {
		return "", firestoreError("create "+collection+"/"+ref.ID, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, toUpdates(fields))
	return firestoreError("update "+collection+"/"+id, err)
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists)
	return firestoreError("delete "+collection+"/"+id, err)
}

// Batch runs the ops inside one transaction; creates keep their must-not-exist precondition.
func (s *FirestoreStore) Batch(ctx context.Context, ops []Op) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, op := range ops {
			ref := s.client.Collection(op.Collection).Doc(op.ID)
			var err error
			switch op.Kind {
			case OpCreate:
				err = tx.Create(ref, toFirestore(op.Fields))
			case OpUpdate:
				err = tx.Update(ref, toUpdates(op.Fields))
			case OpDelete:
				err = tx.Delete(ref, firestore.Exists)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return firestoreError("batch", err)
}

// Subscribe attaches a snapshot listener. The first snapshot Firestore delivers lists every
// matching document as added, which is exactly the initial snapshot contract.
func (s *FirestoreStore) Subscribe(ctx context.Context, collection string, q Query, fn func(Snapshot)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.query(collection, q).Snapshots(ctx)

	go func() {
		first := true
		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					s.logger.Error("firestore listener stopped",
						zap.String("collection", collection),
						zap.Stringer("query", q),
						zap.Error(err))
				}
				return
			}
			changes := make([]Change, 0, len(qs.Changes))
			for _, ch := range qs.Changes {
				doc := Document{ID: ch.Doc.Ref.ID, Fields: ch.Doc.Data()}
				switch ch.Kind {
				case firestore.DocumentAdded:
					changes = append(changes, Change{Kind: Added, Document: doc})
				case firestore.DocumentModified:
					changes = append(changes, Change{Kind: Modified, Document: doc})
				case firestore.DocumentRemoved:
					changes = append(changes, Change{Kind: Removed, Document: doc})
				}
			}
			if !first && len(changes) == 0 {
				continue
			}
			fn(Snapshot{Initial: first, Changes: changes})
			first = false
		}
	}()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			it.Stop()
		})
	}), nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func toFirestore(fields Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = firestore.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}

func toUpdates(fields Fields) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range toFirestore(fields) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	return updates
}

func firestoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isKind(err) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return apperrors.Wrap(apperrors.ErrNotFound, "%s", op)
	case codes.AlreadyExists:
		return apperrors.Wrap(apperrors.ErrAlreadyExists, "%s", op)
	case codes.PermissionDenied:
		return apperrors.Wrap(apperrors.ErrPermissionDenied, "%s", op)
	default:
		return apperrors.Unavailable(op, err)
	}
}

func isKind(err error) bool {
	for _, kind := range []error{
		apperrors.ErrNotFound,
		apperrors.ErrAlreadyExists,
		apperrors.ErrPermissionDenied,
		apperrors.ErrValidation,
		apperrors.ErrStoreUnavailable,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
