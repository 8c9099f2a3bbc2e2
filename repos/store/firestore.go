package store

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cummap/backend/pkg/idgen"
	"github.com/cummap/backend/pkg/logging"
)

// Firestore maps store paths onto Cloud Firestore: the first segment names a
// collection, the second a document and any further segments a nested field
// of that document.
type Firestore struct {
	client *firestore.Client
	logger *zap.SugaredLogger
}

func NewFirestore(client *firestore.Client, logger *zap.SugaredLogger) *Firestore {
	return &Firestore{
		client: client,
		logger: logging.OrNop(logger),
	}
}

type firestorePath struct {
	collection string
	doc        string
	field      firestore.FieldPath
}

func parseFirestorePath(path string) (firestorePath, error) {
	segments := SplitPath(path)
	switch len(segments) {
	case 0:
		return firestorePath{}, xerrors.Errorf("%q: %w", path, ErrUnsupportedPath)
	case 1:
		return firestorePath{collection: segments[0]}, nil
	case 2:
		return firestorePath{collection: segments[0], doc: segments[1]}, nil
	default:
		return firestorePath{collection: segments[0], doc: segments[1], field: firestore.FieldPath(segments[2:])}, nil
	}
}

func (s *Firestore) Read(ctx context.Context, path string) (Snapshot, error) {
	p, err := parseFirestorePath(path)
	if err != nil {
		return Snapshot{}, err
	}

	if p.doc == "" {
		value, err := s.readCollection(ctx, p.collection)
		if err != nil {
			return Snapshot{}, err
		}
		return NewSnapshot(JoinPath(path), value)
	}

	doc, err := s.client.Collection(p.collection).Doc(p.doc).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return NewSnapshot(JoinPath(path), nil)
		}
		return Snapshot{}, xerrors.Errorf("read %s: %w", path, err)
	}
	return NewSnapshot(JoinPath(path), docValue(doc, p.field))
}

func (s *Firestore) readCollection(ctx context.Context, collection string) (map[string]any, error) {
	iter := s.client.Collection(collection).Documents(ctx)
	defer iter.Stop()

	out := map[string]any{}
	for {
		doc, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, xerrors.Errorf("read collection %s: %w", collection, err)
		}
		out[doc.Ref.ID] = doc.Data()
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *Firestore) Write(ctx context.Context, path string, value any) error {
	p, err := parseFirestorePath(path)
	if err != nil {
		return err
	}
	if p.doc == "" {
		return xerrors.Errorf("write collection %q: %w", path, ErrUnsupportedPath)
	}
	v, err := normalize(value)
	if err != nil {
		return xerrors.Errorf("write %s: %w", path, err)
	}
	ref := s.client.Collection(p.collection).Doc(p.doc)

	if len(p.field) == 0 {
		if v == nil {
			_, err = ref.Delete(ctx)
		} else {
			data, ok := v.(map[string]any)
			if !ok {
				return xerrors.Errorf("write %s: documents must be objects: %w", path, ErrInvalidValue)
			}
			_, err = ref.Set(ctx, data)
		}
		if err != nil {
			return xerrors.Errorf("write %s: %w", path, err)
		}
		return nil
	}

	if v == nil {
		_, err = ref.Update(ctx, []firestore.Update{{FieldPath: p.field, Value: firestore.Delete}})
		if err != nil && status.Code(err) != codes.NotFound {
			return xerrors.Errorf("delete %s: %w", path, err)
		}
		return nil
	}
	if _, err = ref.Set(ctx, nest(p.field, v), firestore.Merge(p.field)); err != nil {
		return xerrors.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *Firestore) Push(ctx context.Context, path string, value any) (string, error) {
	p, err := parseFirestorePath(path)
	if err != nil {
		return "", err
	}
	if p.doc != "" {
		key := idgen.NewKey()
		return key, s.Write(ctx, JoinPath(path, key), value)
	}

	v, err := normalize(value)
	if err != nil {
		return "", xerrors.Errorf("push %s: %w", path, err)
	}
	data, ok := v.(map[string]any)
	if !ok {
		return "", xerrors.Errorf("push %s: documents must be objects: %w", path, ErrInvalidValue)
	}
	ref := s.client.Collection(p.collection).NewDoc()
	if _, err := ref.Set(ctx, data); err != nil {
		return "", xerrors.Errorf("push %s: %w", path, err)
	}
	return ref.ID, nil
}

// Subscribe waits for the first snapshot so fn has seen the current value
// when it returns, as with the other backends.
func (s *Firestore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	p, err := parseFirestorePath(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	var (
		next func() (Snapshot, error)
		stop func()
	)
	if p.doc == "" {
		iter := s.client.Collection(p.collection).Snapshots(ctx)
		next = func() (Snapshot, error) { return s.collectionSnapshot(path, iter) }
		stop = iter.Stop
	} else {
		iter := s.client.Collection(p.collection).Doc(p.doc).Snapshots(ctx)
		next = func() (Snapshot, error) {
			doc, err := iter.Next()
			if err != nil {
				return Snapshot{}, err
			}
			snap, err := NewSnapshot(JoinPath(path), docValue(doc, p.field))
			if err != nil {
				s.logger.Warnf("Failed to encode snapshot of %s: %v", path, err)
				return Snapshot{}, errSkipSnapshot
			}
			return snap, nil
		}
		stop = iter.Stop
	}

	unsubscribe := func() { cancel(); stop() }
	if err := s.listen(ctx, path, next, fn); err != nil {
		unsubscribe()
		return nil, err
	}
	return unsubscribe, nil
}

// listen delivers the first snapshot synchronously and the rest from a
// goroutine until next fails.
func (s *Firestore) listen(ctx context.Context, path string, next func() (Snapshot, error), fn func(Snapshot)) error {
	first, err := next()
	if err != nil {
		return xerrors.Errorf("subscribe %s: %w", path, err)
	}
	fn(first)

	go func() {
		for {
			snap, err := next()
			if err != nil {
				if errors.Is(err, errSkipSnapshot) {
					continue
				}
				s.listenerStopped(ctx, path, err)
				return
			}
			fn(snap)
		}
	}()
	return nil
}

var errSkipSnapshot = errors.New("unreadable snapshot")

func (s *Firestore) collectionSnapshot(path string, iter *firestore.QuerySnapshotIterator) (Snapshot, error) {
	qs, err := iter.Next()
	if err != nil {
		return Snapshot{}, err
	}
	docs, err := qs.Documents.GetAll()
	if err != nil {
		s.logger.Warnf("Failed to read snapshot of %s: %v", path, err)
		return Snapshot{}, errSkipSnapshot
	}
	var value map[string]any
	if len(docs) > 0 {
		value = make(map[string]any, len(docs))
		for _, doc := range docs {
			value[doc.Ref.ID] = doc.Data()
		}
	}
	snap, err := NewSnapshot(JoinPath(path), value)
	if err != nil {
		s.logger.Warnf("Failed to encode snapshot of %s: %v", path, err)
		return Snapshot{}, errSkipSnapshot
	}
	return snap, nil
}

func (s *Firestore) listenerStopped(ctx context.Context, path string, err error) {
	if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
		return
	}
	s.logger.Errorf("Listener on %s stopped: %v", path, err)
}

func docValue(doc *firestore.DocumentSnapshot, field firestore.FieldPath) any {
	if doc == nil || !doc.Exists() {
		return nil
	}
	if len(field) == 0 {
		return doc.Data()
	}
	v, err := doc.DataAtPath(field)
	if err != nil {
		return nil
	}
	return v
}

// nest builds the document fragment that places v at field.
func nest(field firestore.FieldPath, v any) map[string]any {
	out := map[string]any{field[len(field)-1]: v}
	for i := len(field) - 2; i >= 0; i-- {
		out = map[string]any{field[i]: out}
	}
	return out
}
