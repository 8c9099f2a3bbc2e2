package store

import (
	"context"
	"time"

	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/logging"
)

// RTDB stores documents in the Firebase Realtime Database.
type RTDB struct {
	client   *db.Client
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewRTDB wraps a realtime database client. The admin SDK has no change
// listeners, so subscriptions poll every interval and fire on change.
func NewRTDB(client *db.Client, interval time.Duration, logger *zap.SugaredLogger) *RTDB {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &RTDB{
		client:   client,
		interval: interval,
		logger:   logging.OrNop(logger),
	}
}

func (s *RTDB) Read(ctx context.Context, path string) (Snapshot, error) {
	var value any
	if err := s.client.NewRef(JoinPath(path)).Get(ctx, &value); err != nil {
		return Snapshot{}, xerrors.Errorf("read %s: %w", path, err)
	}
	return NewSnapshot(JoinPath(path), value)
}

func (s *RTDB) Write(ctx context.Context, path string, value any) error {
	ref := s.client.NewRef(JoinPath(path))
	v, err := normalize(value)
	if err != nil {
		return xerrors.Errorf("write %s: %w", path, err)
	}
	if v == nil {
		if err := ref.Delete(ctx); err != nil {
			return xerrors.Errorf("delete %s: %w", path, err)
		}
		return nil
	}
	if err := ref.Set(ctx, v); err != nil {
		return xerrors.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *RTDB) Push(ctx context.Context, path string, value any) (string, error) {
	v, err := normalize(value)
	if err != nil {
		return "", xerrors.Errorf("push %s: %w", path, err)
	}
	ref, err := s.client.NewRef(JoinPath(path)).Push(ctx, v)
	if err != nil {
		return "", xerrors.Errorf("push %s: %w", path, err)
	}
	return ref.Key, nil
}

func (s *RTDB) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	first, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	fn(first)

	ctx, cancel := context.WithCancel(ctx)
	go s.poll(ctx, path, first, fn)
	return cancel, nil
}

func (s *RTDB) poll(ctx context.Context, path string, last Snapshot, fn func(Snapshot)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := s.Read(ctx, path)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warnf("Failed to poll %s: %v", path, err)
			}
			continue
		}
		if snap.Equal(last) {
			continue
		}
		last = snap
		fn(snap)
	}
}
