package notify

import (
	"context"
	"time"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/logging"
	"github.com/cummap/backend/repos/store"
)

// MulticastLimit is the largest token batch FCM accepts in one call.
const MulticastLimit = 500

const notificationsPath = "notifications"

// Notification is what every capability knows how to deliver. Exactly one of
// Topic or Token is set for single sends.
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Topic    string            `json:"topic,omitempty"`
	Token    string            `json:"token,omitempty"`
}

// Delivery sums up a multicast.
type Delivery struct {
	SuccessCount int
	FailureCount int
	// Unregistered lists tokens FCM reported as no longer valid.
	Unregistered []string
}

// Capability delivers notifications on one platform.
type Capability interface {
	Name() string
	Subscribe(ctx context.Context, token, topic string) error
	Send(ctx context.Context, n Notification) (string, error)
	SendMulticast(ctx context.Context, tokens []string, n Notification) (Delivery, error)
}

// Messenger is the part of *messaging.Client the native capability uses.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// MessengerFactory opens the FCM client, typically firebase.App.Messaging.
type MessengerFactory func(ctx context.Context) (Messenger, error)

// SelectCapability probes the platform once. With mode auto a messenger that
// fails to initialize falls back to the web capability.
func SelectCapability(ctx context.Context, mode string, open MessengerFactory, s store.Store, logger *zap.SugaredLogger) (Capability, error) {
	logger = logging.OrNop(logger)

	if mode == "web" {
		return NewWebCapability(s), nil
	}
	var (
		m   Messenger
		err error
	)
	if open == nil {
		err = xerrors.New("no messaging client configured")
	} else {
		m, err = open(ctx)
	}
	if err == nil {
		return NewNativeCapability(m), nil
	}
	if mode == "native" {
		return nil, xerrors.Errorf("native notifications unavailable: %w", err)
	}
	logger.Warnf("Native notifications unavailable, using web notifications: %v", err)
	return NewWebCapability(s), nil
}

type nativeCapability struct {
	messenger Messenger
}

func NewNativeCapability(m Messenger) Capability {
	return &nativeCapability{messenger: m}
}

func (n *nativeCapability) Name() string {
	return "native"
}

func (n *nativeCapability) Subscribe(ctx context.Context, token, topic string) error {
	resp, err := n.messenger.SubscribeToTopic(ctx, []string{token}, topic)
	if err != nil {
		return xerrors.Errorf("subscribe to %s: %w", topic, err)
	}
	if resp != nil && resp.FailureCount > 0 && len(resp.Errors) > 0 {
		return xerrors.Errorf("subscribe to %s: %s", topic, resp.Errors[0].Reason)
	}
	return nil
}

func (n *nativeCapability) Send(ctx context.Context, msg Notification) (string, error) {
	id, err := n.messenger.Send(ctx, &messaging.Message{
		Notification: fcmNotification(msg),
		Data:         msg.Data,
		Topic:        msg.Topic,
		Token:        msg.Token,
	})
	if err != nil {
		return "", xerrors.Errorf("send notification: %w", err)
	}
	return id, nil
}

func (n *nativeCapability) SendMulticast(ctx context.Context, tokens []string, msg Notification) (Delivery, error) {
	var d Delivery
	for _, batch := range chunk(tokens, MulticastLimit) {
		resp, err := n.messenger.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: fcmNotification(msg),
			Data:         msg.Data,
		})
		if err != nil {
			return d, xerrors.Errorf("send multicast: %w", err)
		}
		d.SuccessCount += resp.SuccessCount
		d.FailureCount += resp.FailureCount
		for i, r := range resp.Responses {
			if r != nil && !r.Success && messaging.IsUnregistered(r.Error) && i < len(batch) {
				d.Unregistered = append(d.Unregistered, batch[i])
			}
		}
	}
	return d, nil
}

func fcmNotification(msg Notification) *messaging.Notification {
	return &messaging.Notification{
		Title:    msg.Title,
		Body:     msg.Body,
		ImageURL: msg.ImageURL,
	}
}

// webCapability leaves notifications in the store; web clients subscribe
// to notifications/ and show them themselves.
type webCapability struct {
	store store.Store
	now   func() time.Time
}

func NewWebCapability(s store.Store) Capability {
	return &webCapability{store: s, now: time.Now}
}

func (w *webCapability) Name() string {
	return "web"
}

// Subscribe is a no-op: topic membership lives in the token registry.
func (w *webCapability) Subscribe(context.Context, string, string) error {
	return nil
}

func (w *webCapability) Send(ctx context.Context, msg Notification) (string, error) {
	id, err := w.store.Push(ctx, notificationsPath, webRecord{
		Notification: msg,
		CreatedAt:    w.now().UnixMilli(),
	})
	if err != nil {
		return "", xerrors.Errorf("store notification: %w", err)
	}
	return id, nil
}

func (w *webCapability) SendMulticast(ctx context.Context, tokens []string, msg Notification) (Delivery, error) {
	if len(tokens) == 0 {
		return Delivery{}, nil
	}
	_, err := w.store.Push(ctx, notificationsPath, webRecord{
		Notification: msg,
		Tokens:       tokens,
		CreatedAt:    w.now().UnixMilli(),
	})
	if err != nil {
		return Delivery{FailureCount: len(tokens)}, xerrors.Errorf("store notification: %w", err)
	}
	return Delivery{SuccessCount: len(tokens)}, nil
}

type webRecord struct {
	Notification
	Tokens    []string `json:"tokens,omitempty"`
	CreatedAt int64    `json:"createdAt"`
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
