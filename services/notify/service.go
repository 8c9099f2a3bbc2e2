package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/idgen"
	"github.com/cummap/backend/pkg/logging"
	"github.com/cummap/backend/repos/store"
)

const tokensPath = "fcmTokens"

var ErrInvalidRequest = errors.New("invalid request")

// Send types accepted by SendNotification.
const (
	TypeTopic     = "topic"
	TypeToken     = "token"
	TypeTokens    = "tokens"
	TypeBroadcast = "broadcast"
)

type SubscribeRequest struct {
	Token string `json:"token"`
	Topic string `json:"topic"`
}

type ChatRequest struct {
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Topic     string `json:"topic"`
	Timestamp any    `json:"timestamp"`
}

// NotificationRequest targets a topic, a token, a token list or every
// registered device. Target is a string or a list of strings.
type NotificationRequest struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Type     string         `json:"type"`
	Target   any            `json:"target"`
	Data     map[string]any `json:"data"`
	ImageURL string         `json:"imageUrl"`
}

type ChatResult struct {
	MessageID    string
	Deduplicated bool
}

type SendResult struct {
	MessageID    string `json:"messageId,omitempty"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	TotalTokens  int    `json:"totalTokens,omitempty"`
}

type deviceToken struct {
	Token     string   `json:"token"`
	Topics    []string `json:"topics,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
}

type NotifyService struct {
	capability Capability
	store      store.Store
	optimizer  *Optimizer
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewNotifyService(c Capability, s store.Store, o *Optimizer, logger *zap.SugaredLogger) *NotifyService {
	return &NotifyService{
		capability: c,
		store:      s,
		optimizer:  o,
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}
}

// SubscribeToTopic subscribes the device and records it in the token
// registry used by broadcasts.
func (s *NotifyService) SubscribeToTopic(ctx context.Context, req SubscribeRequest) error {
	token := strings.TrimSpace(req.Token)
	topic := strings.TrimSpace(req.Topic)
	if token == "" || topic == "" {
		return xerrors.Errorf("Missing token or topic: %w", ErrInvalidRequest)
	}
	if err := s.capability.Subscribe(ctx, token, topic); err != nil {
		s.logger.Errorf("Failed to subscribe to topic %s: %v", topic, err)
		return err
	}

	path := store.JoinPath(tokensPath, idgen.TokenKey(token))
	snap, err := s.store.Read(ctx, path)
	if err != nil {
		return xerrors.Errorf("read device token: %w", err)
	}
	var device deviceToken
	if err := snap.Unmarshal(&device); err != nil {
		s.logger.Warnf("Replacing unreadable device token entry: %v", err)
	}
	device.Token = token
	if !contains(device.Topics, topic) {
		device.Topics = append(device.Topics, topic)
		sort.Strings(device.Topics)
	}
	device.UpdatedAt = s.now().UnixMilli()
	if err := s.store.Write(ctx, path, device); err != nil {
		return xerrors.Errorf("write device token: %w", err)
	}
	return nil
}

// SendChat relays a chat message to its topic. Identical messages inside
// the dedupe window are acknowledged without sending.
func (s *NotifyService) SendChat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	sender := strings.TrimSpace(req.Sender)
	topic := strings.TrimSpace(req.Topic)
	if message == "" || sender == "" || topic == "" || req.Timestamp == nil {
		return ChatResult{}, xerrors.Errorf("Missing required fields: message, sender, topic, timestamp: %w", ErrInvalidRequest)
	}
	timestamp := stringValue(req.Timestamp)

	fingerprint := idgen.TokenKey(strings.Join([]string{topic, sender, message, timestamp}, "\x00"))
	if err := s.optimizer.Admit(topic, fingerprint); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ChatResult{Deduplicated: true}, nil
		}
		return ChatResult{}, err
	}

	id, err := s.capability.Send(ctx, Notification{
		Title: sender,
		Body:  message,
		Topic: topic,
		Data: map[string]string{
			"type":      "chat",
			"sender":    sender,
			"message":   message,
			"topic":     topic,
			"timestamp": timestamp,
		},
	})
	if err != nil {
		s.optimizer.Forget(fingerprint)
		s.optimizer.RecordFailed(1)
		s.logger.Errorf("Failed to send chat notification to %s: %v", topic, err)
		return ChatResult{}, err
	}
	s.optimizer.RecordSent(1)
	return ChatResult{MessageID: id}, nil
}

func (s *NotifyService) SendNotification(ctx context.Context, req NotificationRequest) (SendResult, error) {
	title := strings.TrimSpace(req.Title)
	body := strings.TrimSpace(req.Body)
	if title == "" || body == "" || req.Type == "" {
		return SendResult{}, xerrors.Errorf("Missing required fields: title, body, type: %w", ErrInvalidRequest)
	}
	n := Notification{
		Title:    title,
		Body:     body,
		ImageURL: strings.TrimSpace(req.ImageURL),
		Data:     stringData(req.Data),
	}

	switch req.Type {
	case TypeTopic, TypeToken:
		target, ok := req.Target.(string)
		if !ok || strings.TrimSpace(target) == "" {
			return SendResult{}, xerrors.Errorf("target must be a %s string: %w", req.Type, ErrInvalidRequest)
		}
		bucket := strings.TrimSpace(target)
		if req.Type == TypeTopic {
			n.Topic = bucket
		} else {
			n.Token = bucket
			bucket = "token:" + bucket
		}
		if err := s.optimizer.Admit(bucket, ""); err != nil {
			return SendResult{}, err
		}
		id, err := s.capability.Send(ctx, n)
		if err != nil {
			s.optimizer.RecordFailed(1)
			s.logger.Errorf("Failed to send %s notification: %v", req.Type, err)
			return SendResult{}, err
		}
		s.optimizer.RecordSent(1)
		return SendResult{MessageID: id, SuccessCount: 1}, nil

	case TypeTokens:
		tokens := stringList(req.Target)
		if len(tokens) == 0 {
			return SendResult{}, xerrors.Errorf("target must be a non-empty list of tokens: %w", ErrInvalidRequest)
		}
		return s.multicast(ctx, tokens, n)

	case TypeBroadcast:
		tokens, err := s.registeredTokens(ctx)
		if err != nil {
			return SendResult{}, err
		}
		result, err := s.multicast(ctx, tokens, n)
		result.TotalTokens = len(tokens)
		return result, err
	}
	return SendResult{}, xerrors.Errorf("unknown type %q: %w", req.Type, ErrInvalidRequest)
}

func (s *NotifyService) multicast(ctx context.Context, tokens []string, n Notification) (SendResult, error) {
	if len(tokens) == 0 {
		return SendResult{}, nil
	}
	// d holds the batches delivered before a failing one.
	d, err := s.capability.SendMulticast(ctx, tokens, n)
	s.optimizer.RecordSent(d.SuccessCount)
	s.optimizer.RecordFailed(d.FailureCount)
	for _, token := range d.Unregistered {
		if err := s.store.Write(ctx, store.JoinPath(tokensPath, idgen.TokenKey(token)), nil); err != nil {
			s.logger.Warnf("Failed to drop unregistered token: %v", err)
		}
	}
	result := SendResult{SuccessCount: d.SuccessCount, FailureCount: d.FailureCount}
	if err != nil {
		s.logger.Errorf("Failed to send multicast to %d tokens: %v", len(tokens), err)
		return result, err
	}
	return result, nil
}

func (s *NotifyService) registeredTokens(ctx context.Context) ([]string, error) {
	snap, err := s.store.Read(ctx, tokensPath)
	if err != nil {
		return nil, xerrors.Errorf("read device tokens: %w", err)
	}
	var devices map[string]deviceToken
	if err := snap.Unmarshal(&devices); err != nil {
		return nil, xerrors.Errorf("consistency error. device tokens are not an object: %w", err)
	}
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.Token != "" {
			tokens = append(tokens, d.Token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

// stringData flattens the optional payload; FCM only carries strings.
func stringData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = stringValue(v)
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []string:
		out = t
	case []any:
		for _, item := range t {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
	case string:
		if strings.TrimSpace(t) != "" {
			out = []string{strings.TrimSpace(t)}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
