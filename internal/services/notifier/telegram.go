package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	telegramAPI       = "https://api.telegram.org/bot%s/sendMessage"
	sendTimeout       = 10 * time.Second
	outboxCapacity    = 128
	telegramParseMode = "Markdown"
)

// Telegram delivers events to one chat through a background worker. A full
// outbox drops the event with a log line instead of blocking the trading
// path.
type Telegram struct {
	token  string
	chatID string
	client *http.Client
	outbox chan Event
	logger *zap.Logger
}

// NewTelegram starts the delivery worker. It runs until ctx is cancelled.
func NewTelegram(ctx context.Context, token, chatID string, logger *zap.Logger) (*Telegram, error) {
	if token == "" || chatID == "" {
		return nil, errors.New("telegram token and chat id are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Telegram{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: sendTimeout},
		outbox: make(chan Event, outboxCapacity),
		logger: logger,
	}
	go t.deliver(ctx)
	return t, nil
}

// Publish implements Notifier.
func (t *Telegram) Publish(event Event) {
	select {
	case t.outbox <- event:
	default:
		t.logger.Warn("notification outbox full, dropping event",
			zap.String("kind", string(event.Kind)))
	}
}

func (t *Telegram) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-t.outbox:
			if err := t.send(ctx, event); err != nil {
				t.logger.Warn("notification delivery failed",
					zap.String("kind", string(event.Kind)), zap.Error(err))
			}
		}
	}
}

func (t *Telegram) send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       event.Text,
		"parse_mode": telegramParseMode,
	})
	if err != nil {
		return errors.Wrap(err, "marshal telegram payload")
	}

	url := fmt.Sprintf(telegramAPI, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send telegram message")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram API returned %s", resp.Status)
	}
	return nil
}
