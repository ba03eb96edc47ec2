// Package bot delivers listing notifications to a Telegram chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sniper_bot/internal/model"
)

const (
	maxAlbumPhotos = 10
	maxPhotoBytes  = 10 * 1024 * 1024
	// Smaller bodies are placeholders or error pages, not photos.
	minPhotoBytes = 1000
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// HTTPClient downloads listing photos.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Bot sends listing notifications to one chat. It implements model.Notifier.
type Bot struct {
	api    telegramAPI
	chatID int64
	images HTTPClient
	after  func(time.Duration) <-chan time.Time
	log    *slog.Logger
}

// New creates a Bot for the given token and chat. Photos are downloaded with images.
func New(token string, chatID int64, images HTTPClient, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, chatID, images, log), nil
}

func newBot(api telegramAPI, chatID int64, images HTTPClient, log *slog.Logger) *Bot {
	if images == nil {
		images = http.DefaultClient
	}
	return &Bot{api: api, chatID: chatID, images: images, after: time.After, log: log}
}

// Notify sends l as an album when at least two photos download, as a single
// photo when one does, and as a text message otherwise. A failed album or
// photo send falls through to the next step.
func (b *Bot) Notify(ctx context.Context, l model.Listing) (model.Delivery, error) {
	caption := FormatCaption(l)
	photos := b.downloadPhotos(ctx, l.PhotoURLs)

	if len(photos) >= 2 {
		err := b.withRetry(ctx, func() error { return b.sendAlbum(photos, caption) })
		if err == nil {
			return model.DeliveryAlbum, nil
		}
		b.log.Warn("send album failed, trying single photo", "listing_id", l.ID, "error", err)
	}

	if len(photos) > 0 {
		err := b.withRetry(ctx, func() error { return b.sendPhoto(photos[0], caption) })
		if err == nil {
			return model.DeliveryPhoto, nil
		}
		b.log.Warn("send photo failed, sending text", "listing_id", l.ID, "error", err)
	}

	if err := b.withRetry(ctx, func() error { return b.sendText(caption, false) }); err != nil {
		return model.DeliveryText, fmt.Errorf("send notification %s: %w", l.ID, err)
	}
	return model.DeliveryText, nil
}

// SendSystemMessage sends an operational notice such as a startup message.
func (b *Bot) SendSystemMessage(text string) {
	if err := b.sendText("🤖 *Bot:* "+text, true); err != nil {
		b.log.Error("send system message", "chat_id", b.chatID, "error", err)
	}
}

func (b *Bot) sendAlbum(photos [][]byte, caption string) error {
	media := make([]any, 0, len(photos))
	for i, data := range photos {
		p := tgbotapi.NewInputMediaPhoto(tgbotapi.FileBytes{Name: fmt.Sprintf("photo%d.jpg", i), Bytes: data})
		if i == 0 {
			p.Caption = caption
			p.ParseMode = tgbotapi.ModeMarkdown
		}
		media = append(media, p)
	}
	_, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(b.chatID, media))
	return err
}

func (b *Bot) sendPhoto(data []byte, caption string) error {
	msg := tgbotapi.NewPhoto(b.chatID, tgbotapi.FileBytes{Name: "item.jpg", Bytes: data})
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendText(text string, disablePreview bool) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = disablePreview
	_, err := b.api.Send(msg)
	return err
}

// withRetry runs op and, when Telegram answers with retry_after, waits that
// long and runs it once more.
func (b *Bot) withRetry(ctx context.Context, op func() error) error {
	err := op()
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) || tgErr.RetryAfter <= 0 {
		return err
	}

	wait := time.Duration(tgErr.RetryAfter) * time.Second
	b.log.Warn("telegram rate limit", "retry_after", wait)
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for telegram rate limit: %w", ctx.Err())
	case <-b.after(wait):
	}
	return op()
}

// downloadPhotos fetches up to maxAlbumPhotos photos, skipping any that fail
// or fall outside the accepted size range.
func (b *Bot) downloadPhotos(ctx context.Context, urls []string) [][]byte {
	var photos [][]byte
	for _, u := range urls {
		if len(photos) == maxAlbumPhotos {
			break
		}
		data, err := b.download(ctx, u)
		if err != nil {
			b.log.Debug("download photo", "url", u, "error", err)
			continue
		}
		photos = append(photos, data)
	}
	return photos
}

func (b *Bot) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := b.images.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	switch {
	case len(data) > maxPhotoBytes:
		return nil, fmt.Errorf("photo larger than %d bytes", maxPhotoBytes)
	case len(data) < minPhotoBytes:
		return nil, fmt.Errorf("photo too small: %d bytes", len(data))
	}
	return data, nil
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify logs l and reports a text delivery.
func (n LogNotifier) Notify(_ context.Context, l model.Listing) (model.Delivery, error) {
	n.Log.Info("notification",
		"listing_id", l.ID,
		"title", l.Title,
		"price", l.Price.StringFixed(2),
		"currency", l.Currency,
		"url", l.URL,
	)
	return model.DeliveryText, nil
}
