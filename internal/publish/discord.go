package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	appLog "calpost/internal/log"
)

const embedAccent = 0x5865F2 // Discord blurple

// DiscordPublisher posts the calendar image to a Discord channel via an
// incoming webhook. Every publish creates a new message; earlier posts
// are deliberately left untouched so the channel keeps a visible
// history of calendar revisions.
type DiscordPublisher struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordPublisher builds a webhook-backed publisher.
func NewDiscordPublisher(webhookURL string) *DiscordPublisher {
	return &DiscordPublisher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// webhookPayload is the payload_json part of a webhook upload.
type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Color       int               `json:"color"`
	Timestamp   string            `json:"timestamp"`
	Image       webhookEmbedImage `json:"image"`
}

type webhookEmbedImage struct {
	URL string `json:"url"`
}

// Publish implements Publisher.
func (d *DiscordPublisher) Publish(ctx context.Context, a Artifact) error {
	body, contentType, err := buildWebhookBody(a)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, body)
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook rejected upload: %s: %s", resp.Status, snippet)
	}

	appLog.Info("calendar posted to discord",
		"month", a.Month.String(), "event_count", a.EventCount, "bytes", len(a.PNG))
	return nil
}

func buildWebhookBody(a Artifact) (*bytes.Buffer, string, error) {
	payload := webhookPayload{
		Embeds: []webhookEmbed{{
			Title:       a.Title,
			Description: fmt.Sprintf("%d events", a.EventCount),
			Color:       embedAccent,
			Timestamp:   a.GeneratedAt.UTC().Format(time.RFC3339),
			Image:       webhookEmbedImage{URL: "attachment://" + a.Filename()},
		}},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshalling webhook payload: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("payload_json", string(payloadJSON)); err != nil {
		return nil, "", fmt.Errorf("writing payload part: %w", err)
	}
	part, err := mw.CreateFormFile("files[0]", a.Filename())
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(a.PNG); err != nil {
		return nil, "", fmt.Errorf("writing image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalizing multipart body: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}
