package notifications

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// Pusher fans a stored notification out to devices of its store.
type Pusher interface {
	Push(ctx context.Context, storeID string, n models.Document) error
}

// Topic is the FCM topic every device of a store subscribes to.
func Topic(storeID string) string {
	return "store_" + storeID
}

type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM pushes to the store topic through Firebase Cloud Messaging.
type FCM struct {
	client messagingClient
}

func NewFCM(ctx context.Context, app *firebase.App) (*FCM, error) {
	c, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client init failed: %w", err)
	}
	return &FCM{client: c}, nil
}

func (f *FCM) Push(ctx context.Context, storeID string, n models.Document) error {
	msg := buildMessage(storeID, n)
	if _, err := f.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("FCM send failed: %w", err)
	}
	return nil
}

func buildMessage(storeID string, n models.Document) *messaging.Message {
	data := map[string]string{
		"id":   n.ID(),
		"type": n.String("type"),
	}
	var meta map[string]any
	switch m := n["metadata"].(type) {
	case map[string]any:
		meta = m
	case models.Document:
		meta = m
	}
	for k, v := range meta {
		data["meta_"+k] = stringify(v)
	}

	return &messaging.Message{
		Topic: Topic(storeID),
		Notification: &messaging.Notification{
			Title: n.String("title"),
			Body:  n.String("message"),
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
