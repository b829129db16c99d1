package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
)

const defaultGraphURL = "https://graph.facebook.com/v21.0"

// WhatsApp sends and receives through the WhatsApp Cloud API
type WhatsApp struct {
	token         string
	phoneNumberID string
	baseURL       string
	sendClient    *http.Client
	mediaClient   *http.Client
	mediaLimit    int64
}

var _ Channel = (*WhatsApp)(nil)

type WhatsAppOption func(*WhatsApp)

// WithGraphURL overrides the Graph API endpoint, mainly for tests
func WithGraphURL(url string) WhatsAppOption {
	return func(w *WhatsApp) {
		w.baseURL = url
	}
}

// WithWhatsAppMediaLimit caps the size of a downloaded attachment
func WithWhatsAppMediaLimit(n int64) WhatsAppOption {
	return func(w *WhatsApp) {
		w.mediaLimit = n
	}
}

func NewWhatsApp(token, phoneNumberID string, opts ...WhatsAppOption) *WhatsApp {
	w := &WhatsApp{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       defaultGraphURL,
		sendClient:    &http.Client{Timeout: sendTimeout},
		mediaClient:   &http.Client{Timeout: mediaTimeout},
		mediaLimit:    DefaultMediaLimit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WhatsApp) Name() model.ChannelKind {
	return model.ChannelWhatsApp
}

func (w *WhatsApp) authHeader() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + w.token}}
}

func (w *WhatsApp) Send(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	if _, err := postJSON(ctx, w.sendClient, url, w.authHeader(), payload); err != nil {
		return goerr.Wrap(err, "failed to send whatsapp message", goerr.V("to", to))
	}
	return nil
}

func (w *WhatsApp) FetchMedia(ctx context.Context, mediaID string) (*Media, error) {
	raw, err := get(ctx, w.mediaClient, fmt.Sprintf("%s/%s", w.baseURL, mediaID), w.authHeader(), maxAPIBody)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get whatsapp media url", goerr.V("media_id", mediaID))
	}

	var info struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, goerr.Wrap(err, "failed to parse whatsapp media info", goerr.V("media_id", mediaID))
	}
	if info.URL == "" {
		return nil, goerr.New("whatsapp media url is empty", goerr.V("media_id", mediaID))
	}

	data, err := get(ctx, w.mediaClient, info.URL, w.authHeader(), w.mediaLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download whatsapp media", goerr.V("media_id", mediaID))
	}

	return &Media{Data: data, MIMEType: info.MimeType}, nil
}

// WhatsAppWebhook is the notification body posted by the Cloud API
type WhatsAppWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []WhatsAppMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppMessage is one inbound message of a webhook notification
type WhatsAppMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Audio    *WhatsAppMedia `json:"audio,omitempty"`
	Image    *WhatsAppMedia `json:"image,omitempty"`
	Video    *WhatsAppMedia `json:"video,omitempty"`
	Document *WhatsAppMedia `json:"document,omitempty"`
}

type WhatsAppMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

// FirstMessage returns entry[0].changes[0].value.messages[0], or nil for
// status updates and other notifications without a message
func (x *WhatsAppWebhook) FirstMessage() *WhatsAppMessage {
	if len(x.Entry) == 0 || len(x.Entry[0].Changes) == 0 {
		return nil
	}
	messages := x.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return nil
	}
	return &messages[0]
}

// Address returns the sender address
func (x *WhatsAppMessage) Address() model.Address {
	return model.NewWhatsAppAddress(x.From)
}

// Normalize converts the message into canonical content, downloading media when present
func (w *WhatsApp) Normalize(ctx context.Context, msg *WhatsAppMessage) (model.Content, error) {
	var (
		kind  model.ContentKind
		media *WhatsAppMedia
	)

	switch msg.Type {
	case "text":
		var body string
		if msg.Text != nil {
			body = msg.Text.Body
		}
		return model.NewTextContent(model.AnnotateLinks(body)), nil
	case "audio":
		kind, media = model.ContentAudio, msg.Audio
	case "image":
		kind, media = model.ContentImage, msg.Image
	case "video":
		kind, media = model.ContentVideo, msg.Video
	case "document":
		kind, media = model.ContentFile, msg.Document
	}

	if media == nil {
		return model.NewTextContent(fmt.Sprintf("[Received a %s message]", msg.Type)), nil
	}

	fetched, err := w.FetchMedia(ctx, media.ID)
	if err != nil {
		return model.Content{}, err
	}
	mimeType := fetched.MIMEType
	if mimeType == "" {
		mimeType = media.MimeType
	}
	return model.NewMediaContent(kind, fetched.Data, mimeType), nil
}
