package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
)

const defaultTelegramURL = "https://api.telegram.org"

// Telegram sends and receives through the Telegram Bot API
type Telegram struct {
	token       string
	baseURL     string
	sendClient  *http.Client
	mediaClient *http.Client
	mediaLimit  int64
}

var _ Channel = (*Telegram)(nil)

type TelegramOption func(*Telegram)

// WithTelegramURL overrides the Bot API endpoint, mainly for tests
func WithTelegramURL(url string) TelegramOption {
	return func(t *Telegram) {
		t.baseURL = url
	}
}

// WithTelegramMediaLimit caps the size of a downloaded file
func WithTelegramMediaLimit(n int64) TelegramOption {
	return func(t *Telegram) {
		t.mediaLimit = n
	}
}

func NewTelegram(token string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:       token,
		baseURL:     defaultTelegramURL,
		sendClient:  &http.Client{Timeout: sendTimeout},
		mediaClient: &http.Client{Timeout: mediaTimeout},
		mediaLimit:  DefaultMediaLimit,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Telegram) Name() model.ChannelKind {
	return model.ChannelTelegram
}

func (t *Telegram) botURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

func (t *Telegram) Send(ctx context.Context, to, text string) error {
	payload := map[string]string{
		"chat_id": to,
		"text":    text,
	}
	if _, err := postJSON(ctx, t.sendClient, t.botURL("sendMessage"), nil, payload); err != nil {
		return goerr.Wrap(err, "failed to send telegram message", goerr.V("chat_id", to))
	}
	return nil
}

var telegramMIMETypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"mp4":  "video/mp4",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// mimeTypeFromPath infers the MIME type from the extension of a Telegram file path
func mimeTypeFromPath(filePath string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filePath), "."))
	if mimeType, ok := telegramMIMETypes[ext]; ok {
		return mimeType
	}
	return "application/octet-stream"
}

func (t *Telegram) FetchMedia(ctx context.Context, fileID string) (*Media, error) {
	raw, err := get(ctx, t.mediaClient, t.botURL("getFile")+"?file_id="+url.QueryEscape(fileID), nil, maxAPIBody)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get telegram file", goerr.V("file_id", fileID))
	}

	var resp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse telegram getFile response", goerr.V("file_id", fileID))
	}
	if !resp.OK || resp.Result.FilePath == "" {
		return nil, goerr.New("telegram getFile failed", goerr.V("file_id", fileID), goerr.V("description", resp.Description))
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", t.baseURL, t.token, resp.Result.FilePath)
	data, err := get(ctx, t.mediaClient, fileURL, nil, t.mediaLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download telegram file", goerr.V("file_id", fileID))
	}

	return &Media{Data: data, MIMEType: mimeTypeFromPath(resp.Result.FilePath)}, nil
}

// TelegramUpdate is the webhook body posted by the Bot API
type TelegramUpdate struct {
	Message *TelegramMessage `json:"message,omitempty"`
}

type TelegramMessage struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text     string         `json:"text,omitempty"`
	Voice    *TelegramFile  `json:"voice,omitempty"`
	Audio    *TelegramFile  `json:"audio,omitempty"`
	Photo    []TelegramFile `json:"photo,omitempty"`
	Video    *TelegramFile  `json:"video,omitempty"`
	Document *TelegramFile  `json:"document,omitempty"`
}

type TelegramFile struct {
	FileID string `json:"file_id"`
}

// ChatID returns the chat identifier used as Send recipient
func (x *TelegramMessage) ChatID() string {
	return strconv.FormatInt(x.Chat.ID, 10)
}

// Address returns the chat address
func (x *TelegramMessage) Address() model.Address {
	return model.NewTelegramAddress(x.ChatID())
}

// Normalize converts the message into canonical content, downloading media when present
func (t *Telegram) Normalize(ctx context.Context, msg *TelegramMessage) (model.Content, error) {
	var (
		kind   model.ContentKind
		fileID string
	)

	switch {
	case msg.Text != "":
		return model.NewTextContent(model.AnnotateLinks(msg.Text)), nil
	case msg.Voice != nil:
		kind, fileID = model.ContentAudio, msg.Voice.FileID
	case msg.Audio != nil:
		kind, fileID = model.ContentAudio, msg.Audio.FileID
	case len(msg.Photo) > 0:
		// sizes are ascending, the last one is the largest
		kind, fileID = model.ContentImage, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		kind, fileID = model.ContentVideo, msg.Video.FileID
	case msg.Document != nil:
		kind, fileID = model.ContentFile, msg.Document.FileID
	default:
		return model.NewTextContent("[Received an unsupported message type]"), nil
	}

	media, err := t.FetchMedia(ctx, fileID)
	if err != nil {
		return model.Content{}, err
	}
	return model.NewMediaContent(kind, media.Data, media.MIMEType), nil
}
