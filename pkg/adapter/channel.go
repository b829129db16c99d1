package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
)

const (
	sendTimeout  = 30 * time.Second
	mediaTimeout = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in the error
	maxErrorBody = 1024

	// maxAPIBody bounds JSON API responses
	maxAPIBody = 1 << 20
	// DefaultMediaLimit bounds a downloaded attachment
	DefaultMediaLimit = 25 << 20
)

// Media is a downloaded inbound attachment
type Media struct {
	Data     []byte
	MIMEType string
}

// Channel is one messaging platform the assistant talks on
type Channel interface {
	Name() model.ChannelKind

	// Send delivers a text message to the platform-native recipient
	Send(ctx context.Context, to, text string) error

	// FetchMedia downloads an attachment by its platform media ID
	FetchMedia(ctx context.Context, mediaID string) (*Media, error)
}

// Router resolves an address to the channel that delivers to it
type Router struct {
	channels map[model.ChannelKind]Channel
}

func NewRouter(channels ...Channel) *Router {
	r := &Router{channels: make(map[model.ChannelKind]Channel, len(channels))}
	for _, ch := range channels {
		r.channels[ch.Name()] = ch
	}
	return r
}

// Resolve returns the channel of addr and the recipient identifier to pass to Send
func (r *Router) Resolve(addr model.Address) (Channel, string, error) {
	kind := addr.Channel()
	ch, ok := r.channels[kind]
	if !ok {
		return nil, "", goerr.Wrap(model.ErrUnknownChannel, "no channel configured for address",
			goerr.V("address", addr), goerr.V("channel", kind))
	}
	return ch, addr.Recipient(), nil
}

// Send resolves addr and delivers text to it
func (r *Router) Send(ctx context.Context, addr model.Address, text string) error {
	ch, to, err := r.Resolve(addr)
	if err != nil {
		return err
	}
	return ch.Send(ctx, to, text)
}

// doRequest executes req and returns the body of a 2xx response. Any other
// status becomes an error carrying the status and a prefix of the body. A
// body longer than limit bytes is an error.
func doRequest(client *http.Client, req *http.Request, limit int64) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request", goerr.V("url", req.URL.Redacted()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body", goerr.V("url", req.URL.Redacted()))
	}
	if int64(len(body)) > limit {
		return nil, goerr.New("response body too large",
			goerr.V("url", req.URL.Redacted()),
			goerr.V("limit", limit))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, goerr.New("unexpected status code",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	return body, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	return doRequest(client, req, maxAPIBody)
}

func get(ctx context.Context, client *http.Client, url string, header http.Header, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	return doRequest(client, req, limit)
}
