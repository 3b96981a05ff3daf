package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/config"
)

// WaGateway talks to a WhatsApp Web gateway over HTTP. Each instance
// owns one named session on the gateway; the session maps to one paired
// WhatsApp number.
type WaGateway struct {
	baseURL string
	session string
	token   string
	client  *http.Client
}

func NewWaGateway(cfg config.ChannelSettings, session string) *WaGateway {
	return &WaGateway{
		baseURL: cfg.BaseURL,
		session: session,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type sessionState struct {
	Status string `json:"status"` // "starting", "scan_qr", "connected", "disconnected"
}

type openChatRequest struct {
	Phone string `json:"phone"`
}

type openChatResponse struct {
	ChatID string `json:"chat_id"`
}

type sendRequest struct {
	Text string `json:"text"`
}

func (g *WaGateway) Start(ctx context.Context) error {
	resp, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%s/start", g.session), nil)
	if err != nil {
		return fmt.Errorf("start session %s: %w", g.session, err)
	}
	defer resp.Body.Close()
	// 409 means the session already exists, which is fine after restarts.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("start session %s: gateway returned %s", g.session, resp.Status)
	}
	return nil
}

func (g *WaGateway) IsReady(ctx context.Context) (bool, error) {
	resp, err := g.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%s", g.session), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("session state: gateway returned %s", resp.Status)
	}
	var state sessionState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return false, err
	}
	return state.Status == "connected", nil
}

func (g *WaGateway) Open(ctx context.Context, phone string) (ChatHandle, error) {
	resp, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%s/chats", g.session), openChatRequest{Phone: phone})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var chat openChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
			return "", fmt.Errorf("%w: decode response: %v", ErrOpenFailed, err)
		}
		return ChatHandle(chat.ChatID), nil
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, phone)
	default:
		return "", fmt.Errorf("%w: gateway returned %s", ErrOpenFailed, resp.Status)
	}
}

func (g *WaGateway) Send(ctx context.Context, handle ChatHandle, text string) error {
	resp, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%s/chats/%s/messages", g.session, handle), sendRequest{Text: text})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: gateway returned %s", ErrSendFailed, resp.Status)
	}
	return nil
}

// Screenshot captures the session's current view, used to illustrate
// error reports the way the old Selenium bot attached browser captures.
func (g *WaGateway) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := g.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%s/screenshot", g.session), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screenshot: gateway returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (g *WaGateway) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%s/stop", g.session), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (g *WaGateway) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return g.client.Do(req)
}
