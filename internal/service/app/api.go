package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ephemsg/internal/model"

	"github.com/gorilla/websocket"
)

var errNotFound = errors.New("api: not found")

// apiClient talks to the gateway's HTTP surface. It doubles as the
// keyring.Directory for the key lifecycle.
type apiClient struct {
	host string
	http *http.Client
}

func newAPIClient(host string) *apiClient {
	return &apiClient{
		host: host,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *apiClient) Register(ctx context.Context, phone, password string) (*model.Profile, error) {
	body := map[string]string{
		"phone":    phone,
		"password": password,
		"name":     phone,
	}

	var profile model.Profile
	if err := c.postJSON(ctx, "/users", body, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Lookup resolves a user by phone. Returns (nil, errNotFound) when the
// phone is not registered.
func (c *apiClient) Lookup(ctx context.Context, phone string) (*model.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://"+c.host+"/users/"+url.PathEscape(phone), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var profile model.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Backup implements keyring.Directory.
func (c *apiClient) Backup(ctx context.Context, phone string) (pub, blob, iv string, err error) {
	profile, err := c.Lookup(ctx, phone)
	if err != nil {
		return "", "", "", err
	}
	return profile.PublicKey, profile.EncryptedPrivateKey, profile.KeyIV, nil
}

// UploadBackup implements keyring.Directory.
func (c *apiClient) UploadBackup(ctx context.Context, phone, pub, blob, iv string) error {
	body := map[string]string{
		"phone":               phone,
		"publicKey":           pub,
		"encryptedPrivateKey": blob,
		"iv":                  iv,
	}
	return c.postJSON(ctx, "/keys", body, nil)
}

func (c *apiClient) ChatList(ctx context.Context, userID string) ([]model.ChatEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://"+c.host+"/chats?userId="+url.QueryEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var entries []model.ChatEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *apiClient) History(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	u := "http://" + c.host + "/chats/" + url.PathEscape(chatID) + "/messages"
	if limit > 0 {
		u += fmt.Sprintf("?limit=%d", limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var msgs []model.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Dial opens the real-time channel.
func (c *apiClient) Dial(ctx context.Context) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: c.host, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"http://"+c.host+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("api: %s: %s", resp.Status, bytes.TrimSpace(msg))
}
