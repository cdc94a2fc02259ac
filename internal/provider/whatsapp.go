package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultWhatsAppBaseURL = "https://graph.facebook.com/v19.0"

// Cloud API error codes that matter for retry decisions.
var (
	rateLimitCodes = map[int]bool{4: true, 80007: true, 130429: true, 131048: true, 131056: true}
	recipientCodes = map[int]bool{131021: true, 131026: true, 131030: true}
	transientCodes = map[int]bool{1: true, 2: true, 131000: true, 131016: true}
)

type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// WhatsAppClient sends template and text messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultWhatsAppBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhatsAppClient{
		url:   fmt.Sprintf("%s/%s/messages", strings.TrimRight(base, "/"), cfg.PhoneNumberID),
		token: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type waRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Template         *waTemplate `json:"template,omitempty"`
	Text             *waText     `json:"text,omitempty"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waText struct {
	Body string `json:"body"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Subcode int    `json:"error_subcode"`
	} `json:"error"`
}

func buildRequest(msg Message) waRequest {
	req := waRequest{
		MessagingProduct: "whatsapp",
		To:               msg.To,
	}
	if msg.TemplateName == "" {
		req.Type = "text"
		req.Text = &waText{Body: msg.Body}
		return req
	}

	req.Type = "template"
	req.Template = &waTemplate{
		Name:     msg.TemplateName,
		Language: waLanguage{Code: msg.LanguageCode},
	}
	if len(msg.Params) > 0 {
		params := make([]waParameter, len(msg.Params))
		for i, p := range msg.Params {
			params[i] = waParameter{Type: "text", Text: p}
		}
		req.Template.Components = []waComponent{{Type: "body", Parameters: params}}
	}
	return req
}

func (c *WhatsAppClient) Send(ctx context.Context, msg Message) (string, error) {
	if msg.TemplateName == "" && msg.Body == "" {
		return "", Permanent(KindRejected, errors.New("message has neither template nor body"))
	}

	payload, err := json.Marshal(buildRequest(msg))
	if err != nil {
		return "", Permanent(KindRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", Permanent(KindUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Classify(err)
	}

	var wr waResponse
	decodeErr := json.Unmarshal(body, &wr)

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if decodeErr != nil {
			return "", &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("failed to decode json: %w", decodeErr)}
		}
		if len(wr.Messages) == 0 || wr.Messages[0].ID == "" {
			return "", &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Body: string(body), Err: errors.New("missing message id")}
		}
		return wr.Messages[0].ID, nil
	}

	code := 0
	if decodeErr == nil && wr.Error != nil {
		code = wr.Error.Code
	}
	return "", classifyResponse(resp.StatusCode, code, string(body))
}

func classifyResponse(status, code int, body string) *Error {
	e := &Error{StatusCode: status, Code: code, Body: body}
	switch {
	case status == http.StatusTooManyRequests || rateLimitCodes[code]:
		e.Kind, e.Retryable = KindRateLimited, true
	case recipientCodes[code]:
		e.Kind = KindInvalidRecipient
	case status >= http.StatusInternalServerError || transientCodes[code]:
		e.Kind, e.Retryable = KindUnavailable, true
	case status == http.StatusRequestTimeout:
		e.Kind, e.Retryable = KindTimeout, true
	case status >= http.StatusBadRequest:
		e.Kind = KindRejected
	default:
		e.Kind = KindUnknown
	}
	return e
}
