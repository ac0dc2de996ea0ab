package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	secretHeader   = "X-OCR-SECRET"
	defaultTimeout = 30 * time.Second
	maxBodySize    = 4 << 20
)

type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// Client calls the Clova OCR general API. It never returns an error; every
// failure is folded into an unsuccessful Result.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
}

func (c *Client) Configured() bool {
	return c.cfg.URL != "" && c.cfg.Secret != ""
}

type requestImage struct {
	Format string `json:"format"`
	Name   string `json:"name"`
	Data   string `json:"data"`
}

type request struct {
	Version   string         `json:"version"`
	RequestID string         `json:"requestId"`
	Timestamp int64          `json:"timestamp"`
	Images    []requestImage `json:"images"`
}

type inferField struct {
	InferText *string `json:"inferText"`
	LineBreak bool    `json:"lineBreak"`
}

type response struct {
	Images []struct {
		Fields []inferField `json:"fields"`
		Title  *inferField  `json:"title"`
	} `json:"images"`
}

// Process recognizes the image and extracts card details from its text.
// imageBase64 may carry a data URL prefix.
func (c *Client) Process(ctx context.Context, imageBase64 string) Result {
	res := c.process(ctx, imageBase64)
	if res.Success {
		requestsTotal.WithLabelValues("success").Inc()
	} else {
		requestsTotal.WithLabelValues("failure").Inc()
	}
	return res
}

func (c *Client) process(ctx context.Context, imageBase64 string) Result {
	if !c.Configured() {
		log.Warn("OCR API is not configured, skipping recognition")
		return failure(MsgNotConfigured)
	}

	data := imageBase64
	if i := strings.Index(data, ","); i >= 0 {
		data = data[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		log.Errorf("OCR image is not valid base64: %v", err)
		return failure(msgFailedPrefix + err.Error())
	}
	if len(raw) == 0 {
		return failure(msgFailedPrefix + "image is empty")
	}

	body, err := json.Marshal(request{
		Version:   "V2",
		RequestID: uuid.NewString(),
		Timestamp: c.now().UnixMilli(),
		Images: []requestImage{{
			Format: "jpg",
			Name:   "giftcard",
			Data:   base64.StdEncoding.EncodeToString(raw),
		}},
	})
	if err != nil {
		return failure(msgFailedPrefix + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return failure(msgFailedPrefix + err.Error())
	}
	req.Header.Set(secretHeader, c.cfg.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("OCR request failed: %v", err)
		return failure(msgFailedPrefix + err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return failure(msgFailedPrefix + err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Errorf("OCR API returned %s: %s", resp.Status, payload)
		return failure(msgFailedPrefix + fmt.Sprintf("unexpected status %s", resp.Status))
	}

	text, err := InferText(payload)
	if err != nil {
		log.Errorf("OCR response could not be parsed: %v", err)
		return failure(msgParsePrefix + err.Error())
	}
	log.Debugf("OCR recognized text: %q", text)

	return Extract(text)
}

// InferText flattens a Clova response into plain text. Fields are joined with
// a newline where Clova reports a line break and a space otherwise. Template
// responses without fields fall back to the title text.
func InferText(payload []byte) (string, error) {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Images) == 0 {
		return "", nil
	}

	first := resp.Images[0]
	var sb strings.Builder
	switch {
	case first.Fields != nil:
		for _, f := range first.Fields {
			if f.InferText == nil {
				continue
			}
			sb.WriteString(*f.InferText)
			if f.LineBreak {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
	case first.Title != nil && first.Title.InferText != nil:
		sb.WriteString(*first.Title.InferText)
	}
	return strings.TrimSpace(sb.String()), nil
}
