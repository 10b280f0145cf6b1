// Package notify delivers keyword alerts to a DingTalk-compatible
// webhook, with an outbound-target allowlist and HMAC request signing.
package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/Kalinx99/TelScan/internal/logging"
)

// Notifier posts markdown alerts to a configured webhook target.
type Notifier struct {
	allowedHosts []string
	client       *retryablehttp.Client
	log          *logging.Logger
	now          func() time.Time
}

// New creates a notifier restricted to the given webhook hosts.
func New(allowedHosts []string, log *logging.Logger) *Notifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &Notifier{
		allowedHosts: allowedHosts,
		client:       client,
		log:          log.Sub("notify"),
		now:          time.Now,
	}
}

// markdownPayload is the DingTalk markdown message shape.
type markdownPayload struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"markdown"`
}

// webhookResponse is the embedded status in the service's HTTP 200 body.
// An HTTP 200 with a non-zero errcode is still a failure.
type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Notify signs and posts one alert. Every call returns a human-readable
// outcome string; in test mode callers surface it to the user, otherwise
// it is only logged.
func (n *Notifier) Notify(target, secret, title, body string, isTest bool) string {
	if target == "" {
		outcome := "webhook not configured"
		if !isTest {
			n.log.Debug().Msg(outcome)
		}
		return outcome
	}

	if !n.safeTarget(target) {
		outcome := "unsafe webhook target rejected: " + target
		n.log.Warn().Str("target", target).Msg("webhook target not on allowlist")
		return outcome
	}

	if secret != "" {
		ts := strconv.FormatInt(n.now().UnixMilli(), 10)
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "timestamp=" + ts + "&sign=" + Sign(ts, secret)
	}

	var payload markdownPayload
	payload.MsgType = "markdown"
	payload.Markdown.Title = title
	payload.Markdown.Text = body

	data, err := json.Marshal(payload)
	if err != nil {
		return "failed to encode alert: " + err.Error()
	}

	resp, err := n.client.Post(target, "application/json;charset=utf-8", bytes.NewReader(data))
	if err != nil {
		outcome := "send error: " + err.Error()
		n.log.Error().Err(err).Msg("webhook request failed")
		return outcome
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var wr webhookResponse
	_ = json.Unmarshal(raw, &wr)

	if resp.StatusCode == 200 && wr.ErrCode == 0 {
		n.log.Info().Str("title", title).Msg("webhook alert sent")
		return "sent"
	}

	outcome := fmt.Sprintf("send failed: status=%d errcode=%d %s", resp.StatusCode, wr.ErrCode, wr.ErrMsg)
	n.log.Error().Int("status", resp.StatusCode).Int("errcode", wr.ErrCode).Msg("webhook alert rejected")
	return outcome
}

// safeTarget enforces the scheme and host allowlist before any network
// call is attempted.
func (n *Notifier) safeTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	for _, host := range n.allowedHosts {
		if u.Host == host {
			return true
		}
	}
	return false
}

// Sign computes the webhook signature for a millisecond timestamp:
// HMAC-SHA256 of "<timestamp>\n<secret>" keyed by the secret, base64
// encoded and URL escaped.
func Sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
