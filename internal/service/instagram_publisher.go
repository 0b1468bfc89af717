package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

const (
	instagramGraphBase  = "https://graph.instagram.com/v21.0"
	instagramDefaultCap = 25
	instagramPollEvery  = 5 * time.Second
	instagramMaxPolls   = 60
	instagramBadToken   = 190
)

// Graph API error codes for throttling.
var instagramRateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

type InstagramPublisher struct {
	publishDeps
	baseURL   string
	pollEvery time.Duration
	maxPolls  int
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewInstagramPublisher(
	cr repository.ContentItemRepository,
	sa repository.SocialAccountRepository,
	storage ClipStorage,
	secretKey string) *InstagramPublisher {
	return &InstagramPublisher{
		publishDeps: newPublishDeps(cr, sa, storage, secretKey),
		baseURL:     instagramGraphBase,
		pollEvery:   instagramPollEvery,
		maxPolls:    instagramMaxPolls,
		sleep:       sleepCtx,
	}
}

func (p *InstagramPublisher) Adapter() PlatformAdapter {
	return PlatformAdapter{Platform: models.PlatformInstagram, Publisher: p, DailyCap: instagramDefaultCap}
}

// Publish creates a Reels container, waits for Instagram to finish fetching
// the clip, then publishes the container.
func (p *InstagramPublisher) Publish(ctx context.Context, contentItemID string) (*PublishReceipt, error) {
	target, err := p.prepare(ctx, contentItemID, models.PlatformInstagram)
	if err != nil {
		return nil, err
	}
	if err := p.verifyVideo(ctx, target.content.MediaKey); err != nil {
		return nil, err
	}

	accountID := url.PathEscape(target.account.AccountID)

	var container transfer.InstagramMediaResponse
	err = p.do(ctx, http.MethodPost, "/"+accountID+"/media", transfer.InstagramReelRequest{
		MediaType:   "REELS",
		VideoURL:    p.storage.PublicURL(target.content.MediaKey),
		Caption:     target.content.Caption,
		ShareToFeed: true,
		AccessToken: target.token,
	}, &container)
	if err != nil {
		return nil, err
	}
	if container.ID == "" {
		return nil, Retryable("no media container id returned from instagram", nil)
	}

	if err := p.waitForContainer(ctx, container.ID, target.token); err != nil {
		return nil, err
	}

	var published transfer.InstagramMediaResponse
	err = p.do(ctx, http.MethodPost, "/"+accountID+"/media_publish", transfer.InstagramPublishRequest{
		CreationID:  container.ID,
		AccessToken: target.token,
	}, &published)
	if err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, Retryable("no media id returned from instagram", nil)
	}

	receipt := &PublishReceipt{RemotePostID: published.ID}

	var link transfer.InstagramPermalink
	q := url.Values{"fields": {"permalink"}, "access_token": {target.token}}
	if err := p.do(ctx, http.MethodGet, "/"+url.PathEscape(published.ID)+"?"+q.Encode(), nil, &link); err != nil {
		// The reel is live; a missing permalink must not turn it into a retry.
		slog.Warn("instagram permalink lookup failed", "media_id", published.ID, "error", err)
	} else {
		receipt.RemoteURL = link.Permalink
	}

	return receipt, nil
}

func (p *InstagramPublisher) waitForContainer(ctx context.Context, containerID, token string) error {
	q := url.Values{"fields": {"status_code,status"}, "access_token": {token}}
	path := "/" + url.PathEscape(containerID) + "?" + q.Encode()

	for i := 0; i < p.maxPolls; i++ {
		var status transfer.InstagramContainerStatus
		if err := p.do(ctx, http.MethodGet, path, nil, &status); err != nil {
			return err
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR":
			return Terminal("instagram rejected the clip", fmt.Errorf("container %s: %s", containerID, status.Status))
		case "EXPIRED":
			return Retryable("instagram container expired", nil)
		}

		if err := p.sleep(ctx, p.pollEvery); err != nil {
			return err
		}
	}
	return Retryable("instagram container still processing", nil)
}

func (p *InstagramPublisher) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Terminal("error marshalling instagram request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Retryable("instagram request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Retryable("error reading instagram response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr transfer.InstagramErrorResponse
		_ = json.Unmarshal(raw, &apiErr)
		return classifyInstagram(resp.StatusCode, apiErr)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return Retryable("error parsing instagram response", err)
	}
	return nil
}

func classifyInstagram(status int, e transfer.InstagramErrorResponse) error {
	cause := fmt.Errorf("instagram %d code=%d subcode=%d: %s", status, e.Error.Code, e.Error.ErrorSubcode, e.Error.Message)
	switch {
	case e.Error.Code == instagramBadToken:
		return Terminal("instagram access token invalid", cause)
	case e.Error.IsTransient || instagramRateLimitCodes[e.Error.Code]:
		return Retryable("instagram throttled", cause)
	default:
		return classifyStatus(status, "instagram", cause)
	}
}
