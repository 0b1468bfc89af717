package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

const (
	tiktokAPIBase       = "https://open.tiktokapis.com"
	tiktokDefaultCap    = 15
	tiktokPrivacyPublic = "PUBLIC_TO_EVERYONE"
)

// TikTok error codes that need the owner to act before a retry can work.
var tiktokTerminalCodes = map[string]bool{
	"access_token_invalid":                               true,
	"scope_not_authorized":                               true,
	"scope_permission_missed":                            true,
	"invalid_params":                                     true,
	"spam_risk_user_banned_from_posting":                 true,
	"unaudited_client_can_only_post_to_private_accounts": true,
	"url_ownership_unverified":                           true,
	"privacy_level_option_mismatch":                      true,
}

var tiktokRetryableCodes = map[string]bool{
	"rate_limit_exceeded":              true,
	"spam_risk_too_many_posts":         true,
	"spam_risk_too_many_pending_share": true,
	"internal_error":                   true,
}

type TiktokPublisher struct {
	publishDeps
	baseURL string
}

func NewTiktokPublisher(
	cr repository.ContentItemRepository,
	sa repository.SocialAccountRepository,
	storage ClipStorage,
	secretKey string) *TiktokPublisher {
	return &TiktokPublisher{
		publishDeps: newPublishDeps(cr, sa, storage, secretKey),
		baseURL:     tiktokAPIBase,
	}
}

func (p *TiktokPublisher) Adapter() PlatformAdapter {
	return PlatformAdapter{Platform: models.PlatformTiktok, Publisher: p, DailyCap: tiktokDefaultCap}
}

// Publish asks TikTok to pull the clip from its public storage URL.
func (p *TiktokPublisher) Publish(ctx context.Context, contentItemID string) (*PublishReceipt, error) {
	target, err := p.prepare(ctx, contentItemID, models.PlatformTiktok)
	if err != nil {
		return nil, err
	}
	if err := p.verifyVideo(ctx, target.content.MediaKey); err != nil {
		return nil, err
	}

	creator, err := p.queryCreatorInfo(ctx, target.token)
	if err != nil {
		return nil, err
	}

	privacy := tiktokPrivacyPublic
	if len(creator.PrivacyLevelOptions) > 0 && !slices.Contains(creator.PrivacyLevelOptions, privacy) {
		privacy = creator.PrivacyLevelOptions[0]
	}

	title := target.content.Caption
	if title == "" {
		title = target.content.Title
	}

	req := transfer.TiktokVideoInitRequest{
		PostInfo: transfer.TiktokVideoPostInfo{
			Title:                 title,
			PrivacyLevel:          privacy,
			DisableDuet:           creator.DuetDisabled,
			DisableComment:        creator.CommentDisabled,
			DisableStitch:         creator.StitchDisabled,
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.TiktokVideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: p.storage.PublicURL(target.content.MediaKey),
		},
	}

	var result transfer.TiktokVideoInitResponse
	if err := p.post(ctx, "/v2/post/publish/video/init/", target.token, req, &result); err != nil {
		return nil, err
	}
	if result.Data.PublishID == "" {
		return nil, Retryable("tiktok returned no publish id", nil)
	}

	slog.Info("tiktok publish initiated", "content_item_id", contentItemID, "publish_id", result.Data.PublishID)

	receipt := &PublishReceipt{RemotePostID: result.Data.PublishID}
	if target.account.AccountUsername != "" {
		receipt.RemoteURL = "https://www.tiktok.com/@" + target.account.AccountUsername
	}
	return receipt, nil
}

func (p *TiktokPublisher) queryCreatorInfo(ctx context.Context, token string) (*transfer.TiktokCreatorInfo, error) {
	var result transfer.TiktokCreatorInfoResponse
	if err := p.post(ctx, "/v2/post/publish/creator_info/query/", token, nil, &result); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

// post sends a JSON request and decodes the TikTok envelope into out. TikTok
// reports failures in the error object even on some 200 responses.
func (p *TiktokPublisher) post(ctx context.Context, path, token string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Terminal("error marshalling tiktok request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return Retryable("tiktok request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Retryable("error reading tiktok response", err)
	}

	var envelope struct {
		Error transfer.TiktokError `json:"error"`
	}
	_ = json.Unmarshal(raw, &envelope)

	if apiErr := classifyTiktok(resp.StatusCode, envelope.Error); apiErr != nil {
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return Retryable("error decoding tiktok response", err)
	}
	return nil
}

func classifyTiktok(status int, e transfer.TiktokError) error {
	code := strings.ToLower(e.Code)
	if status == http.StatusOK && (code == "" || code == "ok") {
		return nil
	}

	cause := fmt.Errorf("tiktok %d %s: %s", status, e.Code, e.Message)
	switch {
	case tiktokTerminalCodes[code]:
		return Terminal(e.Code, cause)
	case tiktokRetryableCodes[code]:
		return Retryable(e.Code, cause)
	case status == http.StatusOK:
		return Retryable(e.Code, cause)
	default:
		return classifyStatus(status, "tiktok", cause)
	}
}
