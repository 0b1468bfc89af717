package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	youtubeDefaultCap = 10
	youtubeCategory   = "20" // Gaming
)

// 403 reasons that clear on their own.
var youtubeQuotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
}

type YoutubePublisher struct {
	publishDeps
	endpoint string
}

func NewYoutubePublisher(
	cr repository.ContentItemRepository,
	sa repository.SocialAccountRepository,
	storage ClipStorage,
	secretKey string) *YoutubePublisher {
	return &YoutubePublisher{publishDeps: newPublishDeps(cr, sa, storage, secretKey)}
}

func (p *YoutubePublisher) Adapter() PlatformAdapter {
	return PlatformAdapter{Platform: models.PlatformYoutube, Publisher: p, DailyCap: youtubeDefaultCap}
}

// Publish streams the clip from storage into a videos.insert upload.
func (p *YoutubePublisher) Publish(ctx context.Context, contentItemID string) (*PublishReceipt, error) {
	target, err := p.prepare(ctx, contentItemID, models.PlatformYoutube)
	if err != nil {
		return nil, err
	}

	media, closer, err := p.openVideo(ctx, target.content.MediaKey)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: target.token}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       target.content.Title,
			Description: target.content.Caption,
			CategoryId:  youtubeCategory,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(media).Context(ctx).Do()
	if err != nil {
		return nil, classifyYoutube(err)
	}

	slog.Info("youtube upload finished", "content_item_id", contentItemID, "video_id", resp.Id)
	return &PublishReceipt{
		RemotePostID: resp.Id,
		RemoteURL:    "https://youtu.be/" + resp.Id,
	}, nil
}

func classifyYoutube(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return Retryable("youtube upload failed", err)
	}

	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			if youtubeQuotaReasons[item.Reason] {
				return Retryable("youtube quota: "+item.Reason, err)
			}
		}
	}
	return classifyStatus(gerr.Code, "youtube", err)
}
