package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/pkg/utils"
)

// Enough for filetype to recognise every video container it supports.
const sniffLen = 262

// publishDeps is what every platform publisher needs to turn a content item
// id into an authenticated upload.
type publishDeps struct {
	cr        repository.ContentItemRepository
	sa        repository.SocialAccountRepository
	storage   ClipStorage
	secretKey []byte
	client    *http.Client
	now       func() time.Time
}

func newPublishDeps(
	cr repository.ContentItemRepository,
	sa repository.SocialAccountRepository,
	storage ClipStorage,
	secretKey string) publishDeps {
	return publishDeps{
		cr:        cr,
		sa:        sa,
		storage:   storage,
		secretKey: []byte(secretKey),
		client:    &http.Client{},
		now:       time.Now,
	}
}

type publishTarget struct {
	content *models.ContentItem
	account *models.SocialAccount
	token   string
}

func (d *publishDeps) prepare(ctx context.Context, contentItemID string, platform models.Platform) (*publishTarget, error) {
	content, err := d.cr.GetByID(ctx, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("error fetching content item %s: %w", contentItemID, err)
	}
	if content == nil {
		return nil, Terminal("content deleted", ErrContentNotFound)
	}

	acc, err := d.sa.GetByUserAndPlatform(ctx, content.OwnerID, platform)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s account: %w", platform, err)
	}
	if acc == nil || acc.AccountStatus != models.AccountStatusActive {
		return nil, Terminal(fmt.Sprintf("%s account not connected", platform), nil)
	}
	if !acc.TokenExpiresAt.IsZero() && acc.TokenExpiresAt.Before(d.now()) {
		return nil, Terminal(fmt.Sprintf("%s access token expired, reconnect account", platform), nil)
	}

	token, err := utils.Decrypt(acc.AccessToken, d.secretKey)
	if err != nil {
		return nil, Terminal("unreadable access token", err)
	}

	return &publishTarget{content: content, account: acc, token: token}, nil
}

// openVideo opens the clip and checks its magic bytes. The returned reader
// replays the sniffed header.
func (d *publishDeps) openVideo(ctx context.Context, key string) (io.Reader, io.Closer, error) {
	body, err := d.storage.Open(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	br := bufio.NewReaderSize(body, sniffLen*2)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		body.Close()
		return nil, nil, Retryable("storage read failed", err)
	}
	if !filetype.IsVideo(head) {
		body.Close()
		return nil, nil, Terminal("clip is not a video", nil)
	}
	return br, body, nil
}

// verifyVideo is openVideo for platforms that pull the clip themselves.
func (d *publishDeps) verifyVideo(ctx context.Context, key string) error {
	_, closer, err := d.openVideo(ctx, key)
	if err != nil {
		return err
	}
	return closer.Close()
}

// classifyStatus maps an HTTP status to a publish error.
func classifyStatus(status int, reason string, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Terminal("authorization rejected: "+reason, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return Retryable(reason, err)
	case status >= 400:
		return Terminal("content rejected: "+reason, err)
	default:
		return Retryable(reason, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
