package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	bodies map[string]string
	err    error
	bucket string
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = *in.Bucket
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.bodies[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestR2StorageOpen(t *testing.T) {
	objects := &fakeObjects{bodies: map[string]string{"clips/a.mp4": "video-bytes"}}
	st := NewR2Storage(objects, "clips-bucket", "https://cdn.example.com/")

	rc, err := st.Open(context.Background(), "clips/a.mp4")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "video-bytes", string(b))
	require.Equal(t, "clips-bucket", objects.bucket)

	_, err = st.Open(context.Background(), "clips/missing.mp4")
	require.False(t, IsRetryable(err))

	_, err = st.Open(context.Background(), "")
	require.False(t, IsRetryable(err))
}

func TestR2StorageOpenTransientError(t *testing.T) {
	st := NewR2Storage(&fakeObjects{err: errors.New("i/o timeout")}, "b", "")

	_, err := st.Open(context.Background(), "clips/a.mp4")
	require.True(t, IsRetryable(err))
}

func TestR2StoragePublicURL(t *testing.T) {
	st := NewR2Storage(&fakeObjects{}, "b", "https://cdn.example.com/")
	require.Equal(t, "https://cdn.example.com/clips/owner%201/ace%231.mp4", st.PublicURL("clips/owner 1/ace#1.mp4"))
}
