package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3 struct {
	mock.Mock
}

func (m *MockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var body string
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		body = string(b)
	}
	args := m.Called(aws.ToString(in.Bucket), aws.ToString(in.Key), body)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *MockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if out := args.Get(0); out != nil {
		return out.(*s3.GetObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.ToString(in.Bucket), aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func (m *MockS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (m *MockS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (m *MockS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (m *MockS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

type stubPresigner struct{}

func (stubPresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &v4.PresignedHTTPRequest{
		URL: "https://" + aws.ToString(in.Bucket) + ".s3.local/" + aws.ToString(in.Key) + "?expires=" + opts.Expires.String(),
	}, nil
}

func TestS3Client_UploadDownloadDelete(t *testing.T) {
	api := new(MockS3)
	api.On("PutObject", "doctrack", "documents/PR-2026-0001/request.pdf", "%PDF-1.7").Return(nil).Once()
	api.On("GetObject", "doctrack", "documents/PR-2026-0001/request.pdf").
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("%PDF-1.7"))}, nil).Once()
	api.On("GetObject", "doctrack", "missing").Return(nil, &types.NoSuchKey{}).Once()
	api.On("DeleteObject", "doctrack", "documents/PR-2026-0001/request.pdf").Return(nil).Once()

	c := NewS3ClientWith(api, stubPresigner{})
	ctx := context.Background()
	key := DocumentKey("pr-2026-0001", "request.pdf")

	require.NoError(t, c.Upload(ctx, "doctrack", key, strings.NewReader("%PDF-1.7")))

	body, err := c.Download(ctx, "doctrack", key)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
	require.NoError(t, body.Close())

	_, err = c.Download(ctx, "doctrack", "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, c.Delete(ctx, "doctrack", key))
	api.AssertExpectations(t)
}

func TestS3Client_GetPresignedURL(t *testing.T) {
	c := NewS3ClientWith(new(MockS3), stubPresigner{})
	url, err := c.GetPresignedURL(context.Background(), "doctrack", "documents/X/a.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://doctrack.s3.local/documents/X/a.pdf?expires=15m0s", url)

	_, err = NewS3ClientWith(new(MockS3), nil).GetPresignedURL(context.Background(), "b", "k", time.Minute)
	assert.Error(t, err)
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "documents/DV-2026-0042/scan_page1.png", DocumentKey(" dv-2026-0042 ", "scan/page1.png"))
}
