package minio

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/testutil"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucket, opts).Error(0)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucket, object, reader, size, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucket, object, expiry, params)
	u, _ := args.Get(0).(*url.URL)
	return u, args.Error(1)
}

func (m *MockObjectAPI) RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucket, object, opts).Error(0)
}

type ClientTestSuite struct {
	suite.Suite
	api    *MockObjectAPI
	logger *testutil.MockLogger
	client *Client
	ctx    context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.api = &MockObjectAPI{}
	s.logger = testutil.NewMockLogger()
	s.client = NewClientWithAPI(s.api, config.StorageConfig{
		Bucket:        "results",
		Region:        "eu-west-1",
		PresignExpiry: time.Hour,
	}, s.logger)
	s.ctx = context.Background()
}

func (s *ClientTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) TestEnsureBucketCreatesMissing() {
	s.api.On("BucketExists", s.ctx, "results").Return(false, nil).Once()
	s.api.On("MakeBucket", s.ctx, "results", minio.MakeBucketOptions{Region: "eu-west-1"}).Return(nil).Once()

	s.Require().NoError(s.client.EnsureBucket(s.ctx))
	s.True(s.logger.HasMessage("info", "created bucket"))
}

func (s *ClientTestSuite) TestEnsureBucketExisting() {
	s.api.On("BucketExists", s.ctx, "results").Return(true, nil).Once()
	s.Require().NoError(s.client.EnsureBucket(s.ctx))
}

func (s *ClientTestSuite) TestEnsureBucketUnreachable() {
	s.api.On("BucketExists", s.ctx, "results").Return(false, io.ErrUnexpectedEOF).Once()
	err := s.client.EnsureBucket(s.ctx)
	s.True(errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestPutJSON() {
	var uploaded map[string]int
	s.api.On("PutObject", s.ctx, "results", "a/b.json", mock.Anything, int64(7),
		minio.PutObjectOptions{ContentType: "application/json"}).
		Run(func(args mock.Arguments) {
			s.Require().NoError(json.NewDecoder(args.Get(3).(io.Reader)).Decode(&uploaded))
		}).
		Return(minio.UploadInfo{Size: 7}, nil).Once()

	size, err := s.client.PutJSON(s.ctx, "a/b.json", map[string]int{"a": 1})
	s.Require().NoError(err)
	s.Equal(int64(7), size)
	s.Equal(map[string]int{"a": 1}, uploaded)
}

func (s *ClientTestSuite) TestPutJSONErrors() {
	_, err := s.client.PutJSON(s.ctx, "bad.json", func() {})
	s.True(errors.IsCode(err, errors.ErrCodeSerialization))

	s.api.On("PutObject", s.ctx, "results", "x.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, io.ErrClosedPipe).Once()
	_, err = s.client.PutJSON(s.ctx, "x.json", 1)
	s.True(errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestHealthCheck() {
	s.api.On("BucketExists", s.ctx, "results").Return(true, nil).Once()
	s.NoError(s.client.HealthCheck(s.ctx))

	s.api.On("BucketExists", s.ctx, "results").Return(false, nil).Once()
	s.True(errors.IsCode(s.client.HealthCheck(s.ctx), errors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestRemove() {
	s.api.On("RemoveObject", s.ctx, "results", "k", minio.RemoveObjectOptions{}).Return(nil).Once()
	s.NoError(s.client.Remove(s.ctx, "k"))
}

func (s *ClientTestSuite) TestArchive() {
	archive := NewResultArchive(s.client, "/screening/")
	archive.now = func() time.Time { return time.Date(2026, 3, 9, 23, 0, 0, 0, time.FixedZone("x", -3*3600)) }
	const key = "screening/2026/03/10/job_1.json"

	presigned, _ := url.Parse("https://s3.example.com/results/" + key + "?X-Amz-Signature=abc")
	s.api.On("PutObject", s.ctx, "results", key, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{Size: 42}, nil).Once()
	s.api.On("PresignedGetObject", s.ctx, "results", key, time.Hour, url.Values(nil)).Return(presigned, nil).Once()

	ref, err := archive.Archive(s.ctx, "job/1", &shapetypes.ScreenResponse{Screened: 3})
	s.Require().NoError(err)
	s.Equal("results", ref.Bucket)
	s.Equal(key, ref.Key)
	s.Equal(int64(42), ref.Size)
	s.Equal(presigned.String(), ref.URL)
	s.Require().NotNil(ref.ExpiresAt)
	s.WithinDuration(time.Now().Add(time.Hour), *ref.ExpiresAt, time.Minute)
}

func (s *ClientTestSuite) TestArchiveWithoutPresign() {
	archive := NewResultArchive(s.client, "screening")
	s.api.On("PutObject", s.ctx, "results", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{Size: 1}, nil).Once()
	s.api.On("PresignedGetObject", s.ctx, "results", mock.Anything, time.Hour, url.Values(nil)).
		Return(nil, io.ErrUnexpectedEOF).Once()

	ref, err := archive.Archive(s.ctx, "j", &shapetypes.ScreenResponse{})
	s.Require().NoError(err)
	s.Empty(ref.URL)
	s.Nil(ref.ExpiresAt)
	s.True(s.logger.HasMessage("warn", "archived result has no download URL"))
}

func (s *ClientTestSuite) TestSanitizeKey() {
	s.Equal("abc-1_2.x", sanitizeKey("abc-1_2.x"))
	s.Equal(".._etc_passwd", sanitizeKey("../etc/passwd"))
	s.Equal("unnamed", sanitizeKey(""))
	s.Equal("unnamed", sanitizeKey(".."))
}
