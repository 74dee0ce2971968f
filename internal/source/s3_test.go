package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	pages   [][]string
	calls   int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := f.pages[f.calls]
	f.calls++
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(f.calls < len(f.pages))}
	if f.calls < len(f.pages) {
		out.NextContinuationToken = aws.String("next")
	}
	for _, k := range page {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func TestS3Source_List(t *testing.T) {
	fake := &fakeS3{pages: [][]string{
		{"etl/sys_b/b.sql", "etl/readme.md"},
		{"etl/sys_a/a.HQL"},
	}}
	src := NewS3Source(fake, "scripts")

	keys, err := src.List(context.Background(), "etl/")
	require.NoError(t, err)
	assert.Equal(t, []string{"etl/sys_a/a.HQL", "etl/sys_b/b.sql"}, keys)
	assert.Equal(t, 2, fake.calls)
}

func TestS3Source_Fetch(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"etl/F-DD_00001/load.sql": "SELECT 1;"}}
	src := NewS3Source(fake, "scripts")

	s, err := src.Fetch(context.Background(), "etl/F-DD_00001/load.sql", "etl/")
	require.NoError(t, err)
	assert.Equal(t, "F-DD_00001/load.sql", s.ID)
	assert.Equal(t, "SELECT 1;", s.Text)
	assert.Equal(t, "s3://scripts/etl/F-DD_00001/load.sql", s.Job.Path)

	_, err = src.Fetch(context.Background(), "etl/missing.sql", "etl/")
	assert.Error(t, err)
}

func TestNewS3Client(t *testing.T) {
	_, err := NewS3Client(S3Options{})
	assert.Error(t, err)

	c, err := NewS3Client(S3Options{Bucket: "b", Region: "eu-central-1", Endpoint: "fsn1.example.com", UsePathStyle: true, AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
