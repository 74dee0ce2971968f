package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3-compatible script bucket.
type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// ObjectAPI is the subset of the S3 client used to fetch scripts.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source lists and downloads scripts below a bucket prefix.
type S3Source struct {
	client ObjectAPI
	bucket string
}

// NewS3Client builds an S3 client with static credentials.
func NewS3Client(opts S3Options) (*s3.Client, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.AccessKeyID != "" {
		o.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		o.BaseEndpoint = aws.String(endpoint)
	}
	return s3.New(o), nil
}

// NewS3Source wraps a client for one bucket.
func NewS3Source(client ObjectAPI, bucket string) *S3Source {
	return &S3Source{client: client, bucket: bucket}
}

// List returns the script keys under prefix, sorted.
func (s *S3Source) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if IsScript(key) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Fetch downloads one object as a script with job info relative to prefix.
func (s *S3Source) Fetch(ctx context.Context, key, prefix string) (Script, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Script{}, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	text, err := Decode(raw)
	if err != nil {
		return Script{}, fmt.Errorf("failed to decode s3://%s/%s: %w", s.bucket, key, err)
	}

	job := KeyJobInfo(key, prefix)
	job.Path = fmt.Sprintf("s3://%s/%s", s.bucket, key)
	return Script{ID: ObjectKey(key, prefix), Text: text, Job: job}, nil
}
