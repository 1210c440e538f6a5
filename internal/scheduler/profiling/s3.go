package profiling

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/scheduler/configuration"
	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

// S3Store keeps one object per profile in a single bucket.
type S3Store struct {
	s3     s3iface.S3API
	bucket string
}

func NewS3Store(client s3iface.S3API, bucket string) *S3Store {
	return &S3Store{s3: client, bucket: bucket}
}

// NewS3StoreFromConfig creates a client from the default credential chain.
func NewS3StoreFromConfig(config configuration.S3Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("no bucket configured for the S3 profile store")
	}
	awsConfig := aws.NewConfig().WithS3ForcePathStyle(config.ForcePathStyle)
	if config.Region != "" {
		awsConfig = awsConfig.WithRegion(config.Region)
	}
	if config.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(config.Endpoint)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewS3Store(s3.New(sess), config.Bucket), nil
}

func (s *S3Store) Put(ctx context.Context, key string, p model.Profile) error {
	var buf bytes.Buffer
	if err := WriteProfile(&buf, p); err != nil {
		return err
	}
	_, err := s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Body:   bytes.NewReader(buf.Bytes()),
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "uploading profile %s", key)
}

func (s *S3Store) Get(ctx context.Context, key string) (model.Profile, error) {
	resp, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return model.Profile{}, errors.Wrap(ErrNotFound, key)
		}
		return model.Profile{}, errors.Wrapf(err, "downloading profile %s", key)
	}
	defer resp.Body.Close()
	p, err := ReadProfile(resp.Body)
	return p, errors.WithMessagef(err, "parsing profile %s", key)
}
