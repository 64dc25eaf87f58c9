package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alitto/pond"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
)

const DefaultConcurrency = 16

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Publisher struct {
	input    *S3PublisherInput
	s3       *s3.Client
	uploader uploader
}

type S3PublisherInput struct {
	AwsConfig    aws.Config
	Fs           afero.Fs
	Bucket       string
	Concurrency  int
	ShowProgress bool
}

func NewS3Publisher(input *S3PublisherInput) Publisher {
	client := s3.NewFromConfig(input.AwsConfig)
	return newS3Publisher(input, client, manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 1024 * 1024 * 10
	}))
}

func newS3Publisher(input *S3PublisherInput, client *s3.Client, up uploader) *s3Publisher {
	if input.Concurrency < 1 {
		input.Concurrency = DefaultConcurrency
	}
	return &s3Publisher{input: input, s3: client, uploader: up}
}

func (p *s3Publisher) SetUp(ctx context.Context) error {
	in := &s3.CreateBucketInput{
		Bucket: &p.input.Bucket,
		ACL:    s3Types.BucketCannedACLPrivate,
	}
	// us-east-1 rejects an explicit location constraint
	if region := p.input.AwsConfig.Region; region != "" && region != "us-east-1" {
		in.CreateBucketConfiguration = &s3Types.CreateBucketConfiguration{
			LocationConstraint: s3Types.BucketLocationConstraint(region),
		}
	}
	_, err := p.s3.CreateBucket(ctx, in)
	var e *s3Types.BucketAlreadyOwnedByYou
	if errors.As(err, &e) {
		slog.Debug("bucket already exists", slog.String("name", p.input.Bucket))
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", p.input.Bucket, err)
	}
	slog.Debug("created bucket", slog.String("name", p.input.Bucket))
	return nil
}

func (p *s3Publisher) Publish(ctx context.Context, objects []*Object) error {
	slog.Info("publishing results", slog.String("bucket", p.input.Bucket), slog.Int("objects", len(objects)))
	errCh := make(chan error, len(objects))
	pool := pond.New(p.input.Concurrency, 0, pond.MinWorkers(p.input.Concurrency))
	bar := p.progressBar(len(objects))
	for _, obj := range objects {
		pool.Submit(func() {
			defer bar.Add(1)
			err := p.upload(ctx, obj)
			if err != nil {
				slog.Error("failed to upload result", slog.String("key", obj.Key), slog.String("error", err.Error()))
				errCh <- err
			}
		})
	}
	pool.StopAndWait()
	bar.Finish()
	close(errCh)

	errs := []error{}
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d results failed to upload: %w", len(errs), len(objects), errors.Join(errs...))
	}
	slog.Info("done publishing", slog.String("bucket", p.input.Bucket))
	return nil
}

func (p *s3Publisher) upload(ctx context.Context, obj *Object) error {
	f, err := p.input.Fs.Open(obj.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", obj.LocalPath, err)
	}
	defer f.Close()

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &p.input.Bucket,
		Key:         &obj.Key,
		Body:        f,
		ContentType: aws.String(contentType(obj.Key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", obj.Key, err)
	}
	return nil
}

func (p *s3Publisher) progressBar(n int) *progressbar.ProgressBar {
	if p.input.ShowProgress {
		return progressbar.Default(int64(n), "Uploading results:")
	}
	return progressbar.DefaultSilent(int64(n), "Uploading results:")
}
