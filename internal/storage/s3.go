package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3KeyPrefix はS3に保存する写真のキー接頭辞。
const S3KeyPrefix = "profiles/"

// S3Client はS3PhotoStoreが使用するS3 APIのサブセット。
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // MinIOなどS3互換サービスを使う場合に指定する
	AccessKey string
	SecretKey string
	PublicURL string // 保存したオブジェクトを公開するベースURL
}

// S3PhotoStore はS3互換オブジェクトストレージに写真を保存するPhotoStore。
type S3PhotoStore struct {
	client    S3Client
	bucket    string
	publicURL string
}

// NewS3PhotoStore は設定からS3クライアントを構築してS3PhotoStoreを生成する。
// AccessKeyが空の場合はデフォルトの認証情報チェーンを使う。
func NewS3PhotoStore(ctx context.Context, cfg S3Config) (*S3PhotoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3PhotoStoreWithClient(client, cfg.Bucket, cfg.PublicURL), nil
}

// NewS3PhotoStoreWithClient は既存のクライアントでS3PhotoStoreを生成する。
func NewS3PhotoStoreWithClient(client S3Client, bucket, publicURL string) *S3PhotoStore {
	return &S3PhotoStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// Save はprofiles/<name>にオブジェクトを保存し、公開URLを返す。
func (s *S3PhotoStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}

	key := S3KeyPrefix + name
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put photo object: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

// Delete は公開URLに対応するオブジェクトを削除する。
// 公開URL配下でないパスはErrForeignPathを返す。
func (s *S3PhotoStore) Delete(ctx context.Context, publicPath string) error {
	key, ok := strings.CutPrefix(publicPath, s.publicURL+"/")
	if !ok {
		return ErrForeignPath
	}
	name, ok := strings.CutPrefix(key, S3KeyPrefix)
	if !ok || !validName(name) {
		return ErrForeignPath
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete photo object: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PhotoStore = (*S3PhotoStore)(nil)
