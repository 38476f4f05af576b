// Package minio はアップロードされたPDF原本をMinIO（S3互換）に保存する。
package minio

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hitoshi/studyapp/internal/document"
)

// minioAPI は*minio.Clientのうち使用するメソッドのみを抜き出したもの。
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Config はMinIOの接続設定。
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var _ document.BlobStore = (*Client)(nil)

// Client はdocument.BlobStoreのMinIO実装。
type Client struct {
	api    minioAPI
	bucket string
}

// New は設定からMinIOクライアントを生成し、バケットを用意する。
func New(ctx context.Context, cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIOクライアントの生成に失敗しました: %w", err)
	}
	c, err := NewClientWithAPI(ctx, mc, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	slog.Info("MinIOに接続しました",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)
	return c, nil
}

// NewClientWithAPI は任意のAPI実装でClientを生成する（テスト用）。
func NewClientWithAPI(ctx context.Context, api minioAPI, bucket string) (*Client, error) {
	c := &Client{
		api:    api,
		bucket: bucket,
	}
	if err := c.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("バケットの準備に失敗しました: %w", err)
	}
	return c, nil
}

// ensureBucketExists はバケットが存在しない場合に作成する。
func (c *Client) ensureBucketExists(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("バケットの存在確認に失敗しました: %w", err)
	}
	if !exists {
		if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("バケットの作成に失敗しました: %w", err)
		}
		slog.Info("バケットを作成しました", slog.String("bucket", c.bucket))
	}
	return nil
}

// Upload はオブジェクトを保存する。sizeが不明な場合は-1を指定する。
func (c *Client) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := c.api.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("オブジェクトのアップロードに失敗しました: %w", err)
	}
	return nil
}

// Delete はオブジェクトを削除する。存在しないキーはエラーにならない。
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("オブジェクトの削除に失敗しました: %w", err)
	}
	return nil
}
