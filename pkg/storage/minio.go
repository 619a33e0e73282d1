// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jiyuchen1/AiHistory/internal/config"
	"github.com/jiyuchen1/AiHistory/pkg/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioArchiver 把导出的快照归档到 MinIO 存储桶中。
type MinioArchiver struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioArchiver 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinioArchiver(ctx context.Context, cfg config.ArchiveConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	// 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	log.Infof("导出归档存储桶 '%s' 已就绪", cfg.BucketName)

	return &MinioArchiver{client: client, bucket: cfg.BucketName, now: time.Now}, nil
}

// ObjectName 返回归档对象名，按日期分目录，同一天多次导出不会互相覆盖。
func ObjectName(now time.Time, filename string) string {
	return fmt.Sprintf("%s/%s-%s", now.Format("2006/01/02"), now.Format("150405.000"), filename)
}

// Archive 上传一份导出文档，返回对象名。
func (a *MinioArchiver) Archive(ctx context.Context, filename string, data []byte) (string, error) {
	object := ObjectName(a.now(), filename)
	_, err := a.client.PutObject(ctx, a.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("上传导出归档失败: %w", err)
	}
	return object, nil
}
