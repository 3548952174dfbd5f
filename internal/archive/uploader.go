// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/frameflow-dev/frameflow/internal/config"
)

// uploadTimeout limita a duração de um PutObject.
const uploadTimeout = 5 * time.Minute

// ObjectPutter é o subconjunto do client S3 usado pelo uploader.
// Os testes substituem por um fake.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader envia bundles de sessão para um bucket S3-compatível.
// Falhas de upload são logadas e nunca propagadas para a sessão: o
// archive é uma cópia secundária, não o caminho do resultado.
type Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewUploader monta o client S3 a partir da configuração. Endpoint
// não-vazio (MinIO e afins) liga path-style addressing.
func NewUploader(ctx context.Context, cfg config.ArchiveInfo, logger *slog.Logger) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With("component", "archive"),
	}, nil
}

// NewUploaderWithClient injeta um client pronto (testes).
func NewUploaderWithClient(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "archive"),
	}
}

// Upload envia o bundle para {prefix}/{sessionID}/{basename}. Retorna a
// key do objeto; erro só para o caller decidir logar, nunca abortar.
func (u *Uploader) Upload(ctx context.Context, sessionID, bundlePath string) (string, error) {
	f, err := os.Open(bundlePath)
	if err != nil {
		return "", fmt.Errorf("opening bundle: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("%s/%s/%s", u.prefix, sessionID, filepath.Base(bundlePath))

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	u.logger.Info("session archived", "session", sessionID, "bucket", u.bucket, "key", key)
	return key, nil
}

// ArchiveSession empacota e envia uma sessão concluída, em melhor
// esforço. O bundle temporário é removido ao final.
func (u *Uploader) ArchiveSession(ctx context.Context, dataDir, sessionID string) {
	bundlePath := filepath.Join(dataDir, fmt.Sprintf("archive_%s.tar.zst", sessionID))
	defer os.Remove(bundlePath)

	result, err := BundleSession(ctx, dataDir, sessionID, bundlePath)
	if err != nil {
		u.logger.Warn("bundling session failed", "session", sessionID, "error", err)
		return
	}

	if _, err := u.Upload(ctx, sessionID, bundlePath); err != nil {
		u.logger.Warn("archiving session failed",
			"session", sessionID,
			"size", result.Size,
			"error", err,
		)
		return
	}
}
