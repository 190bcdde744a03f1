// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package export writes exported conversations to a local directory or an
// S3-compatible bucket.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/transport"
	"github.com/traylinx/chatdesk/internal/util"
)

// Sink stores one exported document and returns where it went.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// extensions maps export formats to file extensions.
var extensions = map[string]string{
	"json":     "json",
	"markdown": "md",
	"md":       "md",
	"txt":      "txt",
	"text":     "txt",
}

// FileName picks the name for an export: the server's Content-Disposition
// name when present, otherwise chat-<id>.<ext>.
func FileName(resp *transport.Response, id, format string) string {
	if resp != nil {
		if name := filepath.Base(resp.Filename()); name != "" && name != "." && name != "/" {
			return name
		}
	}
	ext, ok := extensions[strings.ToLower(format)]
	if !ok {
		ext = "json"
	}
	if id == "" {
		id = "export"
	}
	return fmt.Sprintf("chat-%s.%s", id, ext)
}

// FileSink writes exports below Dir.
type FileSink struct {
	Dir string
	sb  *util.StateBox
}

// NewFileSink returns a sink rooted at dir, resolved against the state
// directory when relative.
func NewFileSink(sb *util.StateBox, dir string) *FileSink {
	if dir == "" {
		dir = sb.ExportsDir()
	}
	return &FileSink{Dir: sb.ResolvePath(dir), sb: sb}
}

func (s *FileSink) Write(_ context.Context, name string, data []byte) (string, error) {
	target := filepath.Join(s.Dir, filepath.Base(name))
	if err := util.SecureWrite(s.sb, target, data, nil); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return target, nil
}

// S3Sink uploads exports into a bucket.
type S3Sink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Sink connects to the configured endpoint. Credentials fall back to
// the standard AWS environment variables when none are configured.
func NewS3Sink(cfg config.S3Config) (*S3Sink, error) {
	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("export: s3 client: %w", err)
	}
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *S3Sink) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Base(name)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return "", fmt.Errorf("export: upload %s: %w", key, err)
	}
	log.WithField("bucket", s.bucket).Debugf("exported %s (%d bytes, etag %s)", key, info.Size, info.ETag)
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// NewSink builds the sink selected by cfg.
func NewSink(cfg config.ExportConfig, sb *util.StateBox) (Sink, error) {
	switch cfg.Sink {
	case config.ExportSinkS3:
		return NewS3Sink(cfg.S3)
	default:
		return NewFileSink(sb, cfg.Dir), nil
	}
}
