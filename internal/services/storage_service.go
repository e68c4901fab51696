// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/config"
)

// StorageService stores product media. Without AWS credentials files are
// written under localDir and served from /uploads.
type StorageService struct {
	s3Client s3iface.S3API
	aws      config.AWSConfig
	baseURL  string
	localDir string
	now      func() time.Time
}

type UploadResult struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
	IsPublic     bool
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	svc := &StorageService{
		aws:     cfg.AWS,
		baseURL:  fmt.Sprintf("http://%s:%s", cfg.Server.Host, cfg.Server.Port),
		localDir: "uploads",
		now:      time.Now,
	}
	if cfg.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return svc, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	svc.s3Client = s3.New(sess)
	return svc, nil
}

// NewLocalStorageService stores media under dir, served at baseURL/uploads.
func NewLocalStorageService(dir, baseURL string) *StorageService {
	return &StorageService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		localDir: dir,
		now:      time.Now,
	}
}

// NewStorageServiceWithClient wires an existing S3 client.
func NewStorageServiceWithClient(client s3iface.S3API, awsConfig config.AWSConfig) *StorageService {
	return &StorageService{
		s3Client: client,
		aws:      awsConfig,
		now:      time.Now,
	}
}

func (s *StorageService) UploadFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, options UploadOptions) (*UploadResult, error) {
	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, apperrors.NewValidationError("file size %d bytes exceeds maximum allowed size %d bytes", header.Size, options.MaxSize)
	}

	if len(options.AllowedTypes) > 0 {
		fileExt := strings.ToLower(filepath.Ext(header.Filename))
		allowed := false
		for _, allowedType := range options.AllowedTypes {
			if fileExt == allowedType {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, apperrors.NewValidationError("file type %s is not allowed", fileExt)
		}
	}

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !isValidImageType(fileBytes) {
		return nil, apperrors.NewValidationError("invalid image file")
	}

	filename := s.generateFileName(header.Filename, options.Folder)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(fileBytes)
	}

	if s.s3Client != nil {
		return s.uploadToS3(ctx, fileBytes, filename, contentType, options.IsPublic)
	}
	return s.uploadToLocal(fileBytes, filename, contentType)
}

func (s *StorageService) uploadToS3(ctx context.Context, fileBytes []byte, key, contentType string, isPublic bool) (*UploadResult, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.aws.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
	}
	if isPublic {
		params.ACL = aws.String("public-read")
	}

	if _, err := s.s3Client.PutObjectWithContext(ctx, params); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		URL:      s.getS3URL(key),
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
	}, nil
}

func (s *StorageService) uploadToLocal(fileBytes []byte, filename, contentType string) (*UploadResult, error) {
	path := filepath.Join(s.localDir, filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(path, fileBytes, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	logrus.WithField("key", filename).Debug("S3 not configured, stored media locally")

	return &UploadResult{
		URL:      fmt.Sprintf("%s/uploads/%s", s.baseURL, filename),
		Key:      filename,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
	}, nil
}

func (s *StorageService) DeleteFile(ctx context.Context, key string) error {
	if s.s3Client == nil {
		err := os.Remove(filepath.Join(s.localDir, filepath.FromSlash(key)))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete local file: %w", err)
		}
		return nil
	}

	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.aws.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

func (s *StorageService) GetDefaultUploadOptions(category string) UploadOptions {
	switch category {
	case "products":
		return UploadOptions{
			Folder:       "products",
			MaxSize:      20 * 1024 * 1024, // 20MB, the Shopify image limit
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
			IsPublic:     true,
		}
	default:
		return UploadOptions{
			Folder:       "general",
			MaxSize:      5 * 1024 * 1024, // 5MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png"},
			IsPublic:     false,
		}
	}
}

func (s *StorageService) generateFileName(originalName, folder string) string {
	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(originalName))

	timestamp := s.now().Format("20060102")
	filename := fmt.Sprintf("%s_%s%s", timestamp, id.String()[:8], ext)

	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}
	return filename
}

func (s *StorageService) getS3URL(key string) string {
	if s.aws.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(s.aws.CloudFrontURL, "/"), key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.aws.S3Bucket, s.aws.Region, key)
}

// isValidImageType checks the file signature.
func isValidImageType(buffer []byte) bool {
	// JPEG
	if len(buffer) >= 3 && buffer[0] == 0xFF && buffer[1] == 0xD8 && buffer[2] == 0xFF {
		return true
	}

	// PNG
	if len(buffer) >= 8 && bytes.Equal(buffer[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return true
	}

	// GIF
	if len(buffer) >= 6 && (string(buffer[0:6]) == "GIF87a" || string(buffer[0:6]) == "GIF89a") {
		return true
	}

	// WebP
	if len(buffer) >= 12 && string(buffer[0:4]) == "RIFF" && string(buffer[8:12]) == "WEBP" {
		return true
	}

	return false
}
