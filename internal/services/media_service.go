package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pstorage "github.com/zenithcart/api/internal/platform/storage"
	"github.com/zenithcart/api/internal/repositories"
)

const (
	maxProductImageSize = int64(10 * 1024 * 1024) // 10 MiB

	mediaEventUploadIssued = "media.upload.issued"
)

var (
	// ErrMediaInvalidInput indicates the caller provided an invalid argument.
	ErrMediaInvalidInput = errors.New("media: invalid input")
	// ErrMediaUnavailable indicates signed uploads are not configured.
	ErrMediaUnavailable = errors.New("media: storage not configured")
)

var productImageContentTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/webp"}

// SignProductImageUploadCommand requests a signed upload URL for a catalog image.
type SignProductImageUploadCommand struct {
	ProductID   string
	VariantID   string
	FileName    string
	ContentType string
	ContentMD5  string
	SizeBytes   int64
}

// SignedImageUpload carries the signed URL the client PUTs the image to.
type SignedImageUpload struct {
	UploadURL  string
	Method     string
	Headers    map[string]string
	ObjectPath string
	ExpiresAt  time.Time
}

// MediaService issues signed URLs for catalog media uploads.
type MediaService interface {
	SignProductImageUpload(ctx context.Context, cmd SignProductImageUploadCommand) (SignedImageUpload, error)
}

// MediaServiceDeps wires dependencies for the media service implementation.
type MediaServiceDeps struct {
	Products    repositories.ProductRepository
	Signer      *pstorage.Client
	Bucket      string
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

type mediaService struct {
	products repositories.ProductRepository
	signer   *pstorage.Client
	bucket   string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
	newID    func() string
}

var _ MediaService = (*mediaService)(nil)

// NewMediaService constructs a MediaService backed by the provided dependencies.
func NewMediaService(deps MediaServiceDeps) (MediaService, error) {
	if deps.Products == nil {
		return nil, errors.New("media service: product repository is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("media service: storage signer is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, errors.New("media service: bucket is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.IDGenerator
	if newID == nil {
		return nil, errors.New("media service: id generator is required")
	}

	return &mediaService{
		products: deps.Products,
		signer:   deps.Signer,
		bucket:   strings.TrimSpace(deps.Bucket),
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    newID,
	}, nil
}

func (s *mediaService) SignProductImageUpload(ctx context.Context, cmd SignProductImageUploadCommand) (SignedImageUpload, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return SignedImageUpload{}, fmt.Errorf("%w: product id is required", ErrMediaInvalidInput)
	}
	fileName := strings.TrimSpace(cmd.FileName)
	if fileName == "" {
		return SignedImageUpload{}, fmt.Errorf("%w: file name is required", ErrMediaInvalidInput)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if contentType == "" {
		return SignedImageUpload{}, fmt.Errorf("%w: content type is required", ErrMediaInvalidInput)
	}
	if cmd.SizeBytes < 0 || cmd.SizeBytes > maxProductImageSize {
		return SignedImageUpload{}, fmt.Errorf("%w: size must be between 0 and %d bytes", ErrMediaInvalidInput, maxProductImageSize)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return SignedImageUpload{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return SignedImageUpload{}, fmt.Errorf("media: load product: %w", err)
	}
	if product.IsDeleted {
		return SignedImageUpload{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID != "" {
		found := false
		for _, variant := range product.Variants {
			if strings.EqualFold(strings.TrimSpace(variant.ID), variantID) {
				found = true
				break
			}
		}
		if !found {
			return SignedImageUpload{}, fmt.Errorf("%w: product %s has no variant %s", ErrVariantNotFound, productID, variantID)
		}
	}

	objectPath, err := pstorage.BuildObjectPath(pstorage.PurposeProductImage, pstorage.PathParams{
		ProductID: productID,
		VariantID: variantID,
		UploadID:  strings.ToLower(s.newID()),
		FileName:  fileName,
	})
	if err != nil {
		return SignedImageUpload{}, fmt.Errorf("%w: %v", ErrMediaInvalidInput, err)
	}

	maxSize := cmd.SizeBytes
	if maxSize == 0 {
		maxSize = maxProductImageSize
	}
	result, err := s.signer.SignedURL(ctx, s.bucket, objectPath, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			Method:              "PUT",
			ContentType:         contentType,
			ContentMD5:          strings.TrimSpace(cmd.ContentMD5),
			AllowedContentTypes: productImageContentTypes,
			MaxSize:             maxSize,
		},
	})
	if err != nil {
		return SignedImageUpload{}, fmt.Errorf("media: sign upload: %w", err)
	}

	s.logger(ctx, mediaEventUploadIssued, map[string]any{
		"product_id": productID,
		"object":     objectPath,
		"expires_at": result.ExpiresAt,
	})

	return SignedImageUpload{
		UploadURL:  result.URL,
		Method:     result.Method,
		Headers:    result.Headers,
		ObjectPath: objectPath,
		ExpiresAt:  result.ExpiresAt,
	}, nil
}
