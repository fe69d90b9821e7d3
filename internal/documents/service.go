// Package documents stores deal documents and drives their e-signature workflow.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/signature"
	"github.com/hugh/estateflow/internal/storage"
	"gorm.io/gorm"
)

const DefaultMaxUploadBytes = 10 << 20

var (
	ErrNotFound           = errors.New("document not found")
	ErrFileRequired       = errors.New("file is required")
	ErrFileTooLarge       = errors.New("file too large")
	ErrTypeNotAllowed     = errors.New("file type not allowed")
	ErrContentMismatch    = errors.New("file content does not match extension")
	ErrFileMissing        = errors.New("file not found in storage")
	ErrNotSignable        = errors.New("document must be in 'ToSign' category")
	ErrAlreadyRequested   = errors.New("signature already requested for this document")
	ErrNotPDF             = errors.New("only PDF documents can be signed")
	ErrNoSignatureRequest = errors.New("no signature request for this document")
	ErrSignatureProvider  = errors.New("signature provider failure")
)

// Notifier tells the client a document was shared.
type Notifier interface {
	SendNewDocument(ctx context.Context, deal *models.Deal, doc *models.Document, agentName, brandColor, link string)
}

type Service struct {
	db       *gorm.DB
	deals    *deals.Service
	store    storage.Store
	signer   signature.Provider
	notifier Notifier
	logger   *slog.Logger
	maxBytes int64
	now      func() time.Time
}

type ServiceOptions struct {
	MaxUploadBytes int64
	Logger         *slog.Logger
	Now            func() time.Time
}

func NewService(db *gorm.DB, dealSvc *deals.Service, store storage.Store, signer signature.Provider, notifier Notifier, opts ServiceOptions) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:       db,
		deals:    dealSvc,
		store:    store,
		signer:   signer,
		notifier: notifier,
		logger:   opts.Logger,
		maxBytes: opts.MaxUploadBytes,
		now:      opts.Now,
	}
}

// MaxUploadBytes is the largest accepted upload.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxBytes
}

type UploadInput struct {
	Filename    string
	ContentType string
	Category    models.DocumentCategory
	Body        io.Reader
}

func (s *Service) List(ctx context.Context, rc auth.RequestContext, dealID uuid.UUID) ([]models.Document, error) {
	deal, err := s.deals.Get(ctx, rc, dealID)
	if err != nil {
		return nil, err
	}
	return deal.Documents, nil
}

// Upload validates and stores a file under the deal, then emails the client.
func (s *Service) Upload(ctx context.Context, rc auth.RequestContext, dealID uuid.UUID, in UploadInput) (*models.Document, error) {
	deal, err := s.deals.Get(ctx, rc, dealID)
	if err != nil {
		return nil, err
	}
	if in.Body == nil || in.Filename == "" {
		return nil, ErrFileRequired
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrFileRequired
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	filename, ext := SanitizeFilename(in.Filename)
	if _, ok := allowedTypes[ext]; !ok {
		return nil, ErrTypeNotAllowed
	}
	if !contentMatches(ext, in.ContentType, data[:min(len(data), 512)]) {
		return nil, ErrContentMismatch
	}

	category := in.Category
	if category == "" {
		category = models.DocumentCategoryReference
	}

	key := fmt.Sprintf("%s/%s%s", deal.ID, uuid.NewString(), ext)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), allowedTypes[ext]); err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	doc := &models.Document{
		DealID:     deal.ID,
		Filename:   filename,
		FilePath:   key,
		Category:   category,
		UploadedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("saving document: %w", err)
	}

	s.logger.Info("document uploaded", "deal_id", deal.ID, "document_id", doc.ID, "size", len(data))

	agentName, brand := s.senderInfo(ctx, rc)
	s.notifier.SendNewDocument(ctx, deal, doc, agentName, brand, s.deals.PortalLink(deal))
	return doc, nil
}

// Download opens the original file, or the signed copy when signed is set.
func (s *Service) Download(ctx context.Context, rc auth.RequestContext, dealID, docID uuid.UUID, signed bool) (*models.Document, io.ReadCloser, error) {
	deal, err := s.deals.Get(ctx, rc, dealID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.find(ctx, deal.ID, docID)
	if err != nil {
		return nil, nil, err
	}

	key := doc.FilePath
	if signed {
		if doc.SignedFilePath == nil {
			return nil, nil, ErrFileMissing
		}
		key = *doc.SignedFilePath
	}
	body, err := s.open(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return doc, body, nil
}

// PublicDownload serves a document through the deal's portal token and
// records the download.
func (s *Service) PublicDownload(ctx context.Context, accessToken string, docID uuid.UUID, meta deals.ViewMeta) (*models.Document, io.ReadCloser, error) {
	deal, err := s.deals.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.find(ctx, deal.ID, docID)
	if err != nil {
		return nil, nil, err
	}

	key := doc.FilePath
	if doc.SignedFilePath != nil {
		key = *doc.SignedFilePath
	}
	body, err := s.open(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	s.deals.RecordView(ctx, deal.ID, models.ViewTypeDocumentDownload, &doc.ID, meta)
	return doc, body, nil
}

func (s *Service) Delete(ctx context.Context, rc auth.RequestContext, dealID, docID uuid.UUID) error {
	deal, err := s.deals.Get(ctx, rc, dealID)
	if err != nil {
		return err
	}
	doc, err := s.find(ctx, deal.ID, docID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(doc).Error; err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	for _, key := range deals.DocumentKeys(doc) {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete stored file", "document_id", doc.ID, "key", key, "error", err)
		}
	}
	return nil
}

func (s *Service) find(ctx context.Context, dealID, docID uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("id = ? AND deal_id = ?", docID, dealID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *Service) open(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := s.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, ErrFileMissing
		}
		return nil, err
	}
	return body, nil
}

func (s *Service) senderInfo(ctx context.Context, rc auth.RequestContext) (string, string) {
	name := ""
	var agent models.Agent
	if err := s.db.WithContext(ctx).First(&agent, "id = ?", rc.AgentID).Error; err == nil {
		name = agent.DisplayName()
	}
	brand := models.DefaultBrandColor
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", rc.OrganizationID).Error; err == nil && org.BrandColor != "" {
		brand = org.BrandColor
	}
	return name, brand
}
