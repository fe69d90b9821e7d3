package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/signature"
)

type SignatureStatus struct {
	Status   string     `json:"status"`
	SignedAt *time.Time `json:"signedAt"`
}

// RequestSignature sends a ToSign PDF to the deal's client for e-signature.
func (s *Service) RequestSignature(ctx context.Context, rc auth.RequestContext, dealID, docID uuid.UUID) (*signature.Result, error) {
	deal, err := s.deals.Get(ctx, rc, dealID)
	if err != nil {
		return nil, err
	}
	doc, err := s.find(ctx, deal.ID, docID)
	if err != nil {
		return nil, err
	}

	if doc.Category != models.DocumentCategoryToSign {
		return nil, ErrNotSignable
	}
	if doc.SignatureRequestID != nil && *doc.SignatureRequestID != "" {
		return nil, ErrAlreadyRequested
	}
	if !strings.EqualFold(filepath.Ext(doc.FilePath), ".pdf") {
		return nil, ErrNotPDF
	}

	body, err := s.open(ctx, doc.FilePath)
	if err != nil {
		return nil, err
	}
	pdf, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	result, err := s.signer.CreateRequest(ctx, signature.Request{
		DocumentName: doc.Filename,
		Filename:     doc.Filename,
		PDF:          pdf,
		SignerEmail:  deal.ClientEmail,
		SignerName:   deal.ClientName,
	})
	if err != nil {
		s.logger.Error("signature request failed", "document_id", doc.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSignatureProvider, err)
	}

	if err := s.db.WithContext(ctx).Model(doc).Updates(map[string]interface{}{
		"signature_request_id": result.SignatureRequestID,
		"signature_status":     result.Status,
	}).Error; err != nil {
		return nil, fmt.Errorf("saving signature request: %w", err)
	}

	s.logger.Info("signature requested", "document_id", doc.ID, "signature_request_id", result.SignatureRequestID)
	return result, nil
}

// SignatureStatus refreshes the request status from the provider. The first
// time it reports done, the signed PDF is fetched and stored next to the original.
func (s *Service) SignatureStatus(ctx context.Context, rc auth.RequestContext, dealID, docID uuid.UUID) (*SignatureStatus, error) {
	deal, err := s.deals.Get(ctx, rc, dealID)
	if err != nil {
		return nil, err
	}
	doc, err := s.find(ctx, deal.ID, docID)
	if err != nil {
		return nil, err
	}
	if doc.SignatureRequestID == nil || *doc.SignatureRequestID == "" {
		return nil, ErrNoSignatureRequest
	}

	status, err := s.signer.Status(ctx, *doc.SignatureRequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureProvider, err)
	}

	updates := map[string]interface{}{"signature_status": status}
	if status == signature.StatusDone && doc.SignedAt == nil {
		signed, err := s.signer.DownloadSigned(ctx, *doc.SignatureRequestID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSignatureProvider, err)
		}
		key := signedKey(doc.FilePath)
		if err := s.store.Put(ctx, key, bytes.NewReader(signed), "application/pdf"); err != nil {
			return nil, fmt.Errorf("storing signed document: %w", err)
		}
		now := s.now()
		updates["signed_at"] = now
		updates["signed_file_path"] = key
		doc.SignedAt = &now
	}

	if err := s.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("saving signature status: %w", err)
	}
	return &SignatureStatus{Status: status, SignedAt: doc.SignedAt}, nil
}
