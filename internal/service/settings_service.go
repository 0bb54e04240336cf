package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context) (*models.Settings, error)
	Upsert(ctx context.Context, settings *models.Settings) error
}

type settingsAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type certificateCacheFlusher interface {
	InvalidateAll(ctx context.Context)
}

// UpdateSettingsRequest carries the full settings document. The record is
// replaced whole; partial updates are not supported.
type UpdateSettingsRequest struct {
	SchoolName          string `json:"school_name" validate:"required"`
	SchoolAddress       string `json:"school_address" validate:"required"`
	HeadmasterName      string `json:"headmaster_name" validate:"required"`
	HeadmasterNIP       string `json:"headmaster_nip" validate:"required"`
	City                string `json:"city" validate:"required"`
	CertificateTitle    string `json:"certificate_title"`
	OpeningText         string `json:"opening_text"`
	ClosingText         string `json:"closing_text"`
	UseHeaderImage      bool   `json:"use_header_image"`
	HeaderImagePath     string `json:"header_image_path"`
	UseDigitalSignature bool   `json:"use_digital_signature"`
	SignatureImagePath  string `json:"signature_image_path"`
}

// settingsCacheKey holds the serialized singleton row.
const settingsCacheKey = "settings:1"

// SettingsService manages the certificate settings singleton. Every
// update flushes all cached certificates because rendered output depends
// on every field here.
type SettingsService struct {
	repo      settingsRepository
	audit     settingsAuditLogger
	certs     certificateCacheFlusher
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs the settings service.
func NewSettingsService(repo settingsRepository, audit settingsAuditLogger, certs certificateCacheFlusher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, audit: audit, certs: certs, cache: cache, validator: validate, logger: logger}
}

// Get returns current settings. Returns SETTINGS_MISSING until the admin
// has configured the school profile.
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	if data, hit := s.cache.GetBytes(ctx, settingsCacheKey); hit {
		cached := &models.Settings{}
		if err := json.Unmarshal(data, cached); err == nil {
			return cached, nil
		}
		s.cache.Invalidate(ctx, settingsCacheKey)
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSettingsMissing, "school settings not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}

	if data, err := json.Marshal(settings); err == nil {
		s.cache.SetBytes(ctx, settingsCacheKey, data, 0)
	}
	return settings, nil
}

// Update replaces the settings record and flushes cached certificates.
func (s *SettingsService) Update(ctx context.Context, req UpdateSettingsRequest, actorID int64) (*models.Settings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	var oldValues []byte
	if current, err := s.repo.Get(ctx); err == nil {
		oldValues, _ = json.Marshal(current)
	}

	settings := &models.Settings{
		ID:                  1,
		SchoolName:          req.SchoolName,
		SchoolAddress:       req.SchoolAddress,
		HeadmasterName:      req.HeadmasterName,
		HeadmasterNIP:       req.HeadmasterNIP,
		City:                req.City,
		CertificateTitle:    req.CertificateTitle,
		OpeningText:         req.OpeningText,
		ClosingText:         req.ClosingText,
		UseHeaderImage:      req.UseHeaderImage,
		HeaderImagePath:     req.HeaderImagePath,
		UseDigitalSignature: req.UseDigitalSignature,
		SignatureImagePath:  req.SignatureImagePath,
		UpdatedBy:           &actorID,
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}

	s.cache.Invalidate(ctx, settingsCacheKey)
	if s.certs != nil {
		s.certs.InvalidateAll(ctx)
	}

	if s.audit != nil {
		newValues, _ := json.Marshal(settings)
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &actorID,
			Action:    models.AuditActionSettingsUpdate,
			Resource:  "settings",
			OldValues: oldValues,
			NewValues: newValues,
		}); err != nil {
			s.logger.Warn("failed to record settings audit log", zap.Error(err))
		}
	}

	return settings, nil
}
