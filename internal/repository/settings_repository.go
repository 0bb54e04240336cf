package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sklapp/skl-api/internal/models"
)

// SettingsRepository persists the singleton settings row.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get fetches the settings row. Returns sql.ErrNoRows when the school has
// never been configured.
func (r *SettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	const query = `SELECT id, school_name, school_address, headmaster_name, headmaster_nip, city,
        certificate_title, opening_text, closing_text, use_header_image, header_image_path,
        use_digital_signature, signature_image_path, updated_by, updated_at
        FROM settings WHERE id = 1`
	var settings models.Settings
	if err := r.db.GetContext(ctx, &settings, query); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert inserts or replaces the singleton row.
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.Settings) error {
	settings.ID = 1
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO settings (id, school_name, school_address, headmaster_name, headmaster_nip, city,
        certificate_title, opening_text, closing_text, use_header_image, header_image_path,
        use_digital_signature, signature_image_path, updated_by, updated_at)
        VALUES (:id, :school_name, :school_address, :headmaster_name, :headmaster_nip, :city,
        :certificate_title, :opening_text, :closing_text, :use_header_image, :header_image_path,
        :use_digital_signature, :signature_image_path, :updated_by, :updated_at)
        ON CONFLICT (id)
        DO UPDATE SET school_name = EXCLUDED.school_name, school_address = EXCLUDED.school_address,
                      headmaster_name = EXCLUDED.headmaster_name, headmaster_nip = EXCLUDED.headmaster_nip,
                      city = EXCLUDED.city, certificate_title = EXCLUDED.certificate_title,
                      opening_text = EXCLUDED.opening_text, closing_text = EXCLUDED.closing_text,
                      use_header_image = EXCLUDED.use_header_image, header_image_path = EXCLUDED.header_image_path,
                      use_digital_signature = EXCLUDED.use_digital_signature, signature_image_path = EXCLUDED.signature_image_path,
                      updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
