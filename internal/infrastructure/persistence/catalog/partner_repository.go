// Package catalog provides the partner repository.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/catalog"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
)

// ErrNotFound is returned when a partner does not exist.
var ErrNotFound = errors.New("partner not found")

const partnerColumns = `id, name, slug, city, category, description, address,
	latitude, longitude, image_path, offered_discount, active, created, changed`

type PartnerRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

func NewPartnerRepository(db *sql.DB, logger *logging.ChanneledLogger) *PartnerRepository {
	return &PartnerRepository{
		db:     db,
		logger: logger,
	}
}

func (r *PartnerRepository) FindByID(ctx context.Context, id string) (*catalog.Partner, error) {
	query := fmt.Sprintf("SELECT %s FROM partners WHERE id = ?", partnerColumns)
	partner, err := scanPartner(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load partner %s: %w", id, err)
	}
	return partner, nil
}

func (r *PartnerRepository) FindBySlug(ctx context.Context, slug string) (*catalog.Partner, error) {
	query := fmt.Sprintf("SELECT %s FROM partners WHERE slug = ?", partnerColumns)
	partner, err := scanPartner(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load partner by slug %s: %w", slug, err)
	}
	return partner, nil
}

// FindActive loads active partners, optionally narrowed by city and category.
func (r *PartnerRepository) FindActive(ctx context.Context, city, category string) ([]*catalog.Partner, error) {
	conditions := []string{"active = 1"}
	args := []any{}
	if city != "" {
		conditions = append(conditions, "city = ?")
		args = append(args, city)
	}
	if category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, category)
	}

	query := fmt.Sprintf("SELECT %s FROM partners WHERE %s ORDER BY name",
		partnerColumns, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer rows.Close()

	partners := []*catalog.Partner{}
	for rows.Next() {
		partner, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan partner row: %w", err)
		}
		partners = append(partners, partner)
	}
	return partners, rows.Err()
}

func (r *PartnerRepository) Create(ctx context.Context, partner *catalog.Partner) error {
	partner.Created = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO partners (id, name, slug, city, category, description, address,
			latitude, longitude, image_path, offered_discount, active, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partner.ID, partner.Name, partner.Slug, partner.City, partner.Category,
		partner.Description, partner.Address, partner.Latitude, partner.Longitude,
		partner.ImagePath, partner.OfferedDiscount, partner.Active, partner.Created)
	if err != nil {
		return fmt.Errorf("failed to insert partner %s: %w", partner.ID, err)
	}

	r.logger.Catalog().Info("Partner created", "partnerId", partner.ID, "city", partner.City)
	return nil
}

func (r *PartnerRepository) Update(ctx context.Context, partner *catalog.Partner) error {
	now := time.Now().UTC()
	partner.Changed = &now

	result, err := r.db.ExecContext(ctx, `
		UPDATE partners SET name = ?, slug = ?, city = ?, category = ?, description = ?,
			address = ?, latitude = ?, longitude = ?, image_path = ?,
			offered_discount = ?, active = ?, changed = ?
		WHERE id = ?`,
		partner.Name, partner.Slug, partner.City, partner.Category, partner.Description,
		partner.Address, partner.Latitude, partner.Longitude, partner.ImagePath,
		partner.OfferedDiscount, partner.Active, partner.Changed, partner.ID)
	if err != nil {
		return fmt.Errorf("failed to update partner %s: %w", partner.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}

	r.logger.Catalog().Info("Partner updated", "partnerId", partner.ID, "city", partner.City)
	return nil
}

func (r *PartnerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM partners WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete partner %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}

	r.logger.Catalog().Info("Partner deleted", "partnerId", id)
	return nil
}

// Cities lists the distinct cities with at least one active partner.
func (r *PartnerRepository) Cities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT city FROM partners WHERE active = 1 ORDER BY city")
	if err != nil {
		return nil, fmt.Errorf("failed to query cities: %w", err)
	}
	defer rows.Close()

	cities := []string{}
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, err
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPartner(row rowScanner) (*catalog.Partner, error) {
	var partner catalog.Partner
	var description, address, imagePath sql.NullString
	var latitude, longitude sql.NullFloat64
	var changed sql.NullTime

	err := row.Scan(&partner.ID, &partner.Name, &partner.Slug, &partner.City,
		&partner.Category, &description, &address, &latitude, &longitude,
		&imagePath, &partner.OfferedDiscount, &partner.Active, &partner.Created, &changed)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		partner.Description = &description.String
	}
	if address.Valid {
		partner.Address = &address.String
	}
	if latitude.Valid {
		partner.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		partner.Longitude = &longitude.Float64
	}
	if imagePath.Valid {
		partner.ImagePath = &imagePath.String
	}
	if changed.Valid {
		partner.Changed = &changed.Time
	}
	return &partner, nil
}
