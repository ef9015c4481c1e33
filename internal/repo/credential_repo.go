// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for stored OAuth
// credentials.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/domain"
)

// GetCredentialByEmail fetches the stored credential for an owner identity,
// or nil when none exists.
func GetCredentialByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.OAuthCredential, error) {
	var c domain.OAuthCredential
	err := db.WithContext(ctx).Where("email = ?", email).First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCredential stores or refreshes the credential row for an owner.
// A non-empty refreshToken replaces the stored one; an empty refreshToken
// never clobbers it (the provider only returns the refresh credential on the
// first consent). The row is re-marked connected either way.
func UpsertCredential(ctx context.Context, db *gorm.DB, email, refreshToken string, subjectID *string, scope string) (*domain.OAuthCredential, error) {
	existing, err := GetCredentialByEmail(ctx, db, email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		c := &domain.OAuthCredential{
			Email:        email,
			RefreshToken: refreshToken,
			SubjectID:    subjectID,
			Scope:        scope,
			Connected:    true,
		}
		return c, db.WithContext(ctx).Create(c).Error
	}

	if refreshToken != "" {
		existing.RefreshToken = refreshToken
	}
	existing.SubjectID = subjectID
	existing.Scope = scope
	existing.Connected = true
	return existing, db.WithContext(ctx).Save(existing).Error
}

// DisconnectCredential soft-revokes an owner's credential without deleting
// history. Returns gorm.ErrRecordNotFound when the owner has no credential.
func DisconnectCredential(ctx context.Context, db *gorm.DB, email string) error {
	res := db.WithContext(ctx).
		Model(&domain.OAuthCredential{}).
		Where("email = ?", email).
		Update("connected", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
