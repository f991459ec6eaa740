// Package domain defines the core interfaces and types for Heron.
package domain

import (
	"fmt"
	"time"
)

// AssetType is the closed set of infrastructure asset categories.
type AssetType string

const (
	AssetRoad        AssetType = "road"
	AssetBridge      AssetType = "bridge"
	AssetStreetlight AssetType = "streetlight"
	AssetPark        AssetType = "park"
	AssetOther       AssetType = "other"
)

// AssetTypes lists all valid asset types in declaration order.
func AssetTypes() []AssetType {
	return []AssetType{AssetRoad, AssetBridge, AssetStreetlight, AssetPark, AssetOther}
}

// ParseAssetType validates a raw string against the closed set.
func ParseAssetType(s string) (AssetType, error) {
	switch AssetType(s) {
	case AssetRoad, AssetBridge, AssetStreetlight, AssetPark, AssetOther:
		return AssetType(s), nil
	}
	return "", fmt.Errorf("invalid asset type: %q", s)
}

// AssetStatus tracks an asset's lifecycle state. Assets are never deleted,
// only retired.
type AssetStatus string

const (
	AssetActive           AssetStatus = "active"
	AssetUnderMaintenance AssetStatus = "under_maintenance"
	AssetRetired          AssetStatus = "retired"
)

// ParseAssetStatus validates a raw string against the closed set.
func ParseAssetStatus(s string) (AssetStatus, error) {
	switch AssetStatus(s) {
	case AssetActive, AssetUnderMaintenance, AssetRetired:
		return AssetStatus(s), nil
	}
	return "", fmt.Errorf("invalid asset status: %q", s)
}

// Asset represents a registered piece of city infrastructure.
type Asset struct {
	ID     string    `json:"id"`
	CityID string    `json:"cityId"`
	Type   AssetType `json:"type"`

	// Region is the administrative zone used for risk ranking. An asset
	// without a region still gets scored but is excluded from ranking.
	Region string `json:"region,omitempty"`

	InstalledAt time.Time `json:"installedAt"`

	// ExpectedLifespan is the design life of the asset. Age ratio saturates
	// at 1 once the asset has been in service this long.
	ExpectedLifespan time.Duration `json:"expectedLifespan"`

	Status    AssetStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Age returns how long the asset has been in service at the given instant.
func (a *Asset) Age(now time.Time) time.Duration {
	return now.Sub(a.InstalledAt)
}

// AssetRequest is the API request payload for asset registration.
type AssetRequest struct {
	Type   string `json:"type"`
	Region string `json:"region,omitempty"`

	InstalledAt time.Time `json:"installedAt"`

	// ExpectedLifespanDays is the design life in days.
	ExpectedLifespanDays int `json:"expectedLifespanDays"`
}

// ToAsset converts a request to an Asset domain object.
func (r *AssetRequest) ToAsset(id, cityID string, now time.Time) (*Asset, error) {
	typ, err := ParseAssetType(r.Type)
	if err != nil {
		return nil, err
	}
	if r.InstalledAt.IsZero() {
		return nil, fmt.Errorf("installedAt is required")
	}
	if r.ExpectedLifespanDays <= 0 {
		return nil, fmt.Errorf("expectedLifespanDays must be positive")
	}
	return &Asset{
		ID:               id,
		CityID:           cityID,
		Type:             typ,
		Region:           r.Region,
		InstalledAt:      r.InstalledAt.UTC(),
		ExpectedLifespan: time.Duration(r.ExpectedLifespanDays) * 24 * time.Hour,
		Status:           AssetActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
