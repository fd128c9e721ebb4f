// Package models holds the gorm persistence models and their conversions to
// and from the domain aggregates. Domain types carry no gorm tags.
package models
