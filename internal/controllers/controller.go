// Package controllers exposes the import runs over HTTP.
package controllers

import (
	"github.com/verenigingen/boekhouden-import/internal/config"
	"github.com/verenigingen/boekhouden-import/internal/migration"
	"gorm.io/gorm"
)

// Controller binds the HTTP handlers to their dependencies.
type Controller struct {
	DB     *gorm.DB
	Runner *migration.Runner
	Config config.Config
}
