// Package ldb provides a minimal public API over the revision store: an
// embedded, single-node document database core. Most callers embedding
// this core directly use the types re-exported here rather than
// reaching into internal/revstore themselves.
package ldb

import (
	"context"

	"github.com/revtree/ldb/internal/config"
	"github.com/revtree/ldb/internal/notify"
	"github.com/revtree/ldb/internal/replication"
	"github.com/revtree/ldb/internal/revstore"
	"github.com/revtree/ldb/internal/types"
	"github.com/revtree/ldb/internal/validation"
)

// Core types for working with documents and revisions.
type (
	Revision       = types.Revision
	AttachmentMeta = types.AttachmentMeta
	ChangeEvent    = types.ChangeEvent
	DocRevPair     = types.DocRevPair
	AllDocsOptions = types.AllDocsOptions
	AllDocsResult  = types.AllDocsResult
)

// Validation re-exports, for callers registering write-time validators.
type (
	Validator        = validation.Validator
	ValidationContext = validation.Context
)

// Store is the opened revision store. See internal/revstore for full
// operation documentation; this alias is what external callers embed.
type Store = revstore.Store

// StoreOptions configures Open. A zero value opens with no validators,
// no change-notification subscribers, and no config overlay.
type StoreOptions = revstore.Options

// RevisionInput is one entry of a foreign revision history passed to
// ForceInsert.
type RevisionInput = revstore.RevisionInput

// Open opens (or creates) the database at path and returns a ready
// Store.
func Open(ctx context.Context, path string, opts StoreOptions) (*Store, error) {
	return revstore.Open(ctx, path, opts)
}

// NewValidationRegistry builds an ordered validator chain for
// StoreOptions.Validators.
func NewValidationRegistry(validators ...Validator) *validation.Registry {
	return validation.NewRegistry(validators...)
}

// NewNotificationBus builds a change-notification bus for
// StoreOptions.Bus.
func NewNotificationBus() *notify.Bus {
	return notify.New(nil)
}

// LoadConfig reads an ldb.toml overlay (and any LDB_* environment
// variables) for StoreOptions.ConfigPath, matching what Open applies
// internally — exposed so callers can inspect or re-derive settings
// (e.g. a replication.Registry's retry count) without re-parsing.
func LoadConfig(path string) (config.Options, error) {
	return config.Load(path)
}

// NewReplicationRegistry builds the in-memory active-replicator
// tracker, applying the config overlay's Replication.MaxStartRetries.
// Replication.ContinuousByDefault is not consulted.
func NewReplicationRegistry(factory replication.Factory, cfg config.Options) *replication.Registry {
	return replication.NewRegistryWithOptions(factory, cfg.Replication)
}
