package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// migrationLockID serializes concurrent Migrate calls from several replicas.
const migrationLockID = 0x6469726563746368 // "directch"

// PairKeyConstraint is the unique constraint enforcing one chat per pair.
const PairKeyConstraint = "direct_chats_pair_key_key"

// Schema returns the embedded DDL.
func Schema() string { return schema }

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db DB) error {
	err := InTx(ctx, db, func(tx Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrationLockID)); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
