// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Schema expected by PostgresPersister:
//
//   CREATE TABLE severities (
//       route       TEXT PRIMARY KEY,
//       total       BIGINT NOT NULL DEFAULT 0
//   );
//   CREATE TABLE applied_commits (
//       commit_id   TEXT PRIMARY KEY,
//       route       TEXT NOT NULL,
//       vector      BIGINT NOT NULL,
//       ts          TIMESTAMPTZ NOT NULL DEFAULT now()
//   );
//
// Idempotency is enforced the same way as RedisPersister: insert the
// commit marker first and only apply the effect if that insert actually
// happened.

// PostgresPersister applies commits via database/sql using an
// insert-then-guarded-update transaction: the applied_commits insert acts
// as the idempotency marker, and the severities update is skipped if the
// marker insert hit a conflict (meaning this CommitID was already applied).
type PostgresPersister struct {
	db                *sql.DB
	createMissingRows bool
	defaultTimeout    time.Duration
}

func NewPostgresPersister(db *sql.DB, createMissingRows bool, defaultTimeout time.Duration) *PostgresPersister {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &PostgresPersister{db: db, createMissingRows: createMissingRows, defaultTimeout: defaultTimeout}
}

func (p *PostgresPersister) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: postgres begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO applied_commits (commit_id, route, vector) VALUES ($1, $2, $3)
			 ON CONFLICT (commit_id) DO NOTHING`,
			e.CommitID, e.Key, e.Vector)
		if err != nil {
			return fmt.Errorf("journal: postgres insert marker route=%s commit=%s: %w", e.Key, e.CommitID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("journal: postgres rows affected: %w", err)
		}
		if n == 0 {
			continue // already applied
		}

		if p.createMissingRows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO severities (route, total) VALUES ($1, 0) ON CONFLICT (route) DO NOTHING`,
				e.Key); err != nil {
				return fmt.Errorf("journal: postgres ensure route row %s: %w", e.Key, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE severities SET total = total + $1 WHERE route = $2`,
			e.Vector, e.Key); err != nil {
			return fmt.Errorf("journal: postgres update severity route=%s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: postgres commit tx: %w", err)
	}
	return nil
}
