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
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
)

// Minimal fake SQL driver to exercise PostgresPersister's transaction and
// Exec paths without a real Postgres server.

type fakeDB struct {
	execs         []string
	failBegin     error
	failCommit    error
	failExecAt    map[int]error
	commitCount   int
	rollbackCount int
}

type fakePGDriver struct{}
type fakePGConn struct{ db *fakeDB }
type fakePGTx struct {
	db     *fakeDB
	closed bool
}
type fakePGResult int

func (fakePGResult) LastInsertId() (int64, error) { return 0, nil }
func (fakePGResult) RowsAffected() (int64, error)  { return 1, nil }

func (fakePGDriver) Open(name string) (driver.Conn, error) { return &fakePGConn{db: testFakeDB}, nil }

func (c *fakePGConn) Prepare(query string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *fakePGConn) Close() error                              { return nil }
func (c *fakePGConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}
func (c *fakePGConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.db.failBegin != nil {
		return nil, c.db.failBegin
	}
	return &fakePGTx{db: c.db}, nil
}
func (c *fakePGConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.execs = append(c.db.execs, query)
	idx := len(c.db.execs)
	if c.db.failExecAt != nil {
		if err, ok := c.db.failExecAt[idx]; ok {
			return nil, err
		}
	}
	return fakePGResult(1), nil
}

func (t *fakePGTx) Commit() error {
	if t.closed {
		return errors.New("already closed")
	}
	t.db.commitCount++
	t.closed = true
	return t.db.failCommit
}
func (t *fakePGTx) Rollback() error {
	if t.closed {
		return nil
	}
	t.db.rollbackCount++
	t.closed = true
	return nil
}

var testFakeDB *fakeDB

func init() {
	sql.Register("fake-postgres-journal", fakePGDriver{})
}

func newSQLDBWithFake(db *fakeDB) *sql.DB {
	testFakeDB = db
	d, _ := sql.Open("fake-postgres-journal", "")
	return d
}

func TestPostgresPersister_Empty(t *testing.T) {
	db := newSQLDBWithFake(&fakeDB{})
	p := NewPostgresPersister(db, false, 0)
	if err := p.CommitBatch(context.Background(), nil); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestPostgresPersister_CreateMissingRows_AndApply(t *testing.T) {
	f := &fakeDB{}
	db := newSQLDBWithFake(f)
	p := NewPostgresPersister(db, true, 0)

	entries := []CommitEntry{{Key: "checkout", Vector: 5, CommitID: "c1"}, {Key: "search", Vector: -2, CommitID: "c2"}}
	if err := p.CommitBatch(context.Background(), entries); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if f.commitCount != 1 || f.rollbackCount != 0 {
		t.Fatalf("commit/rollback mismatch: %d/%d", f.commitCount, f.rollbackCount)
	}

	var hasMarker, hasRowInit, hasUpdate bool
	for _, q := range f.execs {
		if strings.Contains(q, "INSERT INTO applied_commits") {
			hasMarker = true
		}
		if strings.Contains(q, "INSERT INTO severities") {
			hasRowInit = true
		}
		if strings.Contains(q, "UPDATE severities SET total = total +") {
			hasUpdate = true
		}
	}
	if !hasMarker || !hasRowInit || !hasUpdate {
		t.Fatalf("expected marker, row-init, and update queries, got: %v", f.execs)
	}
}

func TestPostgresPersister_ExecError_Rollback(t *testing.T) {
	f := &fakeDB{failExecAt: map[int]error{1: errors.New("boom")}}
	db := newSQLDBWithFake(f)
	p := NewPostgresPersister(db, true, 0)

	err := p.CommitBatch(context.Background(), []CommitEntry{{Key: "checkout", Vector: 1, CommitID: "c1"}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.rollbackCount != 1 || f.commitCount != 0 {
		t.Fatalf("expected rollback only, got c=%d r=%d", f.commitCount, f.rollbackCount)
	}
}

func TestPostgresPersister_CommitError(t *testing.T) {
	f := &fakeDB{failCommit: errors.New("commit-fail")}
	db := newSQLDBWithFake(f)
	p := NewPostgresPersister(db, false, 0)

	err := p.CommitBatch(context.Background(), []CommitEntry{{Key: "checkout", Vector: 1, CommitID: "c1"}})
	if err == nil || !strings.Contains(err.Error(), "commit-fail") {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.commitCount != 1 {
		t.Fatalf("expected one commit attempt")
	}
}
