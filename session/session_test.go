/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/crudrepo/database"
)

type band struct {
	bun.BaseModel `bun:"table:bands,alias:b"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

type label struct {
	bun.BaseModel `bun:"table:labels,alias:l"`

	Code string `bun:"code,pk"`
	Name string `bun:"name"`
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) SetLevel(database.LogLevel) {}
func (l *recordingLogger) Debug(msg string, _ ...interface{}) { l.record(msg) }
func (l *recordingLogger) Info(msg string, _ ...interface{}) { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...interface{}) { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...interface{}) { l.record(msg) }

func openDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateTables(context.Background(), db, (*band)(nil), (*label)(nil)))
	return db
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *bun.DB) {
	t.Helper()
	db := openDB(t)
	s := New(db, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, db
}

func insert(t *testing.T, s *Session, names ...string) []*band {
	t.Helper()
	ctx := context.Background()
	bands := make([]*band, len(names))
	for i, name := range names {
		bands[i] = &band{Name: name}
		require.NoError(t, s.Add(bands[i]))
	}
	require.NoError(t, s.Flush(ctx))
	return bands
}

func TestTransactionStartsLazily(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	assert.False(t, s.InTransaction())
	require.NoError(t, s.Add(&band{Name: "AC/DC"}))
	assert.False(t, s.InTransaction())
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Flush(ctx))
	assert.True(t, s.InTransaction())
	assert.Zero(t, s.Pending())

	require.NoError(t, s.Commit(ctx))
	assert.False(t, s.InTransaction())

	n, err := s.Count(ctx, (*band)(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, s.InTransaction())
}

func TestFlushAssignsKeysAndTracksIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	bands := insert(t, s, "AC/DC", "Accept")

	assert.NotZero(t, bands[0].ID)
	assert.NotEqual(t, bands[0].ID, bands[1].ID)
	assert.Equal(t, 2, s.identity.len())

	got, err := s.Get(ctx, (*band)(nil), bands[1].ID)
	require.NoError(t, err)
	assert.Same(t, bands[1], got)
}

func TestGetMissingReturnsNil(t *testing.T) {
	s, _ := newTestSession(t)

	got, err := s.Get(context.Background(), (*band)(nil), int64(404))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetLoadsOnePointerPerRow(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	b := insert(t, s, "Accept")[0]
	require.NoError(t, s.Commit(ctx))
	s.identity.clear()

	first, err := s.Get(ctx, (*band)(nil), int(b.ID))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotSame(t, b, first)
	second, err := s.Get(ctx, (*band)(nil), b.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestAddThenDeleteNeverWrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	b := &band{Name: "Anthrax"}
	require.NoError(t, s.Add(b))
	require.NoError(t, s.Add(b))
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Delete(b))
	assert.Zero(t, s.Pending())

	n, err := s.Count(ctx, (*band)(nil))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddPersistentEntityStagesUpdate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	b := insert(t, s, "ACDC")[0]

	b.Name = "AC/DC"
	require.NoError(t, s.Add(b))
	require.Len(t, s.pending, 1)
	assert.Equal(t, opUpdate, s.pending[0].kind)
	require.NoError(t, s.Commit(ctx))

	var names []string
	q, err := s.NewSelect(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Model((*band)(nil)).Column("name").Scan(ctx, &names))
	assert.Equal(t, []string{"AC/DC"}, names)
}

func TestSelectReconcilesIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	bands := insert(t, s, "AC/DC", "Accept")

	var all []*band
	require.NoError(t, s.Select(ctx, &all, "id"))
	require.Len(t, all, 2)
	assert.Same(t, bands[0], all[0])
	assert.Same(t, bands[1], all[1])

	err := s.Select(ctx, all)
	assert.Error(t, err)
}

func TestSelectKeepsUnflushedChanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	b := insert(t, s, "ACDC")[0]

	b.Name = "AC/DC"
	var all []*band
	require.NoError(t, s.Select(ctx, &all))
	require.Len(t, all, 1)
	assert.Same(t, b, all[0])
	assert.Equal(t, "AC/DC", b.Name)
}

func TestSelectReloadsExpiredEntities(t *testing.T) {
	ctx := context.Background()
	s, db := newTestSession(t)
	b := insert(t, s, "ACDC")[0]
	require.NoError(t, s.Commit(ctx))

	_, err := db.NewUpdate().Model((*band)(nil)).
		Set("name = ?", "AC/DC").
		Where("id = ?", b.ID).
		Exec(ctx)
	require.NoError(t, err)

	var all []*band
	require.NoError(t, s.Select(ctx, &all))
	require.Len(t, all, 1)
	assert.Same(t, b, all[0])
	assert.Equal(t, "AC/DC", b.Name)
	assert.False(t, s.identity.isExpired(b))

	b.Name = "Accept"
	var again []*band
	require.NoError(t, s.Select(ctx, &again))
	assert.Same(t, b, again[0])
	assert.Equal(t, "Accept", b.Name)
}

func TestAddCancelsStagedDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	b := insert(t, s, "AC/DC")[0]

	require.NoError(t, s.Delete(b))
	require.NoError(t, s.Add(b))
	require.Len(t, s.pending, 1)
	assert.Equal(t, opUpdate, s.pending[0].kind)
	require.NoError(t, s.Commit(ctx))

	got, err := s.Get(ctx, (*band)(nil), b.ID)
	require.NoError(t, err)
	assert.Same(t, b, got)
	n, err := s.Count(ctx, (*band)(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestZeroPrimaryKeyIsTracked(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	l := &label{Code: "", Name: "unsigned"}
	require.NoError(t, s.Add(l))
	require.NoError(t, s.Flush(ctx))
	assert.True(t, s.identity.contains(l))

	got, err := s.Get(ctx, (*label)(nil), "")
	require.NoError(t, err)
	assert.Same(t, l, got)

	var all []*label
	require.NoError(t, s.Select(ctx, &all))
	require.Len(t, all, 1)
	assert.Same(t, l, all[0])
}

func TestCommitExpiresLoadedEntities(t *testing.T) {
	ctx := context.Background()
	s, db := newTestSession(t)
	b := insert(t, s, "ACDC")[0]
	require.NoError(t, s.Commit(ctx))

	_, err := db.NewUpdate().Model((*band)(nil)).
		Set("name = ?", "AC/DC").
		Where("id = ?", b.ID).
		Exec(ctx)
	require.NoError(t, err)

	got, err := s.Get(ctx, (*band)(nil), b.ID)
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, "AC/DC", b.Name)
}

func TestCommitForgetsRowsDeletedElsewhere(t *testing.T) {
	ctx := context.Background()
	s, db := newTestSession(t)
	b := insert(t, s, "Accept")[0]
	require.NoError(t, s.Commit(ctx))

	_, err := db.NewDelete().Model((*band)(nil)).Where("id = ?", b.ID).Exec(ctx)
	require.NoError(t, err)

	got, err := s.Get(ctx, (*band)(nil), b.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, s.identity.contains(b))
}

func TestRollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	insert(t, s, "AC/DC")
	require.NoError(t, s.Add(&band{Name: "Accept"}))

	require.NoError(t, s.Rollback(ctx))
	assert.False(t, s.InTransaction())
	assert.Zero(t, s.Pending())
	assert.Zero(t, s.identity.len())

	n, err := s.Count(ctx, (*band)(nil))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailedFlushKeepsWritesStaged(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	insert(t, s, "AC/DC")

	require.NoError(t, s.Add(&band{Name: "AC/DC"}))
	require.NoError(t, s.Add(&band{Name: "Accept"}))
	err := s.Flush(ctx)
	require.Error(t, err)

	ok, kind := database.IsSqlError(err)
	assert.True(t, ok)
	assert.Equal(t, database.DuplicateKeyErr, kind)
	assert.Equal(t, 2, s.Pending())

	require.NoError(t, s.Rollback(ctx))
	assert.Zero(t, s.Pending())
}

func TestDeleteAllEvictsTable(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	bands := insert(t, s, "AC/DC", "Accept")

	require.NoError(t, s.DeleteAll(ctx, (*band)(nil)))
	assert.Zero(t, s.identity.len())
	assert.False(t, s.identity.contains(bands[0]))

	n, err := s.Count(ctx, (*band)(nil))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteFlushedEntity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	b := insert(t, s, "AC/DC")[0]

	require.NoError(t, s.Delete(b))
	require.NoError(t, s.Delete(b))
	assert.Equal(t, 1, s.Pending())

	got, err := s.Get(ctx, (*band)(nil), b.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefreshReloadsColumns(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	b := insert(t, s, "AC/DC")[0]

	b.Name = "changed in memory"
	require.NoError(t, s.Refresh(ctx, b))
	assert.Equal(t, "AC/DC", b.Name)
}

func TestInvalidModels(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	assert.Error(t, s.Add(nil))
	assert.Error(t, s.Add(band{}))
	assert.Error(t, s.Delete((*band)(nil)))
	assert.Error(t, s.Refresh(ctx, nil))

	_, err := s.Get(ctx, 42, 1)
	assert.Error(t, err)
	assert.Error(t, s.DeleteAll(ctx, "bands"))
}

func TestLoggerRecordsTransactionEvents(t *testing.T) {
	ctx := context.Background()
	logger := &recordingLogger{}
	s, _ := newTestSession(t, WithLogger(logger), WithTxOptions(&sql.TxOptions{}))

	insert(t, s, "AC/DC")
	require.NoError(t, s.Commit(ctx))

	assert.Equal(t, []string{
		"session transaction started",
		"session flushed",
		"session transaction committed",
	}, logger.messages)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(&band{Name: fmt.Sprintf("band-%d", i)})
		}()
	}
	wg.Wait()
	require.NoError(t, s.Commit(ctx))

	n, err := s.Count(ctx, (*band)(nil))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}
