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

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFutureAwait(t *testing.T) {
	release := make(chan struct{})
	f := spawn(func() (int, error) {
		<-release
		return 42, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestResolvedFutureIsDone(t *testing.T) {
	boom := errors.New("boom")
	f := resolved(0, boom)

	select {
	case <-f.Done():
	default:
		t.Fatal("resolved future is not done")
	}
	_, err := f.Await(context.Background())
	assert.Same(t, boom, err)
}

func TestAsyncInvalidArgumentsResolveImmediately(t *testing.T) {
	ctx := context.Background()
	m := newMockSession()
	repo, err := NewAsync[widget, *int64](m)
	require.NoError(t, err)

	futures := map[string]<-chan struct{}{
		"Save":           repo.Save(ctx, nil).Done(),
		"SaveAll":        repo.SaveAll(ctx, []*widget{nil}).Done(),
		"FindByID":       repo.FindByID(ctx, nil).Done(),
		"ExistsByID":     repo.ExistsByID(ctx, nil).Done(),
		"FindAllByID":    repo.FindAllByID(ctx, []*int64{nil}).Done(),
		"DeleteByID":     repo.DeleteByID(ctx, nil).Done(),
		"Delete":         repo.Delete(ctx, nil).Done(),
		"DeleteAllByID":  repo.DeleteAllByID(ctx, []*int64{nil}).Done(),
		"DeleteEntities": repo.DeleteEntities(ctx, []*widget{nil}).Done(),
	}
	for name, done := range futures {
		select {
		case <-done:
		default:
			t.Errorf("%s: future for invalid argument is not resolved", name)
		}
	}

	_, err = repo.Save(ctx, nil).Await(ctx)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = repo.DeleteByID(ctx, nil).Await(ctx)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	m.AssertNotCalled(t, "Add", mock.Anything)
	m.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestAsyncDelegatesToSession(t *testing.T) {
	ctx := context.Background()
	w := &widget{ID: 3}
	m := newMockSession()
	m.On("Get", ctx, (*widget)(nil), int64(3)).Return(w, nil)
	m.On("Count", ctx, (*widget)(nil)).Return(5, nil)
	m.On("Commit", ctx).Return(nil)

	repo, err := NewAsync[widget, int64](m)
	require.NoError(t, err)
	assert.Equal(t, "widgets", repo.Model().TableName())
	assert.NotNil(t, repo.Sync())

	found, err := repo.FindByID(ctx, 3).Await(ctx)
	require.NoError(t, err)
	assert.Same(t, w, found)

	ok, err := repo.ExistsByID(ctx, 3).Await(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := repo.Count(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = repo.Commit(ctx).Await(ctx)
	require.NoError(t, err)
	m.AssertExpectations(t)
}
