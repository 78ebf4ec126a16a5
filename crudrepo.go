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

// Package crudrepo wires the global database connection to sessions and
// generic repositories.
//
//	cfg, _ := database.LoadConfig("configs/database.yaml")
//	if _, err := crudrepo.Open(ctx, cfg); err != nil { ... }
//	defer crudrepo.Close()
//
//	sess, _ := crudrepo.NewSession()
//	artists, _ := crudrepo.NewRepository[Artist, int64](sess)
package crudrepo

import (
	"context"
	"errors"

	"github.com/uptrace/bun"

	"github.com/tomoncle/crudrepo/database"
	"github.com/tomoncle/crudrepo/repository"
	"github.com/tomoncle/crudrepo/session"
	"github.com/tomoncle/crudrepo/utils"
)

// ErrNotOpen is returned when a session is requested before Open.
var ErrNotOpen = errors.New("crudrepo: database is not open")

// Open configures logging from cfg and initializes the global database.
func Open(ctx context.Context, cfg *database.Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, errors.New("crudrepo: configuration cannot be empty")
	}
	if cfg.LogConfig.Format != "" {
		utils.ConfigureConsoleLogFormat(cfg.LogConfig.Format)
	}
	if cfg.LogConfig.Level != "" {
		utils.ConfigureLogLevel(cfg.LogConfig.Level)
	}
	return database.InitDB(ctx, cfg)
}

// Close closes the global database.
func Close() error {
	return database.CloseDB()
}

// NewSession starts a unit of work on the global database.
func NewSession(opts ...session.Option) (*session.Session, error) {
	db := database.GetDB()
	if db == nil {
		return nil, ErrNotOpen
	}
	return session.New(db, opts...), nil
}

// NewRepository binds T to a repository over s.
func NewRepository[T any, ID comparable](s repository.Session) (*repository.Repository[T, ID], error) {
	return repository.New[T, ID](s)
}

// NewAsyncRepository binds T to an asynchronous repository over s.
func NewAsyncRepository[T any, ID comparable](s repository.Session) (*repository.AsyncRepository[T, ID], error) {
	return repository.NewAsync[T, ID](s)
}
