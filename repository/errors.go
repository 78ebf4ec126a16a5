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
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrInvalidArgument is returned before any session call when a required
	// entity or identifier is nil.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConfiguration is returned when a repository cannot be bound to its model.
	ErrConfiguration = errors.New("repository configuration error")
)

var (
	errNilSession  = fmt.Errorf("%w: session must not be nil", ErrInvalidArgument)
	errNilEntity   = fmt.Errorf("%w: entity must not be nil", ErrInvalidArgument)
	errNilEntities = fmt.Errorf("%w: entities must not contain nil", ErrInvalidArgument)
	errNilID       = fmt.Errorf("%w: id must not be nil", ErrInvalidArgument)
	errNilIDs      = fmt.Errorf("%w: ids must not contain nil", ErrInvalidArgument)
)

// ConfigurationError reports why a model could not be bound to a repository.
type ConfigurationError struct {
	Model  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("repository for %s is misconfigured: %s", e.Model, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func checkEntity[T any](entity *T) error {
	if entity == nil {
		return errNilEntity
	}
	return nil
}

func checkEntities[T any](entities []*T) error {
	for _, entity := range entities {
		if entity == nil {
			return errNilEntities
		}
	}
	return nil
}

func checkID[ID comparable](id ID) error {
	if isNil(id) {
		return errNilID
	}
	return nil
}

func checkIDs[ID comparable](ids []ID) error {
	for _, id := range ids {
		if isNil(id) {
			return errNilIDs
		}
	}
	return nil
}

// isNil treats only nil-able kinds as absent; a zero int or empty string is a
// valid identifier.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
