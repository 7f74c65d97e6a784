/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

//go:build nokeyring

package config

import (
	"errors"
	"sync"
)

// In-memory keyring for builds without OS keychain access.

var errNotFound = errors.New("secret not found in keyring")

var (
	memMu   sync.Mutex
	memVals = map[string]string{}
)

func init() {
	keyringGet = func(service, key string) (string, error) {
		memMu.Lock()
		defer memMu.Unlock()
		v, ok := memVals[service+"/"+key]
		if !ok {
			return "", errNotFound
		}
		return v, nil
	}
	keyringSet = func(service, key, value string) error {
		memMu.Lock()
		defer memMu.Unlock()
		memVals[service+"/"+key] = value
		return nil
	}
	keyringDelete = func(service, key string) error {
		memMu.Lock()
		defer memMu.Unlock()
		if _, ok := memVals[service+"/"+key]; !ok {
			return errNotFound
		}
		delete(memVals, service+"/"+key)
		return nil
	}
}
