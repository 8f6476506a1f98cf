// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package kvstore provides the durable key-value substrate the recorder persists its state in.
// Values are opaque blobs that are always replaced as a whole.
package kvstore

import (
	"context"
	"errors"
)

// ErrClosed is returned when a store is used after Close was called.
var ErrClosed = errors.New("key-value store is closed")

// Store is a last-writer-wins key-value store. Get reports found == false without an error
// for keys that were never written or have been deleted.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
