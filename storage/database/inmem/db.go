// Package inmemdb keeps users and batches in process memory.
package inmemdb

import (
	"sync"

	"github.com/reportcardpro/backend/core/user"
)

type (
	DB struct {
		user  *userTable
		batch *batchTable
	}

	userTable struct {
		table map[string]*user.User
		order []string // insertion order
		mutex sync.RWMutex
	}

	// batchTable stores each account's collection as one JSON document.
	batchTable struct {
		table map[string][]byte // {storage key: document}
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:  &userTable{table: make(map[string]*user.User)},
		batch: &batchTable{table: make(map[string][]byte)},
	}
}
