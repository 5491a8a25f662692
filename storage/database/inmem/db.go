package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-admin/core/featureswitch"
)

type (
	DB struct {
		rule *ruleTable
	}

	ruleTable struct {
		sync.RWMutex
		table map[string]*featureswitch.Rule
	}
)

func Open() *DB {
	return &DB{
		rule: &ruleTable{table: make(map[string]*featureswitch.Rule)},
	}
}
