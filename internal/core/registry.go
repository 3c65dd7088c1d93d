package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// registry holds the modules compiled into the binary. Modules add
// themselves from init, so lookups never race with registration in
// practice; the lock covers tests that register at run time.
var registry = struct {
	sync.RWMutex
	byID map[ModuleID]ModuleInfo
}{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule records instance's ModuleInfo. It panics on an empty id,
// a missing constructor, or an id registered twice, all of which are
// programming errors caught at startup.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module id must not be empty")
	case !strings.Contains(string(info.ID), "."):
		panic(fmt.Sprintf("core: module id %q must be <kind>.<name>", info.ID))
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry.byID[info.ID] = info
}

// GetModule looks up a compiled-in module.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[ModuleID(id)]
	return info, ok
}

// GetModules lists the compiled-in modules ordered by id.
func GetModules() []ModuleInfo {
	registry.RLock()
	ids := slices.Sorted(maps.Keys(registry.byID))
	out := make([]ModuleInfo, len(ids))
	for i, id := range ids {
		out[i] = registry.byID[id]
	}
	registry.RUnlock()
	return out
}
