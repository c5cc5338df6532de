// Package lua runs Lua scripts whose exported functions serve as quark
// readers and writers.
//
// A script returns a module table; every function in it is registered in the
// quark registry as "<script>.<function>", so users.lua returning
// { list = function(call) ... end } provides "users.list". All Lua runs on one
// executor goroutine that owns the LState.
package lua

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/quark"
)

var errShutdown = errors.New("lua runtime is shut down")

// WorkItem represents a unit of work for the executor.
type WorkItem struct {
	fn     func() (any, error)
	result chan WorkResult
}

// WorkResult holds the result of a work item.
type WorkResult struct {
	Value any
	Err   error
}

// Runtime owns a Lua VM and the quark names its scripts registered.
type Runtime struct {
	State        *lua.LState
	luaDir       string
	quarks       *quark.Registry
	config       *config.Config
	modules      map[string]*Module
	executorChan chan WorkItem
	done         chan struct{}
	closeOnce    sync.Once
	mu           sync.RWMutex
}

// NewRuntime creates a runtime with its executor goroutine running.
func NewRuntime(cfg *config.Config, luaDir string, quarks *quark.Registry) (*Runtime, error) {
	if quarks == nil {
		return nil, fmt.Errorf("lua runtime needs a quark registry")
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// Load standard libraries
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}

	r := &Runtime{
		State:        L,
		luaDir:       luaDir,
		quarks:       quarks,
		config:       cfg,
		modules:      make(map[string]*Module),
		executorChan: make(chan WorkItem, 100),
		done:         make(chan struct{}),
	}
	r.registerLog()
	r.startExecutor()
	return r, nil
}

// Log logs a message via the config.
func (r *Runtime) Log(level int, format string, args ...any) {
	r.config.Log(level, format, args...)
}

// Dir returns the script directory.
func (r *Runtime) Dir() string {
	return r.luaDir
}

// registerLog exposes log(level, message) to scripts.
func (r *Runtime) registerLog() {
	r.State.SetGlobal("log", r.State.NewFunction(func(L *lua.LState) int {
		level := L.CheckInt(1)
		r.Log(level, "lua: %s", L.CheckString(2))
		return 0
	}))
}

// startExecutor creates the goroutine that processes work items.
func (r *Runtime) startExecutor() {
	go func() {
		for {
			select {
			case <-r.done:
				r.State.Close()
				return
			case work := <-r.executorChan:
				result, err := r.run(work.fn)
				work.result <- WorkResult{Value: result, Err: err}
			}
		}
	}()
}

// run calls fn, turning a panic in Lua glue into an error.
func (r *Runtime) run(fn func() (any, error)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("lua panic: %v", p)
		}
	}()
	return fn()
}

// execute queues fn on the executor and blocks until it completes or ctx ends.
func (r *Runtime) execute(ctx context.Context, fn func() (any, error)) (any, error) {
	select {
	case <-r.done:
		return nil, errShutdown
	default:
	}
	result := make(chan WorkResult, 1)
	select {
	case r.executorChan <- WorkItem{fn: fn, result: result}:
	case <-r.done:
		return nil, errShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-result:
		return res.Value, res.Err
	case <-r.done:
		return nil, errShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadDir loads every *.lua file in the script directory and returns the
// loaded script names. A failing script is logged and skipped.
func (r *Runtime) LoadDir() ([]string, error) {
	return r.LoadFS(os.DirFS(r.luaDir))
}

// LoadFS is LoadDir over the top level of fsys, such as a bundled script
// directory.
func (r *Runtime) LoadFS(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading lua directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		content, err := fs.ReadFile(fsys, entry.Name())
		if err == nil {
			var m *Module
			if m, err = r.LoadCode(ScriptName(entry.Name()), string(content)); err == nil {
				names = append(names, m.Name)
				continue
			}
		}
		r.Log(0, "Warning: %v", err)
	}
	return names, nil
}

// LoadFile loads a script from disk. See LoadCode.
func (r *Runtime) LoadFile(path string) (*Module, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.LoadCode(ScriptName(path), string(content))
}

// ScriptName returns the module name of a script path: dir/users.lua -> users.
func ScriptName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".lua")
}

// LoadCode runs code as script name and registers the functions of the
// table it returns, replacing whatever an earlier load of name registered.
func (r *Runtime) LoadCode(name, code string) (*Module, error) {
	v, err := r.execute(context.Background(), func() (any, error) {
		return r.loadCodeInternal(name, code)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

// loadCodeInternal is the executor side of LoadCode.
func (r *Runtime) loadCodeInternal(name, code string) (*Module, error) {
	L := r.State
	fn, err := L.LoadString(code)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("script %s must return a table of functions, got %s", name, ret.Type())
	}

	m := NewModule(name)
	var names []string
	tbl.ForEach(func(key, value lua.LValue) {
		ks, ok := key.(lua.LString)
		f, isFn := value.(*lua.LFunction)
		if ok && isFn {
			full := name + "." + string(ks)
			names = append(names, full)
			m.fns[full] = f
		}
	})
	sort.Strings(names)
	for _, full := range names {
		m.AddFunction(full)
	}

	r.mu.Lock()
	old := r.modules[name]
	r.modules[name] = m
	r.mu.Unlock()

	if old != nil {
		for _, n := range old.Functions {
			r.quarks.Unregister(n)
		}
	}
	for _, full := range names {
		r.quarks.Register(full, r.quarkFunc(full, m.fns[full]))
	}
	r.Log(1, "lua: loaded %s (%s)", name, strings.Join(names, ", "))
	return m, nil
}

// Unload unregisters the functions of script name and reports whether it was loaded.
func (r *Runtime) Unload(name string) bool {
	r.mu.Lock()
	m, ok := r.modules[name]
	delete(r.modules, name)
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, n := range m.Functions {
		r.quarks.Unregister(n)
	}
	r.Log(1, "lua: unloaded %s", name)
	return true
}

// Modules returns the loaded script names, sorted.
func (r *Runtime) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Module returns a loaded script.
func (r *Runtime) Module(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// quarkFunc adapts a Lua function to a quark. The function receives one
// table {skip, limit, filter, sort, data} and returns a result or nil and
// an error message.
func (r *Runtime) quarkFunc(name string, fn *lua.LFunction) quark.Func {
	return func(ctx context.Context, call quark.Call) (any, error) {
		arg, err := callValue(call)
		if err != nil {
			return nil, err
		}
		return r.execute(ctx, func() (any, error) {
			L := r.State
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, GoToLua(L, arg)); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			result, msg := L.Get(-2), L.Get(-1)
			L.Pop(2)
			if msg != lua.LNil {
				return nil, fmt.Errorf("%s: %s", name, msg.String())
			}
			return LuaToGo(result), nil
		})
	}
}

// callValue renders a call in its JSON shape so filters and sorts reach
// Lua with their wire field names.
func callValue(call quark.Call) (map[string]any, error) {
	data, err := json.Marshal(struct {
		Skip   int `json:"skip"`
		Limit  int `json:"limit"`
		Filter any `json:"filter"`
		Sort   any `json:"sort"`
		Data   any `json:"data"`
	}{call.Skip, call.Limit, call.Filter, call.Sort, call.Data})
	if err != nil {
		return nil, fmt.Errorf("encoding quark call: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Shutdown stops the executor, which closes the VM. Registered quarks stay
// bound but fail.
func (r *Runtime) Shutdown() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}
