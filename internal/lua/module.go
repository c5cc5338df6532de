package lua

import lua "github.com/yuin/gopher-lua"

// Module tracks the quark functions registered by a single script, so a
// reload or removal can unregister exactly those.
type Module struct {
	// Name is the script name (file name without .lua)
	Name string
	// Functions holds the full quark names, sorted
	Functions []string

	fns map[string]*lua.LFunction
}

// NewModule creates an empty Module.
func NewModule(name string) *Module {
	return &Module{
		Name: name,
		fns:  make(map[string]*lua.LFunction),
	}
}

// AddFunction tracks a quark name registered by this module.
func (m *Module) AddFunction(name string) {
	m.Functions = append(m.Functions, name)
}
