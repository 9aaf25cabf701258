package entities

import "time"

// PragmaInvocation is one "#pragma <tag> <text>" directive captured while
// preprocessing a module.
type PragmaInvocation struct {
	Tag  string
	Text string
}

// ModuleRecord is the persisted form of a compiled module.
type ModuleRecord struct {
	Name         string
	Unit         []byte
	Dependencies []string
	Pragmas      []PragmaInvocation
	Version      uint32
}

// ModuleInfo describes an installed module.
type ModuleInfo struct {
	LoadedAt   time.Time
	Name       string
	Functions  []string
	Generation uint64
	FromCache  bool
}

// GlobalVar is a module-level variable or exported class field discovered
// after compilation. Owner is empty for plain globals and holds the class
// name for fields.
type GlobalVar struct {
	Owner string
	Name  string
	Type  TypeRef
}

// QualifiedName returns "Owner.Name" for fields and Name otherwise.
func (g GlobalVar) QualifiedName() string {
	if g.Owner == "" {
		return g.Name
	}
	return g.Owner + "." + g.Name
}
