package entities

import (
	"fmt"
	"time"
)

// ContextState is the lifecycle state of an execution context.
type ContextState int

const (
	StateUninitialized ContextState = iota
	StatePrepared
	StateExecuting
	StateFinished
	StateSuspended
	StateAborted
	StateException
	StateError
)

var stateNames = [...]string{
	"uninitialized", "prepared", "executing", "finished",
	"suspended", "aborted", "exception", "error",
}

func (s ContextState) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends an execution.
func (s ContextState) Terminal() bool {
	return s >= StateFinished
}

// CallFrame is one entry of a script call stack.
type CallFrame struct {
	Module   string
	Function string
	Line     int
	Column   int
}

func (f CallFrame) String() string {
	return fmt.Sprintf("%s:%s:%d", f.Module, f.Function, f.Line)
}

// ActiveContextRecord tracks the outermost dispatch of one thread.
type ActiveContextRecord struct {
	Started time.Time
	PoolID  uint64
	Warned  bool
}

// EngineMessageType classifies an engine diagnostic.
type EngineMessageType int

const (
	MessageInfo EngineMessageType = iota
	MessageWarning
	MessageError
)

func (t EngineMessageType) String() string {
	switch t {
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	default:
		return "info"
	}
}

// EngineMessage is a diagnostic emitted by the script engine during compilation.
type EngineMessage struct {
	Section string
	Message string
	Row     int
	Col     int
	Type    EngineMessageType
}
