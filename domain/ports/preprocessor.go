package ports

import "github.com/reglet-dev/scripthost/domain/entities"

// PragmaCallback receives each pragma as the preprocessor reaches it.
type PragmaCallback func(tag, text string) error

// PreprocessResult is the expanded source and what was captured on the way.
type PreprocessResult struct {
	Source       string
	Dependencies []string
	Pragmas      []entities.PragmaInvocation
}

// Preprocessor expands includes, conditionals and pragmas.
type Preprocessor interface {
	// Preprocess expands path. When source is non-nil it is used instead
	// of reading path.
	Preprocess(path string, source []byte, onPragma PragmaCallback) (*PreprocessResult, error)
}

// PragmaHandler handles one pragma tag.
type PragmaHandler interface {
	Tag() string
	Handle(text string, engine ScriptEngine) error
}
