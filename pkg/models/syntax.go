package models

// TokenClass classifies a lexical token for placeholder folding.
type TokenClass int

const (
	TokenOther TokenClass = iota
	TokenIdentifier
	TokenString
	TokenNumber
	TokenKeyword
	TokenComment
)

// SyntaxToken is one leaf of a parsed source fragment.
type SyntaxToken struct {
	Class TokenClass
	Kind  string
	Text  string
}

// FunctionSignature is a function or method declaration found in source.
type FunctionSignature struct {
	Name      string
	Signature string
	StartLine int
	EndLine   int
}

// FileDiff is the parsed form of one file section of a unified diff.
type FileDiff struct {
	OrigName     string
	NewName      string
	LinesAdded   int
	LinesRemoved int
	Sections     []string
	AddedText    string
	RemovedText  string
}

// DiffStats summarizes the line changes between two versions of a file.
type DiffStats struct {
	LinesAdded   int
	LinesRemoved int
	LinesChanged int
}
