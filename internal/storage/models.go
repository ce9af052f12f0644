package storage

import "strings"

// Fragment is one retrievable unit of source code, typically a single method.
// Fragments returned from queries are read-only; callers must not mutate them.
type Fragment struct {
	ID       string // Stable id: "path::method::start-end"
	Document string // Source text of the fragment
	Metadata FragmentMetadata
}

// FragmentMetadata identifies where a fragment lives in the indexed project.
type FragmentMetadata struct {
	FilePath   string
	ClassName  string
	MethodName string
	StartLine  int
	EndLine    int
}

// EmbeddedFragment pairs a fragment with its embedding for the write path.
type EmbeddedFragment struct {
	Fragment  Fragment
	Embedding []float32 // 1536-dim vector (text-embedding-3-small)
}

// MetadataFilter selects fragments by exact metadata match.
// Empty fields are ignored; a filter with no fields set matches nothing.
type MetadataFilter struct {
	// ClassName matches the recorded class name or any file path containing it.
	ClassName string
	// MethodName matches the recorded method name exactly.
	MethodName string
}

// IsEmpty reports whether no criteria are set.
func (f MetadataFilter) IsEmpty() bool {
	return f.ClassName == "" && f.MethodName == ""
}

// Matches reports whether the metadata satisfies every non-empty criterion.
func (f MetadataFilter) Matches(m FragmentMetadata) bool {
	if f.IsEmpty() {
		return false
	}
	if f.ClassName != "" && m.ClassName != f.ClassName && !strings.Contains(m.FilePath, f.ClassName) {
		return false
	}
	if f.MethodName != "" && m.MethodName != f.MethodName {
		return false
	}
	return true
}

// DefaultCollectionName is the Qdrant collection used when none is configured.
const DefaultCollectionName = "java_code_analysis"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536
