// Package javaparse splits Java source files into method-level fragments.
package javaparse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

const (
	nodeClassDeclaration       = "class_declaration"
	nodeClassBody              = "class_body"
	nodeMethodDeclaration      = "method_declaration"
	nodeConstructorDeclaration = "constructor_declaration"
)

// Chunker extracts one fragment per method or constructor declared in a class.
// A new tree-sitter parser is created per call, so Chunker is safe for concurrent use.
type Chunker struct{}

// NewChunker creates a Java chunker.
func NewChunker() *Chunker {
	return &Chunker{}
}

// FragmentID builds the stable identifier of a method fragment.
// Lines are 1-based and inclusive.
func FragmentID(path, method string, startLine, endLine int) string {
	return fmt.Sprintf("%s::%s::%d-%d", path, method, startLine, endLine)
}

// Chunk parses src and returns its methods in source order. Classes nested
// inside a class body are walked too; their methods carry the inner class name.
func (c *Chunker) Chunk(ctx context.Context, path string, src []byte) ([]storage.Fragment, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	var fragments []storage.Fragment
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() == nodeClassDeclaration {
			fragments = c.walkClass(node, path, src, fragments)
		}
	}
	return fragments, nil
}

func (c *Chunker) walkClass(class *sitter.Node, path string, src []byte, fragments []storage.Fragment) []storage.Fragment {
	className := ""
	if name := class.ChildByFieldName("name"); name != nil {
		className = name.Content(src)
	}

	body := class.ChildByFieldName("body")
	if body == nil || body.Type() != nodeClassBody {
		return fragments
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case nodeMethodDeclaration, nodeConstructorDeclaration:
			name := member.ChildByFieldName("name")
			if name == nil {
				continue
			}
			method := name.Content(src)
			start := int(member.StartPoint().Row) + 1
			end := int(member.EndPoint().Row) + 1
			fragments = append(fragments, storage.Fragment{
				ID:       FragmentID(path, method, start, end),
				Document: member.Content(src),
				Metadata: storage.FragmentMetadata{
					FilePath:   path,
					ClassName:  className,
					MethodName: method,
					StartLine:  start,
					EndLine:    end,
				},
			})
		case nodeClassDeclaration:
			fragments = c.walkClass(member, path, src, fragments)
		}
	}
	return fragments
}
