// Package importgraph renders the import graph of a resolution pass as a
// Graphviz diagram: user files, fetched library files, and the edges between
// them. Useful for auditing what a contract actually pulls in.
package importgraph

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/soldep/soldep/pkg/resolve"
)

// Options configures graph rendering.
type Options struct {
	// Compact collapses library paths to their final segment, keeping the
	// diagram readable for deep trees.
	Compact bool
}

// node classes, for styling.
const (
	classUser       = "user"
	classLibrary    = "library"
	classUnresolved = "unresolved"
)

// ToDOT converts a resolution result to Graphviz DOT format. User files are
// filled boxes, fetched library files rounded boxes, unresolved imports
// dashed outlines.
func ToDOT(result *resolve.Result, userFiles []string, opts Options) string {
	users := make(map[string]bool, len(userFiles))
	for _, f := range userFiles {
		users[f] = true
	}
	unresolved := make(map[string]bool, len(result.Unresolved))
	for _, u := range result.Unresolved {
		unresolved[u] = true
	}

	nodes := make(map[string]string) // id → class
	for _, e := range result.Edges {
		for _, id := range []string{e.From, e.To} {
			switch {
			case users[id]:
				nodes[id] = classUser
			case unresolved[id]:
				nodes[id] = classUnresolved
			default:
				nodes[id] = classLibrary
			}
		}
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	buf.WriteString("digraph imports {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, fontsize=12, margin=\"0.15,0.08\"];\n")
	buf.WriteString("\n")

	for _, id := range ids {
		fmt.Fprintf(&buf, "  %q [label=%q, %s];\n", id, label(id, opts), attrs(nodes[id]))
	}

	buf.WriteString("\n")
	for _, e := range result.Edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func label(id string, opts Options) string {
	if !opts.Compact {
		return id
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func attrs(class string) string {
	switch class {
	case classUser:
		return `style="filled", fillcolor="#d0e7ff"`
	case classUnresolved:
		return `style="dashed", color="#cc4444", fontcolor="#cc4444"`
	default:
		return `style="rounded,filled", fillcolor="white"`
	}
}

// RenderSVG renders a DOT graph to SVG bytes using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
