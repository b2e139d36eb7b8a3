// Package trust manages the node's trust network, the list of peer nodes and
// repositories the node vouches for, stored in trust/known_nodes.yaml.
package trust

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/core-nexus/utopian/internal/storage"
)

// KnownNodesFile is the trust network file, relative to the node root.
var KnownNodesFile = filepath.Join(storage.TrustDir, "known_nodes.yaml")

// NodeType classifies a trust entry.
type NodeType string

const (
	NodeTypeCore      NodeType = "core"
	NodeTypePeer      NodeType = "peer"
	NodeTypeResource  NodeType = "resource"
	NodeTypeCommunity NodeType = "community"
)

// Node is one trusted entry. Score, when present, is in [0,1].
type Node struct {
	URL         string   `yaml:"url" json:"url"`
	Score       *float64 `yaml:"score,omitempty" json:"score,omitempty"`
	Type        NodeType `yaml:"type,omitempty" json:"type,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// KnownNodes is the top-level structure of known_nodes.yaml.
type KnownNodes struct {
	Nodes       []Node `yaml:"nodes" json:"nodes"`
	LastUpdated string `yaml:"last_updated" json:"last_updated"`
}

// CoreRepository is the node every fresh trust network starts with.
const CoreRepository = "https://github.com/core-nexus/utopia"

// Score returns a pointer to v, for building Node literals.
func Score(v float64) *float64 { return &v }

// Seed returns the initial trust network: the core project repository with
// full trust.
func Seed(now time.Time) KnownNodes {
	return KnownNodes{
		Nodes: []Node{{
			URL:         CoreRepository,
			Score:       Score(1.0),
			Type:        NodeTypeCore,
			Description: "Core Utopia project repository",
		}},
		LastUpdated: now.UTC().Format(time.RFC3339),
	}
}

// Load reads known_nodes.yaml. ok is false when the file does not exist.
func Load(store *storage.Store) (kn KnownNodes, ok bool, err error) {
	ok, err = store.ReadYAML(KnownNodesFile, &kn)
	if err != nil {
		return KnownNodes{}, false, fmt.Errorf("load trust network: %w", err)
	}
	return kn, ok, nil
}

// Save writes nodes to known_nodes.yaml with last_updated set to now.
func Save(store *storage.Store, nodes []Node, now time.Time) (string, error) {
	kn := KnownNodes{Nodes: nodes, LastUpdated: now.UTC().Format(time.RFC3339)}
	if kn.Nodes == nil {
		kn.Nodes = []Node{}
	}
	path, err := store.WriteYAML(KnownNodesFile, kn)
	if err != nil {
		return "", fmt.Errorf("save trust network: %w", err)
	}
	return path, nil
}

// Merge combines existing and add, keeping one entry per URL. Entries keep
// the position of their first appearance; non-empty fields from later
// entries replace earlier values.
func Merge(existing, add []Node) []Node {
	out := make([]Node, 0, len(existing)+len(add))
	index := make(map[string]int, len(existing)+len(add))
	for _, n := range append(append([]Node{}, existing...), add...) {
		if n.URL == "" {
			continue
		}
		i, seen := index[n.URL]
		if !seen {
			index[n.URL] = len(out)
			out = append(out, n)
			continue
		}
		cur := &out[i]
		if n.Score != nil {
			cur.Score = n.Score
		}
		if n.Type != "" {
			cur.Type = n.Type
		}
		if n.Description != "" {
			cur.Description = n.Description
		}
	}
	return out
}

// ValidationError describes a validation problem with a specific entry field.
type ValidationError struct {
	URL     string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("trust node %q field %q: %s", e.URL, e.Field, e.Message)
}

// Validate checks entries for structural correctness. Returns an empty slice
// if all entries are valid.
func Validate(nodes []Node) []ValidationError {
	var errs []ValidationError
	for _, n := range nodes {
		if n.URL == "" {
			errs = append(errs, ValidationError{URL: n.URL, Field: "url", Message: "required"})
		}
		if n.Score != nil && (*n.Score < 0 || *n.Score > 1) {
			errs = append(errs, ValidationError{URL: n.URL, Field: "score", Message: fmt.Sprintf("must be within [0,1], got %g", *n.Score)})
		}
	}
	return errs
}

// Add validates nodes, merges them into the stored network and saves it.
// Returns the merged list.
func Add(store *storage.Store, nodes []Node, now time.Time) ([]Node, error) {
	if errs := Validate(nodes); len(errs) > 0 {
		return nil, errs[0]
	}
	kn, _, err := Load(store)
	if err != nil {
		return nil, err
	}
	merged := Merge(kn.Nodes, nodes)
	if _, err := Save(store, merged, now); err != nil {
		return nil, err
	}
	return merged, nil
}
