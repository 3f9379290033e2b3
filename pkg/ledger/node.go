// Package ledger records scored rollouts as content-addressed nodes.
//
// Prompts are root nodes; every scored rollout is a child of its prompt.
// A node's hash covers its content and its parent's hash, so re-recording
// the same prompt or the same scored rollout is a no-op.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Node is a single content-addressed ledger entry.
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash is nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	Content any `json:"content"`
}

type hashInput struct {
	Content any    `json:"content"`
	Parent  string `json:"parent,omitempty"`
}

// NewNode creates a node with the computed hash for content.
func NewNode(content any, parent *Node) *Node {
	n := &Node{
		Content: content,
	}

	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}

	n.Hash = n.computeHash()
	return n
}

func (n *Node) computeHash() string {
	i := &hashInput{
		Content: n.Content,
	}
	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// encoding/json sorts map keys, which keeps the encoding canonical
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
