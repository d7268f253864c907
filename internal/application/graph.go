package application

import (
	"github.com/eventmesa/regsvc/internal/domain"
)

// QuestionNode wraps one question with its resolved graph edges. Each node has
// at most one parent, so a well-formed graph is a forest.
type QuestionNode struct {
	Question domain.Question
	Parent   *QuestionNode
	Children []*QuestionNode
}

// QuestionGraph is the parent/child graph of one form's questions, keyed by
// question id. It is rebuilt from the question list on every workflow call and
// never outlives it.
type QuestionGraph struct {
	nodes map[string]*QuestionNode
	order []string
}

// BuildQuestionGraph builds the forest from a flat question list. It fails
// with *domain.InvalidQuestionGraphError when a parent reference points
// outside the list and with *domain.CyclicQuestionGraphError when following
// parent links revisits a question.
func BuildQuestionGraph(questions []domain.Question) (*QuestionGraph, error) {
	graph := &QuestionGraph{
		nodes: make(map[string]*QuestionNode, len(questions)),
		order: make([]string, 0, len(questions)),
	}

	for _, q := range questions {
		graph.nodes[q.ID] = &QuestionNode{Question: q}
		graph.order = append(graph.order, q.ID)
	}

	for _, id := range graph.order {
		node := graph.nodes[id]
		parentID := node.Question.ParentID
		if parentID == nil {
			continue
		}
		parent, ok := graph.nodes[*parentID]
		if !ok {
			return nil, &domain.InvalidQuestionGraphError{QuestionID: id, ParentID: *parentID}
		}
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}

	// Single-parent links can only form a cycle through inconsistent id
	// chains, but those have to be caught before traversal loops forever.
	for _, id := range graph.order {
		if err := detectCycle(graph.nodes[id], make(map[string]bool)); err != nil {
			return nil, err
		}
	}

	return graph, nil
}

func detectCycle(node *QuestionNode, path map[string]bool) error {
	if path[node.Question.ID] {
		return &domain.CyclicQuestionGraphError{QuestionID: node.Question.ID}
	}
	path[node.Question.ID] = true
	for _, child := range node.Children {
		if err := detectCycle(child, path); err != nil {
			return err
		}
	}
	delete(path, node.Question.ID)
	return nil
}

// Node returns the node for a question id.
func (g *QuestionGraph) Node(id string) (*QuestionNode, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Roots returns the parentless nodes in the order their questions appeared in
// the input list.
func (g *QuestionGraph) Roots() []*QuestionNode {
	roots := make([]*QuestionNode, 0, len(g.order))
	for _, id := range g.order {
		if node := g.nodes[id]; node.Parent == nil {
			roots = append(roots, node)
		}
	}
	return roots
}

func (g *QuestionGraph) Len() int {
	return len(g.nodes)
}
