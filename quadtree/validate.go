package quadtree

import "github.com/aukilabs/go-tooling/pkg/errors"

// Validate walks the whole tree and checks that every entity is held by
// exactly one node, that the reverse lookup agrees with the nodes and that
// every node but the root encloses the entities it holds. It is meant for
// tests and smoke tests.
func (t *Tree[E]) Validate() error {
	seen := make(map[E]struct{}, len(t.location))

	nodes, err := t.root.validate(t, seen)
	if err != nil {
		return err
	}

	if len(seen) != len(t.location) {
		return errors.New("reverse lookup holds entities missing from nodes").
			WithType(ErrTypeInvariantViolation).
			WithTag("held", len(seen)).
			WithTag("indexed", len(t.location))
	}

	if nodes != t.nodes {
		return errors.New("node count mismatch").
			WithType(ErrTypeInvariantViolation).
			WithTag("walked", nodes).
			WithTag("counted", t.nodes)
	}
	return nil
}

func (n *node[E]) validate(t *Tree[E], seen map[E]struct{}) (int, error) {
	if n.level > t.conf.MaxDepth {
		return 0, errors.New("node deeper than max depth").
			WithType(ErrTypeInvariantViolation).
			WithTag("level", n.level).
			WithTag("bounds", n.bounds)
	}

	for _, e := range n.entities {
		if _, ok := seen[e]; ok {
			return 0, errors.New("entity held twice").
				WithType(ErrTypeInvariantViolation).
				WithTag("bounds", e.Bounds())
		}
		seen[e] = struct{}{}

		if t.location[e] != n {
			return 0, errors.New("reverse lookup points to another node").
				WithType(ErrTypeInvariantViolation).
				WithTag("level", n.level).
				WithTag("bounds", n.bounds)
		}

		if n != t.root && !n.bounds.Encloses(e.Bounds()) {
			return 0, errors.New("entity sticks out of its node").
				WithType(ErrTypeInvariantViolation).
				WithTag("level", n.level).
				WithTag("bounds", n.bounds).
				WithTag("entity_bounds", e.Bounds())
		}
	}

	count := 1
	if n.isLeaf() {
		for _, c := range n.children {
			if c != nil {
				return 0, errors.New("partially subdivided node").
					WithType(ErrTypeInvariantViolation).
					WithTag("level", n.level).
					WithTag("bounds", n.bounds)
			}
		}
		return count, nil
	}

	for _, c := range n.children {
		if c == nil {
			return 0, errors.New("partially subdivided node").
				WithType(ErrTypeInvariantViolation).
				WithTag("level", n.level).
				WithTag("bounds", n.bounds)
		}

		if c.level != n.level+1 || !n.bounds.Encloses(c.bounds) {
			return 0, errors.New("child does not nest in its parent").
				WithType(ErrTypeInvariantViolation).
				WithTag("level", c.level).
				WithTag("bounds", c.bounds)
		}

		sub, err := c.validate(t, seen)
		if err != nil {
			return 0, err
		}
		count += sub
	}
	return count, nil
}
