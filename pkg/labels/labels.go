// Package labels makes colliding display labels distinguishable.
//
// Two modules named add_test.py in different directories would otherwise be
// shown identically. Colliding labels get the shortest run of parent id
// segments that tells them apart: "add_test.py (unit)", "add_test.py (e2e)".
package labels

import (
	"fmt"
	"strings"

	"github.com/specvital/pyadapter/pkg/domain"
)

// Item is an id/label pair. Disambiguation applies only when every item's id
// ends with its label.
type Item struct {
	ID    string
	Label string
}

type record struct {
	id     string
	label  string
	prefix string
}

func (r *record) key(sep string) string {
	if r.prefix == "" {
		return r.label
	}
	return r.prefix + sep + r.label
}

// Prefixes returns the distinguishing prefix for every item whose label
// collides with another item, keyed by id. Items without a collision are
// absent. The result is nil when some id does not end with its label.
//
// Groups whose ids run out of segments before they become distinct keep
// whatever prefix they reached.
func Prefixes(items []Item, sep string) map[string]string {
	for _, it := range items {
		if !strings.HasSuffix(it.ID, it.Label) {
			return nil
		}
	}

	all := make([]*record, len(items))
	for i, it := range items {
		all[i] = &record{id: it.ID, label: it.Label}
	}

	prefixes := make(map[string]string)
	work := [][]*record{all}
	for len(work) > 0 {
		group := work[len(work)-1]
		work = work[:len(work)-1]

		for _, collision := range collisions(group, sep) {
			extended := false
			for _, r := range collision {
				if seg := parentSegment(r, sep); seg != "" {
					if r.prefix == "" {
						r.prefix = seg
					} else {
						r.prefix = seg + sep + r.prefix
					}
					extended = true
				}
				prefixes[r.id] = r.prefix
			}
			if extended {
				work = append(work, collision)
			}
		}
	}
	return prefixes
}

// collisions groups records by effective label and returns the groups with
// more than one member, in first-seen order.
func collisions(records []*record, sep string) [][]*record {
	var order []string
	groups := make(map[string][]*record)
	for _, r := range records {
		k := r.key(sep)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var out [][]*record
	for _, k := range order {
		if len(groups[k]) > 1 {
			out = append(out, groups[k])
		}
	}
	return out
}

// parentSegment returns the id segment just before the record's effective
// label, or "" when the id is exhausted.
func parentSegment(r *record, sep string) string {
	suffix := sep + r.key(sep)
	if !strings.HasSuffix(r.id, suffix) {
		return ""
	}
	head := r.id[:len(r.id)-len(suffix)]
	if i := strings.LastIndex(head, sep); i >= 0 {
		return head[i+len(sep):]
	}
	return head
}

// Apply returns a copy of items with colliding labels rendered as
// "label (prefix)".
func Apply(items []Item, sep string) []Item {
	prefixes := Prefixes(items, sep)
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if p := prefixes[it.ID]; p != "" {
			out[i].Label = render(it.Label, p)
		}
	}
	return out
}

// EnsureDifferent relabels colliding nodes in place.
func EnsureDifferent(nodes []*domain.Node, sep string) {
	items := make([]Item, len(nodes))
	for i, n := range nodes {
		items[i] = Item{ID: n.ID, Label: n.Label}
	}
	prefixes := Prefixes(items, sep)
	for _, n := range nodes {
		if p := prefixes[n.ID]; p != "" {
			n.Label = render(n.Label, p)
		}
	}
}

func render(label, prefix string) string {
	return fmt.Sprintf("%s (%s)", label, prefix)
}
