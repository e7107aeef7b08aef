package commentary

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mordechaipotash/talmudic-study-app/models"
)

// LinkSource supplies raw links for a reference. *sefaria.Client satisfies it.
type LinkSource interface {
	GetLinks(ctx context.Context, ref string) ([]models.Link, error)
}

// Classified partitions a link list. Every input link lands in exactly one of
// the two slices.
type Classified struct {
	Commentary  []models.Link
	Connections []models.Link
}

// ClassifyLinks splits links into commentary and other connections. A link is
// commentary when its category is "Commentary", its type is "commentary", or
// its English collective title contains the substring "on". The substring check
// is case-sensitive and matches incidental occurrences too; see the pinning
// test before changing it.
func ClassifyLinks(links []models.Link) Classified {
	var out Classified
	for _, l := range links {
		if isCommentary(l) {
			out.Commentary = append(out.Commentary, l)
		} else {
			out.Connections = append(out.Connections, l)
		}
	}
	return out
}

func isCommentary(l models.Link) bool {
	if l.Category == "Commentary" || l.Type == "commentary" {
		return true
	}
	return l.CollectiveTitle != nil && strings.Contains(l.CollectiveTitle.En, "on")
}

// Loader resolves per-section commentary lazily and expands nested
// commentary-on-commentary graphs. Fetched section lists are memoized and
// immutable for the loader's lifetime.
type Loader struct {
	source   LinkSource
	maxDepth int

	mu   sync.RWMutex
	memo map[string][]models.Link
}

func NewLoader(source LinkSource, maxDepth int) *Loader {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &Loader{
		source:   source,
		maxDepth: maxDepth,
		memo:     make(map[string][]models.Link),
	}
}

// MaxDepth is the default presentational cap for Expand.
func (l *Loader) MaxDepth() int { return l.maxDepth }

// SectionLinks returns the commentary links for one section of a base text.
// Links are fetched for the derived section reference, not the whole text,
// because the upstream scopes links per segment.
func (l *Loader) SectionLinks(ctx context.Context, base string, index int) ([]models.Link, error) {
	if index < 0 {
		return nil, fmt.Errorf("section index must be >= 0, got %d", index)
	}
	return l.commentaryFor(ctx, models.SectionRef(base, index))
}

func (l *Loader) commentaryFor(ctx context.Context, ref string) ([]models.Link, error) {
	l.mu.RLock()
	cached, ok := l.memo[ref]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	links, err := l.source.GetLinks(ctx, ref)
	if err != nil {
		return nil, err
	}
	commentary := ClassifyLinks(links).Commentary

	l.mu.Lock()
	// First writer wins; the entry is immutable afterwards.
	if existing, ok := l.memo[ref]; ok {
		commentary = existing
	} else {
		l.memo[ref] = commentary
	}
	l.mu.Unlock()
	return commentary, nil
}

// Node is one vertex of the commentary graph rooted at a reference. Children
// are that reference's commentaries, each expandable in turn.
type Node struct {
	Ref      string        `json:"ref"`
	Link     *models.Link  `json:"link,omitempty"`
	Children []*Node       `json:"children,omitempty"`
	Links    []models.Link `json:"links,omitempty"`
}

// Expand builds the commentary graph below ref, descending at most depth
// levels. Node identity is the reference string; a visited set guards against
// cycles in the upstream link data, which are not assumed impossible.
func (l *Loader) Expand(ctx context.Context, ref string, depth int) (*Node, error) {
	if depth <= 0 || depth > l.maxDepth {
		depth = l.maxDepth
	}
	visited := map[string]bool{}
	return l.expand(ctx, ref, nil, depth, visited)
}

func (l *Loader) expand(ctx context.Context, ref string, via *models.Link, depth int, visited map[string]bool) (*Node, error) {
	node := &Node{Ref: ref, Link: via}
	if depth <= 0 || visited[ref] {
		return node, nil
	}
	visited[ref] = true

	links, err := l.commentaryFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	node.Links = links

	for i := range links {
		link := links[i]
		child, err := l.expand(ctx, link.Ref, &link, depth-1, visited)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
