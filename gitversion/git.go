package gitversion

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepository reads the commit graph of a Git repository through go-git.
type GitRepository struct {
	repo *git.Repository

	tagsOnce sync.Once
	tags     map[plumbing.Hash][]string
	tagsErr  error
}

// Open opens the Git repository containing path.
func Open(path string) (*GitRepository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrRepositoryUnavailable, path, err)
	}
	return NewRepository(repo), nil
}

// NewRepository wraps an already opened go-git repository.
func NewRepository(repo *git.Repository) *GitRepository {
	return &GitRepository{repo: repo}
}

func (g *GitRepository) Tip() (*Commit, error) {
	ref, err := g.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving HEAD: %w", ErrRepositoryUnavailable, err)
	}
	c, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: reading HEAD commit: %w", ErrRepositoryUnavailable, err)
	}
	return toCommit(c), nil
}

func (g *GitRepository) Parents(c *Commit) ([]*Commit, error) {
	obj, err := g.repo.CommitObject(plumbing.NewHash(c.ID))
	if err != nil {
		return nil, fmt.Errorf("getting commit: %w", err)
	}

	parents := make([]*Commit, 0, len(obj.ParentHashes))
	for _, h := range obj.ParentHashes {
		p, err := g.repo.CommitObject(h)
		if err != nil {
			return nil, fmt.Errorf("getting parent %s: %w", h, err)
		}
		parents = append(parents, toCommit(p))
	}
	return parents, nil
}

func (g *GitRepository) Tags(c *Commit) ([]string, error) {
	g.tagsOnce.Do(func() {
		g.tags, g.tagsErr = g.indexTags()
	})
	if g.tagsErr != nil {
		return nil, g.tagsErr
	}
	return g.tags[plumbing.NewHash(c.ID)], nil
}

// indexTags maps commit hashes to the short names of the tags pointing at
// them. Annotated tags are peeled to their commit, through any chain of tags
// of tags; tags of other objects are ignored.
func (g *GitRepository) indexTags() (map[plumbing.Hash][]string, error) {
	iter, err := g.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	index := make(map[plumbing.Hash][]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()

		tag, err := g.repo.TagObject(target)
		switch {
		case err == nil:
			commit, ok, err := g.peel(tag)
			if err != nil {
				return fmt.Errorf("peeling tag %s: %w", ref.Name().Short(), err)
			}
			if !ok {
				return nil
			}
			target = commit
		case !errors.Is(err, plumbing.ErrObjectNotFound):
			return fmt.Errorf("reading tag %s: %w", ref.Name().Short(), err)
		}

		index[target] = append(index[target], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

// peel follows tag to the commit it finally points at. The second result is
// false when the chain ends at a tree or blob.
func (g *GitRepository) peel(tag *object.Tag) (plumbing.Hash, bool, error) {
	for tag.TargetType == plumbing.TagObject {
		next, err := g.repo.TagObject(tag.Target)
		if err != nil {
			return plumbing.ZeroHash, false, err
		}
		tag = next
	}
	if tag.TargetType != plumbing.CommitObject {
		return plumbing.ZeroHash, false, nil
	}
	return tag.Target, true, nil
}

func toCommit(c *object.Commit) *Commit {
	return &Commit{
		ID:   c.Hash.String(),
		When: c.Committer.When,
	}
}
