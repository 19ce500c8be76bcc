package model

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

const DefaultVisibility = "private"

// RepositoryConfig is one GitHub repository mirrored onto its own board.
type RepositoryConfig struct {
	Owner      string `yaml:"owner" json:"owner"`
	Name       string `yaml:"name" json:"name"`
	BoardName  string `yaml:"board_name,omitempty" json:"board_name,omitempty"`
	BoardSlug  string `yaml:"board_slug,omitempty" json:"board_slug,omitempty"`
	Visibility string `yaml:"visibility,omitempty" json:"visibility,omitempty"`
}

func (x RepositoryConfig) ID() string {
	return x.Owner + "/" + x.Name
}

func (x RepositoryConfig) DisplayName() string {
	if x.BoardName != "" {
		return x.BoardName
	}
	return x.ID()
}

var ptnSlugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func (x RepositoryConfig) Slug() string {
	if x.BoardSlug != "" {
		return x.BoardSlug
	}
	slug := ptnSlugInvalid.ReplaceAllString(strings.ToLower(x.DisplayName()), "-")
	return strings.Trim(slug, "-")
}

func (x RepositoryConfig) BoardVisibility() string {
	if x.Visibility != "" {
		return x.Visibility
	}
	return DefaultVisibility
}

func (x RepositoryConfig) Validate() error {
	if x.Owner == "" {
		return goerr.Wrap(types.ErrInvalidConfig, "repository owner is empty", goerr.V("name", x.Name))
	}
	if x.Name == "" {
		return goerr.Wrap(types.ErrInvalidConfig, "repository name is empty", goerr.V("owner", x.Owner))
	}
	if strings.Contains(x.Owner, "/") || strings.Contains(x.Name, "/") {
		return goerr.Wrap(types.ErrInvalidConfig, "repository owner and name must not contain '/'",
			goerr.V("owner", x.Owner),
			goerr.V("name", x.Name),
		)
	}
	return nil
}

// RepoFilter narrows a cycle to a single repository. A nil filter means every configured repository.
type RepoFilter struct {
	Owner string
	Name  string
}

func (x *RepoFilter) Match(repo RepositoryConfig) bool {
	if x == nil {
		return true
	}
	return strings.EqualFold(x.Owner, repo.Owner) && strings.EqualFold(x.Name, repo.Name)
}
