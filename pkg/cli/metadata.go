package cli

import (
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

// DetectRepository builds a filter from the origin remote of the git repository at dir.
func DetectRepository(dir string) (*model.RepoFilter, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open git repository", goerr.V("dir", dir))
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get remote origin")
	}
	if len(remote.Config().URLs) == 0 {
		return nil, goerr.New("no remote URL found")
	}

	return ParseRemoteURL(remote.Config().URLs[0])
}

// ParseRemoteURL accepts both git@github.com:owner/repo.git and https://github.com/owner/repo.git.
func ParseRemoteURL(url string) (*model.RepoFilter, error) {
	var path string
	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		path = strings.TrimPrefix(url, "git@github.com:")
	case strings.Contains(url, "github.com/"):
		parts := strings.SplitN(url, "github.com/", 2)
		path = parts[1]
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	ownerRepo := strings.Split(path, "/")
	if len(ownerRepo) != 2 || ownerRepo[0] == "" || ownerRepo[1] == "" {
		return nil, goerr.New("failed to parse GitHub owner/repo from git remote URL", goerr.V("url", url))
	}

	return &model.RepoFilter{Owner: ownerRepo[0], Name: ownerRepo[1]}, nil
}
