package model

import (
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultSyncIntervalMinutes = 15
	DefaultIssueDelay          = 500 * time.Millisecond
	DefaultFallbackLabel       = "github"
)

// SyncConfig is the hot-reloadable part of the configuration.
type SyncConfig struct {
	Workspace           types.WorkspaceID  `yaml:"workspace"`
	SyncIntervalMinutes int                `yaml:"sync_interval_minutes"`
	IssueDelayMS        int                `yaml:"issue_delay_ms"`
	FallbackLabel       string             `yaml:"fallback_label"`
	CommentExcerpts     int                `yaml:"comment_excerpts"`
	ListNames           ListNames          `yaml:"list_names"`
	Repositories        []RepositoryConfig `yaml:"repositories"`
}

func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		IssueDelayMS:        int(DefaultIssueDelay / time.Millisecond),
		FallbackLabel:       DefaultFallbackLabel,
		ListNames:           DefaultListNames(),
	}
}

func (x *SyncConfig) SyncInterval() time.Duration {
	return time.Duration(x.SyncIntervalMinutes) * time.Minute
}

func (x *SyncConfig) IssueDelay() time.Duration {
	return time.Duration(x.IssueDelayMS) * time.Millisecond
}

func (x *SyncConfig) Validate() error {
	if x.Workspace == "" {
		return goerr.Wrap(types.ErrInvalidConfig, "workspace is required")
	}
	if x.SyncIntervalMinutes <= 0 {
		return goerr.Wrap(types.ErrInvalidConfig, "sync_interval_minutes must be positive",
			goerr.V("value", x.SyncIntervalMinutes))
	}
	if x.IssueDelayMS < 0 {
		return goerr.Wrap(types.ErrInvalidConfig, "issue_delay_ms must not be negative",
			goerr.V("value", x.IssueDelayMS))
	}
	if x.CommentExcerpts < 0 {
		return goerr.Wrap(types.ErrInvalidConfig, "comment_excerpts must not be negative",
			goerr.V("value", x.CommentExcerpts))
	}
	if err := x.ListNames.Validate(); err != nil {
		return err
	}
	if len(x.Repositories) == 0 {
		return goerr.Wrap(types.ErrInvalidConfig, "at least one repository is required")
	}

	seen := make(map[string]struct{})
	for _, repo := range x.Repositories {
		if err := repo.Validate(); err != nil {
			return err
		}
		if _, ok := seen[repo.ID()]; ok {
			return goerr.Wrap(types.ErrInvalidConfig, "duplicated repository", goerr.V("repo", repo.ID()))
		}
		seen[repo.ID()] = struct{}{}
	}
	return nil
}
