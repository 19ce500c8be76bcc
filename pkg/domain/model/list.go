package model

import (
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// ListNames holds the board list name for each workflow stage. ReadyForQA and QualityAssurance are
// optional; leaving both empty selects the simple workflow.
type ListNames struct {
	Backlog          string `yaml:"backlog" json:"backlog"`
	Selected         string `yaml:"selected" json:"selected"`
	InProgress       string `yaml:"in_progress" json:"in_progress"`
	ReadyForQA       string `yaml:"ready_for_qa,omitempty" json:"ready_for_qa,omitempty"`
	QualityAssurance string `yaml:"quality_assurance,omitempty" json:"quality_assurance,omitempty"`
	Completed        string `yaml:"completed" json:"completed"`
}

func DefaultListNames() ListNames {
	return ListNames{
		Backlog:          "Backlog",
		Selected:         "Selected",
		InProgress:       "In Progress",
		ReadyForQA:       "Ready for QA",
		QualityAssurance: "Quality Assurance",
		Completed:        "Completed",
	}
}

// Extended reports whether the pull-request review stages are configured.
func (x ListNames) Extended() bool {
	return x.ReadyForQA != "" && x.QualityAssurance != ""
}

// Ordered returns list names in board order.
func (x ListNames) Ordered() []string {
	names := []string{x.Backlog, x.Selected, x.InProgress}
	if x.Extended() {
		names = append(names, x.ReadyForQA, x.QualityAssurance)
	}
	return append(names, x.Completed)
}

func (x ListNames) Validate() error {
	required := map[string]string{
		"backlog":     x.Backlog,
		"selected":    x.Selected,
		"in_progress": x.InProgress,
		"completed":   x.Completed,
	}
	for key, name := range required {
		if name == "" {
			return goerr.Wrap(types.ErrInvalidConfig, "list name is required", goerr.V("key", key))
		}
	}
	if (x.ReadyForQA == "") != (x.QualityAssurance == "") {
		return goerr.Wrap(types.ErrInvalidConfig, "ready_for_qa and quality_assurance must be set together",
			goerr.V("ready_for_qa", x.ReadyForQA),
			goerr.V("quality_assurance", x.QualityAssurance),
		)
	}

	seen := make(map[string]struct{})
	for _, name := range x.Ordered() {
		if _, ok := seen[name]; ok {
			return goerr.Wrap(types.ErrInvalidConfig, "duplicated list name", goerr.V("name", name))
		}
		seen[name] = struct{}{}
	}
	return nil
}
