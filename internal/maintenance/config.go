package maintenance

import (
	"errors"
	"fmt"

	"github.com/rpggio/tasktrellis/internal/domain/task"
)

// OrphanPolicy decides what happens to a subtask no parent lists.
type OrphanPolicy string

const (
	OrphanDelete   OrphanPolicy = "delete"
	OrphanConvert  OrphanPolicy = "convert"
	OrphanReassign OrphanPolicy = "reassign"
)

// QualityAction decides what happens to a task below the quality bar.
type QualityAction string

const (
	QualityFlag   QualityAction = "flag"
	QualityFix    QualityAction = "fix"
	QualityDelete QualityAction = "delete"
)

type MetadataConfig struct {
	Enabled bool `yaml:"enabled"`
}

type OrphanConfig struct {
	Enabled bool         `yaml:"enabled"`
	Policy  OrphanPolicy `yaml:"policy"`
	// TargetParent is preferred for reassignment when it exists and is top level.
	TargetParent int `yaml:"target_parent"`
}

type QualityConfig struct {
	Enabled              bool          `yaml:"enabled"`
	MinTitleLength       int           `yaml:"min_title_length"`
	MinDescriptionLength int           `yaml:"min_description_length"`
	Action               QualityAction `yaml:"action"`
}

type DuplicateConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
	// MaxTasks caps how many tasks, in file order, are compared. 0 means all.
	MaxTasks int `yaml:"max_tasks"`
}

type RenumberConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config controls one project's maintenance passes.
type Config struct {
	Enabled             bool            `yaml:"enabled"`
	CompletionThreshold int             `yaml:"completion_threshold"`
	Metadata            MetadataConfig  `yaml:"metadata"`
	Orphans             OrphanConfig    `yaml:"orphans"`
	Quality             QualityConfig   `yaml:"quality"`
	Duplicates          DuplicateConfig `yaml:"duplicates"`
	Renumber            RenumberConfig  `yaml:"renumber"`
}

// DefaultConfig returns the stock pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		CompletionThreshold: 100,
		Metadata:            MetadataConfig{Enabled: true},
		Orphans:             OrphanConfig{Enabled: true, Policy: OrphanReassign},
		Quality: QualityConfig{
			Enabled:              false,
			MinTitleLength:       5,
			MinDescriptionLength: 10,
			Action:               QualityFlag,
		},
		Duplicates: DuplicateConfig{Enabled: true, Threshold: 0.85, MaxTasks: 100},
		Renumber:   RenumberConfig{Enabled: true},
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.CompletionThreshold < 0 || c.CompletionThreshold > 100 {
		errs = append(errs, fmt.Errorf("completion_threshold must be between 0 and 100, got %d", c.CompletionThreshold))
	}
	switch c.Orphans.Policy {
	case OrphanDelete, OrphanConvert, OrphanReassign:
	default:
		errs = append(errs, fmt.Errorf("orphans.policy: unknown policy %q", c.Orphans.Policy))
	}
	if c.Orphans.TargetParent < 0 {
		errs = append(errs, errors.New("orphans.target_parent must not be negative"))
	}
	switch c.Quality.Action {
	case QualityFlag, QualityFix, QualityDelete:
	default:
		errs = append(errs, fmt.Errorf("quality.action: unknown action %q", c.Quality.Action))
	}
	if c.Quality.MinTitleLength < 0 || c.Quality.MinTitleLength > task.MaxTitleLength {
		errs = append(errs, fmt.Errorf("quality.min_title_length must be between 0 and %d", task.MaxTitleLength))
	}
	if c.Quality.MinDescriptionLength < 0 || c.Quality.MinDescriptionLength > task.MaxDescriptionLength {
		errs = append(errs, fmt.Errorf("quality.min_description_length must be between 0 and %d", task.MaxDescriptionLength))
	}
	if c.Duplicates.Threshold < 0 || c.Duplicates.Threshold > 1 {
		errs = append(errs, fmt.Errorf("duplicates.threshold must be between 0 and 1, got %v", c.Duplicates.Threshold))
	}
	if c.Duplicates.MaxTasks < 0 {
		errs = append(errs, errors.New("duplicates.max_tasks must not be negative"))
	}
	return errors.Join(errs...)
}

// Settings holds the global configuration and per-project replacements.
type Settings struct {
	Default  Config
	Projects map[string]Config
}

// DefaultSettings uses DefaultConfig for every project.
func DefaultSettings() Settings {
	return Settings{Default: DefaultConfig()}
}

// For returns the configuration that applies to projectID.
func (s Settings) For(projectID string) Config {
	if c, ok := s.Projects[projectID]; ok {
		return c
	}
	return s.Default
}

// Validate checks the global and every project configuration.
func (s Settings) Validate() error {
	var errs []error
	if err := s.Default.Validate(); err != nil {
		errs = append(errs, err)
	}
	for id, c := range s.Projects {
		if err := task.ValidateProjectID(id); err != nil {
			errs = append(errs, fmt.Errorf("project %q: %w", id, err))
			continue
		}
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
