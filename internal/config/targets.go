package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TargetsConfig is the top-level structure parsed from the targets YAML.
type TargetsConfig struct {
	Targets []Target `yaml:"targets"`
}

// Target describes one publish destination: where the browser agent logs
// in and which selectors drive each script step.
type Target struct {
	Name        string    `yaml:"name"`
	BaseURL     string    `yaml:"base_url"`
	LoginPath   string    `yaml:"login_path"`
	Username    string    `yaml:"username"`
	PasswordEnv string    `yaml:"password_env"`
	Taxonomy    []string  `yaml:"taxonomy"`
	NavTimeout  string    `yaml:"nav_timeout"`
	Selectors   Selectors `yaml:"selectors"`
}

// Selectors holds the CSS selectors for the target's login and editor
// UI. Empty fields fall back to the browser agent's defaults.
type Selectors struct {
	LoginUser       string `yaml:"login_user"`
	LoginPassword   string `yaml:"login_password"`
	LoginSubmit     string `yaml:"login_submit"`
	NewEntry        string `yaml:"new_entry"`
	Title           string `yaml:"title"`
	Subtitle        string `yaml:"subtitle"`
	Body            string `yaml:"body"`
	MetaDescription string `yaml:"meta_description"`
	Keywords        string `yaml:"keywords"`
	MediaUpload     string `yaml:"media_upload"`
	MediaAlt        string `yaml:"media_alt"`
	TaxonomyPicker  string `yaml:"taxonomy_picker"`
	Submit          string `yaml:"submit"`
	ErrorBanner     string `yaml:"error_banner"`
	PublishedLink   string `yaml:"published_link"`
}

// ValidationError represents a single validation issue with a targets file.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadTargets reads and parses the targets YAML file.
func LoadTargets(path string) (*TargetsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file %s: %w", path, err)
	}

	var cfg TargetsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse targets YAML: %w", err)
	}
	return &cfg, nil
}

// ValidateTargets checks a TargetsConfig for structural errors.
// It returns a slice of all validation errors found (empty if valid).
func ValidateTargets(cfg *TargetsConfig) []ValidationError {
	var errs []ValidationError

	if len(cfg.Targets) == 0 {
		errs = append(errs, ValidationError{Field: "targets", Message: "at least one target is required"})
	}

	names := make(map[string]bool)
	for i, t := range cfg.Targets {
		prefix := fmt.Sprintf("targets[%d]", i)
		if t.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
			continue
		}
		if names[t.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate target name %q", t.Name),
			})
		}
		names[t.Name] = true

		if t.BaseURL == "" {
			errs = append(errs, ValidationError{Field: prefix + ".base_url", Message: "is required"})
		}
		if t.NavTimeout != "" {
			if _, err := time.ParseDuration(t.NavTimeout); err != nil {
				errs = append(errs, ValidationError{
					Field:   prefix + ".nav_timeout",
					Message: fmt.Sprintf("%q is not a valid duration", t.NavTimeout),
				})
			}
		}
		if t.Selectors.Title == "" {
			errs = append(errs, ValidationError{Field: prefix + ".selectors.title", Message: "is required"})
		}
		if t.Selectors.Body == "" {
			errs = append(errs, ValidationError{Field: prefix + ".selectors.body", Message: "is required"})
		}
		if t.Selectors.Submit == "" {
			errs = append(errs, ValidationError{Field: prefix + ".selectors.submit", Message: "is required"})
		}
	}

	return errs
}

// Get returns the named target, or nil if it does not exist.
func (c *TargetsConfig) Get(name string) *Target {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i]
		}
	}
	return nil
}

// NavTimeoutOrDefault returns the parsed navigation timeout, defaulting to 30s.
func (t *Target) NavTimeoutOrDefault() time.Duration {
	if t.NavTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(t.NavTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
