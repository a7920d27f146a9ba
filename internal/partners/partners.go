// Package partners holds the registry of partner programs: branding used in
// emails and exports, and the email domains allowed to create teams.
package partners

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/aliuyar1234/seatdesk/internal/validation"
	"github.com/spf13/viper"
)

//go:embed partners.yaml
var defaultRegistry []byte

var ErrNoPrograms = errors.New("partner registry has no programs")

type Features struct {
	JobPosts          int  `mapstructure:"job_posts" json:"job_posts"`
	AICoach           bool `mapstructure:"ai_coach" json:"ai_coach"`
	MarketResearch    bool `mapstructure:"market_research" json:"market_research"`
	BusinessTemplates bool `mapstructure:"business_templates" json:"business_templates"`
}

// Program is one partner economic development organization.
type Program struct {
	ID              string   `mapstructure:"id" json:"id"`
	Name            string   `mapstructure:"name" json:"name"`
	FullName        string   `mapstructure:"full_name" json:"full_name"`
	ProgramName     string   `mapstructure:"program_name" json:"program_name"`
	Domain          string   `mapstructure:"domain" json:"domain"`
	City            string   `mapstructure:"city" json:"city"`
	State           string   `mapstructure:"state" json:"state"`
	Country         string   `mapstructure:"country" json:"country"`
	PrimaryColor    string   `mapstructure:"primary_color" json:"primary_color"`
	AccentColor     string   `mapstructure:"accent_color" json:"accent_color"`
	Logo            string   `mapstructure:"logo" json:"logo,omitempty"`
	LogoInitial     string   `mapstructure:"logo_initial" json:"logo_initial"`
	SupportEmail    string   `mapstructure:"support_email" json:"support_email"`
	LicenseDuration string   `mapstructure:"license_duration" json:"license_duration"`
	Ref             string   `mapstructure:"ref" json:"ref"`
	Slug            string   `mapstructure:"slug" json:"slug"`
	Features        Features `mapstructure:"features" json:"features"`
}

// TeamDomain is an email domain whose admins may create teams.
type TeamDomain struct {
	Domain string `mapstructure:"domain"`
	Label  string `mapstructure:"label"`
}

type registryFile struct {
	Partners           []Program    `mapstructure:"partners"`
	AllowedTeamDomains []TeamDomain `mapstructure:"allowed_team_domains"`
}

// Registry is immutable after Load.
type Registry struct {
	programs    []Program
	teamDomains []TeamDomain
}

// Load reads the embedded registry and, when path is set, merges the file at
// path over it. Lists in the override replace the embedded ones.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultRegistry)); err != nil {
		return nil, fmt.Errorf("failed to read embedded partner registry: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read partner registry %s: %w", path, err)
		}
	}

	var rf registryFile
	if err := v.Unmarshal(&rf); err != nil {
		return nil, fmt.Errorf("failed to decode partner registry: %w", err)
	}

	return newRegistry(rf)
}

func newRegistry(rf registryFile) (*Registry, error) {
	if len(rf.Partners) == 0 {
		return nil, ErrNoPrograms
	}

	r := &Registry{}
	for i, p := range rf.Partners {
		p.Domain = strings.ToLower(strings.TrimSpace(p.Domain))
		if p.ID == "" || p.Domain == "" || p.ProgramName == "" {
			return nil, fmt.Errorf("partner %d: id, domain and program_name are required", i)
		}
		r.programs = append(r.programs, p)
	}
	for _, d := range rf.AllowedTeamDomains {
		d.Domain = strings.ToLower(strings.TrimSpace(d.Domain))
		if d.Domain == "" {
			continue
		}
		if d.Label == "" {
			d.Label = d.Domain
		}
		r.teamDomains = append(r.teamDomains, d)
	}
	return r, nil
}

// Default is the first program in the registry.
func (r *Registry) Default() Program {
	return r.programs[0]
}

func (r *Registry) Programs() []Program {
	out := make([]Program, len(r.programs))
	copy(out, r.programs)
	return out
}

func (r *Registry) ByID(id string) (Program, bool) {
	for _, p := range r.programs {
		if p.ID == id {
			return p, true
		}
	}
	return Program{}, false
}

func (r *Registry) ByDomain(domain string) (Program, bool) {
	domain = strings.ToLower(domain)
	for _, p := range r.programs {
		if p.Domain == domain {
			return p, true
		}
	}
	return Program{}, false
}

// ForEmail returns the program whose domain matches the email, or the
// default program.
func (r *Registry) ForEmail(email string) Program {
	if p, ok := r.ByDomain(validation.EmailDomain(email)); ok {
		return p
	}
	return r.Default()
}

// TeamDomain reports whether admins on domain may create teams.
func (r *Registry) TeamDomain(domain string) (TeamDomain, bool) {
	domain = strings.ToLower(domain)
	for _, d := range r.teamDomains {
		if d.Domain == domain {
			return d, true
		}
	}
	return TeamDomain{}, false
}

// TeamDomains lists the allowed domains in registry order.
func (r *Registry) TeamDomains() []string {
	out := make([]string, 0, len(r.teamDomains))
	for _, d := range r.teamDomains {
		out = append(out, d.Domain)
	}
	return out
}

// DefaultTeamName is used when a team is created without a name.
func (d TeamDomain) DefaultTeamName(firstName string) string {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		return d.Label + " Team"
	}
	return fmt.Sprintf("%s's %s Team", firstName, d.Label)
}
