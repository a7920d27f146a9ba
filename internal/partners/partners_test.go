package partners

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedDefault(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	def := r.Default()
	require.Equal(t, "queen-creek-chamber", def.ID)
	require.Equal(t, "queenCreekChamber", def.Ref)
	require.Equal(t, "queen-creek-chamber", def.Slug)
	require.Equal(t, 5, def.Features.JobPosts)
	require.True(t, def.Features.AICoach)

	require.Equal(t, []string{"queencreekchamber.com", "moilapp.com"}, r.TeamDomains())
}

func TestRegistry_ForEmail(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "queen-creek-chamber", r.ForEmail("owner@QueenCreekChamber.com").ID)
	require.Equal(t, r.Default(), r.ForEmail("someone@gmail.com"))
	require.Equal(t, r.Default(), r.ForEmail("broken"))
}

func TestTeamDomain_DefaultTeamName(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	d, ok := r.TeamDomain("moilapp.com")
	require.True(t, ok)
	require.Equal(t, "Ada's Moil Team", d.DefaultTeamName("Ada"))

	d, ok = r.TeamDomain("QUEENCREEKCHAMBER.COM")
	require.True(t, ok)
	require.Equal(t, "Queen Creek Chamber Team", d.DefaultTeamName(""))

	_, ok = r.TeamDomain("gmail.com")
	require.False(t, ok)
}

func TestLoad_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partners.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
partners:
  - id: mesa-edc
    name: Mesa EDC
    program_name: Mesa Business Program
    domain: MesaEDC.org
    ref: mesaEdc
    slug: mesa-edc
allowed_team_domains:
  - domain: mesaedc.org
`), 0o600))

	r, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "mesa-edc", r.Default().ID)
	require.Len(t, r.Programs(), 1)

	p, ok := r.ByDomain("mesaedc.org")
	require.True(t, ok)
	require.Equal(t, "Mesa Business Program", p.ProgramName)

	d, ok := r.TeamDomain("mesaedc.org")
	require.True(t, ok)
	require.Equal(t, "mesaedc.org", d.Label)

	_, ok = r.TeamDomain("moilapp.com")
	require.False(t, ok)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestNewRegistry_RequiresPrograms(t *testing.T) {
	_, err := newRegistry(registryFile{})
	require.ErrorIs(t, err, ErrNoPrograms)

	_, err = newRegistry(registryFile{Partners: []Program{{ID: "x"}}})
	require.Error(t, err)
}
