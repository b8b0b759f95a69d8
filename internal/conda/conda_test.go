package conda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/remotetest"
)

func TestParseEnvs(t *testing.T) {
	out := `# conda environments:
#
base                  *  /opt/conda
torch                    /opt/conda/envs/torch

                         /scratch/alice/envs/scratchenv
`
	assert.Equal(t, []Env{
		{Name: "base", Path: "/opt/conda", Active: true},
		{Name: "torch", Path: "/opt/conda/envs/torch"},
		{Name: "scratchenv", Path: "/scratch/alice/envs/scratchenv"},
	}, ParseEnvs(out))
	assert.Empty(t, ParseEnvs(""))
}

func TestParsePackages(t *testing.T) {
	out := `Package            Version
------------------ -----------
numpy              1.26.4
torch              2.3.0+cu121
broken
`
	assert.Equal(t, []Package{
		{Name: "numpy", Version: "1.26.4"},
		{Name: "torch", Version: "2.3.0+cu121"},
	}, ParsePackages(out))
	assert.Empty(t, ParsePackages("WARNING: pip is being invoked by an old script wrapper"))
}

func TestCommands(t *testing.T) {
	cmd, err := CreateCommand("torch", "3.11")
	require.NoError(t, err)
	assert.Equal(t, "conda create -n torch python=3.11 -y", cmd)

	cmd, err = CreateCommand("bare", "")
	require.NoError(t, err)
	assert.Equal(t, "conda create -n bare -y", cmd)

	_, err = CreateCommand("torch", "3.11; rm -rf ~")
	require.Error(t, err)

	cmd, err = RemoveCommand("torch")
	require.NoError(t, err)
	assert.Equal(t, "conda env remove -n torch -y", cmd)

	cmd, err = InstallCommand("torch", "numpy==1.26.4", "transformers[torch]", "scipy>=1.10")
	require.NoError(t, err)
	assert.Equal(t, `conda run -n torch pip install numpy==1.26.4 transformers\[torch] scipy\>=1.10`, cmd)

	cmd, err = UninstallCommand("torch", "numpy")
	require.NoError(t, err)
	assert.Equal(t, "conda run -n torch pip uninstall -y numpy", cmd)

	_, err = InstallCommand("torch")
	require.Error(t, err)
	_, err = InstallCommand("torch", "numpy && reboot")
	require.Error(t, err)
	_, err = ListPackagesCommand("my env")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestManager(t *testing.T) {
	shell := remotetest.StaticShell(map[string]remote.Result{
		"conda env list":                 {Stdout: "base * /opt/conda\n"},
		"conda run -n torch pip list":    {Stdout: "Package Version\n------- -------\nnumpy 1.26.4\n"},
		"conda create -n torch":          {},
		"conda env remove -n missing":    {Code: 1, Stderr: "EnvironmentLocationNotFound: Not a conda environment"},
		"conda run -n torch pip install": {},
	})
	m := NewManager(shell)

	envs, err := m.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []Env{{Name: "base", Path: "/opt/conda", Active: true}}, envs)

	pkgs, err := m.Packages(t.Context(), "torch")
	require.NoError(t, err)
	assert.Equal(t, []Package{{Name: "numpy", Version: "1.26.4"}}, pkgs)

	require.NoError(t, m.Create(t.Context(), "torch", "3.11"))
	require.NoError(t, m.Install(t.Context(), "torch", "numpy"))

	err = m.Remove(t.Context(), "missing")
	var cmdErr *remote.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.Code)

	require.Error(t, m.Uninstall(t.Context(), "torch", "numpy"))
}
