// Package conda builds and parses the conda/pip commands used to manage
// Python environments on the login host.
package conda

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

var ErrInvalidName = errors.New("invalid environment name")

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	versionRe = regexp.MustCompile(`^\d+(\.\d+){0,2}$`)
	// pip requirement specifiers: name, extras and a version constraint.
	packageRe = regexp.MustCompile(`^[A-Za-z0-9._-]+(\[[A-Za-z0-9._,-]+\])?([<>=!~]=?[A-Za-z0-9.*+!-]+)?$`)
)

type Env struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Active bool   `json:"active"`
}

type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

const ListEnvsCommand = "conda env list"

// ParseEnvs parses the output of `conda env list`. Environments created with
// --prefix have no name column and are named after their directory.
func ParseEnvs(out string) []Env {
	envs := []Env{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		env := Env{Path: fields[len(fields)-1]}
		for _, f := range fields[:len(fields)-1] {
			if f == "*" {
				env.Active = true
			} else if env.Name == "" {
				env.Name = f
			}
		}
		if env.Name == "" {
			env.Name = path.Base(env.Path)
		}
		envs = append(envs, env)
	}
	return envs
}

func validName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func CreateCommand(name, pythonVersion string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if pythonVersion == "" {
		return "conda create -n " + name + " -y", nil
	}
	if !versionRe.MatchString(pythonVersion) {
		return "", fmt.Errorf("invalid python version %q", pythonVersion)
	}
	return fmt.Sprintf("conda create -n %s python=%s -y", name, pythonVersion), nil
}

func RemoveCommand(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	return "conda env remove -n " + name + " -y", nil
}

func ListPackagesCommand(env string) (string, error) {
	if err := validName(env); err != nil {
		return "", err
	}
	return "conda run -n " + env + " pip list", nil
}

// ParsePackages parses the table printed by `pip list`: a header, a row of
// dashes, then one package per line.
func ParsePackages(out string) []Package {
	pkgs := []Package{}
	inTable := false
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !inTable {
			inTable = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pkgs = append(pkgs, Package{Name: fields[0], Version: fields[1]})
	}
	return pkgs
}

func validPackages(pkgs []string) error {
	if len(pkgs) == 0 {
		return errors.New("no package given")
	}
	for _, p := range pkgs {
		if !packageRe.MatchString(p) {
			return fmt.Errorf("invalid package %q", p)
		}
	}
	return nil
}

func InstallCommand(env string, pkgs ...string) (string, error) {
	if err := validName(env); err != nil {
		return "", err
	}
	if err := validPackages(pkgs); err != nil {
		return "", err
	}
	return "conda run -n " + env + " pip install " + shellquote.Join(pkgs...), nil
}

func UninstallCommand(env string, pkgs ...string) (string, error) {
	if err := validName(env); err != nil {
		return "", err
	}
	if err := validPackages(pkgs); err != nil {
		return "", err
	}
	return "conda run -n " + env + " pip uninstall -y " + shellquote.Join(pkgs...), nil
}

// Manager runs the conda commands on a shell.
type Manager struct {
	shell remote.Shell
}

func NewManager(shell remote.Shell) *Manager {
	return &Manager{shell: shell}
}

func (m *Manager) List(ctx context.Context) ([]Env, error) {
	out, err := remote.Run(ctx, m.shell, ListEnvsCommand)
	if err != nil {
		return nil, fmt.Errorf("listing conda environments: %w", err)
	}
	return ParseEnvs(out), nil
}

func (m *Manager) Create(ctx context.Context, name, pythonVersion string) error {
	cmd, err := CreateCommand(name, pythonVersion)
	if err != nil {
		return err
	}
	_, err = remote.Run(ctx, m.shell, cmd)
	return err
}

func (m *Manager) Remove(ctx context.Context, name string) error {
	cmd, err := RemoveCommand(name)
	if err != nil {
		return err
	}
	_, err = remote.Run(ctx, m.shell, cmd)
	return err
}

func (m *Manager) Packages(ctx context.Context, env string) ([]Package, error) {
	cmd, err := ListPackagesCommand(env)
	if err != nil {
		return nil, err
	}
	out, err := remote.Run(ctx, m.shell, cmd)
	if err != nil {
		return nil, err
	}
	return ParsePackages(out), nil
}

func (m *Manager) Install(ctx context.Context, env string, pkgs ...string) error {
	cmd, err := InstallCommand(env, pkgs...)
	if err != nil {
		return err
	}
	_, err = remote.Run(ctx, m.shell, cmd)
	return err
}

func (m *Manager) Uninstall(ctx context.Context, env string, pkgs ...string) error {
	cmd, err := UninstallCommand(env, pkgs...)
	if err != nil {
		return err
	}
	_, err = remote.Run(ctx, m.shell, cmd)
	return err
}
