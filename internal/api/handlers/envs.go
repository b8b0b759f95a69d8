package handlers

import (
	"context"
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/conda"
	"github.com/slurmdesk/slurmdesk/internal/dataset"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

func HandleEnvList(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envs, err := conda.NewManager(s).List(r.Context())
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusOK, models.EnvsResponse{Envs: envs})
	}
}

func HandleEnvCreate(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.EnvCreateRequest
		if err := render.DecodeRequest(w, r, &req); err != nil {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "unable to parse the request"})
			return
		}
		if err := conda.NewManager(s).Create(r.Context(), req.Name, req.Python); err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusCreated, req)
	}
}

func HandleEnvDelete(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := conda.NewManager(s).Remove(r.Context(), r.PathValue("name")); err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusNoContent, nil)
	}
}

func HandlePackageList(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env := r.PathValue("name")
		pkgs, err := conda.NewManager(s).Packages(r.Context(), env)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusOK, models.PackagesResponse{Env: env, Packages: pkgs})
	}
}

func HandlePackageInstall(s *session.Session) http.HandlerFunc {
	return handlePackages(s, (*conda.Manager).Install)
}

func HandlePackageUninstall(s *session.Session) http.HandlerFunc {
	return handlePackages(s, (*conda.Manager).Uninstall)
}

type packagesFunc func(m *conda.Manager, ctx context.Context, env string, pkgs ...string) error

func handlePackages(s *session.Session, fn packagesFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.PackagesRequest
		if err := render.DecodeRequest(w, r, &req); err != nil {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "unable to parse the request"})
			return
		}
		if err := fn(conda.NewManager(s), r.Context(), r.PathValue("name"), req.Packages...); err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusNoContent, nil)
	}
}

func HandleDatasetExtract(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.DatasetExtractRequest
		if err := render.DecodeRequest(w, r, &req); err != nil {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "unable to parse the request"})
			return
		}
		if !s.IsConnected() {
			renderError(w, r, remote.ErrNotConnected)
			return
		}
		err := dataset.Extract(r.Context(), s, s.Config().Settings.RemoteRoot, req.Source, req.Destination)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusNoContent, nil)
	}
}
