package main

import (
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strings"

	"github.com/swaggest/jsonschema-go"
	"github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
	"go.bug.st/f"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
)

type Tag string

const (
	ConnectionTag  Tag = "Connection"
	JobTag         Tag = "Job"
	GPUTag         Tag = "GPU"
	SyncTag        Tag = "Sync"
	EnvironmentTag Tag = "Environment"
	SystemTag      Tag = "System"
)

var validTags = []Tag{ConnectionTag, JobTag, GPUTag, SyncTag, EnvironmentTag, SystemTag}

type Generator struct {
	reflector *openapi3.Reflector
}

func errorResponse(description, message string) openapi3.ResponseOrRef {
	return openapi3.ResponseOrRef{
		Response: &openapi3.Response{
			Description: description,
			Content: map[string]openapi3.MediaType{
				"application/json": {
					Example: f.Ptr(interface{}(map[string]interface{}{
						"details": message,
					})),
					Schema: &openapi3.SchemaOrRef{
						SchemaReference: &openapi3.SchemaReference{
							Ref: "#/components/schemas/ErrorResponse",
						},
					},
				},
			},
		},
	}
}

func NewOpenApiGenerator(version string) *Generator {
	reflector := openapi3.NewReflector()
	reflector.Spec.Info.WithTitle("slurmdesk").WithVersion(version)
	reflector.Spec.Info.WithDescription("Local API driving a Slurm GPU cluster: connection, jobs, GPU status, workspace sync and conda environments")
	reflector.Spec.Servers = append(reflector.Spec.Servers, openapi3.Server{
		URL:         "http://localhost:8800",
		Description: f.Ptr("local daemon"),
	})

	reflector.Spec.Components = &openapi3.Components{}
	reflector.Spec.Components.Schemas = &openapi3.ComponentsSchemas{}
	reflector.Spec.Components.Schemas.WithMapOfSchemaOrRefValuesItem(
		"JobStatus",
		openapi3.SchemaOrRef{
			Schema: &openapi3.Schema{
				UniqueItems: f.Ptr(true),
				Enum:        f.Map(slurm.JobStatuses(), func(v slurm.JobStatus) interface{} { return v }),
				Type:        f.Ptr(openapi3.SchemaTypeString),
				Description: f.Ptr("Job state, normalized from the Slurm state codes"),
				ReflectType: reflect.TypeOf(slurm.JobStatus("")),
			},
		},
	)

	reflector.Spec.Components.WithResponses(
		openapi3.ComponentsResponses{
			MapOfResponseOrRefValues: map[string]openapi3.ResponseOrRef{
				"BadRequest":          errorResponse("Bad Request", "invalid job request: gpus must be positive"),
				"Unauthorized":        errorResponse("Unauthorized", "ssh authentication failed"),
				"PreconditionFailed":  errorResponse("Precondition Failed", `missing required setting "host"`),
				"BadGateway":          errorResponse("Bad Gateway", "sbatch: error: invalid partition name specified"),
				"ServiceUnavailable":  errorResponse("Service Unavailable", "not connected to the cluster"),
				"GatewayTimeout":      errorResponse("Gateway Timeout", "context deadline exceeded"),
				"Conflict":            errorResponse("Conflict", "file and directory with the same path: out"),
				"InternalServerError": errorResponse("Internal Server Error", "An unexpected error occurred."),
			},
		},
	)
	// Openapi-go automatically add as prefix the package name. We use this hook
	// to manually remove the pkg prefix.
	reflector.DefaultOptions = append(reflector.DefaultOptions,
		jsonschema.InterceptSchema(func(params jsonschema.InterceptSchemaParams) (stop bool, err error) {
			if params.Value.Type() == reflect.TypeOf(slurm.JobStatus("")) {
				params.Schema.WithRef("#/components/schemas/JobStatus")
				return true, nil
			}
			return false, nil
		}),
		jsonschema.InterceptDefName(func(t reflect.Type, defaultDefName string) string {
			caser := cases.Title(language.English)
			pkgName := caser.String(path.Base(t.PkgPath()))
			if s, found := strings.CutPrefix(defaultDefName, pkgName); found {
				return s
			}
			return defaultDefName
		}),
	)
	return &Generator{reflector: reflector}
}

func (g *Generator) GetDocs() *openapi3.Spec {
	return g.reflector.Spec
}

type OperationConfig struct {
	OperationId    string
	Method         string
	Path           string
	Parameters     interface{}
	Request        interface{}
	Description    string
	Summary        string
	Tags           []Tag
	PossibleErrors []ErrorResponse

	CustomSuccessResponse *CustomResponseDef
}

type CustomResponseDef struct {
	ContentType   string
	Description   string
	DataStructure interface{}
	StatusCode    int
}

type ErrorResponse struct {
	StatusCode int    `json:"code"`
	Reference  string `json:"message"`
}

var (
	errBadRequest     = ErrorResponse{StatusCode: http.StatusBadRequest, Reference: "#/components/responses/BadRequest"}
	errUnauthorized   = ErrorResponse{StatusCode: http.StatusUnauthorized, Reference: "#/components/responses/Unauthorized"}
	errPrecondition   = ErrorResponse{StatusCode: http.StatusPreconditionFailed, Reference: "#/components/responses/PreconditionFailed"}
	errBadGateway     = ErrorResponse{StatusCode: http.StatusBadGateway, Reference: "#/components/responses/BadGateway"}
	errUnavailable    = ErrorResponse{StatusCode: http.StatusServiceUnavailable, Reference: "#/components/responses/ServiceUnavailable"}
	errGatewayTimeout = ErrorResponse{StatusCode: http.StatusGatewayTimeout, Reference: "#/components/responses/GatewayTimeout"}
	errConflict       = ErrorResponse{StatusCode: http.StatusConflict, Reference: "#/components/responses/Conflict"}
	errInternal       = ErrorResponse{StatusCode: http.StatusInternalServerError, Reference: "#/components/responses/InternalServerError"}

	// remoteErrors are the failures of every operation running a command on
	// the cluster.
	remoteErrors = []ErrorResponse{errUnavailable, errBadGateway, errGatewayTimeout, errInternal}
)

func ok(data interface{}) *CustomResponseDef {
	return &CustomResponseDef{
		ContentType:   "application/json",
		DataStructure: data,
		Description:   "Successful response",
		StatusCode:    http.StatusOK,
	}
}

func noContent() *CustomResponseDef {
	return &CustomResponseDef{
		Description: "Successful response",
		StatusCode:  http.StatusNoContent,
	}
}

type jobIDParam struct {
	ID string `path:"id" description:"Slurm job id."`
}

type cachedQuery struct {
	Cached bool `query:"cached" description:"return the last polled value without querying the cluster."`
}

type logQuery struct {
	Tail int `query:"tail" description:"number of lines, 100 when omitted."`
}

type envNameParam struct {
	Name string `path:"name" description:"conda environment name."`
}

func (g *Generator) InitOperations() {
	operations := []OperationConfig{
		{
			OperationId:           "getVersions",
			Method:                http.MethodGet,
			Path:                  "/v1/version",
			CustomSuccessResponse: ok(models.VersionResponse{}),
			Description:           "returns the daemon current version",
			Summary:               "daemon version",
			Tags:                  []Tag{SystemTag},
			PossibleErrors:        []ErrorResponse{errInternal},
		},
		{
			OperationId:           "getConfig",
			Method:                http.MethodGet,
			Path:                  "/v1/config",
			CustomSuccessResponse: ok(models.ConfigResponse{}),
			Description:           "returns the directories and the settings in use",
			Summary:               "daemon configuration",
			Tags:                  []Tag{SystemTag},
			PossibleErrors:        []ErrorResponse{errInternal},
		},
		{
			OperationId: "getEvents",
			Method:      http.MethodGet,
			Path:        "/v1/events",
			CustomSuccessResponse: &CustomResponseDef{
				ContentType: "text/event-stream",
				Description: "Stream of session events",
				StatusCode:  http.StatusOK,
			},
			Description:    "Server sent events carrying every state change of the session",
			Summary:        "session events",
			Tags:           []Tag{SystemTag},
			PossibleErrors: []ErrorResponse{errInternal},
		},
		{
			OperationId:           "getConnection",
			Method:                http.MethodGet,
			Path:                  "/v1/connection",
			CustomSuccessResponse: ok(models.ConnectionResponse{}),
			Description:           "returns the connection state and the cluster coordinates",
			Summary:               "connection state",
			Tags:                  []Tag{ConnectionTag},
			PossibleErrors:        []ErrorResponse{errInternal},
		},
		{
			OperationId:           "connect",
			Method:                http.MethodPost,
			Path:                  "/v1/connection",
			Request:               models.ConnectRequest{},
			CustomSuccessResponse: ok(models.ConnectionResponse{}),
			Description:           "Opens the command and transfer channels and starts polling jobs and GPUs. An empty body reuses the credential of the previous connection.",
			Summary:               "connect to the cluster",
			Tags:                  []Tag{ConnectionTag},
			PossibleErrors:        []ErrorResponse{errBadRequest, errUnauthorized, errPrecondition, errGatewayTimeout, errInternal},
		},
		{
			OperationId:           "disconnect",
			Method:                http.MethodDelete,
			Path:                  "/v1/connection",
			CustomSuccessResponse: noContent(),
			Description:           "Closes the channels and stops polling",
			Summary:               "disconnect",
			Tags:                  []Tag{ConnectionTag},
			PossibleErrors:        []ErrorResponse{errInternal},
		},
		{
			OperationId:           "getJobs",
			Method:                http.MethodGet,
			Path:                  "/v1/jobs",
			Parameters:            (*cachedQuery)(nil),
			CustomSuccessResponse: ok(models.JobsResponse{}),
			Description:           "Lists the jobs of the configured user with squeue",
			Summary:               "list jobs",
			Tags:                  []Tag{JobTag},
			PossibleErrors:        remoteErrors,
		},
		{
			OperationId: "submitJob",
			Method:      http.MethodPost,
			Path:        "/v1/jobs",
			Request:     models.JobSubmitRequest{},
			CustomSuccessResponse: &CustomResponseDef{
				ContentType:   "application/json",
				DataStructure: models.JobSubmitResponse{},
				Description:   "Successful response",
				StatusCode:    http.StatusCreated,
			},
			Description:    "Generates the batch script, copies it under the remote root and submits it with sbatch",
			Summary:        "submit a job",
			Tags:           []Tag{JobTag},
			PossibleErrors: append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "cancelJob",
			Method:                http.MethodDelete,
			Path:                  "/v1/jobs/{id}",
			Request:               (*jobIDParam)(nil),
			CustomSuccessResponse: noContent(),
			Description:           "Cancels the job with scancel",
			Summary:               "cancel a job",
			Tags:                  []Tag{JobTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "getJobLog",
			Method:                http.MethodGet,
			Path:                  "/v1/jobs/{id}/log",
			Request:               (*jobIDParam)(nil),
			Parameters:            (*logQuery)(nil),
			CustomSuccessResponse: ok(models.JobLogResponse{}),
			Description:           "Returns the last lines of the job output file",
			Summary:               "job output",
			Tags:                  []Tag{JobTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "getGPUs",
			Method:                http.MethodGet,
			Path:                  "/v1/gpus",
			Parameters:            (*cachedQuery)(nil),
			CustomSuccessResponse: ok(models.GPUsResponse{}),
			Description:           "Returns the GPU slots of every node. Placeholder nodes are returned when the status cannot be read.",
			Summary:               "GPU status",
			Tags:                  []Tag{GPUTag},
			PossibleErrors:        remoteErrors,
		},
		{
			OperationId:           "selectNode",
			Method:                http.MethodPut,
			Path:                  "/v1/gpus/selected",
			Request:               models.SelectNodeRequest{},
			CustomSuccessResponse: ok(models.SelectNodeRequest{}),
			Description:           "Pins the next submitted jobs on a node, an empty node lets Slurm choose",
			Summary:               "select a node",
			Tags:                  []Tag{GPUTag},
			PossibleErrors:        []ErrorResponse{errBadRequest, errInternal},
		},
		{
			OperationId:           "sync",
			Method:                http.MethodPost,
			Path:                  "/v1/sync",
			Request:               models.SyncRequest{},
			CustomSuccessResponse: ok(models.SyncResponse{}),
			Description:           "Synchronizes the workspace with the remote root. Progress is streamed on /v1/events.",
			Summary:               "sync the workspace",
			Tags:                  []Tag{SyncTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest, errPrecondition, errConflict}, remoteErrors...),
		},
		{
			OperationId:           "getEnvs",
			Method:                http.MethodGet,
			Path:                  "/v1/envs",
			CustomSuccessResponse: ok(models.EnvsResponse{}),
			Description:           "Lists the conda environments",
			Summary:               "list environments",
			Tags:                  []Tag{EnvironmentTag},
			PossibleErrors:        remoteErrors,
		},
		{
			OperationId: "createEnv",
			Method:      http.MethodPost,
			Path:        "/v1/envs",
			Request:     models.EnvCreateRequest{},
			CustomSuccessResponse: &CustomResponseDef{
				ContentType:   "application/json",
				DataStructure: models.EnvCreateRequest{},
				Description:   "Successful response",
				StatusCode:    http.StatusCreated,
			},
			Description:    "Creates a conda environment",
			Summary:        "create an environment",
			Tags:           []Tag{EnvironmentTag},
			PossibleErrors: append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "deleteEnv",
			Method:                http.MethodDelete,
			Path:                  "/v1/envs/{name}",
			Request:               (*envNameParam)(nil),
			CustomSuccessResponse: noContent(),
			Description:           "Removes a conda environment",
			Summary:               "remove an environment",
			Tags:                  []Tag{EnvironmentTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "getPackages",
			Method:                http.MethodGet,
			Path:                  "/v1/envs/{name}/packages",
			Request:               (*envNameParam)(nil),
			CustomSuccessResponse: ok(models.PackagesResponse{}),
			Description:           "Lists the pip packages of an environment",
			Summary:               "list packages",
			Tags:                  []Tag{EnvironmentTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "installPackages",
			Method:                http.MethodPost,
			Path:                  "/v1/envs/{name}/packages",
			Request:               (*envNameParam)(nil),
			Parameters:            models.PackagesRequest{},
			CustomSuccessResponse: noContent(),
			Description:           "Installs pip packages in an environment",
			Summary:               "install packages",
			Tags:                  []Tag{EnvironmentTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "uninstallPackages",
			Method:                http.MethodDelete,
			Path:                  "/v1/envs/{name}/packages",
			Request:               (*envNameParam)(nil),
			Parameters:            models.PackagesRequest{},
			CustomSuccessResponse: noContent(),
			Description:           "Uninstalls pip packages from an environment",
			Summary:               "uninstall packages",
			Tags:                  []Tag{EnvironmentTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
		{
			OperationId:           "extractDataset",
			Method:                http.MethodPost,
			Path:                  "/v1/datasets/extract",
			Request:               models.DatasetExtractRequest{},
			CustomSuccessResponse: noContent(),
			Description:           "Extracts a zip or tar archive, or copies a directory, on the cluster",
			Summary:               "extract a dataset",
			Tags:                  []Tag{EnvironmentTag},
			PossibleErrors:        append([]ErrorResponse{errBadRequest}, remoteErrors...),
		},
	}

	for _, op := range operations {
		if err := g.AddOperation(op); err != nil {
			slog.Error(
				"failed to register OpenApi operation",
				"path", op.Path,
				"method", op.Method,
				"error", err,
			)
		}
	}

	g.reflector.Spec.WithTags(
		f.Map(validTags, func(t Tag) openapi3.Tag {
			return openapi3.Tag{Name: string(t)}
		})...,
	)
}

func (g *Generator) AddOperation(config OperationConfig) error {
	opCtx, err := g.reflector.NewOperationContext(config.Method, config.Path)
	if err != nil {
		return err
	}

	opCtx.SetDescription(config.Description)
	opCtx.SetTags(f.Map(config.Tags, func(t Tag) string { return string(t) })...)
	opCtx.SetSummary(config.Summary)
	opCtx.AddReqStructure(config.Request)
	opCtx.SetID(config.OperationId)

	if config.Parameters != nil {
		opCtx.AddReqStructure(config.Parameters)
	}

	opCtx.AddRespStructure(config.CustomSuccessResponse.DataStructure, func(cu *openapi.ContentUnit) {
		cu.HTTPStatus = config.CustomSuccessResponse.StatusCode
		cu.ContentType = config.CustomSuccessResponse.ContentType
		cu.Description = config.CustomSuccessResponse.Description
	})

	for _, e := range config.PossibleErrors {
		opCtx.AddRespStructure(e, func(cu *openapi.ContentUnit) {
			cu.Customize = func(cor openapi.ContentOrReference) {
				cor.SetReference(e.Reference)
			}
			cu.HTTPStatus = e.StatusCode
		})
	}

	err = g.reflector.AddOperation(opCtx)
	if err != nil {
		return err
	}
	return nil
}
