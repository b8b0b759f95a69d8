package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator(t *testing.T) {
	g := NewOpenApiGenerator("1.2.3")
	g.InitOperations()
	doc := g.GetDocs()

	assert.Equal(t, "1.2.3", doc.Info.Version)
	for _, p := range []string{"/v1/jobs", "/v1/jobs/{id}", "/v1/gpus", "/v1/sync", "/v1/envs/{name}/packages"} {
		assert.Contains(t, doc.Paths.MapOfPathItemValues, p)
	}
	submit := doc.Paths.MapOfPathItemValues["/v1/jobs"].MapOfOperationValues["post"]
	assert.Equal(t, "submitJob", *submit.ID)
	assert.Contains(t, submit.Responses.MapOfResponseOrRefValues, "201")
	assert.Contains(t, submit.Responses.MapOfResponseOrRefValues, "503")

	data, err := doc.MarshalYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "JobStatus")
}
