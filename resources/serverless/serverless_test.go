package serverless

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/cohort-modeler/cohort-infra"
)

func TestResourceTypes(t *testing.T) {
	tests := []struct {
		res  infra.Resource
		want string
	}{
		{Function{}, "AWS::Serverless::Function"},
		{Api{}, "AWS::Serverless::Api"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.res.ResourceType())
	}
}

func TestApiSerialization(t *testing.T) {
	data, err := json.Marshal(Api{Name: "cohort-api", StageName: "dev"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Name": "cohort-api", "StageName": "dev"}`, string(data))
}

func TestFunctionSerialization(t *testing.T) {
	fn := Function{
		Handler: "app.handler",
		Runtime: "python3.8",
		Timeout: 3,
		CodeUri: &Function_S3Location{Bucket: "assets", Key: "abc.zip"},
		Environment: &Function_Environment{
			Variables: map[string]any{"NeptuneEndpoint": "db.local"},
		},
		Events: map[string]Function_EventSource{
			"API": {
				Type_:      EventTypeApi,
				Properties: Function_ApiEvent{Path: "/data/player/{player}", Method: "get", RestApiId: map[string]any{"Ref": "Api"}},
			},
		},
	}

	data, err := json.Marshal(fn)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"CodeUri": {"Bucket": "assets", "Key": "abc.zip"},
		"Environment": {"Variables": {"NeptuneEndpoint": "db.local"}},
		"Events": {"API": {"Type": "Api", "Properties": {"Method": "get", "Path": "/data/player/{player}", "RestApiId": {"Ref": "Api"}}}},
		"Handler": "app.handler",
		"Runtime": "python3.8",
		"Timeout": 3
	}`, string(data))
}

func TestImplicitResources(t *testing.T) {
	assert.Contains(t, ImplicitResources(), "ServerlessRestApi")
}
