package stacks

import (
	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/construct"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
	"github.com/cohort-modeler/cohort-infra/resources/ec2"
	"github.com/cohort-modeler/cohort-infra/resources/lambda"
	"github.com/cohort-modeler/cohort-infra/resources/serverless"
)

// Endpoint is one REST operation backed by its own function.
type Endpoint struct {
	FunctionID string
	AssetID    string
	CodePath   string
	Method     string
	Path       string
}

// Endpoints is the Cohort Modeler REST API.
var Endpoints = []Endpoint{
	{"CohortApiPlayerPut", "CohortPlayerPutLambdaCode", "api/player/methods/put/player-put.zip", "put", "/data/player/{player}"},
	{"CohortApiPlayerPost", "CohortPlayerPostLambdaCode", "api/player/methods/post/player-post.zip", "post", "/data/player/{player}"},
	{"CohortApiPlayerGet", "CohortPlayerGetLambdaCode", "api/player/methods/get/player-get.zip", "get", "/data/player/{player}"},
	{"CohortApiPlayerDelete", "CohortPlayerDeleteLambdaCode", "api/player/methods/delete/player-delete.zip", "delete", "/data/player/{player}"},
	{"CohortApiCampaignPut", "CohortCampaignPutLambdaCode", "api/campaign/methods/put/campaign-put.zip", "put", "/data/campaign/{campaign}"},
	{"CohortApiCampaignPost", "CohortCampaignPostLambdaCode", "api/campaign/methods/post/campaign-post.zip", "post", "/data/campaign/{campaign}"},
	{"CohortApiCampaignDelete", "CohortCampaignDeleteLambdaCode", "api/campaign/methods/delete/campaign-delete.zip", "delete", "/data/campaign/{campaign}"},
	{"CohortApiPlayerInteractionPut", "CohortPlayerInteractionPutLambdaCode", "api/player/interaction/methods/put/interaction-put.zip", "put", "/data/player/{player}/interaction"},
	{"CohortApiPlayerInteractionGet", "CohortPlayerInteractionGetLambdaCode", "api/player/interaction/methods/get/interaction-get.zip", "get", "/data/player/{player}/interaction"},
	{"CohortApiPlayerRelationshipGet", "CohortPlayerRelationshipGetLambdaCode", "api/player/relationship/methods/get/relationship-get.zip", "get", "/data/player/{player}/relationship"},
	{"CohortApiPredictionCollabFilter", "CohortPredictionCollaborativeFilterGetLambdaCode", "api/prediction/collaborativeFilter/methods/get/collaborativefilter-get.zip", "get", "/prediction/collaborativeFilter"},
	{"CohortApiPredictionTriadicClosureGet", "CohortPredictionTriadicClosureGetLambdaCode", "api/prediction/triadicClosure/methods/get/triadicclosure-get.zip", "get", "/prediction/triadicClosure"},
	{"CohortApiPredictionBadActorsGet", "CohortPredictionBadActorsGetLambdaCode", "api/prediction/badActors/methods/get/badactors-get.zip", "get", "/prediction/badActors"},
	{"CohortApiPredictionRelatedUsersGet", "CohortPredictionRelatedUsersGetLambdaCode", "api/prediction/relatedUsers/methods/get/relatedusers-get.zip", "get", "/prediction/relatedUsers"},
}

// API is the serverless REST API stack.
type API struct {
	Stack           *construct.Stack
	RestAPI         *construct.Node
	SecurityGroup   *construct.Node
	ValidationLayer *construct.Node
	Functions       map[string]*construct.Node
}

// NewAPI declares the REST API, the validation layer and one function per
// endpoint, all running in the private subnets with the Neptune endpoint in
// their environment. The API deploys a single stage named by api.stage.
func NewAPI(app *construct.App, cfg *config.Config, net *Network, db *Database) *API {
	s := app.NewStack(cfg.Stacks.API, construct.StackProps{
		Description: "Cohort Modeler REST API",
		Tags:        cfg.Tags,
	})
	a := &API{Stack: s, Functions: make(map[string]*construct.Node, len(Endpoints))}

	a.RestAPI = s.Add("CohortRestApi", &serverless.Api{
		Name:      intrinsics.Sub{String: "${AWS::StackName}-api"},
		StageName: cfg.API.Stage,
	})

	ingress := func(port int) ec2.SecurityGroup_Ingress {
		return ec2.SecurityGroup_Ingress{IpProtocol: "tcp", CidrIp: net.VPCCidr(), FromPort: port, ToPort: port}
	}
	a.SecurityGroup = s.Add("CohortLambdaSecurityGroup", &ec2.SecurityGroup{
		GroupDescription: "SG of Cohort API DB",
		VpcId:            net.VPC,
		SecurityGroupEgress: intrinsics.List(ec2.SecurityGroup_Egress{
			IpProtocol: "-1",
			CidrIp:     net.VPCCidr(),
			FromPort:   0,
			ToPort:     65535,
		}),
		SecurityGroupIngress: intrinsics.List(
			ingress(cfg.Database.Port),
			ingress(443),
			ingress(80),
		),
	})

	layerCode := s.AddAsset("CohortValidationLayerCode", cfg.API.LayerPath)
	a.ValidationLayer = s.Add("CohortValidationLayer", &lambda.LayerVersion{
		CompatibleRuntimes: []string{cfg.API.Runtime},
		Content: &lambda.LayerVersion_Content{
			S3Bucket: layerCode.Bucket(),
			S3Key:    layerCode.Key(),
		},
	}).ApplyRemovalPolicy(infra.RemovalPolicyDelete)

	for _, ep := range Endpoints {
		a.Functions[ep.FunctionID] = a.function(cfg, net, db, ep)
	}

	s.AddOutput("ApiUrl", intrinsics.Sub{
		String: "https://${" + a.RestAPI.ID() + "}.execute-api.${AWS::Region}.${AWS::URLSuffix}/" + cfg.API.Stage + "/",
	}, "Cohort Modeler API base URL")

	return a
}

func (a *API) function(cfg *config.Config, net *Network, db *Database, ep Endpoint) *construct.Node {
	code := a.Stack.AddAsset(ep.AssetID, ep.CodePath)
	return a.Stack.Add(ep.FunctionID, &serverless.Function{
		CodeUri: &serverless.Function_S3Location{
			Bucket: code.Bucket(),
			Key:    code.Key(),
		},
		Handler: cfg.API.Handler,
		Runtime: cfg.API.Runtime,
		Timeout: cfg.API.Timeout,
		VpcConfig: &serverless.Function_VpcConfig{
			SecurityGroupIds: intrinsics.Any(a.SecurityGroup.GetAtt("GroupId")),
			SubnetIds:        net.PrivateSubnetIDs(),
		},
		Environment: &serverless.Function_Environment{
			Variables: map[string]any{"NeptuneEndpoint": db.Endpoint()},
		},
		Events: map[string]serverless.Function_EventSource{
			"API": {
				Type_: serverless.EventTypeApi,
				Properties: serverless.Function_ApiEvent{
					Method:    ep.Method,
					Path:      ep.Path,
					RestApiId: a.RestAPI,
				},
			},
		},
		Layers: intrinsics.Any(a.ValidationLayer),
	})
}
