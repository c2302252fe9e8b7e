package construct

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
	"github.com/cohort-modeler/cohort-infra/resources/ec2"
	"github.com/cohort-modeler/cohort-infra/resources/lambda"
	"github.com/cohort-modeler/cohort-infra/resources/neptune"
)

func propsJSON(t *testing.T, tmpl *infra.Template, id string) string {
	t.Helper()
	res, ok := tmpl.Resources[id]
	require.True(t, ok, "resource %s missing", id)
	data, err := json.Marshal(res.Properties)
	require.NoError(t, err)
	return string(data)
}

func TestSynth_SameStackReferences(t *testing.T) {
	app := NewApp("Test")
	net := app.NewStack("Net", StackProps{Description: "network"})
	vpc := net.Add("Vpc", &ec2.VPC{CidrBlock: "10.0.0.0/16", EnableDnsSupport: intrinsics.Bool(true)})
	net.Add("Subnet", &ec2.Subnet{
		VpcId:     vpc.GetAtt("VpcId"),
		CidrBlock: "10.0.1.0/24",
	})
	net.Add("Igw", &ec2.InternetGateway{})
	net.Add("Attach", &ec2.VPCGatewayAttachment{VpcId: vpc, InternetGatewayId: net.byID["Igw"].Ref()})

	asm, err := app.Synth()
	require.NoError(t, err)

	tmpl, ok := asm.Template("Net")
	require.True(t, ok)
	assert.Equal(t, "network", tmpl.Description)
	assert.JSONEq(t, `{"VpcId": {"Fn::GetAtt": ["Vpc", "VpcId"]}, "CidrBlock": "10.0.1.0/24"}`, propsJSON(t, tmpl, "Subnet"))
	assert.JSONEq(t, `{"VpcId": {"Ref": "Vpc"}, "InternetGatewayId": {"Ref": "Igw"}}`, propsJSON(t, tmpl, "Attach"))
	assert.Empty(t, tmpl.Outputs)
}

func TestSynth_CrossStackReference(t *testing.T) {
	app := NewApp("Test")
	net := app.NewStack("Net", StackProps{})
	db := app.NewStack("Db", StackProps{})

	vpc := net.Add("Vpc", &ec2.VPC{CidrBlock: "10.0.0.0/16"})
	db.Add("Sg", &ec2.SecurityGroup{
		GroupDescription: "db",
		VpcId:            vpc,
		SecurityGroupIngress: []ec2.SecurityGroup_Ingress{
			{IpProtocol: "tcp", FromPort: 8182, ToPort: 8182, CidrIp: vpc.GetAtt("CidrBlock")},
		},
	})

	asm, err := app.Synth()
	require.NoError(t, err)

	assert.Equal(t, []string{"Net", "Db"}, asm.StackNames())

	netTmpl, _ := asm.Template("Net")
	require.Contains(t, netTmpl.Outputs, "ExportVpc")
	require.Contains(t, netTmpl.Outputs, "ExportVpcCidrBlock")
	assert.Equal(t, "Net:Vpc", netTmpl.Outputs["ExportVpc"].Export.Name)
	assert.Equal(t, "Net:Vpc-CidrBlock", netTmpl.Outputs["ExportVpcCidrBlock"].Export.Name)

	dbTmpl, _ := asm.Template("Db")
	assert.JSONEq(t, `{
		"GroupDescription": "db",
		"VpcId": {"Fn::ImportValue": "Net:Vpc"},
		"SecurityGroupIngress": [{
			"IpProtocol": "tcp", "FromPort": 8182, "ToPort": 8182,
			"CidrIp": {"Fn::ImportValue": "Net:Vpc-CidrBlock"}
		}]
	}`, propsJSON(t, dbTmpl, "Sg"))

	dbEntry, ok := asm.Manifest.Stack("Db")
	require.True(t, ok)
	assert.Equal(t, []string{"Net"}, dbEntry.Dependencies)

	netEntry, _ := asm.Manifest.Stack("Net")
	assert.Equal(t, []string{"Net:Vpc", "Net:Vpc-CidrBlock"}, netEntry.Exports)
}

func TestSynth_ExportOutputClash(t *testing.T) {
	app := NewApp("Test")
	net := app.NewStack("Net", StackProps{})
	db := app.NewStack("Db", StackProps{})

	vpc := net.Add("Vpc", &ec2.VPC{})
	other := net.Add("VpcVpcId", &ec2.VPC{})
	db.Add("Sg", &ec2.SecurityGroup{GroupDescription: "x", VpcId: vpc.GetAtt("VpcId")})
	db.Add("Sg2", &ec2.SecurityGroup{GroupDescription: "y", VpcId: other})

	_, err := app.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exports Net:Vpc-VpcId and Net:VpcVpcId share the output ExportVpcVpcId")
}

func TestSynth_StacksOrderedByReferenceNotDeclaration(t *testing.T) {
	app := NewApp("Test")
	consumer := app.NewStack("Api", StackProps{})
	producer := app.NewStack("Net", StackProps{})

	vpc := producer.Add("Vpc", &ec2.VPC{})
	consumer.Add("Sg", &ec2.SecurityGroup{GroupDescription: "x", VpcId: vpc})

	asm, err := app.Synth()
	require.NoError(t, err)
	assert.Equal(t, []string{"Net", "Api"}, asm.StackNames())
}

func TestSynth_StackCycle(t *testing.T) {
	app := NewApp("Test")
	a := app.NewStack("A", StackProps{})
	b := app.NewStack("B", StackProps{})

	va := a.Add("Vpc", &ec2.VPC{})
	vb := b.Add("Vpc", &ec2.VPC{})
	a.Add("Sg", &ec2.SecurityGroup{GroupDescription: "x", VpcId: vb})
	b.Add("Sg", &ec2.SecurityGroup{GroupDescription: "x", VpcId: va})

	_, err := app.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stack dependencies")
	assert.Contains(t, err.Error(), "circular dependency detected")
}

func TestSynth_MappingCopiedToConsumer(t *testing.T) {
	app := NewApp("Test")
	net := app.NewStack("Net", StackProps{})
	db := app.NewStack("Db", StackProps{})

	table := net.AddMapping("RegionTable", intrinsics.Mapping{
		"us-east-1": {"AZ1": "us-east-1a", "AZ2": "us-east-1b"},
	})
	net.Add("Subnet", &ec2.Subnet{AvailabilityZone: table.FindInMap(intrinsics.AWS_REGION, "AZ1")})
	db.Add("Cluster", &neptune.DBCluster{
		AvailabilityZones: []any{
			table.FindInMap(intrinsics.AWS_REGION, "AZ1"),
			table.FindInMap(intrinsics.AWS_REGION, "AZ2"),
		},
	})

	asm, err := app.Synth()
	require.NoError(t, err)

	dbTmpl, _ := asm.Template("Db")
	require.Contains(t, dbTmpl.Mappings, "RegionTable")
	assert.JSONEq(t, `{"AvailabilityZones": [
		{"Fn::FindInMap": ["RegionTable", {"Ref": "AWS::Region"}, "AZ1"]},
		{"Fn::FindInMap": ["RegionTable", {"Ref": "AWS::Region"}, "AZ2"]}
	]}`, propsJSON(t, dbTmpl, "Cluster"))

	// A mapping copy is not a stack dependency.
	dbEntry, _ := asm.Manifest.Stack("Db")
	assert.Empty(t, dbEntry.Dependencies)
}

func TestSynth_FindInMapUnknownLiteralKey(t *testing.T) {
	app := NewApp("Test")
	net := app.NewStack("Net", StackProps{})
	table := net.AddMapping("RegionTable", intrinsics.Mapping{"us-east-1": {"AZ1": "us-east-1a"}})
	net.Add("Subnet", &ec2.Subnet{AvailabilityZone: table.FindInMap("mars-north-1", "AZ1")})

	_, err := app.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mars-north-1")
}

func TestSynth_Assets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "layer.zip"), []byte("zip-bytes"), 0o644))

	app := NewApp("Test", WithAssetBucket("assets-bucket"), WithAssetDir(dir))
	api := app.NewStack("Api", StackProps{})
	asset := api.AddAsset("LayerCode", "layer.zip")
	api.Add("Layer", &lambda.LayerVersion{
		Content: &lambda.LayerVersion_Content{S3Bucket: asset.Bucket(), S3Key: asset.Key()},
	}).ApplyRemovalPolicy(infra.RemovalPolicyDelete)

	asm, err := app.Synth()
	require.NoError(t, err)

	entry, ok := asm.Asset("LayerCode")
	require.True(t, ok)
	assert.Len(t, entry.Hash, 64)
	assert.Equal(t, entry.Hash+".zip", entry.Key)
	assert.Equal(t, "asset."+entry.Hash+".zip", entry.StagedPath)
	assert.Equal(t, "assets-bucket", entry.Bucket)

	tmpl, _ := asm.Template("Api")
	layer := tmpl.Resources["Layer"]
	assert.Equal(t, "Delete", layer.DeletionPolicy)
	assert.Equal(t, "Delete", layer.UpdateReplacePolicy)
	assert.JSONEq(t, `{"Content": {"S3Bucket": "assets-bucket", "S3Key": "`+entry.Key+`"}}`, propsJSON(t, tmpl, "Layer"))

	apiEntry, _ := asm.Manifest.Stack("Api")
	assert.Equal(t, []string{"LayerCode"}, apiEntry.Assets)
}

func TestSynth_MissingAsset(t *testing.T) {
	app := NewApp("Test", WithAssetBucket("b"), WithAssetDir(t.TempDir()))
	app.NewStack("Api", StackProps{}).AddAsset("Code", "missing.zip")

	_, err := app.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.zip")
}

func TestSynth_AssetWithoutBucket(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zip"), []byte("a"), 0o644))

	app := NewApp("Test", WithAssetDir(dir))
	app.NewStack("Api", StackProps{}).AddAsset("Code", "a.zip")

	_, err := app.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset bucket")
}

func TestSynth_DeferredDeclarationErrors(t *testing.T) {
	app := NewApp("Test")
	s := app.NewStack("Net", StackProps{})
	s.Add("Vpc", &ec2.VPC{})
	s.Add("Vpc", &ec2.VPC{})
	s.Add("Bad Id", &ec2.VPC{})
	app.NewStack("1nvalid", StackProps{})
	app.NewStack("Net", StackProps{})

	_, err := app.Synth()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `duplicate id "Vpc"`)
	assert.Contains(t, msg, `invalid resource id "Bad Id"`)
	assert.Contains(t, msg, `invalid stack name "1nvalid"`)
	assert.Contains(t, msg, `duplicate stack "Net"`)
}

func TestSynth_UnknownAttribute(t *testing.T) {
	app := NewApp("Test")
	s := app.NewStack("Net", StackProps{})
	vpc := s.Add("Vpc", &ec2.VPC{})
	s.Add("Subnet", &ec2.Subnet{VpcId: vpc.GetAtt("Arn")})

	_, err := app.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `has no attribute "Arn"`)
}

func TestSynth_NodeDependencies(t *testing.T) {
	app := NewApp("Test")
	net := app.NewStack("Net", StackProps{})
	db := app.NewStack("Db", StackProps{})

	vpc := net.Add("Vpc", &ec2.VPC{})
	sg := db.Add("Sg", &ec2.SecurityGroup{GroupDescription: "x"})
	db.Add("Cluster", &neptune.DBCluster{}).AddDependency(sg, vpc, sg, nil)

	asm, err := app.Synth()
	require.NoError(t, err)

	tmpl, _ := asm.Template("Db")
	assert.Equal(t, []string{"Sg"}, tmpl.Resources["Cluster"].DependsOn)

	entry, _ := asm.Manifest.Stack("Db")
	assert.Equal(t, []string{"Net"}, entry.Dependencies)
}

func TestSynth_ExportedOutputs(t *testing.T) {
	app := NewApp("Test")
	db := app.NewStack("Db", StackProps{})
	cluster := db.Add("Cluster", &neptune.DBCluster{})
	db.AddOutput("ClusterEndpoint", cluster.GetAtt("Endpoint"), "Neptune endpoint")
	db.AddExportedOutput("ClusterPort", cluster.GetAtt("Port"), "Neptune port", "Db-Port")

	asm, err := app.Synth()
	require.NoError(t, err)

	tmpl, _ := asm.Template("Db")
	assert.Equal(t, "Neptune endpoint", tmpl.Outputs["ClusterEndpoint"].Description)
	assert.Nil(t, tmpl.Outputs["ClusterEndpoint"].Export)
	assert.Equal(t, "Db-Port", tmpl.Outputs["ClusterPort"].Export.Name)

	entry, _ := asm.Manifest.Stack("Db")
	assert.Equal(t, []string{"Db-Port"}, entry.Exports)
}

func TestSynth_MisusedValues(t *testing.T) {
	app := NewApp("Test")
	s := app.NewStack("Net", StackProps{})
	table := s.AddMapping("Table", intrinsics.Mapping{"a": {"b": "c"}})
	s.Add("Subnet", &ec2.Subnet{AvailabilityZone: table})

	_, err := app.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use FindInMap")
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "Net:Vpc", ExportName("Net", "Vpc", ""))
	assert.Equal(t, "Db:Cluster-EndpointAddress", ExportName("Db", "Cluster", "Endpoint.Address"))
}

func TestApp_Accessors(t *testing.T) {
	app := NewApp("Test", WithAssetBucket("b"), WithLogger(nil))
	s := app.NewStack("Net", StackProps{Description: "d"})
	other := app.NewStack("Db", StackProps{})
	other.AddDependency(s, other, s)

	assert.Equal(t, "Test", app.Name())
	assert.Equal(t, "b", app.AssetBucket())
	assert.Len(t, app.Stacks(), 2)
	got, ok := app.Stack("Net")
	require.True(t, ok)
	assert.Equal(t, "d", got.Description())
	assert.Equal(t, []string{"Net"}, other.Dependencies())
	assert.NoError(t, app.Err())
}
