package deploy

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/assets"
	"github.com/cohort-modeler/cohort-infra/internal/construct"
	"github.com/cohort-modeler/cohort-infra/resources/ec2"
	"github.com/cohort-modeler/cohort-infra/resources/lambda"
	"github.com/cohort-modeler/cohort-infra/resources/sagemaker"
)

type fakeStack struct {
	status   types.StackStatus
	template string
	tags     []types.Tag
}

type fakeCFN struct {
	stacks   map[string]*fakeStack
	calls    []string
	creates  []*cloudformation.CreateStackInput
	failOn   string
	failWith string
}

func newFakeCFN() *fakeCFN {
	return &fakeCFN{stacks: map[string]*fakeStack{}}
}

func notExist(name string) error {
	return &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id " + name + " does not exist"}
}

func (f *fakeCFN) DescribeStacks(_ context.Context, in *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	name := aws.ToString(in.StackName)
	s, ok := f.stacks[name]
	if !ok {
		return nil, notExist(name)
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []types.Stack{{
		StackName:   aws.String(name),
		StackStatus: s.status,
		Outputs: []types.Output{
			{OutputKey: aws.String("Name"), OutputValue: aws.String(name)},
		},
	}}}, nil
}

func (f *fakeCFN) body(in *string, url *string) string {
	if url != nil {
		return "url:" + aws.ToString(url)
	}
	return aws.ToString(in)
}

func (f *fakeCFN) CreateStack(_ context.Context, in *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	name := aws.ToString(in.StackName)
	f.calls = append(f.calls, "create "+name)
	f.creates = append(f.creates, in)
	status := types.StackStatusCreateComplete
	if name == f.failOn {
		status = types.StackStatusRollbackComplete
	}
	f.stacks[name] = &fakeStack{status: status, template: f.body(in.TemplateBody, in.TemplateURL), tags: in.Tags}
	return &cloudformation.CreateStackOutput{StackId: aws.String("arn:" + name)}, nil
}

func (f *fakeCFN) UpdateStack(_ context.Context, in *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	name := aws.ToString(in.StackName)
	f.calls = append(f.calls, "update "+name)
	s := f.stacks[name]
	body := f.body(in.TemplateBody, in.TemplateURL)
	if s.template == body {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}
	}
	s.template = body
	s.status = types.StackStatusUpdateComplete
	return &cloudformation.UpdateStackOutput{}, nil
}

func (f *fakeCFN) DeleteStack(_ context.Context, in *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	name := aws.ToString(in.StackName)
	f.calls = append(f.calls, "delete "+name)
	delete(f.stacks, name)
	return &cloudformation.DeleteStackOutput{}, nil
}

func (f *fakeCFN) DescribeStackEvents(_ context.Context, in *cloudformation.DescribeStackEventsInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	if f.failWith == "" {
		return &cloudformation.DescribeStackEventsOutput{}, nil
	}
	return &cloudformation.DescribeStackEventsOutput{StackEvents: []types.StackEvent{
		{LogicalResourceId: in.StackName, ResourceStatus: types.ResourceStatusDeleteComplete},
		{LogicalResourceId: aws.String("Sg"), ResourceStatus: types.ResourceStatusCreateFailed, ResourceStatusReason: aws.String(f.failWith)},
	}}, nil
}

type fakeS3 struct {
	objects map[string]bool
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if !f.objects[aws.ToString(in.Key)] {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if _, err := io.Copy(io.Discard, in.Body); err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = true
	return &s3.PutObjectOutput{}, nil
}

// writeAssembly synthesizes a two-stack app into a temp dir. desc changes the
// app stack's template so updates can be exercised.
func writeAssembly(t *testing.T, desc string, extra func(app *construct.Stack)) (string, *assembly.Assembly) {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "layer.zip"), []byte("layer"), 0o644))

	app := construct.NewApp("Test", construct.WithAssetBucket("assets"), construct.WithAssetDir(src))
	net := app.NewStack("Net", construct.StackProps{Tags: map[string]string{"team": "games"}})
	vpc := net.Add("Vpc", &ec2.VPC{CidrBlock: "10.0.0.0/16"})

	svc := app.NewStack("App", construct.StackProps{Description: desc})
	svc.Add("Sg", &ec2.SecurityGroup{GroupDescription: "app", VpcId: vpc})
	code := svc.AddAsset("LayerCode", "layer.zip")
	svc.Add("Layer", &lambda.LayerVersion{Content: &lambda.LayerVersion_Content{S3Bucket: code.Bucket(), S3Key: code.Key()}})
	if extra != nil {
		extra(svc)
	}

	asm, err := app.Synth()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, asm.Write(dir))
	return dir, asm
}

func newDeployer(cfn *fakeCFN, s3api *fakeS3) *Deployer {
	return New(cfn, assets.NewPublisher(s3api, "us-east-1", nil), WithPollInterval(time.Millisecond, time.Millisecond))
}

func TestDeploy_CreatesInOrder(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	s3api := &fakeS3{objects: map[string]bool{}}

	results, err := newDeployer(cfn, s3api).Deploy(context.Background(), dir, asm, Options{Tags: map[string]string{"env": "test"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"create Net", "create App"}, cfn.calls)
	require.Len(t, results, 2)
	assert.Equal(t, ActionCreate, results[0].Action)
	assert.Equal(t, "CREATE_COMPLETE", results[1].Status)
	assert.Equal(t, map[string]string{"Name": "App"}, results[1].Outputs)
	assert.Equal(t, 1, results[1].Assets)
	assert.Len(t, s3api.objects, 1)

	assert.Equal(t, Capabilities, cfn.creates[0].Capabilities)
	assert.Equal(t, []types.Tag{
		{Key: aws.String("env"), Value: aws.String("test")},
		{Key: aws.String("team"), Value: aws.String("games")},
	}, cfn.creates[0].Tags)
	assert.Contains(t, aws.ToString(cfn.creates[1].TemplateBody), `"Fn::ImportValue"`)
}

func TestDeploy_NoChangesIsNoop(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	d := newDeployer(cfn, &fakeS3{objects: map[string]bool{}})

	_, err := d.Deploy(context.Background(), dir, asm, Options{})
	require.NoError(t, err)

	results, err := d.Deploy(context.Background(), dir, asm, Options{})
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, results[0].Action)
	assert.Equal(t, ActionNoop, results[1].Action)
	assert.Zero(t, results[1].Assets, "published assets are not uploaded again")
}

func TestDeploy_Update(t *testing.T) {
	cfn := newFakeCFN()
	s3api := &fakeS3{objects: map[string]bool{}}

	dir, asm := writeAssembly(t, "v1", nil)
	_, err := newDeployer(cfn, s3api).Deploy(context.Background(), dir, asm, Options{})
	require.NoError(t, err)

	dir, asm = writeAssembly(t, "v2", nil)
	results, err := newDeployer(cfn, s3api).Deploy(context.Background(), dir, asm, Options{})
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, results[0].Action)
	assert.Equal(t, ActionUpdate, results[1].Action)
	assert.Equal(t, "UPDATE_COMPLETE", results[1].Status)
}

func TestDeploy_SelectionIncludesDependencies(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()

	_, err := newDeployer(cfn, &fakeS3{objects: map[string]bool{}}).Deploy(context.Background(), dir, asm, Options{Stacks: []string{"App"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"create Net", "create App"}, cfn.calls)

	_, err = newDeployer(cfn, nil).Deploy(context.Background(), dir, asm, Options{Stacks: []string{"Nope"}})
	assert.Error(t, err)
}

func TestDeploy_DryRun(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	cfn.stacks["Net"] = &fakeStack{status: types.StackStatusCreateComplete}

	results, err := newDeployer(cfn, &fakeS3{objects: map[string]bool{}}).Deploy(context.Background(), dir, asm, Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, cfn.calls)
	assert.Equal(t, ActionUpdate, results[0].Action)
	assert.Equal(t, ActionCreate, results[1].Action)
}

func TestDeploy_RollbackComplete(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	cfn.stacks["Net"] = &fakeStack{status: types.StackStatusRollbackComplete}

	_, err := newDeployer(cfn, nil).Deploy(context.Background(), dir, asm, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRollbackComplete))
	assert.Contains(t, err.Error(), "Net:")
	assert.Empty(t, cfn.calls)
}

func TestDeploy_BusyStack(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	cfn.stacks["Net"] = &fakeStack{status: types.StackStatusUpdateInProgress}

	_, err := newDeployer(cfn, nil).Deploy(context.Background(), dir, asm, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPDATE_IN_PROGRESS")
}

func TestDeploy_CreateFailureReportsReason(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	cfn.failOn = "App"
	cfn.failWith = "Resource limit exceeded"

	results, err := newDeployer(cfn, &fakeS3{objects: map[string]bool{}}).Deploy(context.Background(), dir, asm, Options{})
	require.Error(t, err)
	assert.Len(t, results, 1, "stacks deployed before the failure are reported")
	assert.Contains(t, err.Error(), "App:")
	assert.Contains(t, err.Error(), "Sg CREATE_FAILED: Resource limit exceeded")
}

func TestDeploy_OversizeTemplateUsesURL(t *testing.T) {
	big := strings.Repeat("x", assets.MaxInlineTemplateSize)
	dir, asm := writeAssembly(t, "v1", func(s *construct.Stack) {
		s.Add("Boot", &sagemaker.NotebookInstanceLifecycleConfig{
			OnStart: []sagemaker.NotebookInstanceLifecycleConfig_LifecycleHook{{Content: big}},
		})
	})
	cfn := newFakeCFN()
	s3api := &fakeS3{objects: map[string]bool{}}

	_, err := newDeployer(cfn, s3api).Deploy(context.Background(), dir, asm, Options{Stacks: []string{"App"}})
	require.Error(t, err, "no template bucket")
	assert.Contains(t, err.Error(), "no template bucket")

	cfn = newFakeCFN()
	_, err = newDeployer(cfn, s3api).Deploy(context.Background(), dir, asm, Options{TemplateBucket: "assets"})
	require.NoError(t, err)
	app := cfn.creates[1]
	assert.Nil(t, app.TemplateBody)
	assert.True(t, strings.HasPrefix(aws.ToString(app.TemplateURL), "https://assets.s3.amazonaws.com/templates/App-"))
}

func TestDestroy_ReverseOrder(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	d := newDeployer(cfn, &fakeS3{objects: map[string]bool{}})
	_, err := d.Deploy(context.Background(), dir, asm, Options{})
	require.NoError(t, err)
	cfn.calls = nil

	results, err := d.Destroy(context.Background(), asm, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete App", "delete Net"}, cfn.calls)
	assert.Equal(t, "DELETE_COMPLETE", results[0].Status)
	assert.Empty(t, cfn.stacks)

	results, err = d.Destroy(context.Background(), asm, Options{})
	require.NoError(t, err)
	assert.Equal(t, ActionAbsent, results[0].Action)
}

func TestDestroy_SelectionIncludesDependents(t *testing.T) {
	dir, asm := writeAssembly(t, "v1", nil)
	cfn := newFakeCFN()
	d := newDeployer(cfn, &fakeS3{objects: map[string]bool{}})
	_, err := d.Deploy(context.Background(), dir, asm, Options{})
	require.NoError(t, err)
	cfn.calls = nil

	_, err = d.Destroy(context.Background(), asm, Options{Stacks: []string{"Net"}, DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, cfn.calls)

	_, err = d.Destroy(context.Background(), asm, Options{Stacks: []string{"Net"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete App", "delete Net"}, cfn.calls)

	cfn.calls = nil
	_, err = d.Deploy(context.Background(), dir, asm, Options{})
	require.NoError(t, err)
	cfn.calls = nil
	_, err = d.Destroy(context.Background(), asm, Options{Stacks: []string{"App"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete App"}, cfn.calls)
}

func TestStackTags(t *testing.T) {
	tags := stackTags(map[string]string{"a": "1", "b": "2"}, map[string]string{"b": "override"})
	require.Len(t, tags, 2)
	assert.Equal(t, "override", aws.ToString(tags[1].Value))
	assert.Empty(t, stackTags(nil, nil))
}
