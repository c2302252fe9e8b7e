package differ

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
)

func vpcTemplate(cidr string) *infra.Template {
	return &infra.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]infra.ResourceDef{
			"CohortModelerVPC": {
				Type:       "AWS::EC2::VPC",
				Properties: map[string]any{"CidrBlock": cidr, "EnableDnsSupport": true},
			},
		},
		Outputs: map[string]infra.Output{
			"ExportCohortModelerVPC": {
				Value:  map[string]any{"Ref": "CohortModelerVPC"},
				Export: &infra.Export{Name: "CohortModeler-Networking:CohortModelerVPC"},
			},
		},
	}
}

func TestCompare(t *testing.T) {
	t1 := &infra.Template{
		Resources: map[string]infra.ResourceDef{
			"Sg1": {Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{"GroupDescription": "one"}},
			"Sg2": {Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{"GroupDescription": "two"}},
		},
	}
	t2 := &infra.Template{
		Resources: map[string]infra.ResourceDef{
			"Sg1": {Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{"GroupDescription": "one-modified"}},
			"Sg3": {Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{"GroupDescription": "three"}},
		},
	}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)

	require.Len(t, result.Diff.Removed, 1)
	assert.Equal(t, "Sg2", result.Diff.Removed[0].Name)
	assert.Equal(t, SectionResources, result.Diff.Removed[0].Section)

	require.Len(t, result.Diff.Added, 1)
	assert.Equal(t, "Sg3", result.Diff.Added[0].Name)

	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, "Sg1", result.Diff.Modified[0].Name)
	assert.Equal(t, []string{"GroupDescription modified"}, result.Diff.Modified[0].Changes)

	assert.Equal(t, infra.DiffSummary{Added: 1, Removed: 1, Modified: 1, Total: 3}, result.Summary)
}

func TestCompareIdentical(t *testing.T) {
	tmpl := vpcTemplate("10.0.0.0/16")

	result, err := Compare(tmpl, vpcTemplate("10.0.0.0/16"), Options{})
	require.NoError(t, err)
	assert.Zero(t, result.Summary.Total)
	assert.True(t, result.Diff.IsEmpty())
}

func TestCompareNil(t *testing.T) {
	_, err := Compare(nil, vpcTemplate("10.0.0.0/16"), Options{})
	assert.Error(t, err)
}

func TestCompareTypeChange(t *testing.T) {
	t1 := &infra.Template{Resources: map[string]infra.ResourceDef{"Endpoint": {Type: "AWS::EC2::VPCEndpoint"}}}
	t2 := &infra.Template{Resources: map[string]infra.ResourceDef{"Endpoint": {Type: "AWS::EC2::NatGateway"}}}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)
	require.Len(t, result.Diff.Modified, 1)
	assert.Contains(t, result.Diff.Modified[0].Changes, "Type changed: AWS::EC2::VPCEndpoint → AWS::EC2::NatGateway")
}

func TestCompareNestedProperty(t *testing.T) {
	t1 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Fn": {Type: "AWS::Serverless::Function", Properties: map[string]any{
			"Environment": map[string]any{"Variables": map[string]any{"NeptuneEndpoint": "a"}},
		}},
	}}
	t2 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Fn": {Type: "AWS::Serverless::Function", Properties: map[string]any{
			"Environment": map[string]any{"Variables": map[string]any{"NeptuneEndpoint": "b"}},
		}},
	}}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)
	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, []string{"Environment.Variables.NeptuneEndpoint modified"}, result.Diff.Modified[0].Changes)
}

func TestCompareIntrinsicChange(t *testing.T) {
	t1 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Route": {Type: "AWS::EC2::Route", Properties: map[string]any{"NatGatewayId": map[string]any{"Ref": "Nat1"}}},
	}}
	t2 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Route": {Type: "AWS::EC2::Route", Properties: map[string]any{"NatGatewayId": map[string]any{"Fn::GetAtt": []any{"Nat2", "Id"}}}},
	}}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)
	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, []string{"NatGatewayId modified"}, result.Diff.Modified[0].Changes)
}

func TestCompareResourceAttributes(t *testing.T) {
	t1 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Layer": {Type: "AWS::Serverless::LayerVersion", DependsOn: []string{"A", "B"}},
	}}
	t2 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Layer": {Type: "AWS::Serverless::LayerVersion", DependsOn: []string{"B", "A"}, DeletionPolicy: "Delete"},
	}}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)
	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, []string{`DeletionPolicy changed: "" → "Delete"`}, result.Diff.Modified[0].Changes)
}

func TestCompareOutputsAndMappings(t *testing.T) {
	t1 := vpcTemplate("10.0.0.0/16")
	t1.Mappings = map[string]any{"RegionTable": map[string]any{"us-east-1": map[string]any{"AZ1": "us-east-1a"}}}
	t1.Outputs["Gone"] = infra.Output{Value: "x"}

	t2 := vpcTemplate("10.0.0.0/16")
	t2.Mappings = map[string]any{"RegionTable": map[string]any{"us-east-1": map[string]any{"AZ1": "us-east-1b"}}}
	t2.Outputs["ExportCohortModelerVPC"] = infra.Output{
		Value:  map[string]any{"Ref": "CohortModelerVPC"},
		Export: &infra.Export{Name: "Renamed"},
	}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)

	require.Len(t, result.Diff.Removed, 1)
	assert.Equal(t, infra.DiffEntry{Section: SectionOutputs, Name: "Gone"}, result.Diff.Removed[0])

	require.Len(t, result.Diff.Modified, 2)
	assert.Equal(t, SectionMappings, result.Diff.Modified[0].Section)
	assert.Equal(t, []string{"us-east-1.AZ1 modified"}, result.Diff.Modified[0].Changes)
	assert.Equal(t, SectionOutputs, result.Diff.Modified[1].Section)
	assert.Equal(t, []string{`Export changed: "CohortModeler-Networking:CohortModelerVPC" → "Renamed"`}, result.Diff.Modified[1].Changes)
}

func TestCompareTransform(t *testing.T) {
	t1 := &infra.Template{Resources: map[string]infra.ResourceDef{}}
	t2 := &infra.Template{Transform: infra.SAMTransform, Resources: map[string]infra.ResourceDef{}}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)
	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, "Transform", result.Diff.Modified[0].Name)
}

func TestCompareProperties(t *testing.T) {
	tests := []struct {
		name   string
		props1 map[string]any
		props2 map[string]any
		want   []string
	}{
		{
			name:   "identical",
			props1: map[string]any{"Key": "value"},
			props2: map[string]any{"Key": "value"},
		},
		{
			name:   "added property",
			props1: map[string]any{},
			props2: map[string]any{"Key": "value"},
			want:   []string{"Key added"},
		},
		{
			name:   "removed property",
			props1: map[string]any{"Key": "value"},
			props2: map[string]any{},
			want:   []string{"Key removed"},
		},
		{
			name:   "modified property",
			props1: map[string]any{"Key": "value1"},
			props2: map[string]any{"Key": "value2"},
			want:   []string{"Key modified"},
		},
		{
			name:   "typed and generic values",
			props1: map[string]any{"Port": 8182, "Ids": []string{"a"}},
			props2: map[string]any{"Port": float64(8182), "Ids": []any{"a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareProperties("", tt.props1, tt.props2, Options{}))
		})
	}
}

func TestCompareIgnoreOrder(t *testing.T) {
	t1 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Fn": {Type: "AWS::Serverless::Function", Properties: map[string]any{"SubnetIds": []any{"a", "b"}}},
	}}
	t2 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Fn": {Type: "AWS::Serverless::Function", Properties: map[string]any{"SubnetIds": []any{"b", "a"}}},
	}}

	ordered, err := Compare(t1, t2, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, ordered.Summary.Modified)

	unordered, err := Compare(t1, t2, Options{IgnoreOrder: true})
	require.NoError(t, err)
	assert.Zero(t, unordered.Summary.Total)
}

func TestEqualStringSet(t *testing.T) {
	tests := []struct {
		a, b []string
		want bool
	}{
		{nil, nil, true},
		{[]string{}, nil, true},
		{[]string{"a", "b"}, []string{"b", "a"}, true},
		{[]string{"a"}, []string{"b"}, false},
		{[]string{"a"}, []string{"a", "b"}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, equalStringSet(tt.a, tt.b), "%v vs %v", tt.a, tt.b)
	}
}

func TestCompareAssemblies(t *testing.T) {
	prev := &assembly.Assembly{Templates: map[string]*infra.Template{
		"Net": vpcTemplate("10.0.0.0/16"),
		"Old": {Resources: map[string]infra.ResourceDef{"X": {Type: "AWS::EC2::EIP"}}},
	}}
	next := &assembly.Assembly{Templates: map[string]*infra.Template{
		"Net": vpcTemplate("10.1.0.0/16"),
		"New": {Resources: map[string]infra.ResourceDef{}},
	}}

	result, err := CompareAssemblies(prev, next, Options{})
	require.NoError(t, err)

	require.Len(t, result.Diff.Added, 1)
	assert.Equal(t, infra.DiffEntry{Stack: "New", Section: SectionStack, Name: "New", Changes: []string{"0 resources"}}, result.Diff.Added[0])

	require.Len(t, result.Diff.Removed, 1)
	assert.Equal(t, "Old", result.Diff.Removed[0].Stack)

	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, "Net", result.Diff.Modified[0].Stack)
	assert.Equal(t, "CohortModelerVPC", result.Diff.Modified[0].Name)
	assert.Equal(t, []string{"CidrBlock modified"}, result.Diff.Modified[0].Changes)
}

func writeAssembly(t *testing.T, cidr string) string {
	t.Helper()
	dir := t.TempDir()
	asm := &assembly.Assembly{
		Manifest: infra.Manifest{
			Version: assembly.ManifestVersion,
			App:     "CohortModeler",
			Stacks:  []infra.ManifestStack{{Name: "Net", TemplateFile: "Net.template.json"}},
		},
		Templates: map[string]*infra.Template{"Net": vpcTemplate(cidr)},
	}
	require.NoError(t, asm.Write(dir))
	return dir
}

func TestCompareDirs(t *testing.T) {
	same, err := CompareDirs(writeAssembly(t, "10.0.0.0/16"), writeAssembly(t, "10.0.0.0/16"), Options{})
	require.NoError(t, err)
	assert.Zero(t, same.Summary.Total)

	changed, err := CompareDirs(writeAssembly(t, "10.0.0.0/16"), writeAssembly(t, "10.9.0.0/16"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, changed.Summary.Modified)

	_, err = CompareDirs(t.TempDir(), writeAssembly(t, "10.0.0.0/16"), Options{})
	assert.Error(t, err)
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "a.json")
	yamlPath := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
  "AWSTemplateFormatVersion": "2010-09-09",
  "Resources": {"Igw": {"Type": "AWS::EC2::InternetGateway"}}
}`), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(`AWSTemplateFormatVersion: "2010-09-09"
Resources:
  Igw:
    Type: AWS::EC2::InternetGateway
  Eip:
    Type: AWS::EC2::EIP
    Properties:
      Domain: vpc
`), 0o644))

	result, err := CompareFiles(jsonPath, yamlPath, Options{})
	require.NoError(t, err)
	require.Len(t, result.Diff.Added, 1)
	assert.Equal(t, "Eip", result.Diff.Added[0].Name)

	_, err = CompareFiles(filepath.Join(dir, "missing.json"), yamlPath, Options{})
	assert.Error(t, err)
}
