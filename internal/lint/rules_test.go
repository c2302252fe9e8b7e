package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	infra "github.com/cohort-modeler/cohort-infra"
)

func ruleIDs(issues []Issue) []string {
	var ids []string
	for _, i := range issues {
		ids = append(ids, i.Rule)
	}
	return ids
}

func TestAllRules_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, r := range AllRules() {
		assert.False(t, seen[r.ID()], "duplicate rule %s", r.ID())
		seen[r.ID()] = true
		assert.NotEmpty(t, r.Description())
	}
	assert.Len(t, seen, 6)
}

func TestOpenIngress(t *testing.T) {
	tests := []struct {
		name string
		def  infra.ResourceDef
		want int
	}{
		{
			name: "vpc only",
			def: infra.ResourceDef{Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{
				"SecurityGroupIngress": []any{map[string]any{"IpProtocol": "tcp", "CidrIp": "10.0.0.0/16", "FromPort": 8182.0, "ToPort": 8182.0}},
			}},
		},
		{
			name: "world ipv4",
			def: infra.ResourceDef{Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{
				"SecurityGroupIngress": []any{
					map[string]any{"IpProtocol": "tcp", "CidrIp": "0.0.0.0/0", "FromPort": 443.0, "ToPort": 443.0},
					map[string]any{"IpProtocol": "tcp", "CidrIp": "0.0.0.0/0", "FromPort": 80.0, "ToPort": 80.0},
				},
			}},
			want: 2,
		},
		{
			name: "standalone ingress ipv6",
			def:  infra.ResourceDef{Type: "AWS::EC2::SecurityGroupIngress", Properties: map[string]any{"IpProtocol": "-1", "CidrIpv6": "::/0"}},
			want: 1,
		},
		{
			name: "world egress is fine",
			def: infra.ResourceDef{Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{
				"SecurityGroupEgress": []any{map[string]any{"IpProtocol": "-1", "CidrIp": "0.0.0.0/0"}},
			}},
		},
		{
			name: "other type",
			def:  infra.ResourceDef{Type: "AWS::EC2::VPC", Properties: map[string]any{"CidrIp": "0.0.0.0/0"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := OpenIngress{}.Check("Sg", tt.def)
			assert.Len(t, issues, tt.want)
			for _, i := range issues {
				assert.Equal(t, "CMI001", i.Rule)
				assert.Equal(t, SeverityError, i.Severity)
			}
		})
	}
}

func TestOpenIngress_Message(t *testing.T) {
	issues := OpenIngress{}.Check("Sg", infra.ResourceDef{
		Type:       "AWS::EC2::SecurityGroupIngress",
		Properties: map[string]any{"IpProtocol": "-1", "CidrIp": "0.0.0.0/0"},
	})
	assert.Equal(t, "ingress all ports all open to 0.0.0.0/0", issues[0].Message)

	issues = OpenIngress{}.Check("Sg", infra.ResourceDef{
		Type:       "AWS::EC2::SecurityGroupIngress",
		Properties: map[string]any{"IpProtocol": "tcp", "CidrIp": "0.0.0.0/0", "FromPort": 1000.0, "ToPort": 2000.0},
	})
	assert.Equal(t, "ingress tcp ports 1000-2000 open to 0.0.0.0/0", issues[0].Message)
}

func trust(principal any) map[string]any {
	return map[string]any{
		"Version": "2012-10-17",
		"Statement": []any{map[string]any{
			"Effect":    "Allow",
			"Principal": principal,
			"Action":    "sts:AssumeRole",
		}},
	}
}

func TestWildcardPrincipal(t *testing.T) {
	tests := []struct {
		name string
		def  infra.ResourceDef
		want int
	}{
		{
			name: "service principal",
			def: infra.ResourceDef{Type: "AWS::IAM::Role", Properties: map[string]any{
				"AssumeRolePolicyDocument": trust(map[string]any{"Service": []any{"rds.amazonaws.com", "monitoring.rds.amazonaws.com"}}),
			}},
		},
		{
			name: "star string",
			def:  infra.ResourceDef{Type: "AWS::IAM::Role", Properties: map[string]any{"AssumeRolePolicyDocument": trust("*")}},
			want: 1,
		},
		{
			name: "star aws",
			def:  infra.ResourceDef{Type: "AWS::IAM::Role", Properties: map[string]any{"AssumeRolePolicyDocument": trust(map[string]any{"AWS": "*"})}},
			want: 1,
		},
		{
			name: "star in list",
			def:  infra.ResourceDef{Type: "AWS::IAM::Role", Properties: map[string]any{"AssumeRolePolicyDocument": trust(map[string]any{"AWS": []any{"arn:aws:iam::1:root", "*"}})}},
			want: 1,
		},
		{
			name: "inline policy",
			def: infra.ResourceDef{Type: "AWS::IAM::Role", Properties: map[string]any{
				"AssumeRolePolicyDocument": trust(map[string]any{"Service": "sagemaker.amazonaws.com"}),
				"Policies":                 []any{map[string]any{"PolicyName": "NotebookPolicy", "PolicyDocument": trust("*")}},
			}},
			want: 1,
		},
		{
			name: "deny is fine",
			def: infra.ResourceDef{Type: "AWS::IAM::ManagedPolicy", Properties: map[string]any{
				"PolicyDocument": map[string]any{"Statement": map[string]any{"Effect": "Deny", "Principal": "*"}},
			}},
		},
		{
			name: "endpoint policy out of scope",
			def: infra.ResourceDef{Type: "AWS::EC2::VPCEndpoint", Properties: map[string]any{
				"PolicyDocument": trust("*"),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := WildcardPrincipal{}.Check("Role", tt.def)
			assert.Len(t, issues, tt.want)
		})
	}
}

func TestDeprecatedRuntime(t *testing.T) {
	tests := []struct {
		name string
		def  infra.ResourceDef
		want []string
	}{
		{
			name: "python3.8 function",
			def:  infra.ResourceDef{Type: "AWS::Serverless::Function", Properties: map[string]any{"Runtime": "python3.8"}},
			want: []string{"use python3.12"},
		},
		{
			name: "current function",
			def:  infra.ResourceDef{Type: "AWS::Lambda::Function", Properties: map[string]any{"Runtime": "python3.12"}},
		},
		{
			name: "layer",
			def:  infra.ResourceDef{Type: "AWS::Lambda::LayerVersion", Properties: map[string]any{"CompatibleRuntimes": []any{"python3.12", "nodejs14.x", "go1.x"}}},
			want: []string{"use nodejs20.x", "use provided.al2023"},
		},
		{
			name: "no runtime",
			def:  infra.ResourceDef{Type: "AWS::Serverless::Function", Properties: map[string]any{"PackageType": "Image"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := DeprecatedRuntime{}.Check("Fn", tt.def)
			var got []string
			for _, i := range issues {
				assert.Equal(t, SeverityWarning, i.Severity)
				got = append(got, i.Suggestion)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFunctionWithoutVPC(t *testing.T) {
	inVPC := infra.ResourceDef{Type: "AWS::Serverless::Function", Properties: map[string]any{
		"VpcConfig": map[string]any{"SubnetIds": []any{"subnet-1"}, "SecurityGroupIds": []any{"sg-1"}},
	}}
	assert.Empty(t, FunctionWithoutVPC{}.Check("Fn", inVPC))

	emptySubnets := infra.ResourceDef{Type: "AWS::Lambda::Function", Properties: map[string]any{
		"VpcConfig": map[string]any{"SubnetIds": []any{}},
	}}
	assert.Equal(t, []string{"CMI004"}, ruleIDs(FunctionWithoutVPC{}.Check("Fn", emptySubnets)))

	noConfig := infra.ResourceDef{Type: "AWS::Serverless::Function"}
	assert.Equal(t, []string{"CMI004"}, ruleIDs(FunctionWithoutVPC{}.Check("Fn", noConfig)))

	assert.Empty(t, FunctionWithoutVPC{}.Check("Layer", infra.ResourceDef{Type: "AWS::Lambda::LayerVersion"}))
}

func TestUnencryptedNeptune(t *testing.T) {
	cluster := infra.ResourceDef{Type: "AWS::Neptune::DBCluster", Properties: map[string]any{"DBPort": 8182.0}}
	assert.Equal(t, []string{"CMI005"}, ruleIDs(UnencryptedNeptune{}.Check("CohortGraphDB", cluster)))

	cluster.Properties["StorageEncrypted"] = true
	assert.Empty(t, UnencryptedNeptune{}.Check("CohortGraphDB", cluster))

	assert.Empty(t, UnencryptedNeptune{}.Check("Instance", infra.ResourceDef{Type: "AWS::Neptune::DBInstance"}))
}

func TestSecurityGroupDescription(t *testing.T) {
	sg := infra.ResourceDef{Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{
		"GroupDescription": " ",
		"SecurityGroupIngress": []any{
			map[string]any{"IpProtocol": "tcp", "Description": "gremlin"},
			map[string]any{"IpProtocol": "tcp"},
		},
		"SecurityGroupEgress": []any{map[string]any{"IpProtocol": "-1"}},
	}}

	issues := SecurityGroupDescription{}.Check("Sg", sg)
	var messages []string
	for _, i := range issues {
		messages = append(messages, i.Message)
	}
	assert.Equal(t, []string{
		"security group has no GroupDescription",
		"SecurityGroupIngress[1] has no Description",
		"SecurityGroupEgress[0] has no Description",
	}, messages)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, SeverityInfo, issues[1].Severity)
}
