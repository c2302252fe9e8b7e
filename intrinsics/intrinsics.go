// Package intrinsics provides CloudFormation intrinsic functions.
//
// The core intrinsic types are re-exported from cloudformation-schema-go; this
// package adds mapping tables, IAM policy documents and ARN helpers.
//
//	Ref{LogicalName: "CohortModelerVPC"}          → {"Ref": "CohortModelerVPC"}
//	Sub{String: "com.amazonaws.${AWS::Region}.s3"} → {"Fn::Sub": "com.amazonaws.${AWS::Region}.s3"}
//
// Values that point at other resources of a stack are usually produced by the
// construct package (Node.Ref, Node.GetAtt) rather than written by hand.
package intrinsics

import (
	"fmt"
	"strings"

	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// SubWithMap is Fn::Sub with a variable map.
	SubWithMap = intrinsics.SubWithMap

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join

	// Select represents a CloudFormation Fn::Select intrinsic function.
	Select = intrinsics.Select

	// GetAZs represents a CloudFormation Fn::GetAZs intrinsic function.
	GetAZs = intrinsics.GetAZs

	// If represents a CloudFormation Fn::If intrinsic function.
	If = intrinsics.If

	// Equals represents a CloudFormation Fn::Equals condition function.
	Equals = intrinsics.Equals

	// And represents a CloudFormation Fn::And condition function.
	And = intrinsics.And

	// Or represents a CloudFormation Fn::Or condition function.
	Or = intrinsics.Or

	// Not represents a CloudFormation Fn::Not condition function.
	Not = intrinsics.Not

	// Base64 represents a CloudFormation Fn::Base64 intrinsic function.
	Base64 = intrinsics.Base64

	// ImportValue represents a CloudFormation Fn::ImportValue intrinsic function.
	ImportValue = intrinsics.ImportValue

	// FindInMap represents a CloudFormation Fn::FindInMap intrinsic function.
	FindInMap = intrinsics.FindInMap

	// Split represents a CloudFormation Fn::Split intrinsic function.
	Split = intrinsics.Split

	// Cidr represents a CloudFormation Fn::Cidr intrinsic function.
	Cidr = intrinsics.Cidr

	// Tag represents a CloudFormation resource tag.
	Tag = intrinsics.Tag
)

// Mapping represents a CloudFormation Mappings table.
// It maps a top-level key to a second-level key to values.
//
//	var RegionTable = Mapping{
//	    "us-east-1": {"AZ1": "us-east-1a", "AZ2": "us-east-1b"},
//	}
type Mapping map[string]map[string]any

// Lookup returns the value stored under topKey/secondKey.
func (m Mapping) Lookup(topKey, secondKey string) (any, bool) {
	row, ok := m[topKey]
	if !ok {
		return nil, false
	}
	v, ok := row[secondKey]
	return v, ok
}

// Validate reports an empty table or a row missing one of the given keys.
func (m Mapping) Validate(requiredKeys ...string) error {
	if len(m) == 0 {
		return fmt.Errorf("mapping is empty")
	}
	for top, row := range m {
		for _, k := range requiredKeys {
			if _, ok := row[k]; !ok {
				return fmt.Errorf("mapping row %q has no %q key", top, k)
			}
		}
	}
	return nil
}

// Tags builds a CloudFormation tag list from alternating keys and values,
// in the order given.
func Tags(keysAndValues ...string) []any {
	tags := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		tags = append(tags, Tag{Key: keysAndValues[i], Value: keysAndValues[i+1]})
	}
	return tags
}

// ARN returns an Fn::Sub building an ARN in the stack's partition, region and
// account. An empty region or account leaves that segment empty, as S3 and IAM
// ARNs require.
//
//	ARN("logs", true, true, "log-group:/aws/neptune/*")
//	  → arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/neptune/*
func ARN(service string, regional, account bool, resource string) Sub {
	parts := []string{"arn", "${AWS::Partition}", service, "", "", resource}
	if regional {
		parts[3] = "${AWS::Region}"
	}
	if account {
		parts[4] = "${AWS::AccountId}"
	}
	return Sub{String: strings.Join(parts, ":")}
}

// ServiceEndpoint returns the regional service name used by VPC endpoints,
// e.g. com.amazonaws.us-east-1.s3.
func ServiceEndpoint(service string) Sub {
	return Sub{String: "com.amazonaws.${AWS::Region}." + service}
}
