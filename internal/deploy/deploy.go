// Package deploy creates, updates and deletes the stacks of a cloud assembly
// through the CloudFormation API.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/assets"
)

// CloudFormationAPI is the subset of the CloudFormation client used to deploy.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
}

var _ CloudFormationAPI = (*cloudformation.Client)(nil)

// Actions reported in a Result.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionNoop   = "no-op"
	ActionDelete = "delete"
	ActionAbsent = "absent"
)

// Capabilities acknowledged on every create and update.
var Capabilities = []types.Capability{
	types.CapabilityCapabilityIam,
	types.CapabilityCapabilityNamedIam,
	types.CapabilityCapabilityAutoExpand,
}

const noUpdatesMessage = "No updates are to be performed"

// ErrRollbackComplete is returned for a stack whose creation failed and
// rolled back. It has to be deleted before it can be deployed again.
var ErrRollbackComplete = errors.New("stack is in ROLLBACK_COMPLETE and must be deleted before it can be deployed")

// Options selects what to deploy.
type Options struct {
	// Stacks restricts the operation to these stacks. Deploy adds their
	// dependencies and Destroy adds their dependents.
	Stacks []string
	// DryRun reports the planned action without changing anything.
	DryRun bool
	// Tags are applied to every stack on top of the manifest tags.
	Tags map[string]string
	// TemplateBucket receives templates too large to send inline.
	TemplateBucket string
	// Timeout bounds the wait for each stack.
	Timeout time.Duration
}

// Result describes what happened to one stack.
type Result struct {
	Stack   string            `json:"stack"`
	Action  string            `json:"action"`
	Status  string            `json:"status,omitempty"`
	Assets  int               `json:"assets,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Deployer applies an assembly to an AWS account.
type Deployer struct {
	cfn       CloudFormationAPI
	publisher *assets.Publisher
	logger    *zap.Logger
	minDelay  time.Duration
	maxDelay  time.Duration
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Deployer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithPollInterval sets the delay bounds of the stack status waiters.
func WithPollInterval(minDelay, maxDelay time.Duration) Option {
	return func(d *Deployer) {
		d.minDelay = minDelay
		d.maxDelay = maxDelay
	}
}

// New returns a Deployer. The publisher uploads assets and oversize templates.
func New(cfn CloudFormationAPI, publisher *assets.Publisher, opts ...Option) *Deployer {
	d := &Deployer{
		cfn:       cfn,
		publisher: publisher,
		logger:    zap.NewNop(),
		minDelay:  5 * time.Second,
		maxDelay:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy creates or updates the selected stacks of the assembly in dir in
// dependency order, publishing each stack's assets first. It stops at the
// first failing stack.
func (d *Deployer) Deploy(ctx context.Context, dir string, asm *assembly.Assembly, opts Options) ([]Result, error) {
	selected, err := asm.Select(opts.Stacks...)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, s := range selected {
		res, err := d.deployStack(ctx, dir, asm, s, opts)
		if err != nil {
			return results, fmt.Errorf("%s: %w", s.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *Deployer) deployStack(ctx context.Context, dir string, asm *assembly.Assembly, s infra.ManifestStack, opts Options) (Result, error) {
	log := d.logger.With(zap.String("stack", s.Name))
	res := Result{Stack: s.Name}

	current, err := d.describe(ctx, s.Name)
	if err != nil {
		return res, err
	}
	if current != nil {
		res.Status = string(current.StackStatus)
		switch {
		case current.StackStatus == types.StackStatusRollbackComplete:
			return res, ErrRollbackComplete
		case strings.HasSuffix(string(current.StackStatus), "_IN_PROGRESS"):
			return res, fmt.Errorf("stack is busy (%s)", current.StackStatus)
		}
	}

	res.Action = ActionCreate
	if current != nil {
		res.Action = ActionUpdate
	}
	if opts.DryRun {
		log.Info("dry run", zap.String("action", res.Action))
		return res, nil
	}

	var entries []infra.AssetEntry
	for _, id := range s.Assets {
		e, ok := asm.Asset(id)
		if !ok {
			return res, fmt.Errorf("asset %s missing from manifest", id)
		}
		entries = append(entries, e)
	}
	if len(entries) > 0 {
		n, err := d.publisher.Publish(ctx, dir, entries)
		if err != nil {
			return res, err
		}
		res.Assets = n
		log.Info("published assets", zap.Int("uploaded", n), zap.Int("total", len(entries)))
	}

	body, url, err := d.templateSource(ctx, dir, s, opts.TemplateBucket)
	if err != nil {
		return res, err
	}
	tags := stackTags(s.Tags, opts.Tags)

	log.Info("deploying stack", zap.String("action", res.Action))
	if res.Action == ActionCreate {
		_, err = d.cfn.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:    aws.String(s.Name),
			TemplateBody: body,
			TemplateURL:  url,
			Capabilities: Capabilities,
			Tags:         tags,
		})
		if err != nil {
			return res, fmt.Errorf("create stack: %w", err)
		}
		err = d.waitCreate(ctx, s.Name, opts.Timeout)
	} else {
		_, err = d.cfn.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:    aws.String(s.Name),
			TemplateBody: body,
			TemplateURL:  url,
			Capabilities: Capabilities,
			Tags:         tags,
		})
		if isNoUpdates(err) {
			res.Action = ActionNoop
			log.Info("stack is up to date")
			err = nil
		} else if err != nil {
			return res, fmt.Errorf("update stack: %w", err)
		} else {
			err = d.waitUpdate(ctx, s.Name, opts.Timeout)
		}
	}
	if err != nil {
		return res, d.failure(ctx, s.Name, err)
	}

	final, err := d.describe(ctx, s.Name)
	if err != nil {
		return res, err
	}
	if final != nil {
		res.Status = string(final.StackStatus)
		res.Outputs = outputs(final)
	}
	log.Info("stack deployed", zap.String("status", res.Status))
	return res, nil
}

// Destroy deletes the selected stacks and everything depending on them in
// reverse dependency order.
func (d *Deployer) Destroy(ctx context.Context, asm *assembly.Assembly, opts Options) ([]Result, error) {
	selected, err := dependents(asm, opts.Stacks)
	if err != nil {
		return nil, err
	}

	var results []Result
	for i := len(selected) - 1; i >= 0; i-- {
		name := selected[i].Name
		log := d.logger.With(zap.String("stack", name))

		current, err := d.describe(ctx, name)
		if err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}
		if current == nil {
			results = append(results, Result{Stack: name, Action: ActionAbsent})
			continue
		}
		res := Result{Stack: name, Action: ActionDelete, Status: string(current.StackStatus)}
		if opts.DryRun {
			results = append(results, res)
			continue
		}

		log.Info("deleting stack")
		if _, err := d.cfn.DeleteStack(ctx, &cloudformation.DeleteStackInput{StackName: aws.String(name)}); err != nil {
			return results, fmt.Errorf("%s: delete stack: %w", name, err)
		}
		if err := d.waitDelete(ctx, name, opts.Timeout); err != nil {
			return results, fmt.Errorf("%s: %w", name, d.failure(ctx, name, err))
		}
		res.Status = string(types.StackStatusDeleteComplete)
		results = append(results, res)
		log.Info("stack deleted")
	}
	return results, nil
}

// dependents returns the named stacks plus every stack that depends on them,
// in deployment order.
func dependents(asm *assembly.Assembly, names []string) ([]infra.ManifestStack, error) {
	if len(names) == 0 {
		return asm.Select()
	}
	wanted := make(map[string]bool)
	for _, name := range names {
		if _, ok := asm.Manifest.Stack(name); !ok {
			return nil, fmt.Errorf("unknown stack %q", name)
		}
		wanted[name] = true
	}
	var out []infra.ManifestStack
	for _, s := range asm.Manifest.Stacks {
		for _, dep := range s.Dependencies {
			if wanted[dep] {
				wanted[s.Name] = true
			}
		}
		if wanted[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *Deployer) templateSource(ctx context.Context, dir string, s infra.ManifestStack, bucket string) (body, url *string, err error) {
	data, err := os.ReadFile(assembly.TemplatePath(dir, s))
	if err != nil {
		return nil, nil, fmt.Errorf("read template: %w", err)
	}
	if len(data) <= assets.MaxInlineTemplateSize {
		return aws.String(string(data)), nil, nil
	}
	if bucket == "" {
		return nil, nil, fmt.Errorf("template is %d bytes, over the inline limit, and no template bucket is configured", len(data))
	}
	u, err := d.publisher.UploadTemplate(ctx, bucket, s.Name, data)
	if err != nil {
		return nil, nil, err
	}
	return nil, aws.String(u), nil
}

// describe returns the stack, or nil when it does not exist.
func (d *Deployer) describe(ctx context.Context, name string) (*types.Stack, error) {
	out, err := d.cfn.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)})
	if isMissingStack(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("describe stack: %w", err)
	}
	if len(out.Stacks) == 0 || out.Stacks[0].StackStatus == types.StackStatusDeleteComplete {
		return nil, nil
	}
	return &out.Stacks[0], nil
}

func (d *Deployer) waitCreate(ctx context.Context, name string, timeout time.Duration) error {
	w := cloudformation.NewStackCreateCompleteWaiter(d.cfn, func(o *cloudformation.StackCreateCompleteWaiterOptions) {
		o.MinDelay, o.MaxDelay = d.minDelay, d.maxDelay
	})
	return w.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)}, waitTimeout(timeout))
}

func (d *Deployer) waitUpdate(ctx context.Context, name string, timeout time.Duration) error {
	w := cloudformation.NewStackUpdateCompleteWaiter(d.cfn, func(o *cloudformation.StackUpdateCompleteWaiterOptions) {
		o.MinDelay, o.MaxDelay = d.minDelay, d.maxDelay
	})
	return w.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)}, waitTimeout(timeout))
}

func (d *Deployer) waitDelete(ctx context.Context, name string, timeout time.Duration) error {
	w := cloudformation.NewStackDeleteCompleteWaiter(d.cfn, func(o *cloudformation.StackDeleteCompleteWaiterOptions) {
		o.MinDelay, o.MaxDelay = d.minDelay, d.maxDelay
	})
	return w.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)}, waitTimeout(timeout))
}

func waitTimeout(t time.Duration) time.Duration {
	if t <= 0 {
		return time.Hour
	}
	return t
}

// failure adds the first failed resource event to a waiter error.
func (d *Deployer) failure(ctx context.Context, name string, err error) error {
	out, evErr := d.cfn.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{StackName: aws.String(name)})
	if evErr != nil {
		return err
	}
	// events are newest first
	for i := len(out.StackEvents) - 1; i >= 0; i-- {
		ev := out.StackEvents[i]
		if strings.HasSuffix(string(ev.ResourceStatus), "_FAILED") && aws.ToString(ev.ResourceStatusReason) != "" {
			return fmt.Errorf("%w: %s %s: %s", err,
				aws.ToString(ev.LogicalResourceId), ev.ResourceStatus, aws.ToString(ev.ResourceStatusReason))
		}
	}
	return err
}

func stackTags(manifest, extra map[string]string) []types.Tag {
	merged := make(map[string]string, len(manifest)+len(extra))
	for k, v := range manifest {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]types.Tag, len(keys))
	for i, k := range keys {
		tags[i] = types.Tag{Key: aws.String(k), Value: aws.String(merged[k])}
	}
	return tags
}

func outputs(s *types.Stack) map[string]string {
	if len(s.Outputs) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Outputs))
	for _, o := range s.Outputs {
		out[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return out
}

func validationError(err error) (string, bool) {
	var ae smithy.APIError
	if errors.As(err, &ae) && ae.ErrorCode() == "ValidationError" {
		return ae.ErrorMessage(), true
	}
	return "", false
}

func isNoUpdates(err error) bool {
	msg, ok := validationError(err)
	return ok && strings.Contains(msg, noUpdatesMessage)
}

func isMissingStack(err error) bool {
	msg, ok := validationError(err)
	return ok && strings.Contains(msg, "does not exist")
}
