// Package construct composes resources into stacks and synthesizes them into a
// cloud assembly.
//
// A resource added to a stack becomes a Node. Nodes are referenced from other
// resources either directly (meaning Ref) or through Node.GetAtt. When the
// referencing resource lives in another stack the reference is turned into an
// exported output on the producer and an Fn::ImportValue on the consumer, and
// the consumer stack is ordered after the producer.
package construct

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

var (
	logicalIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,255}$`)
	stackNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]{0,127}$`)
)

// App is the root of the construct tree.
type App struct {
	name        string
	stacks      []*Stack
	byName      map[string]*Stack
	assetBucket string
	assetDir    string
	logger      *zap.Logger
	errs        []error
}

// AppOption configures an App.
type AppOption func(*App)

// WithAssetBucket sets the S3 bucket file assets are published to.
func WithAssetBucket(bucket string) AppOption {
	return func(a *App) { a.assetBucket = bucket }
}

// WithAssetDir sets the directory relative asset paths are resolved against.
func WithAssetDir(dir string) AppOption {
	return func(a *App) { a.assetDir = dir }
}

// WithLogger sets the logger used during synthesis.
func WithLogger(logger *zap.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewApp creates an empty application.
func NewApp(name string, opts ...AppOption) *App {
	a := &App{
		name:     name,
		byName:   make(map[string]*Stack),
		assetDir: ".",
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the application name.
func (a *App) Name() string { return a.name }

// AssetBucket returns the bucket file assets are published to.
func (a *App) AssetBucket() string { return a.assetBucket }

// Stacks returns the stacks in declaration order.
func (a *App) Stacks() []*Stack {
	return append([]*Stack(nil), a.stacks...)
}

// Stack returns the named stack.
func (a *App) Stack(name string) (*Stack, bool) {
	s, ok := a.byName[name]
	return s, ok
}

// StackProps configures a stack.
type StackProps struct {
	Description string
	Tags        map[string]string
}

// NewStack adds a stack to the application. Invalid or duplicate names are
// reported by Synth.
func (a *App) NewStack(name string, props StackProps) *Stack {
	s := newStack(a, name, props)
	if !stackNamePattern.MatchString(name) {
		a.errs = append(a.errs, fmt.Errorf("invalid stack name %q", name))
	}
	if _, exists := a.byName[name]; exists {
		a.errs = append(a.errs, fmt.Errorf("duplicate stack %q", name))
	} else {
		a.byName[name] = s
	}
	a.stacks = append(a.stacks, s)
	return s
}

// Err returns the declaration errors recorded so far.
func (a *App) Err() error {
	errs := append([]error(nil), a.errs...)
	for _, s := range a.stacks {
		errs = append(errs, s.errs...)
	}
	return errors.Join(errs...)
}

func (a *App) resolveAssetPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.assetDir, path)
}
