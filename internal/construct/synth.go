package construct

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"

	"go.uber.org/zap"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/assets"
	"github.com/cohort-modeler/cohort-infra/internal/serialize"
	"github.com/cohort-modeler/cohort-infra/internal/template"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

type synthesis struct {
	app    *App
	stacks map[*Stack]*stackSynth
	assets map[*Asset]infra.AssetEntry
}

type exportDecl struct {
	outputID string
	value    any
}

type stackSynth struct {
	syn        *synthesis
	stack      *Stack
	ser        *serialize.Serializer
	entries    []template.Entry
	mappings   map[string]intrinsics.Mapping
	outputs    map[string]infra.Output
	exports    map[string]exportDecl
	deps       map[*Stack]bool
	usedAssets map[*Asset]bool
}

func (syn *synthesis) stackSynth(s *Stack) *stackSynth {
	if ss, ok := syn.stacks[s]; ok {
		return ss
	}
	ss := &stackSynth{
		syn:        syn,
		stack:      s,
		mappings:   make(map[string]intrinsics.Mapping),
		outputs:    make(map[string]infra.Output),
		exports:    make(map[string]exportDecl),
		deps:       make(map[*Stack]bool),
		usedAssets: make(map[*Asset]bool),
	}
	ss.ser = serialize.New(ss.resolve)
	syn.stacks[s] = ss
	return ss
}

// Synth resolves references between resources and stacks and returns the
// cloud assembly. Declaration errors recorded while building the tree are
// returned together.
func (a *App) Synth() (*assembly.Assembly, error) {
	if err := a.Err(); err != nil {
		return nil, err
	}

	syn := &synthesis{
		app:    a,
		stacks: make(map[*Stack]*stackSynth),
		assets: make(map[*Asset]infra.AssetEntry),
	}

	if err := syn.fingerprintAssets(); err != nil {
		return nil, err
	}

	var errs []error
	for _, s := range a.stacks {
		ss := syn.stackSynth(s)
		if err := ss.resolveStack(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order, err := syn.stackOrder()
	if err != nil {
		return nil, err
	}

	asm := &assembly.Assembly{
		Manifest: infra.Manifest{
			Version: assembly.ManifestVersion,
			App:     a.name,
		},
		Templates: make(map[string]*infra.Template, len(order)),
	}

	for _, s := range order {
		ss := syn.stacks[s]
		tmpl, err := ss.build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		asm.Templates[s.name] = tmpl
		asm.Manifest.Stacks = append(asm.Manifest.Stacks, ss.manifestEntry())

		a.logger.Debug("synthesized stack",
			zap.String("stack", s.name),
			zap.Int("resources", len(tmpl.Resources)),
			zap.Int("outputs", len(tmpl.Outputs)),
		)
	}

	for _, e := range syn.assets {
		asm.Manifest.Assets = append(asm.Manifest.Assets, e)
	}
	sort.Slice(asm.Manifest.Assets, func(i, j int) bool {
		return asm.Manifest.Assets[i].ID < asm.Manifest.Assets[j].ID
	})

	return asm, nil
}

func (syn *synthesis) fingerprintAssets() error {
	var errs []error
	seen := make(map[string]string)
	for _, s := range syn.app.stacks {
		for _, asset := range s.assets {
			if owner, dup := seen[asset.id]; dup {
				errs = append(errs, fmt.Errorf("asset id %q declared in both %s and %s", asset.id, owner, s.name))
				continue
			}
			seen[asset.id] = s.name

			path := syn.app.resolveAssetPath(asset.path)
			hash, err := assets.Fingerprint(path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			syn.assets[asset] = infra.AssetEntry{
				ID:         asset.id,
				SourcePath: path,
				StagedPath: assets.StagedName(hash, path),
				Hash:       hash,
				Bucket:     syn.app.assetBucket,
				Key:        assets.ObjectKey(hash, path),
			}
		}
	}
	if len(syn.assets) > 0 && syn.app.assetBucket == "" {
		errs = append(errs, errors.New("file assets are declared but no asset bucket is configured"))
	}
	return errors.Join(errs...)
}

func (syn *synthesis) stackOrder() ([]*Stack, error) {
	names := make([]string, 0, len(syn.app.stacks))
	deps := make(map[string][]string)
	for _, s := range syn.app.stacks {
		names = append(names, s.name)
		deps[s.name] = syn.stacks[s].dependencyNames()
	}

	sorted, err := template.SortDependencies(names, deps)
	if err != nil {
		return nil, fmt.Errorf("stack dependencies: %w", err)
	}

	out := make([]*Stack, len(sorted))
	for i, name := range sorted {
		out[i] = syn.app.byName[name]
	}
	return out, nil
}

func (ss *stackSynth) resolveStack() error {
	var errs []error

	for _, dep := range ss.stack.deps {
		ss.deps[dep] = true
	}

	for _, n := range ss.stack.nodes {
		props, err := ss.ser.Resource(n.resource)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", ss.stack.name, n.id, err))
			continue
		}

		var dependsOn []string
		for _, dep := range n.dependsOn {
			if dep.stack == ss.stack {
				dependsOn = append(dependsOn, dep.id)
			} else {
				ss.deps[dep.stack] = true
			}
		}

		ss.entries = append(ss.entries, template.Entry{
			LogicalID:           n.id,
			Type:                n.resource.ResourceType(),
			Properties:          props,
			DependsOn:           dependsOn,
			DeletionPolicy:      n.deletionPolicy,
			UpdateReplacePolicy: n.updateReplacePolicy,
		})
	}

	for _, m := range ss.stack.mappings {
		ss.mappings[m.name] = m.table
	}

	for _, o := range ss.stack.outputs {
		value, err := ss.ser.Value(o.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", ss.stack.name, o.id, err))
			continue
		}
		out := infra.Output{Description: o.description, Value: value}
		if o.exportName != "" {
			out.Export = &infra.Export{Name: o.exportName}
		}
		ss.outputs[o.id] = out
	}

	for _, asset := range ss.stack.assets {
		ss.usedAssets[asset] = true
	}

	return errors.Join(errs...)
}

// resolve is the serializer hook turning construct values into intrinsics.
func (ss *stackSynth) resolve(v any) (any, bool, error) {
	switch val := v.(type) {
	case *Node:
		out, err := ss.reference(Reference{node: val})
		return out, true, err
	case Reference:
		out, err := ss.reference(val)
		return out, true, err
	case MappingLookup:
		out, err := ss.findInMap(val)
		return out, true, err
	case AssetAttribute:
		out, err := ss.assetValue(val)
		return out, true, err
	case *MappingHandle:
		return nil, true, fmt.Errorf("mapping %s used as a value, use FindInMap", val.name)
	case *Asset:
		return nil, true, fmt.Errorf("asset %s used as a value, use Bucket or Key", val.id)
	case *Stack:
		return nil, true, fmt.Errorf("stack %s used as a value", val.name)
	}
	return nil, false, nil
}

func (ss *stackSynth) reference(r Reference) (any, error) {
	n := r.node
	if n == nil || n.stack == nil {
		return nil, errors.New("reference to an undeclared resource")
	}
	if registered, ok := n.stack.byID[n.id]; !ok || registered != n {
		return nil, fmt.Errorf("reference to %s which was not added to %s", n.id, n.stack.name)
	}
	if r.attr != "" && !n.hasAttribute(r.attr) {
		return nil, fmt.Errorf("%s (%s) has no attribute %q", n.id, n.Type(), r.attr)
	}

	local := map[string]any{"Ref": n.id}
	if r.attr != "" {
		local = map[string]any{"Fn::GetAtt": []any{n.id, r.attr}}
	}
	if n.stack == ss.stack {
		return local, nil
	}

	exportName := ExportName(n.stack.name, n.id, r.attr)
	producer := ss.syn.stackSynth(n.stack)
	producer.exports[exportName] = exportDecl{
		outputID: "Export" + n.id + nonAlnum.ReplaceAllString(r.attr, ""),
		value:    local,
	}
	ss.deps[n.stack] = true
	return map[string]any{"Fn::ImportValue": exportName}, nil
}

// ExportName is the export used when a resource of one stack is referenced
// from another.
func ExportName(stack, logicalID, attr string) string {
	name := stack + ":" + logicalID
	if attr != "" {
		name += "-" + nonAlnum.ReplaceAllString(attr, "")
	}
	return name
}

func (ss *stackSynth) findInMap(l MappingLookup) (any, error) {
	m := l.mapping
	if m == nil {
		return nil, errors.New("FindInMap on an undeclared mapping")
	}
	if m.stack != ss.stack {
		if existing, ok := ss.mappings[m.name]; ok && !reflect.DeepEqual(existing, m.table) {
			return nil, fmt.Errorf("mapping %s from %s conflicts with a mapping of the same name", m.name, m.stack.name)
		}
		ss.mappings[m.name] = m.table
	}

	if top, ok := l.topKey.(string); ok {
		if _, found := m.table[top]; !found {
			return nil, fmt.Errorf("mapping %s has no key %q", m.name, top)
		}
	}

	top, err := ss.ser.Value(l.topKey)
	if err != nil {
		return nil, err
	}
	second, err := ss.ser.Value(l.secondKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{"Fn::FindInMap": []any{m.name, top, second}}, nil
}

func (ss *stackSynth) assetValue(attr AssetAttribute) (any, error) {
	entry, ok := ss.syn.assets[attr.asset]
	if !ok {
		return nil, fmt.Errorf("asset %s was not declared with AddAsset", attr.asset.id)
	}
	ss.usedAssets[attr.asset] = true
	if attr.field == assetBucket {
		return entry.Bucket, nil
	}
	return entry.Key, nil
}

func (ss *stackSynth) dependencyNames() []string {
	names := make([]string, 0, len(ss.deps))
	for s := range ss.deps {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}

func (ss *stackSynth) build() (*infra.Template, error) {
	b := template.NewBuilder(ss.stack.props.Description)
	for _, e := range ss.entries {
		if err := b.AddResource(e); err != nil {
			return nil, err
		}
	}
	for name, table := range ss.mappings {
		b.AddMapping(name, table)
	}
	for id, out := range ss.outputs {
		b.AddOutput(id, out)
	}
	names := make([]string, 0, len(ss.exports))
	for exportName := range ss.exports {
		names = append(names, exportName)
	}
	sort.Strings(names)

	// Output ids drop the separator between logical id and attribute, so
	// distinct exports can collapse onto one id.
	exported := make(map[string]string, len(names))
	for _, exportName := range names {
		decl := ss.exports[exportName]
		if _, clash := ss.outputs[decl.outputID]; clash {
			return nil, fmt.Errorf("output %s clashes with the export of %s", decl.outputID, exportName)
		}
		if other, clash := exported[decl.outputID]; clash {
			return nil, fmt.Errorf("exports %s and %s share the output %s", other, exportName, decl.outputID)
		}
		exported[decl.outputID] = exportName
		b.AddOutput(decl.outputID, infra.Output{
			Value:  decl.value,
			Export: &infra.Export{Name: exportName},
		})
	}
	return b.Build()
}

func (ss *stackSynth) manifestEntry() infra.ManifestStack {
	entry := infra.ManifestStack{
		Name:         ss.stack.name,
		TemplateFile: ss.stack.name + ".template.json",
		Description:  ss.stack.props.Description,
		Dependencies: ss.dependencyNames(),
		Tags:         ss.stack.props.Tags,
	}
	for asset := range ss.usedAssets {
		entry.Assets = append(entry.Assets, asset.id)
	}
	sort.Strings(entry.Assets)

	for name := range ss.exports {
		entry.Exports = append(entry.Exports, name)
	}
	for _, out := range ss.outputs {
		if out.Export != nil {
			entry.Exports = append(entry.Exports, out.Export.Name)
		}
	}
	sort.Strings(entry.Exports)
	return entry
}
