package shaders

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
)

//go:embed compute.wgsl.tmpl
var computeTemplateText string

//go:embed render.wgsl.tmpl
var renderTemplateText string

var (
	computeTemplate = template.Must(template.New("compute.wgsl").Parse(computeTemplateText))
	renderTemplate  = template.Must(template.New("render.wgsl").Parse(renderTemplateText))
)

const (
	ComputeEntryPoint  = "main"
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"

	// Shader locations; the shape vertex is always slot 1, location 0.
	ShapeLocation    = 0
	PositionLocation = 1
	ColorLocation    = 2
	VelocityLocation = 3
)

// Options tweak program generation without touching the particle layout.
type Options struct {
	WorkgroupSize    uint32
	OrientToVelocity bool
}

// Attribute is one per-instance vertex input read straight from a particle buffer.
type Attribute struct {
	Field      string
	Location   uint32
	Offset     uint64 // bytes into the record
	Components int
}

// Programs holds generated WGSL for both stages.
type Programs struct {
	Compute  string
	Render   string
	Instance []Attribute
	Stride   uint64
}

// InstanceAttributes lists the particle fields the render program consumes.
func InstanceAttributes(layout core.FieldLayout, opts Options) []Attribute {
	attrs := []Attribute{attribute(layout, core.FieldPosition, PositionLocation)}
	if layout.Has(core.FieldColor) {
		attrs = append(attrs, attribute(layout, core.FieldColor, ColorLocation))
	}
	if opts.OrientToVelocity {
		attrs = append(attrs, attribute(layout, core.FieldVelocity, VelocityLocation))
	}
	return attrs
}

func attribute(layout core.FieldLayout, field string, location uint32) Attribute {
	off, _ := layout.Offset(field)
	components := 0
	for _, f := range layout.Fields() {
		if f.Name == field {
			components = f.Components
		}
	}
	return Attribute{
		Field:      field,
		Location:   location,
		Offset:     uint64(off * 4),
		Components: components,
	}
}

// Generate renders both programs for layout.
func Generate(layout core.FieldLayout, opts Options) (Programs, error) {
	if !layout.Valid() {
		return Programs{}, core.ConfigErrorf("layout", "empty field layout")
	}
	if opts.WorkgroupSize == 0 {
		return Programs{}, core.ConfigErrorf("workgroup_size", "must be positive")
	}
	posOff, _ := layout.Offset(core.FieldPosition)
	velOff, _ := layout.Offset(core.FieldVelocity)

	var compute bytes.Buffer
	err := computeTemplate.Execute(&compute, map[string]any{
		"Floats":         layout.Floats(),
		"PositionOffset": posOff,
		"VelocityOffset": velOff,
		"WorkgroupSize":  opts.WorkgroupSize,
		"Reflect":        uint32(core.BoundaryReflect),
		"Wrap":           uint32(core.BoundaryWrap),
		"Reset":          uint32(core.BoundaryResetToOpposite),
	})
	if err != nil {
		return Programs{}, fmt.Errorf("failed to generate compute program: %w", err)
	}

	var render bytes.Buffer
	err = renderTemplate.Execute(&render, map[string]any{
		"ShapeLocation":    ShapeLocation,
		"PositionLocation": PositionLocation,
		"ColorLocation":    ColorLocation,
		"VelocityLocation": VelocityLocation,
		"HasColor":         layout.Has(core.FieldColor),
		"Orient":           opts.OrientToVelocity,
	})
	if err != nil {
		return Programs{}, fmt.Errorf("failed to generate render program: %w", err)
	}

	return Programs{
		Compute:  compute.String(),
		Render:   render.String(),
		Instance: InstanceAttributes(layout, opts),
		Stride:   uint64(layout.Stride()),
	}, nil
}
