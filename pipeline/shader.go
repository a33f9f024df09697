package pipeline

import (
	_ "embed"
	"sort"

	"github.com/bsrt/bsrt/gpu"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

//go:embed shaders/test.wgsl
var testShader string

// Program is a WGSL compute shader to be registered.
type Program struct {
	Name   string
	Source string
	// EntryPoint defaults to "main".
	EntryPoint string
}

// TestProgram is the built-in gradient shader registered at index 0.
func TestProgram() Program {
	return Program{Name: "test", Source: testShader, EntryPoint: "main"}
}

// Reflect infers the descriptor set 0 layout of a WGSL compute shader from
// naga's IR. Every resource must live in group 0 and be an rgba8unorm 2D
// storage texture that the shader may write, and entry must be a compute
// entry point.
func Reflect(source, entry string) ([]gpu.Binding, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, mark(ErrLayout, err, "parse")
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, mark(ErrLayout, err, "lower")
	}

	var bindings []gpu.Binding
	seen := make(map[int]string)
	for _, global := range module.GlobalVariables {
		if !isResource(global.Space) {
			continue
		}
		if global.Binding == nil {
			return nil, errors.Wrapf(ErrLayout, "%s needs both @group and @binding", global.Name)
		}
		if global.Binding.Group != 0 {
			return nil, errors.Wrapf(ErrLayout, "%s is in group %d, only group 0 is supported", global.Name, global.Binding.Group)
		}

		slot := int(global.Binding.Binding)
		if other, dup := seen[slot]; dup {
			return nil, errors.Wrapf(ErrLayout, "%s and %s share binding %d", other, global.Name, slot)
		}
		if !isStorageImage(module, global.Type) {
			return nil, errors.Wrapf(ErrLayout, "%s at binding %d is not a writable rgba8unorm 2D storage texture", global.Name, slot)
		}

		seen[slot] = global.Name
		bindings = append(bindings, gpu.Binding{Slot: slot, Kind: gpu.BindingStorageImage})
	}

	found := false
	for _, ep := range module.EntryPoints {
		if ep.Name == entry && ep.Stage == ir.StageCompute {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrapf(ErrLayout, "no @compute entry point %q", entry)
	}

	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Slot < bindings[j].Slot })
	return bindings, nil
}

func isResource(space ir.AddressSpace) bool {
	switch space {
	case ir.SpaceUniform, ir.SpaceStorage, ir.SpaceHandle:
		return true
	}
	return false
}

func isStorageImage(module *ir.Module, handle ir.TypeHandle) bool {
	if int(handle) >= len(module.Types) {
		return false
	}
	img, ok := module.Types[handle].Inner.(ir.ImageType)
	if !ok {
		return false
	}
	return img.Class == ir.ImageClassStorage &&
		img.Dim == ir.Dim2D &&
		!img.Arrayed &&
		img.StorageFormat == ir.StorageFormatRgba8Unorm &&
		(img.StorageAccess == ir.StorageAccessWrite || img.StorageAccess == ir.StorageAccessReadWrite)
}

// bytesToBytecode converts little-endian SPIR-V bytes into words.
func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrShaderCompile, "spir-v length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode, nil
}
