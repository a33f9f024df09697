package pipeline

import (
	"testing"

	"github.com/bsrt/bsrt/gpu"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflectTestShader(t *testing.T) {
	bindings, err := Reflect(TestProgram().Source, "main")
	require.NoError(t, err)
	assert.Equal(t, []gpu.Binding{{Slot: 0, Kind: gpu.BindingStorageImage}}, bindings)
}

func TestTestShaderCompiles(t *testing.T) {
	prog := TestProgram()

	spirv, err := naga.Compile(prog.Source)
	require.NoError(t, err)

	code, err := bytesToBytecode(spirv)
	require.NoError(t, err)
	require.Greater(t, len(code), 5, "shorter than a SPIR-V header")
	assert.Equal(t, uint32(0x07230203), code[0])

	bindings, err := Reflect(prog.Source, prog.EntryPoint)
	require.NoError(t, err)
	assert.Equal(t, []gpu.Binding{{Slot: 0, Kind: gpu.BindingStorageImage}}, bindings)
}

func TestReflect(t *testing.T) {
	tests := []struct {
		name   string
		source string
		entry  string
		want   []gpu.Binding
	}{
		{
			name: "sorted by slot, attribute order free",
			source: `
@binding(2) @group(0) var b: texture_storage_2d<rgba8unorm, read_write>;
@group(0) @binding(0)
var a : texture_storage_2d< rgba8unorm , write >;
@compute @workgroup_size(8, 8) fn main() {}`,
			entry: "main",
			want: []gpu.Binding{
				{Slot: 0, Kind: gpu.BindingStorageImage},
				{Slot: 2, Kind: gpu.BindingStorageImage},
			},
		},
		{
			name: "private and workgroup vars are not resources",
			source: `
var<private> counter: u32;
var<workgroup> tile: array<u32, 64>;
@compute @workgroup_size(1) fn run() {}`,
			entry: "run",
			want:  nil,
		},
		{
			name: "commented declarations are ignored",
			source: `
// @group(0) @binding(1) var old: texture_2d<f32>;
@group(0) @binding(0) var img: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn main() {}`,
			entry: "main",
			want:  []gpu.Binding{{Slot: 0, Kind: gpu.BindingStorageImage}},
		},
		{
			name: "block comments are ignored",
			source: `
/* @group(0) @binding(1) var old: texture_2d<f32>; */
@group(0) @binding(0) var img: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn main() {}`,
			entry: "main",
			want:  []gpu.Binding{{Slot: 0, Kind: gpu.BindingStorageImage}},
		},
		{
			name: "hex binding",
			source: `
@group(0) @binding(0x0) var img: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn main() {}`,
			entry: "main",
			want:  []gpu.Binding{{Slot: 0, Kind: gpu.BindingStorageImage}},
		},
		{
			name: "suffixed group",
			source: `
@group(0u) @binding(0) var img: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn main() {}`,
			entry: "main",
			want:  []gpu.Binding{{Slot: 0, Kind: gpu.BindingStorageImage}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bindings, err := Reflect(tt.source, tt.entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bindings)
		})
	}
}

func TestReflectErrors(t *testing.T) {
	tests := map[string]struct {
		source string
		entry  string
	}{
		"non-zero group": {
			`@group(1) @binding(0) var img: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn main() {}`, "main",
		},
		"missing binding": {
			`@group(0) var img: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn main() {}`, "main",
		},
		"duplicate slot": {
			`@group(0) @binding(0) var a: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(0) var b: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn main() {}`, "main",
		},
		"unsupported format": {
			`@group(0) @binding(0) var img: texture_storage_2d<rgba32float, write>;
@compute @workgroup_size(1) fn main() {}`, "main",
		},
		"uniform buffer": {
			`@group(0) @binding(0) var<uniform> params: vec4<f32>;
@compute @workgroup_size(1) fn main() {}`, "main",
		},
		"missing entry point": {
			`@group(0) @binding(0) var img: texture_storage_2d<rgba8unorm, write>;
@compute @workgroup_size(1) fn other() {}`, "main",
		},
		"entry point is not compute": {
			`@fragment fn main() -> @location(0) vec4<f32> { return vec4<f32>(); }`, "main",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Reflect(tt.source, tt.entry)
			assert.True(t, errors.Is(err, ErrLayout), "got %v", err)
		})
	}
}

func TestBytesToBytecode(t *testing.T) {
	code, err := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 0x00010000}, code)

	for _, bad := range [][]byte{nil, {0x03}, {0x03, 0x02, 0x23, 0x07, 0x01}} {
		_, err := bytesToBytecode(bad)
		assert.True(t, errors.Is(err, ErrShaderCompile))
	}
}
