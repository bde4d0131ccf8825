package sandbox

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/BaSui01/agentdash/internal/ctxkeys"
	"github.com/BaSui01/agentdash/internal/vfs"
)

// DefaultMaxReadBytes is the largest file vfs.readFile returns without an
// explicit {offset, length}.
const DefaultMaxReadBytes = 100 * 1024

const errNoVFS = "VFS not available - no VFS ID set for this context"

// Binding installs host functions into a fresh VM before the script runs.
type Binding interface {
	Name() string
	Install(ctx context.Context, vm *goja.Runtime) error
}

// VFSBinding exposes the file system of the calling turn as the global
// `vfs` object. The file system is looked up by the VFS id carried in ctx.
type VFSBinding struct {
	Registry     *vfs.Registry
	MaxReadBytes int
}

func (b *VFSBinding) Name() string { return "vfs" }

func (b *VFSBinding) Install(ctx context.Context, vm *goja.Runtime) error {
	maxRead := b.MaxReadBytes
	if maxRead <= 0 {
		maxRead = DefaultMaxReadBytes
	}
	id, hasID := ctxkeys.VFSID(ctx)

	fsOrThrow := func() *vfs.FileSystem {
		if !hasID || b.Registry == nil {
			throw(vm, errNoVFS)
		}
		fs, err := b.Registry.Get(id)
		if err != nil {
			throw(vm, fmt.Sprintf("VFS not found: %s", id))
		}
		return fs
	}

	obj := vm.NewObject()
	set := func(name string, fn func(goja.FunctionCall) goja.Value) error {
		return obj.Set(name, fn)
	}

	if err := set("readFile", func(call goja.FunctionCall) goja.Value {
		fs := fsOrThrow()
		path := stringArg(vm, call, 0, "path")
		if opts, ok := call.Argument(1).(*goja.Object); ok {
			offset := intProp(opts, "offset", 0)
			length := intProp(opts, "length", maxRead)
			data, err := fs.ReadRange(path, offset, length)
			if err != nil {
				throw(vm, err.Error())
			}
			return vm.ToValue(string(data))
		}
		meta, err := fs.Stat(path)
		if err != nil {
			throw(vm, err.Error())
		}
		if meta.Size > maxRead {
			throw(vm, tooLargeMessage(path, meta.Size, maxRead))
		}
		data, err := fs.ReadFile(path)
		if err != nil {
			throw(vm, err.Error())
		}
		return vm.ToValue(string(data))
	}); err != nil {
		return err
	}

	if err := set("writeFile", func(call goja.FunctionCall) goja.Value {
		fs := fsOrThrow()
		path := stringArg(vm, call, 0, "path")
		content := stringArg(vm, call, 1, "content")
		if err := fs.WriteFile(path, []byte(content)); err != nil {
			throw(vm, err.Error())
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := set("listDir", func(call goja.FunctionCall) goja.Value {
		fs := fsOrThrow()
		entries, err := fs.ListDir(stringArg(vm, call, 0, "path"))
		if err != nil {
			throw(vm, err.Error())
		}
		items := make([]any, len(entries))
		for i, e := range entries {
			kind := "file"
			if e.IsDirectory {
				kind = "directory"
			}
			o := vm.NewObject()
			_ = o.Set("name", e.Name)
			_ = o.Set("type", kind)
			_ = o.Set("size", e.Size)
			items[i] = o
		}
		return vm.NewArray(items...)
	}); err != nil {
		return err
	}

	if err := set("mkdir", func(call goja.FunctionCall) goja.Value {
		fs := fsOrThrow()
		if err := fs.Mkdir(stringArg(vm, call, 0, "path")); err != nil {
			throw(vm, err.Error())
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := set("exists", func(call goja.FunctionCall) goja.Value {
		fs := fsOrThrow()
		return vm.ToValue(fs.Exists(stringArg(vm, call, 0, "path")))
	}); err != nil {
		return err
	}

	if err := set("stat", func(call goja.FunctionCall) goja.Value {
		fs := fsOrThrow()
		meta, err := fs.Stat(stringArg(vm, call, 0, "path"))
		if err != nil {
			throw(vm, err.Error())
		}
		o := vm.NewObject()
		_ = o.Set("size", meta.Size)
		_ = o.Set("isDirectory", meta.IsDirectory)
		_ = o.Set("isFile", meta.IsFile())
		return o
	}); err != nil {
		return err
	}

	if err := set("delete", func(call goja.FunctionCall) goja.Value {
		fs := fsOrThrow()
		if err := fs.Delete(stringArg(vm, call, 0, "path")); err != nil {
			throw(vm, err.Error())
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	return vm.Set("vfs", obj)
}

func tooLargeMessage(path string, size, max int) string {
	return fmt.Sprintf("File too large to read at once (%d bytes, max %d bytes).\n"+
		"Use chunked reading with offset and length parameters:\n\n"+
		"// Check file size first\n"+
		"const stat = vfs.stat('%s');\n"+
		"console.log('File size:', stat.size);\n\n"+
		"// Read in chunks (e.g., 50KB at a time)\n"+
		"const chunk1 = vfs.readFile('%s', { offset: 0, length: 50000 });\n"+
		"const chunk2 = vfs.readFile('%s', { offset: 50000, length: 50000 });\n"+
		"// ... continue until all data read",
		size, max, path, path, path)
}

// throw raises a JS Error with msg. It never returns.
func throw(vm *goja.Runtime, msg string) {
	ctor, ok := goja.AssertConstructor(vm.Get("Error"))
	if !ok {
		panic(vm.NewTypeError(msg))
	}
	obj, err := ctor(nil, vm.ToValue(msg))
	if err != nil {
		panic(vm.NewTypeError(msg))
	}
	panic(obj)
}

func stringArg(vm *goja.Runtime, call goja.FunctionCall, i int, name string) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		throw(vm, "Missing argument: "+name)
	}
	return v.String()
}

func intProp(obj *goja.Object, name string, def int) int {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return int(v.ToInteger())
}
