// Package symbol implements the target.SymbolTable capability surface on
// top of the target's ELF image: symbol addresses come from the symtab,
// struct member layout from DWARF. The debug stub never answers layout
// questions, so all type probing happens here, against the same image the
// target is running.
package symbol

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"

	"github.com/openembed/frdbg/target"
)

type Table struct {
	order   binary.ByteOrder
	ptrSize int

	syms     map[string]elf.Symbol
	dw       *dwarf.Data
	types    map[string]dwarf.Offset // struct tag / typedef name -> DIE offset
	varTypes map[string]dwarf.Offset // global variable name -> type DIE offset

	members map[string]map[string]memberEntry
}

type memberEntry struct {
	info target.MemberInfo
	ok   bool
}

// Load reads the symbol and debug information from the ELF image at path.
// The image must carry both a symtab and DWARF: without member offsets the
// kernel structures cannot be decoded.
func Load(path string) (*Table, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open ELF image %s: %w", path, err)
	}
	defer f.Close()

	t := &Table{
		order:    f.ByteOrder,
		ptrSize:  4,
		syms:     make(map[string]elf.Symbol),
		types:    make(map[string]dwarf.Offset),
		varTypes: make(map[string]dwarf.Offset),
		members:  make(map[string]map[string]memberEntry),
	}
	if f.Class == elf.ELFCLASS64 {
		t.ptrSize = 8
	}

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("no symbol table in %s: %w", path, err)
	}
	for _, s := range syms {
		t.syms[s.Name] = s
	}

	t.dw, err = f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("no DWARF in %s (build the image with -g): %w", path, err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	glog.V(1).Infof("loaded %s: %d symbols, %d named types", path, len(t.syms), len(t.types))
	return t, nil
}

// index walks the DWARF tree once, recording every named struct, typedef
// and global variable. Function bodies are skipped so locals cannot shadow
// the kernel globals.
func (t *Table) index() error {
	r := t.dw.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return fmt.Errorf("malformed DWARF: %w", err)
		}
		if entry == nil {
			return nil
		}

		switch entry.Tag {
		case dwarf.TagSubprogram:
			r.SkipChildren()
		case dwarf.TagStructType, dwarf.TagTypedef:
			if name, ok := entry.Val(dwarf.AttrName).(string); ok {
				if _, seen := t.types[name]; !seen {
					t.types[name] = entry.Offset
				}
			}
		case dwarf.TagVariable:
			name, ok := entry.Val(dwarf.AttrName).(string)
			if !ok {
				break
			}
			typeOff, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
			if !ok {
				break
			}
			if _, seen := t.varTypes[name]; !seen {
				t.varTypes[name] = typeOff
			}
		}
	}
}

func (t *Table) SymbolAddr(name string) (uint64, error) {
	s, ok := t.syms[name]
	if !ok {
		return 0, fmt.Errorf("symbol %q not in image", name)
	}
	return s.Value, nil
}

func (t *Table) SymbolSize(name string) (uint64, error) {
	s, ok := t.syms[name]
	if !ok {
		return 0, fmt.Errorf("symbol %q not in image", name)
	}
	return s.Size, nil
}

func (t *Table) SymbolElemCount(name string) (int, bool) {
	off, ok := t.varTypes[name]
	if !ok {
		return 0, false
	}
	typ, err := t.dw.Type(off)
	if err != nil {
		return 0, false
	}
	arr, ok := stripQualifiers(typ).(*dwarf.ArrayType)
	if !ok || arr.Count < 0 {
		return 0, false
	}
	return int(arr.Count), true
}

func (t *Table) Member(typeName, member string) (target.MemberInfo, bool) {
	if cached, ok := t.members[typeName][member]; ok {
		return cached.info, cached.ok
	}
	info, ok := t.lookupMember(typeName, member)
	if t.members[typeName] == nil {
		t.members[typeName] = make(map[string]memberEntry)
	}
	t.members[typeName][member] = memberEntry{info: info, ok: ok}
	return info, ok
}

func (t *Table) lookupMember(typeName, member string) (target.MemberInfo, bool) {
	off, ok := t.types[typeName]
	if !ok {
		return target.MemberInfo{}, false
	}
	typ, err := t.dw.Type(off)
	if err != nil {
		glog.V(2).Infof("cannot read type %s: %v", typeName, err)
		return target.MemberInfo{}, false
	}
	st, ok := stripQualifiers(typ).(*dwarf.StructType)
	if !ok {
		return target.MemberInfo{}, false
	}
	for _, f := range st.Field {
		if f.Name != member {
			continue
		}
		info := target.MemberInfo{
			Offset: uint64(f.ByteOffset),
		}
		ft := stripQualifiers(f.Type)
		if sz := ft.Size(); sz > 0 {
			info.Size = uint64(sz)
		}
		if arr, ok := ft.(*dwarf.ArrayType); ok && arr.Count > 0 {
			info.ArrayLen = int(arr.Count)
		}
		return info, true
	}
	return target.MemberInfo{}, false
}

// stripQualifiers follows typedef and const/volatile wrappers down to the
// underlying type.
func stripQualifiers(typ dwarf.Type) dwarf.Type {
	for {
		switch tt := typ.(type) {
		case *dwarf.TypedefType:
			typ = tt.Type
		case *dwarf.QualType:
			typ = tt.Type
		default:
			return typ
		}
	}
}

func (t *Table) PointerSize() int            { return t.ptrSize }
func (t *Table) ByteOrder() binary.ByteOrder { return t.order }

var _ target.SymbolTable = (*Table)(nil)
