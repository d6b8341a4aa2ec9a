package frontend

import (
	"fmt"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/ast"
	"github.com/caffeineduck/wasmlab/language/internal/sema"
	"github.com/caffeineduck/wasmlab/wasm"
)

// LoadNamespaces exposes the exported functions of each reference image as a
// namespace. Only functions whose parameters and result are all i64 can be
// called from source and become members.
func LoadNamespaces(refs []guest.Reference) ([]*sema.Namespace, error) {
	out := make([]*sema.Namespace, 0, len(refs))
	for _, ref := range refs {
		ns, err := loadNamespace(ref)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", ref.Name, err)
		}
		out = append(out, ns)
	}
	return out, nil
}

func loadNamespace(ref guest.Reference) (*sema.Namespace, error) {
	mod, err := wasm.Decode(ref.Image)
	if err != nil {
		return nil, err
	}
	var docs map[string]string
	if raw, ok := mod.Custom(guest.DocsSection); ok {
		if docs, err = guest.DecodeDocs(raw); err != nil {
			return nil, err
		}
	}

	ns := &sema.Namespace{Name: ref.Name, Doc: docs[""]}
	for _, exp := range mod.Exports {
		if exp.Kind != wasm.ExternFunc || exp.Name == guest.EntryPoint {
			continue
		}
		t, ok := mod.FuncType(exp.Index)
		if !ok || !callable(t) {
			continue
		}
		m := &sema.Symbol{
			Kind:      sema.SymMember,
			Name:      exp.Name,
			Type:      sema.Void,
			Decl:      ast.NoSpan,
			Namespace: ref.Name,
			Doc:       docs[exp.Name],
		}
		if len(t.Results) == 1 {
			m.Type = sema.Int
		}
		for i := range t.Params {
			m.Params = append(m.Params, sema.Int)
			name := mod.LocalName(exp.Index, uint32(i))
			if name == "" {
				name = fmt.Sprintf("arg%d", i)
			}
			m.ParamNames = append(m.ParamNames, name)
		}
		ns.Members = append(ns.Members, m)
	}
	return ns, nil
}

func callable(t wasm.FuncType) bool {
	if len(t.Results) > 1 {
		return false
	}
	for _, v := range append(append([]wasm.ValType(nil), t.Params...), t.Results...) {
		if v != wasm.I64 {
			return false
		}
	}
	return true
}
