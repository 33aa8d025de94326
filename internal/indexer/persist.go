package indexer

import (
	"fmt"

	"github.com/swanson/ruby-lsp/internal/index"
	"github.com/swanson/ruby-lsp/internal/storage"
	"github.com/swanson/ruby-lsp/pkg/types"
)

// toRows snapshots the entries of one file in insertion order. Method owners
// are recorded by their position in the same snapshot.
func toRows(entries []index.Entry) []*storage.Entry {
	seqOf := make(map[index.EntryID]int, len(entries))
	rows := make([]*storage.Entry, 0, len(entries))

	for seq, e := range entries {
		seqOf[e.ID()] = seq
		row := &storage.Entry{
			Seq:      seq,
			Kind:     index.Kind(e),
			Name:     e.Name(),
			Comments: e.Comments(),
			Location: e.Location(),
		}

		switch v := e.(type) {
		case *index.Class:
			row.Nesting = v.Nesting()
			row.ParentClass = v.ParentClass()
			row.Mixins = mixinRows(v.MixinOperations())
		case *index.Module:
			row.Nesting = v.Nesting()
			row.Mixins = mixinRows(v.MixinOperations())
		case *index.SingletonClass:
			row.Nesting = v.Nesting()
			row.ParentClass = v.ParentClass()
			row.Mixins = mixinRows(v.MixinOperations())
		case *index.Method:
			row.Nesting = []string{}
			row.OwnerName = v.OwnerName()
			row.Visibility = string(v.Visibility())
			row.Parameters = v.Parameters()
			if seq, ok := seqOf[v.OwnerID()]; ok && v.OwnerID() != 0 {
				row.OwnerSeq = &seq
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func mixinRows(ops []index.MixinOperation) []storage.Mixin {
	out := make([]storage.Mixin, 0, len(ops))
	for _, op := range ops {
		out = append(out, storage.Mixin{Kind: index.MixinKindOf(op), Module: op.ModuleName()})
	}
	return out
}

// restoreEntries adds persisted rows for filePath back into idx and returns
// how many entries were added. Rows must be in Seq order.
func restoreEntries(idx *index.Index, filePath string, rows []*storage.Entry) (int, error) {
	owners := make(map[int]index.NamespaceEntry)
	added := 0

	for _, row := range rows {
		mixins, err := mixinOps(row.Mixins)
		if err != nil {
			return added, fmt.Errorf("entry %s: %w", row.Name, err)
		}

		var e index.Entry
		switch row.Kind {
		case "class":
			ns := index.NewClass(row.Nesting, filePath, row.Location, row.Comments, row.ParentClass, mixins...)
			owners[row.Seq] = ns
			e = ns
		case "module":
			ns := index.NewModule(row.Nesting, filePath, row.Location, row.Comments, mixins...)
			owners[row.Seq] = ns
			e = ns
		case "singleton_class":
			if len(row.Nesting) < 2 {
				return added, fmt.Errorf("entry %s: singleton nesting too short", row.Name)
			}
			attached := row.Nesting[:len(row.Nesting)-1]
			ns := index.NewSingletonClass(attached, filePath, row.Location, row.Comments, row.ParentClass, mixins...)
			owners[row.Seq] = ns
			e = ns
		case "method":
			var owner index.NamespaceEntry
			if row.OwnerSeq != nil {
				o, ok := owners[*row.OwnerSeq]
				if !ok {
					return added, fmt.Errorf("entry %s: owner %d not restored", row.Name, *row.OwnerSeq)
				}
				owner = o
			}
			e = index.NewMethod(row.Name, filePath, row.Location, row.Comments, row.Parameters,
				types.Visibility(row.Visibility), owner)
		default:
			return added, fmt.Errorf("entry %s: unknown kind %q", row.Name, row.Kind)
		}

		idx.Add(e)
		added++
	}
	return added, nil
}

func mixinOps(rows []storage.Mixin) ([]index.MixinOperation, error) {
	ops := make([]index.MixinOperation, 0, len(rows))
	for _, m := range rows {
		op, err := index.NewMixinOperation(m.Kind, m.Module)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
