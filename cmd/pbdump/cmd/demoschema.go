package cmd

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/handlers"
	"github.com/wkalt/pbcore/refcount"
)

// buildDemoHandlers constructs and freezes a small illustrative schema with
// an int32, a string, a repeated string, a repeated float (packed or not on
// the wire), and one level of nested message, then installs handlers that
// print a trace line for each decoded field value.
func buildDemoHandlers() (*handlers.Handlers, error) {
	owner := "pbdump"

	child := defs.NewMessage("pbdump.Child")
	note, err := defs.NewField("note", 1)
	if err != nil {
		return nil, err
	}
	if err := note.SetType(defs.String); err != nil {
		return nil, err
	}
	if err := child.AddField(note, owner); err != nil {
		return nil, err
	}
	if err := refcount.Freeze(child); err != nil {
		return nil, err
	}

	top := defs.NewMessage("pbdump.Sample")
	fields := map[string]*defs.FieldDef{}
	add := func(name string, number uint32, typ defs.FieldType, repeated bool) error {
		f, err := defs.NewField(name, number)
		if err != nil {
			return err
		}
		if err := f.SetType(typ); err != nil {
			return err
		}
		if repeated {
			if err := f.SetLabel(defs.Repeated); err != nil {
				return err
			}
		}
		if err := top.AddField(f, owner); err != nil {
			return err
		}
		fields[name] = f
		return nil
	}
	if err := add("id", 1, defs.Int32, false); err != nil {
		return nil, err
	}
	if err := add("label", 2, defs.String, false); err != nil {
		return nil, err
	}
	if err := add("tags", 3, defs.String, true); err != nil {
		return nil, err
	}
	if err := add("scores", 4, defs.Float, true); err != nil {
		return nil, err
	}
	childField, err := defs.NewField("child", 5)
	if err != nil {
		return nil, err
	}
	if err := childField.SetType(defs.Message); err != nil {
		return nil, err
	}
	if err := childField.SetSubdef(child); err != nil {
		return nil, err
	}
	if err := top.AddField(childField, owner); err != nil {
		return nil, err
	}
	if err := refcount.Freeze(top); err != nil {
		return nil, err
	}

	childH, err := handlers.New(child, owner)
	if err != nil {
		return nil, err
	}
	trace := color.New(color.FgGreen)
	if err := childH.SetStringBufHandler(note, func(_ any, data []byte) int {
		trace.Printf("  child.note = %q\n", string(data))
		return len(data)
	}); err != nil {
		return nil, err
	}

	topH, err := handlers.New(top, owner)
	if err != nil {
		return nil, err
	}
	if err := topH.SetInt32Handler(fields["id"], func(_ any, v int32) bool {
		trace.Printf("id = %d\n", v)
		return true
	}); err != nil {
		return nil, err
	}
	if err := topH.SetStringBufHandler(fields["label"], func(_ any, data []byte) int {
		trace.Printf("label = %q\n", string(data))
		return len(data)
	}); err != nil {
		return nil, err
	}
	if err := topH.SetStringBufHandler(fields["tags"], func(_ any, data []byte) int {
		trace.Printf("tags += %q\n", string(data))
		return len(data)
	}); err != nil {
		return nil, err
	}
	if err := topH.SetFloat32Handler(fields["scores"], func(_ any, v float32) bool {
		trace.Printf("scores += %v\n", v)
		return true
	}); err != nil {
		return nil, err
	}
	if err := topH.SetSubHandlers(childField, childH); err != nil {
		return nil, err
	}
	if err := refcount.Freeze(topH); err != nil {
		return nil, err
	}
	return topH, nil
}

func printSchema() {
	fmt.Println("pbdump.Sample { id int32 = 1; label string = 2; tags repeated string = 3; scores repeated float = 4; child pbdump.Child = 5; }")
	fmt.Println("pbdump.Child { note string = 1; }")
}
