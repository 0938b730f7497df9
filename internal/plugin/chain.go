package plugin

import "fmt"

// Spec names one plugin and its argument vector.
type Spec struct {
	Name string
	Args []string
}

// String renders the spec the way it was written on the command line.
func (s Spec) String() string {
	out := s.Name
	for _, a := range s.Args {
		out += " " + a
	}
	return out
}

// Chain is a fully described pipeline: one input, processors in order,
// one output.
type Chain struct {
	Input      Spec
	Processors []Spec
	Output     Spec
}

// ParseChain splits a command-line plugin chain of the form
//
//	-I name [options…] [-P name [options…]]… -O name [options…]
//
// into its specs. Exactly one -I and one -O are required; everything
// between a marker and the next marker belongs to that plugin.
func ParseChain(args []string) (Chain, error) {
	var c Chain
	var cur *Spec
	seenInput := false
	seenOutput := false

	flush := func() {
		if cur == nil {
			return
		}
		if cur != &c.Input && cur != &c.Output {
			c.Processors = append(c.Processors, *cur)
		}
		cur = nil
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-I":
			if seenInput {
				return Chain{}, fmt.Errorf("only one input plugin allowed")
			}
			if i+1 >= len(args) {
				return Chain{}, fmt.Errorf("-I requires a plugin name")
			}
			flush()
			seenInput = true
			i++
			c.Input = Spec{Name: args[i]}
			cur = &c.Input
		case "-P":
			if i+1 >= len(args) {
				return Chain{}, fmt.Errorf("-P requires a plugin name")
			}
			flush()
			i++
			cur = &Spec{Name: args[i]}
		case "-O":
			if seenOutput {
				return Chain{}, fmt.Errorf("only one output plugin allowed")
			}
			if i+1 >= len(args) {
				return Chain{}, fmt.Errorf("-O requires a plugin name")
			}
			flush()
			seenOutput = true
			i++
			c.Output = Spec{Name: args[i]}
			cur = &c.Output
		default:
			if cur == nil {
				return Chain{}, fmt.Errorf("argument %q outside any plugin description", args[i])
			}
			cur.Args = append(cur.Args, args[i])
		}
	}
	flush()

	if !seenInput {
		return Chain{}, fmt.Errorf("no input plugin specified (-I)")
	}
	if !seenOutput {
		return Chain{}, fmt.Errorf("no output plugin specified (-O)")
	}
	return c, nil
}
