package scriptvm

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

// opNames maps every opcode to one of its txscript names.
var opNames = func() map[byte]string {
	names := make(map[byte]string, len(txscript.OpcodeByName))
	for name, code := range txscript.OpcodeByName {
		// Prefer the descriptive name over the OP_NOPn and
		// OP_TRUE/OP_FALSE aliases.
		if old, ok := names[code]; ok && len(old) >= len(name) {
			continue
		}
		names[code] = name
	}

	return names
}()

func (s Step) String() string {
	var b strings.Builder

	script := "unlock"
	if s.Script == 1 {
		script = "lock"
	}

	name, ok := opNames[s.Opcode]
	if !ok {
		name = fmt.Sprintf("0x%02x", s.Opcode)
	}

	fmt.Fprintf(&b, "%s:%04d %-24s [", script, s.Offset, name)
	for i, item := range s.Stack {
		if i > 0 {
			b.WriteByte(' ')
		}
		if len(item) > 8 {
			fmt.Fprintf(&b, "%x..(%d)", item[:4], len(item))
			continue
		}
		fmt.Fprintf(&b, "%x", item)
	}
	b.WriteByte(']')

	return b.String()
}

// Trace evaluates a script pair like Execute and also returns one line per
// executed opcode with the stack after it. Useful for diagnosing a failing
// spend.
func Trace(unlock, lock []byte, opts ...Option) ([]string, error) {
	var lines []string
	opts = append(opts, WithStepCallback(func(s Step) {
		lines = append(lines, s.String())
	}))

	err := Execute(unlock, lock, opts...)

	return lines, err
}
