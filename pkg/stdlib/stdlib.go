// Package stdlib embeds the ABI table naming every host intrinsic the VM
// emulator and the assembly back end both understand: their ids, names and
// arities. pkg/emulator builds DefaultIntrinsics from it; the emulator's
// IntrinsicXxx constants and pkg/asmgen's internalSymbol repeat the same
// ids by hand rather than reading them from here.
package stdlib

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed intrinsics.json
var content []byte

// Intrinsic describes one host-provided function: the stable numeric id a
// linked program.FunctionRef carries (and pkg/asmgen mirrors as an extern
// symbol), and the arity callers must pass.
type Intrinsic struct {
	ID    int `json:"id"`
	Arity int `json:"arity"`
}

var Intrinsics = map[string]Intrinsic{}

func init() {
	if err := json.Unmarshal(content, &Intrinsics); err != nil {
		panic(fmt.Sprintf("pkg/stdlib: malformed intrinsics.json: %s", err))
	}
}
