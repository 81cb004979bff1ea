package tengoloader

import (
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

const (
	// EntryPoint is the zero-argument function every quest script defines.
	EntryPoint = "quest"

	// ManagerBinding is the script-scope name of the injected quest manager.
	ManagerBinding = "questManager"

	// DomainModule is the builtin module holding the quest constructors.
	DomainModule = "questy"

	// resultVariable receives the value returned by the entry point.
	resultVariable = "__quest__"
)

// prelude brings the domain constructors into unqualified scope. It is kept on
// one line without a trailing newline so the author's line numbers survive.
const prelude = `__questy := import("questy"); Quest := __questy.Quest; Objective := __questy.Objective; Reward := __questy.Reward; `

// epilogue invokes the entry point and stores its return value.
const epilogue = "\n" + resultVariable + " := " + EntryPoint + "()\n"

// allowedModules are the stdlib modules quest scripts may import.
var allowedModules = []string{"fmt", "math", "text", "rand", "times", "enum", "json"}

// wrap surrounds the author's source with the fixed prelude and epilogue.
func wrap(src []byte) []byte {
	out := make([]byte, 0, len(prelude)+len(src)+len(epilogue))
	out = append(out, prelude...)
	out = append(out, src...)
	out = append(out, epilogue...)
	return out
}

// newModuleMap builds the import whitelist for one script environment.
// The domain module's functions are created fresh every time.
func newModuleMap() *tengo.ModuleMap {
	modules := stdlib.GetModuleMap(allowedModules...)
	modules.AddBuiltinModule(DomainModule, map[string]tengo.Object{
		"Quest":     &tengo.UserFunction{Name: "Quest", Value: newQuest},
		"Objective": &tengo.UserFunction{Name: "Objective", Value: newObjective},
		"Reward":    &tengo.UserFunction{Name: "Reward", Value: newReward},
	})
	return modules
}
