// Package verify checks that erased output is valid JavaScript by parsing it
// with esbuild.
package verify

import (
	"fmt"

	"tsblank/pkg/fileset"

	"github.com/evanw/esbuild/pkg/api"
)

// Problem is a parse error in the checked output. Line and Column are 1-based.
type Problem struct {
	Line    int
	Column  int
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%d:%d: %s", p.Line, p.Column, p.Message)
}

// Check parses text as the JavaScript flavour emitted for source and
// returns every error esbuild reports.
func Check(source, text string) []Problem {
	loader := api.LoaderJS
	if fileset.IsTSX(source) {
		loader = api.LoaderJSX
	}
	result := api.Transform(text, api.TransformOptions{
		Loader:     loader,
		Sourcefile: source,
		Target:     api.ESNext,
		LogLevel:   api.LogLevelSilent,
	})

	problems := make([]Problem, 0, len(result.Errors))
	for _, msg := range result.Errors {
		p := Problem{Message: msg.Text}
		if msg.Location != nil {
			p.Line = msg.Location.Line
			p.Column = msg.Location.Column + 1
		}
		problems = append(problems, p)
	}
	return problems
}
