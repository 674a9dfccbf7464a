package bridge

import (
	"fmt"
	"strings"

	"github.com/gameforge/forge/internal/backend"
)

// The generator module is loaded by a throwaway script written into the
// scratch directory. The request travels as data inside a template literal,
// never as code, so the script shape stays constant across invocations.
const scriptTemplate = `const { generateGame } = require(%q);

async function main() {
  try {
    const result = await generateGame(%s, { maxTurns: %d });
    console.log(%q);
    console.log(JSON.stringify(result, null, 2));
    console.log(%q);
  } catch (error) {
    console.log(%q);
    console.log(JSON.stringify({ success: false, error: error.message || String(error) }));
    console.log(%q);
  }
}

main();
`

func buildScript(generatorPath, prompt string, maxTurns int) string {
	literal := "`" + escapeTemplate(prompt) + "`"
	return fmt.Sprintf(scriptTemplate,
		generatorPath,
		literal,
		maxTurns,
		resultStart, resultEnd,
		errorStart, errorEnd,
	)
}

// escapeTemplate neutralizes untrusted text for embedding in a template
// literal. Order matters: backslashes first, then the quoting backtick, then
// the interpolation sigil.
func escapeTemplate(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "`", "\\`")
	s = strings.ReplaceAll(s, "$", `\$`)
	return s
}

// requestPrompt flattens a request into the single prompt the generator
// receives. Review requests degrade to a re-generation prompt that embeds the
// original code and the reviewer's feedback as context.
func requestPrompt(req backend.Request) string {
	if !req.Review() {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString("Improve the following game based on the feedback. Return the complete improved game document.\n\n")
	b.WriteString("FEEDBACK:\n")
	b.WriteString(req.Feedback)
	b.WriteString("\n\nCURRENT CODE:\n")
	b.WriteString(req.ExistingCode)
	return b.String()
}
