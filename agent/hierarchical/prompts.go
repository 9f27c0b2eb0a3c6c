package hierarchical

import (
	"fmt"
	"strings"
)

// SupervisorPrompt is the routing instruction given to every supervisor.
func SupervisorPrompt(members []string) string {
	quoted := make([]string, len(members))
	for i, m := range members {
		quoted[i] = "'" + m + "'"
	}
	return fmt.Sprintf("You are a supervisor tasked with managing a conversation between the"+
		" following workers: [%s]. Given the following user request,"+
		" respond with the worker to act next. Each worker will perform a"+
		" task and respond with their results and status. When finished,"+
		" respond with FINISH.", strings.Join(quoted, ", "))
}

// Worker prompts. Workers without an entry run with no system prompt.
const (
	DocWriterPrompt = "You can read, write and edit documents based on note-taker's outlines. " +
		"Don't ask follow-up questions."
	NoteTakerPrompt = "You can read documents and create outlines for the document writer. " +
		"Don't ask follow-up questions."
)

const routeToolDescription = "Worker to route to next. If no workers needed, route to FINISH."
