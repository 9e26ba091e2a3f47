package textgen

import (
	"bytes"
	"text/template"
)

const decomposeTemplate = `You are a project planning assistant. Break the
following project into 3-7 concrete first-level tasks.

## Project
Name: {{.ProjectName}}
Description: {{.ProjectDescription}}

Respond with ONLY a JSON array, no prose, of objects shaped
{"name": string, "description": string}. Each name is a short imperative
phrase; each description is one or two sentences of what done looks like.
`

const splitTemplate = `You are a project planning assistant. Split the task
below into 2-5 smaller subtasks that together accomplish it.

## Project
Name: {{.ProjectName}}
Description: {{.ProjectDescription}}
{{if .Ancestors}}
## Context (outermost first)
{{range .Ancestors}}- {{.Name}}: {{.Description}}
{{end}}{{end}}
## Task to split
Name: {{.Task.Name}}
Description: {{.Task.Description}}

Respond with ONLY a JSON array, no prose, of objects shaped
{"name": string, "description": string}. Subtasks must not repeat the parent
task's name.
`

const regenerateTemplate = `You are a project planning assistant. Rewrite the
task below so it is clearer and more actionable, keeping its intent and its
place in the plan.

## Project
Name: {{.ProjectName}}
Description: {{.ProjectDescription}}
{{if .Ancestors}}
## Context (outermost first)
{{range .Ancestors}}- {{.Name}}: {{.Description}}
{{end}}{{end}}{{if .Siblings}}
## Sibling tasks (do not duplicate these)
{{range .Siblings}}- {{.Name}}: {{.Description}}
{{end}}{{end}}
## Task to rewrite
Name: {{.Task.Name}}
Description: {{.Task.Description}}

Respond with ONLY a single JSON object, no prose, shaped
{"name": string, "description": string}.
`

var (
	decomposePrompt  = template.Must(template.New("decompose").Parse(decomposeTemplate))
	splitPrompt      = template.Must(template.New("split").Parse(splitTemplate))
	regeneratePrompt = template.Must(template.New("regenerate").Parse(regenerateTemplate))
)

func renderPrompt(tmpl *template.Template, in Input) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, in); err != nil {
		return "", err
	}
	return buf.String(), nil
}
