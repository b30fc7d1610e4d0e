package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage_IncrementalUpdate(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"page.hcl": `
entity "widget" "Input1" {
  property "text" {
    type  = text
    value = "hello"
  }
}

entity "widget" "Text1" {
  property "value" {
    type  = text
    value = "{{Input1.text}} world"
  }
}
`,
	}

	// --- Act ---
	result := runPage(t, files, "Input1.text=hi")

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, "hi world", result.value(t, "Text1", "value"))
	assert.Equal(t, "Valid", result.Report.Statuses["Text1.value"].Status)
	assert.Contains(t, result.LogOutput, "Incremental evaluation complete.")
}

func TestPage_CycleKeepsDefinedValues(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"page.yaml": `
entities:
  - name: Text1
    properties:
      - name: value
        type: text
        value: "{{Text2.value}}"
  - name: Text2
    properties:
      - name: value
        type: text
        value: "{{Text1.value}}"
  - name: Label1
    properties:
      - name: text
        type: text
        value: "label: {{Text1.value}}"
`,
	}

	// --- Act ---
	result := runPage(t, files)

	// --- Assert ---
	require.NoError(t, result.Err)
	for _, path := range []string{"Text1.value", "Text2.value"} {
		assert.Equal(t, "CycleError", result.Report.Statuses[path].Status, path)
	}
	assert.Equal(t, "", result.value(t, "Text1", "value"))
	assert.Equal(t, "label: ", result.value(t, "Label1", "text"))
	assert.Equal(t, "Valid", result.Report.Statuses["Label1.text"].Status)
	assert.Contains(t, result.LogOutput, "Dependency cycle detected.")
}

func TestPage_ValidationDefaults(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"page.yaml": `
entities:
  - name: Input1
    properties:
      - name: age
        type: number
        value: "abc"
      - name: when
        type: date
        value: "2024-03-01"
  - name: Text1
    properties:
      - name: value
        value: "age {{Input1.age}}"
`,
	}

	// --- Act ---
	result := runPage(t, files, "Input1.when=2024-03-02 10:00:00")

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, "ValidationError", result.Report.Statuses["Input1.age"].Status)
	assert.NotEmpty(t, result.Report.Statuses["Input1.age"].Message)
	assert.Equal(t, float64(0), result.value(t, "Input1", "age"))
	assert.Equal(t, "age 0", result.value(t, "Text1", "value"))
	assert.Equal(t, "2024-03-02T10:00:00Z", result.value(t, "Input1", "when"))
}

func TestPage_ContainerChildren(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"containers.hcl": `
entity "widget" "Form1" {
  property "title" {
    value = "Form"
  }
}
`,
		"children.yaml": `
entities:
  - name: Button1
    parent: Form1
    properties:
      - name: isVisible
        type: boolean
        value: true
  - name: Button2
    parent: Form1
    properties:
      - name: isVisible
        type: boolean
        value: "{{Toggle1.on}}"
  - name: Toggle1
    properties:
      - name: "on"
        type: boolean
        value: false
`,
	}

	// --- Act ---
	before := runPage(t, files)
	after := runPage(t, files, "Toggle1.on=true")

	// --- Assert ---
	require.NoError(t, before.Err)
	require.NoError(t, after.Err)
	assert.Equal(t, []any{"Button1"}, before.value(t, "Form1", "children"))
	assert.Equal(t, []any{"Button1", "Button2"}, after.value(t, "Form1", "children"))
}

func TestPage_FunctionsAndDerivedProperties(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"page.hcl": `
entity "widget" "Table1" {
  property "tableData" {
    type  = "table-rows"
    value = [
      { name = "ada", score = 3 },
      { name = "bob", score = 5 },
    ]
  }
  derived "total" {
    type    = number
    formula = "this.tableData[0].score + this.tableData[1].score"
  }
}

entity "action" "Api1" {
  property "data" {
    value = "{{upper(join(\", \", [for r in Table1.tableData : r.name]))}}"
  }
}

entity "jsobject" "Utils" {
  derived "summary" {
    formula = "format(\"%d rows, total %d\", length(Table1.tableData), Table1.total)"
  }
}
`,
	}

	// --- Act ---
	result := runPage(t, files)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Equal(t, "ADA, BOB", result.value(t, "Api1", "data"))
	assert.Equal(t, "2 rows, total 8", result.value(t, "Utils", "summary"))
}

func TestPage_DisallowedFunction(t *testing.T) {
	files := map[string]string{
		"page.hcl": `
entity "widget" "Text1" {
  property "value" {
    value = "{{file(\"/etc/passwd\")}}"
  }
}
`,
	}

	result := runPage(t, files)

	require.NoError(t, result.Err)
	assert.Equal(t, "EvalError", result.Report.Statuses["Text1.value"].Status)
	assert.Contains(t, result.Report.Statuses["Text1.value"].Message, `"file"`)
}

func TestPage_DuplicateEntityAcrossFiles(t *testing.T) {
	files := map[string]string{
		"a.yaml": "entities:\n  - name: Dup\n",
		"b.yaml": "entities:\n  - name: Dup\n",
	}

	result := runPage(t, files)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "Dup")
}
