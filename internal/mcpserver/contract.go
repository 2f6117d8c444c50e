package mcpserver

// ChartFormatContract describes the canonical chart format that LLM
// consumers should follow when creating or updating charts.
const ChartFormatContract = `# Stemma Chart Format Contract

Every chart stored in Stemma is a ` + "`" + `.stemma` + "`" + ` file with this structure.

## Structure

` + "```" + `yaml
---
options:                  # OPTIONAL - layout tuning (widths, margins, theme)
  nodeWidth: 250
  childrenMargin: 60
  theme: light
schema:                   # OPTIONAL - field specs checked by validation
  name: string | required
  title: string
  salary: number | missing
card:                     # OPTIONAL - card template, rendered top to bottom
  - div:
      class: person-name
      content: $name$
  - div: $title$
  - img: $photo$
---
- id: 1
  name: Ada King
  title: CEO
- id: 2
  parentId: 1
  name: Grace Hopper
  title: CTO
` + "```" + `

## Rules

1. **The configuration block** sits between ` + "`" + `---` + "`" + ` lines at the very top
   (no leading blank lines) and may be written in YAML, JSON or TOML; a block
   opening with ` + "`" + `{` + "`" + ` is read as JSON first. A file without a leading
   ` + "`" + `---` + "`" + ` line is data only.
2. **Records** are a YAML list of flat mappings. ` + "`" + `id` + "`" + ` is required and
   must be unique. Ids compare by canonical text, so ` + "`" + `id: 1` + "`" + ` and
   ` + "`" + `id: "1"` + "`" + ` name the same record.
3. **` + "`" + `parentId` + "`" + `** references another record's id. Records without it are
   roots. A parent reference that matches no record renders the record as a
   root and reports a warning, not an error.
4. **Schema specs** use the pipe grammar ` + "`" + `<type> | <modifier>` + "`" + ` with types
   ` + "`" + `string` + "`" + `, ` + "`" + `number` + "`" + `, ` + "`" + `boolean` + "`" + ` and modifiers ` + "`" + `required` + "`" + ` (absence is
   an error) and ` + "`" + `missing` + "`" + ` (absence is expected). Unknown types are kept
   and skip type checking.
5. **Card templates** are a sequence of elements. A bare string is literal
   text; ` + "`" + `tag: value` + "`" + ` is an element whose content is the value;
   ` + "`" + `tag: {class, style, content, children}` + "`" + ` nests. ` + "`" + `$field$` + "`" + ` tokens in
   content substitute the record's value; absent fields substitute as empty
   text, never as the token itself.
6. **` + "`" + `img` + "`" + ` elements** treat their substituted content as the image source.
7. **File paths** end with ` + "`" + `.stemma` + "`" + ` and use forward slashes.
8. **Encoding** is UTF-8 with a trailing newline.

## Editing

- ` + "`" + `update_chart` + "`" + ` replaces the whole text. Canonical field order inside a
  regenerated record is ` + "`" + `id` + "`" + `, ` + "`" + `parentId` + "`" + `, ` + "`" + `name` + "`" + `, then the remaining
  fields alphabetically.
- ` + "`" + `move_node` + "`" + ` shifts a record one slot among the records sharing its
  parent; past the first or last slot it fails and changes nothing.
- ` + "`" + `swap_nodes` + "`" + ` exchanges two records' places in the document order and
  trades their pinned coordinates. Each record keeps its own parent and
  children.
- ` + "`" + `validate_chart` + "`" + ` reports schema and structure problems without
  changing anything. Invalid charts can still be saved; they keep their
  last good render until fixed.
`
