package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/ludo-technologies/pyjit/domain"
)

// LowerFormatterImpl implements the LowerOutputFormatter interface
type LowerFormatterImpl struct{}

// NewLowerFormatter creates a new lowering report formatter
func NewLowerFormatter() *LowerFormatterImpl {
	return &LowerFormatterImpl{}
}

// Format formats the response according to the specified format
func (f *LowerFormatterImpl) Format(response *domain.LowerResponse, format domain.OutputFormat) (string, error) {
	switch format {
	case domain.OutputFormatText:
		return f.formatText(response), nil
	case domain.OutputFormatJSON:
		return EncodeJSON(response)
	case domain.OutputFormatYAML:
		return EncodeYAML(response)
	case domain.OutputFormatDOT:
		return f.formatDOT(response), nil
	default:
		return "", domain.NewUnsupportedFormatError(string(format))
	}
}

// Write writes the formatted output to the writer
func (f *LowerFormatterImpl) Write(response *domain.LowerResponse, format domain.OutputFormat, writer io.Writer) error {
	output, err := f.Format(response, format)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(writer, output); err != nil {
		return domain.NewOutputError("failed to write output", err)
	}
	return nil
}

func (f *LowerFormatterImpl) formatText(response *domain.LowerResponse) string {
	var b strings.Builder
	utils := NewFormatUtils()

	b.WriteString(utils.FormatMainHeader("Lowering Report"))

	for _, file := range response.Files {
		b.WriteString(file.FilePath + "\n" + strings.Repeat("-", len(file.FilePath)) + "\n")
		for i := range file.Functions {
			writeFunctionText(&b, &file.Functions[i])
		}
		for _, d := range file.Errors {
			b.WriteString(formatDiagnostic(d) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(utils.FormatWarningsSection(response.Warnings))

	s := response.Summary
	b.WriteString(utils.FormatSectionHeader("Summary"))
	b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Files", s.FilesProcessed))
	b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Files with errors", s.FilesFailed))
	b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Functions", s.Functions))
	b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Blocks", s.Blocks))
	b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Instructions", s.Instructions))
	b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Registers", s.Registers))
	if s.Phis > 0 {
		b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Phis", s.Phis))
	}
	if n := s.SourceErrors() + s.InternalErrors; n > 0 {
		b.WriteString(utils.FormatLabelWithIndent(SectionPadding, "Errors", n))
	}
	return b.String()
}

func writeFunctionText(b *strings.Builder, fn *domain.FunctionIR) {
	fmt.Fprintf(b, "%s %s(%s)", fn.Kind, fn.Name, strings.Join(fn.Params, ", "))
	if fn.Generator {
		b.WriteString(" generator")
	}
	r := fn.Registers
	fmt.Fprintf(b, "  [registers %d: user %d, cross %d, single %d]\n", r.Total, r.User, r.Cross, r.Single)

	var flow map[int]domain.BlockDataflow
	if fn.Dataflow != nil {
		flow = make(map[int]domain.BlockDataflow, len(fn.Dataflow.Blocks))
		for _, bd := range fn.Dataflow.Blocks {
			flow[bd.Index] = bd
		}
	}

	for _, block := range fn.Blocks {
		fmt.Fprintf(b, "  bb%d %s:", block.Index, block.Label)
		if len(block.Preds) > 0 {
			preds := make([]string, len(block.Preds))
			for i, p := range block.Preds {
				preds[i] = fmt.Sprintf("bb%d", p)
			}
			fmt.Fprintf(b, " preds=%s", strings.Join(preds, ","))
		}
		b.WriteString("\n")

		if bd, ok := flow[block.Index]; ok {
			if len(bd.Phis) > 0 {
				fmt.Fprintf(b, "%sphi %s\n", strings.Repeat(" ", ItemPadding), strings.Join(bd.Phis, ", "))
			}
			if notes := variableNotes(bd.Variables); notes != "" {
				fmt.Fprintf(b, "%s; %s\n", strings.Repeat(" ", ItemPadding), notes)
			}
		}
		for _, instr := range block.Instrs {
			fmt.Fprintf(b, "%s%s\n", strings.Repeat(" ", ItemPadding), instr)
		}
	}

	if len(fn.Constants) > 0 {
		fmt.Fprintf(b, "  consts: %s\n", strings.Join(fn.Constants, ", "))
	}
	if fn.Dataflow != nil {
		fmt.Fprintf(b, "  phis: %d\n", fn.Dataflow.PhiCount)
	}
	b.WriteString("\n")
}

// variableNotes summarizes the live user variables at block entry
func variableNotes(vars []domain.VariableState) string {
	var parts []string
	for _, v := range vars {
		if !v.Live {
			continue
		}
		note := v.Name + ":" + v.Defined
		if v.Type != "" {
			note += ":" + v.Type
		}
		parts = append(parts, note)
	}
	return strings.Join(parts, " ")
}

func formatDiagnostic(d domain.Diagnostic) string {
	where := d.File
	if d.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
	}
	msg := fmt.Sprintf("%s error: %s: %s", d.Kind, where, d.Message)
	if d.Function != "" && d.Kind != domain.DiagnosticSyntax {
		msg += fmt.Sprintf(" (in %s)", d.Function)
	}
	return msg
}

// formatDOT renders every function as a Graphviz cluster
func (f *LowerFormatterImpl) formatDOT(response *domain.LowerResponse) string {
	var b strings.Builder
	b.WriteString("digraph pyjit {\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\"];\n")

	cluster := 0
	for _, file := range response.Files {
		for _, fn := range file.Functions {
			prefix := fmt.Sprintf("f%d_", cluster)
			fmt.Fprintf(&b, "  subgraph cluster_%d {\n", cluster)
			fmt.Fprintf(&b, "    label=%s;\n", dotQuote(file.FilePath+": "+fn.Name))
			for _, block := range fn.Blocks {
				label := fmt.Sprintf("bb%d %s\\l", block.Index, dotEscape(block.Label))
				for _, instr := range block.Instrs {
					label += dotEscape(instr) + "\\l"
				}
				fmt.Fprintf(&b, "    %sbb%d [label=\"%s\"];\n", prefix, block.Index, label)
			}
			for _, block := range fn.Blocks {
				for _, e := range block.Succs {
					fmt.Fprintf(&b, "    %sbb%d -> %sbb%d%s;\n", prefix, block.Index, prefix, e.To, dotEdgeAttrs(e.Kind))
				}
			}
			b.WriteString("  }\n")
			cluster++
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func dotEdgeAttrs(kind string) string {
	switch kind {
	case "true":
		return " [label=\"T\", color=darkgreen]"
	case "false":
		return " [label=\"F\", color=red]"
	case "exception":
		return " [style=dashed, color=gray40]"
	default:
		return ""
	}
}

func dotEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\l`).Replace(s)
}

func dotQuote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
