package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ludo-technologies/pyjit/internal/parser"
)

var benchmarkSources = []struct {
	name string
	code string
}{
	{
		name: "SimpleFunction",
		code: `
def simple():
    x = 1
    y = 2
    return x + y
`,
	},
	{
		name: "ControlFlow",
		code: `
def control_flow(x):
    if x > 0:
        result = "positive"
    elif x < 0:
        result = "negative"
    else:
        result = "zero"
    return result
`,
	},
	{
		name: "NestedLoop",
		code: `
def nested_loop():
    result = []
    for i in range(10):
        for j in range(10):
            if i * j > 50:
                break
            result.append(i * j)
    return result
`,
	},
	{
		name: "ExceptionHandling",
		code: `
def exception_handling():
    try:
        risky_operation()
        return "success"
    except ValueError:
        return "value_error"
    except TypeError:
        return "type_error"
    except Exception as e:
        return f"other_error: {e}"
    finally:
        cleanup()
`,
	},
	{
		name: "ComplexFunction",
		code: generateComplexFunction(50),
	},
	{
		name: "LargeLinearFunction",
		code: generateLargeLinearFunction(200),
	},
}

func parseForBenchmark(b *testing.B, code string) *parser.Node {
	b.Helper()
	result, err := parser.New().Parse(context.Background(), []byte(code))
	if err != nil {
		b.Fatalf("Failed to parse: %v", err)
	}
	return result.AST
}

// BenchmarkCFGConstruction benchmarks CFG construction speed
func BenchmarkCFGConstruction(b *testing.B) {
	for _, tc := range benchmarkSources {
		b.Run(tc.name, func(b *testing.B) {
			ast := parseForBenchmark(b, tc.code)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				prog, err := BuildProgram(ast, nil)
				if err != nil {
					b.Fatalf("Failed to build CFG: %v", err)
				}
				if prog.Module == nil {
					b.Fatal("module CFG is nil")
				}
			}
		})
	}
}

// BenchmarkCompile benchmarks the whole lowering pipeline
func BenchmarkCompile(b *testing.B) {
	for _, tc := range benchmarkSources {
		b.Run(tc.name, func(b *testing.B) {
			ast := parseForBenchmark(b, tc.code)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Compile(ast, DefaultCompileOptions()); err != nil {
					b.Fatalf("Failed to compile: %v", err)
				}
			}
		})
	}
}

// BenchmarkAnalyzeFunction benchmarks liveness, definedness and phi
// placement over already lowered code
func BenchmarkAnalyzeFunction(b *testing.B) {
	for _, tc := range benchmarkSources {
		b.Run(tc.name, func(b *testing.B) {
			prog, err := Compile(parseForBenchmark(b, tc.code), DefaultCompileOptions())
			if err != nil {
				b.Fatalf("Failed to compile: %v", err)
			}
			funcs := prog.Functions()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for _, cfg := range funcs {
					if _, err := AnalyzeFunction(cfg, AnalysisOptions{Types: true}); err != nil {
						b.Fatalf("Failed to analyze %s: %v", cfg.Name, err)
					}
				}
			}
		})
	}
}

// BenchmarkCFGBuilderScalability tests scalability with different code sizes
func BenchmarkCFGBuilderScalability(b *testing.B) {
	for _, size := range []int{10, 50, 100, 200, 500} {
		b.Run(fmt.Sprintf("LinearCode_%d", size), func(b *testing.B) {
			ast := parseForBenchmark(b, generateLargeLinearFunction(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Compile(ast, DefaultCompileOptions()); err != nil {
					b.Fatalf("Failed to compile: %v", err)
				}
			}
		})

		b.Run(fmt.Sprintf("ComplexCode_%d", size), func(b *testing.B) {
			ast := parseForBenchmark(b, generateComplexFunction(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Compile(ast, DefaultCompileOptions()); err != nil {
					b.Fatalf("Failed to compile: %v", err)
				}
			}
		})
	}
}

func generateComplexFunction(statements int) string {
	var sb strings.Builder
	sb.WriteString("def complex_function(x):\n")
	sb.WriteString("    result = 0\n")
	sb.WriteString("    temp = x\n")

	for i := 0; i < statements/10; i++ {
		fmt.Fprintf(&sb, "    if temp > %d:\n", i%10)
		fmt.Fprintf(&sb, "        for j in range(%d):\n", 5+i%3)
		sb.WriteString("            if j % 2 == 0:\n")
		sb.WriteString("                result += j\n")
		sb.WriteString("            else:\n")
		sb.WriteString("                result -= j\n")
		sb.WriteString("        temp -= 1\n")
		sb.WriteString("    else:\n")
		sb.WriteString("        result += temp\n")
	}
	for i := 0; i < statements%10; i++ {
		fmt.Fprintf(&sb, "    var%c = result + %d\n", 'a'+i, i)
	}

	sb.WriteString("    return result\n")
	return sb.String()
}

func generateLargeLinearFunction(statements int) string {
	var sb strings.Builder
	sb.WriteString("def large_linear_function():\n")
	for i := 0; i < statements; i++ {
		fmt.Fprintf(&sb, "    var%c = %d\n", 'a'+i%26, i%10)
	}
	fmt.Fprintf(&sb, "    return var%c\n", 'a'+(statements-1)%26)
	return sb.String()
}
