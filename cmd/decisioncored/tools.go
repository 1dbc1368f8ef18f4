package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcore/decisioncore/tools"
)

// listFilesDescriptor registers a read-only tool that lists the immediate
// contents of a directory under root, demonstrating the SideEffectReads
// path through toolexec's activity wrapper.
func listFilesDescriptor(root string) tools.Descriptor {
	return tools.Descriptor{
		Name:        "list_files",
		Description: "List files under a directory relative to the workspace root.",
		Arguments:   []tools.Argument{{Name: "path", Required: false}},
		SideEffects: tools.SideEffectReads,
		Executor: tools.ExecutorFunc(func(_ context.Context, args any, _ tools.SessionView) (tools.Observation, error) {
			rel := "."
			if m, ok := args.(map[string]any); ok {
				if p, ok := m["path"].(string); ok && p != "" {
					rel = p
				}
			}
			dir := filepath.Join(root, rel)
			entries, err := os.ReadDir(dir)
			if err != nil {
				return tools.Observation{}, fmt.Errorf("list_files: %w", err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			return tools.Observation{
				Text:  strings.Join(names, "\n"),
				Value: names,
			}, nil
		}),
	}
}

// finalAnswerDescriptor registers the terminating tool that ends a
// trajectory with the model's final reply (spec §4.6's terminal-tool
// branch, TerminatesToStatus "Completed").
func finalAnswerDescriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:               "final_answer",
		Description:        "Present the final answer to the user and end the session.",
		Arguments:          []tools.Argument{{Name: "text", Required: true}},
		IsTerminating:      true,
		TerminatesToStatus: "Completed",
		SideEffects:        tools.SideEffectNone,
		Executor: tools.ExecutorFunc(func(_ context.Context, args any, _ tools.SessionView) (tools.Observation, error) {
			m, ok := args.(map[string]any)
			if !ok {
				return tools.Observation{}, fmt.Errorf("final_answer: expected structured arguments")
			}
			text, _ := m["text"].(string)
			return tools.Observation{Text: text, Value: text}, nil
		}),
	}
}
