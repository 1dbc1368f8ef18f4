// Command decisioncored is a minimal standalone host for the decision
// core: it wires an in-memory engine, a two-tool registry (list_files and
// final_answer), and an Anthropic-backed model client, starts one session from a command-line
// prompt, and runs its trajectory to completion. It is not a production
// server — there is no transport layer here (spec Non-goals exclude
// transport generation) — only the wiring a real host would build on top
// of, in the shape the teacher's cmd/assistant wires its services before
// handing them to a transport.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/agentcore/decisioncore/engine"
	engineinmem "github.com/agentcore/decisioncore/engine/inmem"
	"github.com/agentcore/decisioncore/exchange"
	"github.com/agentcore/decisioncore/loop"
	"github.com/agentcore/decisioncore/modelclient/anthropic"
	"github.com/agentcore/decisioncore/session"
	"github.com/agentcore/decisioncore/store"
	storeinmem "github.com/agentcore/decisioncore/store/inmem"
	"github.com/agentcore/decisioncore/tools"
	"github.com/agentcore/decisioncore/toolexec"
)

const workflowName = "decisioncore.session"

func main() {
	var (
		promptF    = flag.String("prompt", "List the files in the repository root.", "initial user message for the session")
		workspaceF = flag.String("workspace", ".", "workspace root reported to the model")
		fastModelF = flag.String("fast-model", "claude-3-5-haiku-latest", "model identifier used for Session.ModelConfig.Fast")
		slowModelF = flag.String("slow-model", "claude-3-5-sonnet-latest", "model identifier used for Session.ModelConfig.Slow")
		dbgF       = flag.Bool("debug", false, "log request and response bodies")
		sessionTOF = flag.Duration("session-timeout", 2*time.Minute, "overall session deadline")
		perToolTOF = flag.Duration("tool-timeout", 15*time.Second, "per-tool invocation timeout")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *promptF, *workspaceF, *fastModelF, *slowModelF, *sessionTOF, *perToolTOF); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context, prompt, workspace, fastModel, slowModel string, sessionTimeout, toolTimeout time.Duration) error {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return errors.New("decisioncored: ANTHROPIC_API_KEY is required")
	}
	model, err := anthropic.NewFromAPIKey(apiKey, anthropic.Options{
		DefaultModel: slowModel,
		FastModel:    fastModel,
		SlowModel:    slowModel,
		MaxTokens:    4096,
	})
	if err != nil {
		return fmt.Errorf("decisioncored: building model client: %w", err)
	}

	reg := tools.NewRegistry()
	if err := reg.Register(listFilesDescriptor(workspace)); err != nil {
		return fmt.Errorf("decisioncored: registering list_files: %w", err)
	}
	if err := reg.Register(finalAnswerDescriptor()); err != nil {
		return fmt.Errorf("decisioncored: registering final_answer: %w", err)
	}

	eng := engineinmem.New()
	executor := toolexec.New("", "")
	if err := toolexec.RegisterActivity(ctx, eng, reg, ""); err != nil {
		return fmt.Errorf("decisioncored: registering tool activity: %w", err)
	}

	driver := loop.New(loop.Deps{Registry: reg, Model: model, Tools: executor})
	if err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:    workflowName,
		Handler: driver.Handler(),
	}); err != nil {
		return fmt.Errorf("decisioncored: registering workflow: %w", err)
	}

	st := storeinmem.New()

	sess := session.New(
		session.UserContext{WorkspaceRoot: workspace},
		session.RepoRef{Name: workspace, Root: workspace},
		nil,
		session.ModelConfig{Fast: fastModel, Slow: slowModel},
		withTimeouts(session.DefaultConfig(), sessionTimeout, toolTimeout),
	)
	if _, err := sess.AppendUserMessage(prompt); err != nil {
		return fmt.Errorf("decisioncored: seeding prompt: %w", err)
	}

	log.Printf(ctx, "starting session %s", sess.ID())
	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       string(sess.ID()),
		Workflow: workflowName,
		Input:    loop.Input{Session: sess},
	})
	if err != nil {
		return fmt.Errorf("decisioncored: starting workflow: %w", err)
	}

	var result loop.Result
	if err := handle.Wait(ctx, &result); err != nil {
		return fmt.Errorf("decisioncored: running session: %w", err)
	}

	if snap, err := sess.Snapshot(); err != nil {
		log.Printf(ctx, "ERROR: snapshotting session: %s", err)
	} else if err := st.Save(ctx, snap); err != nil {
		log.Printf(ctx, "ERROR: persisting session: %s", err)
	}

	log.Printf(ctx, "session %s finished: status=%s nodes=%d exchanges=%d reason=%q",
		sess.ID(), result.Status, result.NodeCount, result.ExchangeLen, result.Reason)

	for _, e := range sess.Exchanges().ForPrompt(false) {
		if e.Role == exchange.RoleAssistant && e.Terminal {
			fmt.Println(e.Text)
		}
	}
	return nil
}

func withTimeouts(cfg session.Config, sessionTimeout, toolTimeout time.Duration) session.Config {
	cfg.SessionTimeout = sessionTimeout
	cfg.PerToolTimeout = toolTimeout
	return cfg
}

var _ store.Store = (*storeinmem.Store)(nil)
