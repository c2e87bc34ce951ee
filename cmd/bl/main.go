package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bidline/internal/config"
	"bidline/internal/db"
	"bidline/internal/discover"
	"bidline/internal/domain"
	"bidline/internal/gen"
	"bidline/internal/knowledge"
	"bidline/internal/migrate"
	"bidline/internal/orchestrator"
	"bidline/internal/repo"
	"bidline/internal/server"
	"bidline/internal/signals"
	"bidline/internal/stage"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Bidline CLI",
	Long: `Bidline runs a GovCon capture pipeline end to end: discover federal
opportunities, score bid/no-bid, and drive each pursuit through review,
drafting, pricing, and submission behind two human approval gates.
- Workspace: your .bidline directory holding the database; config lives in
  bidline.yml next to it.
- Opportunities: solicitations you are tracking; each one can carry a
  workflow that walks the seven pipeline stages.
- Scoring: a weighted seven-component bid/no-bid score (set-aside fit,
  scope, timeline, competition, staffing, pricing, strategic value).
- Gates: first-gate after screening, second-gate after pricing; approve or
  reject with 'bl workflow approve/reject'.
- Signals: pre-solicitation indicators (sources sought, RFIs) triaged
  against your company profile; hot leads surface early.
- Event log: diary of every state change, view with 'bl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BIDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCommand())
	rootCmd.AddCommand(oppCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(signalCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCommand() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var company string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default bidline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(company)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "My Company LLC", "company name")
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a config file and install it into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.FromFile(file); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			path := config.Path(viper.GetString("workspace"))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Imported %s into %s\n", file, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a bidline.yml to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func oppCmd() *cobra.Command {
	opp := &cobra.Command{
		Use:   "opp",
		Short: "Manage opportunities",
		Long:  "Opportunities are solicitations you are tracking. Create them by hand or let 'bl opp discover' pull them from the notice feed.",
	}
	opp.AddCommand(oppCreateCmd())
	opp.AddCommand(oppListCmd())
	opp.AddCommand(oppShowCmd())
	opp.AddCommand(oppDiscoverCmd())
	opp.AddCommand(oppArchiveCmd())
	return opp
}

func oppCreateCmd() *cobra.Command {
	var opp domain.Opportunity
	var value float64
	var deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record an opportunity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("value") {
				opp.EstimatedValue = &value
			}
			if deadline != "" {
				opp.ResponseDeadline = &deadline
			}
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				created, err := o.CreateOpportunity(ctx, opp, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(created)
			})
		},
	}
	cmd.Flags().StringVar(&opp.SolicitationNumber, "number", "", "solicitation number")
	cmd.Flags().StringVar(&opp.Title, "title", "", "title")
	cmd.Flags().StringVar(&opp.Agency, "agency", "", "agency")
	cmd.Flags().StringVar(&opp.Office, "office", "", "contracting office")
	cmd.Flags().StringVar(&opp.Description, "description", "", "description")
	cmd.Flags().StringVar(&opp.NAICSCode, "naics", "", "NAICS code")
	cmd.Flags().StringVar(&opp.PSCCode, "psc", "", "PSC code")
	cmd.Flags().StringVar(&opp.SetAside, "set-aside", "", "set-aside type (SDVOSB, VOSB, SB, 8(a), ...)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "response deadline (RFC3339)")
	cmd.Flags().Float64Var(&value, "value", 0, "estimated value in dollars")
	cmd.Flags().StringVar(&opp.PlaceOfPerformance, "place", "", "place of performance")
	cmd.Flags().BoolVar(&opp.TeamingEligible, "teaming", false, "teaming partner available for ineligible set-asides")
	cmd.Flags().StringVar(&opp.SourceURL, "url", "", "source URL")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func oppListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOpportunities(ctx, domain.OpportunityStatus(status), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Number", "Title", "Agency", "Set-Aside", "Status"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.SolicitationNumber, o.Title, o.Agency, o.SetAside, o.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func oppShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := r.GetOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	return cmd
}

func oppDiscoverCmd() *cobra.Command {
	var keywords, naics, noticeType string
	var daysBack, limit int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Search the notice feed and record matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			feed := discover.NewClient(cfg.Collaborators.NoticeFeed)
			if !feed.Configured() {
				return fmt.Errorf("notice feed not configured; set collaborators.notice_feed in %s", config.Path(viper.GetString("workspace")))
			}
			now := time.Now().UTC()
			q := discover.Query{
				Keywords:   keywords,
				NAICSCode:  naics,
				NoticeType: noticeType,
				PostedFrom: now.AddDate(0, 0, -daysBack).Format("01/02/2006"),
				PostedTo:   now.Format("01/02/2006"),
				Limit:      limit,
			}
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				notices, err := feed.Search(ctx, q)
				if err != nil {
					return err
				}
				actor := viper.GetString("actor-id")
				var created []domain.Opportunity
				for _, n := range notices {
					if _, err := o.Repo.GetOpportunityBySolicitation(ctx, n.SolicitationNumber); err == nil {
						continue
					} else if !errors.Is(err, repo.ErrNotFound) {
						return err
					}
					var deadline *string
					if n.ResponseDeadline != "" {
						d := n.ResponseDeadline
						deadline = &d
					}
					opp, err := o.CreateOpportunity(ctx, domain.Opportunity{
						SolicitationNumber: n.SolicitationNumber,
						Title:              n.Title,
						Agency:             n.Agency,
						Office:             n.Office,
						Description:        n.Description,
						NAICSCode:          n.NAICSCode,
						PSCCode:            n.PSCCode,
						SetAside:           n.SetAside,
						PostedDate:         n.PostedDate,
						ResponseDeadline:   deadline,
						EstimatedValue:     n.EstimatedValue,
						PlaceOfPerformance: n.PlaceOfPerformance,
						SourceURL:          n.SourceURL,
					}, actor)
					if err != nil {
						return err
					}
					created = append(created, opp)
				}
				fmt.Printf("Recorded %d of %d notices\n", len(created), len(notices))
				if viper.GetBool("json") {
					return printJSON(created)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&keywords, "keywords", "", "search keywords")
	cmd.Flags().StringVar(&naics, "naics", "", "NAICS code filter")
	cmd.Flags().StringVar(&noticeType, "type", "", "notice type filter")
	cmd.Flags().IntVar(&daysBack, "days", 7, "posted window in days")
	cmd.Flags().IntVar(&limit, "limit", 25, "max notices")
	return cmd
}

func oppArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				if err := r.ArchiveOpportunity(ctx, args[0], now); err != nil {
					return err
				}
				o, err := r.GetOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	return cmd
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{
		Use:   "workflow",
		Short: "Drive pipeline workflows",
		Long:  "A workflow walks one opportunity through discovery, screening, solicitation review, drafting, pricing, communications, and submission. It pauses at the two gates unless started with --auto-approve.",
	}
	wf.AddCommand(workflowStartCmd())
	wf.AddCommand(workflowAdvanceCmd())
	wf.AddCommand(workflowStatusCmd())
	wf.AddCommand(workflowApproveCmd())
	wf.AddCommand(workflowRejectCmd())
	wf.AddCommand(workflowAbortCmd())
	wf.AddCommand(workflowListCmd())
	return wf
}

func workflowStartCmd() *cobra.Command {
	var autoApprove, run bool
	cmd := &cobra.Command{
		Use:   "start <opportunity-id>",
		Short: "Start (or resume) a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				actor := viper.GetString("actor-id")
				w, err := o.Start(ctx, args[0], autoApprove, actor)
				if err != nil {
					return err
				}
				if !run {
					return printJSON(w)
				}
				res, err := o.Advance(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printAdvance(res)
			})
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip both human gates")
	cmd.Flags().BoolVar(&run, "run", false, "advance immediately after starting")
	return cmd
}

func workflowAdvanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <opportunity-id>",
		Short: "Advance a workflow as far as it will go",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				res, err := o.Advance(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printAdvance(res)
			})
		},
	}
	return cmd
}

func workflowStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <opportunity-id>",
		Short: "Show workflow state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				w, err := o.Status(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("Workflow: %s (%s)\n", w.OpportunityID, w.Status)
				fmt.Printf("Completed: %d/%d stages\n", len(w.Completed), len(domain.StageOrder))
				for _, s := range w.Completed {
					fmt.Printf("  done  %s\n", s)
				}
				if next, ok := w.NextStage(); ok {
					fmt.Printf("  next  %s\n", next)
				}
				for _, g := range w.PendingGates {
					fmt.Printf("Pending gate: %s\n", g)
				}
				for _, f := range w.Failed {
					fmt.Printf("Failed: %s (%s) %s\n", f.Stage, f.Kind, f.Reason)
				}
				return nil
			})
		},
	}
	return cmd
}

func workflowApproveCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "approve <opportunity-id> <gate>",
		Short: "Approve a pending gate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				w, err := o.ResolveGate(ctx, args[0], domain.Gate(args[1]), domain.DecisionApprove, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "approval note")
	return cmd
}

func workflowRejectCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "reject <opportunity-id> <gate>",
		Short: "Reject a pending gate (aborts the pursuit)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				w, err := o.ResolveGate(ctx, args[0], domain.Gate(args[1]), domain.DecisionReject, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "rejection note")
	return cmd
}

func workflowAbortCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abort <opportunity-id>",
		Short: "Abort a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				w, err := o.Abort(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "abort reason")
	return cmd
}

func workflowListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkflows(ctx, domain.WorkflowStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Opportunity", "Status", "Done", "Pending Gates"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.OpportunityID, w.Status, fmt.Sprintf("%d/%d", len(w.Completed), len(domain.StageOrder)), joinGates(w.PendingGates)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <opportunity-id>",
		Short: "Score an opportunity bid/no-bid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				score, err := o.ScoreOpportunity(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(score)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Component", "Score"})
				tw.AppendRow(table.Row{"set_aside", score.SetAside})
				tw.AppendRow(table.Row{"scope", score.Scope})
				tw.AppendRow(table.Row{"timeline", score.Timeline})
				tw.AppendRow(table.Row{"competition", score.Competition})
				tw.AppendRow(table.Row{"staffing", score.Staffing})
				tw.AppendRow(table.Row{"pricing", score.Pricing})
				tw.AppendRow(table.Row{"strategic", score.Strategic})
				tw.AppendFooter(table.Row{"total", score.Total})
				tw.Render()
				fmt.Printf("Recommendation: %s\n", score.Recommendation)
				for _, n := range score.Notes {
					fmt.Printf("  - %s\n", n)
				}
				return nil
			})
		},
	}
	return cmd
}

func signalCmd() *cobra.Command {
	sig := &cobra.Command{
		Use:   "signal",
		Short: "Track early pre-solicitation signals",
	}
	sig.AddCommand(signalScanCmd())
	sig.AddCommand(signalAddCmd())
	sig.AddCommand(signalListCmd())
	return sig
}

func signalScanCmd() *cobra.Command {
	var daysBack int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the notice feed for new signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			feed := discover.NewClient(cfg.Collaborators.NoticeFeed)
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				res, err := o.ScanSignals(ctx, feed, daysBack, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Scanned %d notices, stored %d, %d hot\n", res.Scanned, res.Stored, len(res.HotLeads))
				if viper.GetBool("json") {
					return printJSON(res)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&daysBack, "days", 14, "posted window in days")
	return cmd
}

func signalAddCmd() *cobra.Command {
	var raw signals.Raw
	var sigType string
	var value float64
	var rfpDate string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Triage a manually entered signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw.Type = domain.SignalType(sigType)
			if cmd.Flags().Changed("value") {
				raw.EstimatedValue = &value
			}
			if rfpDate != "" {
				raw.ExpectedRFPDate = &rfpDate
			}
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				sig, err := o.TriageSignal(ctx, raw, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(sig)
			})
		},
	}
	cmd.Flags().StringVar(&sigType, "type", "sources_sought", "signal type")
	cmd.Flags().StringVar(&raw.Title, "title", "", "title")
	cmd.Flags().StringVar(&raw.Agency, "agency", "", "agency")
	cmd.Flags().StringVar(&raw.NAICSCode, "naics", "", "NAICS code")
	cmd.Flags().StringVar(&raw.PSCCode, "psc", "", "PSC code")
	cmd.Flags().StringVar(&raw.SetAside, "set-aside", "", "set-aside type")
	cmd.Flags().StringVar(&raw.SolicitationNumber, "number", "", "solicitation number")
	cmd.Flags().Float64Var(&value, "value", 0, "estimated value in dollars")
	cmd.Flags().StringVar(&rfpDate, "rfp-date", "", "expected RFP date (RFC3339)")
	cmd.Flags().StringVar(&raw.SourceURL, "url", "", "source URL")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func signalListCmd() *cobra.Command {
	var hot bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSignals(ctx, hot, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Agency", "Composite", "Hot", "Lead Time"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Type, s.Title, s.Agency, s.Composite, s.HotLead, s.LeadTime})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&hot, "hot", false, "hot leads only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var opportunityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.EventsAfter(ctx, n, 0, opportunityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&opportunityID, "opportunity", "", "opportunity filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *orchestrator.Orchestrator) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("BIDLINE_JWT_SECRET")}
				feed := discover.NewClient(o.Config.Collaborators.NoticeFeed)
				handler, err := server.New(server.Config{
					Orchestrator: o,
					Feed:         feed,
					BasePath:     basePath,
					Auth:         authCfg,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Bidline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("My Company LLC")
	}
	return cfg, nil
}

func withOrchestrator(ctx context.Context, fn func(context.Context, *orchestrator.Orchestrator) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	set, err := stage.DefaultSet(buildDeps(conn, cfg))
	if err != nil {
		return err
	}
	return fn(ctx, orchestrator.New(conn, cfg, set))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func buildDeps(conn *sql.DB, cfg *config.Config) stage.Deps {
	deps := stage.Deps{
		Feed:   discover.NewClient(cfg.Collaborators.NoticeFeed),
		Scores: orchestrator.NewScoreSink(conn),
	}
	if cfg.Collaborators.Retrieval.BaseURL != "" {
		deps.Knowledge = knowledge.NewHTTPSearcher(cfg.Collaborators.Retrieval)
	}
	if cfg.Collaborators.Generation.BaseURL != "" {
		deps.Generator = gen.NewHTTPGenerator(cfg.Collaborators.Generation)
	}
	return deps
}

func printAdvance(res orchestrator.AdvanceResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	switch res.Outcome {
	case domain.OutcomeCompleted:
		fmt.Println("Workflow completed.")
	case domain.OutcomeAwaitingApproval:
		fmt.Printf("Holding at %s; resolve with 'bl workflow approve <id> %s'\n", res.Gate, res.Gate)
	case domain.OutcomeAborted:
		fmt.Println("Workflow is aborted.")
	default:
		fmt.Printf("Outcome: %s (stage %s)\n", res.Outcome, res.Stage)
	}
	return printJSON(res.State)
}

func joinGates(gates []domain.Gate) string {
	out := make([]string, 0, len(gates))
	for _, g := range gates {
		out = append(out, string(g))
	}
	return strings.Join(out, ", ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
