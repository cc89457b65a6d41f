package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bookline/internal/app"
	"bookline/internal/config"
	"bookline/internal/db"
	"bookline/internal/domain"
	"bookline/internal/engine"
	"bookline/internal/repo"
	"bookline/internal/server"
	"bookline/internal/sweep"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Bookline CLI",
	Long: `Bookline runs the artist availability workflow for wedding bookings.
- Workspace: a directory with bookline.yml and a .bookline database.
- Client services: one booking can need makeup and hair; each is tracked separately.
- Batches: a round of offers to artists, single (one pick, with escalation) or broadcast (everyone).
- Proposals: one offer to one artist; answers are yes or no and final.
- Sweep: expires batches past their 24h deadline, escalates singles, and triggers client automations.
- Audit log: every state change, view with 'bl audit tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("BOOKLINE")
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
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(artistCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default bookline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func artistCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "artist", Short: "Manage the artist directory"}
	cmd.AddCommand(artistAddCmd())
	cmd.AddCommand(artistListCmd())
	cmd.AddCommand(artistUpdateCmd())
	cmd.AddCommand(artistSyncCmd())
	cmd.AddCommand(artistStatsCmd())
	return cmd
}

func artistAddCmd() *cobra.Command {
	var name, category, boardItemID string
	var tier int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an artist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateArtist(ctx, domain.Artist{
					Name:        name,
					Category:    category,
					Tier:        tier,
					BoardItemID: boardItemID,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "artist name")
	cmd.Flags().StringVar(&category, "category", "", "makeup or hair")
	cmd.Flags().IntVar(&tier, "tier", 2, "preference tier (1 best)")
	cmd.Flags().StringVar(&boardItemID, "board-item-id", "", "board item id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func artistListCmd() *cobra.Command {
	var category string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListArtists(ctx, repo.ArtistFilters{Category: category, ActiveOnly: activeOnly})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Tier", "Active"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Category, a.Tier, a.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "active artists only")
	return cmd
}

func artistUpdateCmd() *cobra.Command {
	var name string
	var tier int
	var active bool
	cmd := &cobra.Command{
		Use:   "update <artist-id>",
		Short: "Update an artist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			update := repo.ArtistUpdate{}
			if cmd.Flags().Changed("name") {
				update.Name = &name
			}
			if cmd.Flags().Changed("tier") {
				update.Tier = &tier
			}
			if cmd.Flags().Changed("active") {
				update.Active = &active
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpdateArtist(ctx, args[0], update); err != nil {
					return err
				}
				a, err := r.GetArtist(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "artist name")
	cmd.Flags().IntVar(&tier, "tier", 2, "preference tier (1 best)")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func artistSyncCmd() *cobra.Command {
	var boardID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the artist directory from the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := boardID
				if target == "" && e.Config != nil {
					target = e.Config.Board.BoardID
				}
				if target == "" {
					return fmt.Errorf("--board-id required (or board.board_id in bookline.yml)")
				}
				n, err := e.SyncArtists(ctx, target, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Synced %d artists\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&boardID, "board-id", "", "artist board id")
	return cmd
}

func artistStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <artist-id>",
		Short: "Show response stats for an artist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				stats, err := r.ArtistStats(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	return cmd
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "record", Short: "Manage client service records"}
	cmd.AddCommand(recordSyncCmd())
	cmd.AddCommand(recordListCmd())
	cmd.AddCommand(recordBatchesCmd())
	return cmd
}

func recordSyncCmd() *cobra.Command {
	var boardItemID, category string
	var dispatch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a client service record from the board",
		Long:  "Pulls one board item into the local store. With --dispatch, a single-mode batch opens when the record's status matches a qualifying phrase and no batch is open.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				record, err := e.SyncClientService(ctx, boardItemID, category, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if dispatch && e.QualifiesForDispatch(record) {
					batch, count, err := e.CreateBatch(ctx, engine.CreateBatchOptions{
						ClientServiceID: record.ID,
						Mode:            domain.ModeSingle,
						StartReason:     domain.ReasonInitialUndecided,
						ActorID:         viper.GetString("actor-id"),
					})
					if err != nil && !errors.Is(err, engine.ErrOpenBatchExists) {
						return err
					}
					if err == nil {
						fmt.Printf("Opened batch %s with %d proposal(s)\n", batch.ID, count)
					}
				}
				return printJSONOrTable(record)
			})
		},
	}
	cmd.Flags().StringVar(&boardItemID, "board-item-id", "", "board item id")
	cmd.Flags().StringVar(&category, "category", "", "makeup or hair")
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "open an initial batch when the status qualifies")
	_ = cmd.MarkFlagRequired("board-item-id")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func recordListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List client service records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListClientServices(ctx, category)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Category", "Event date", "Status"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.ClientName, c.Category, c.EventDate, c.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}

func recordBatchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches <record-id>",
		Short: "Show batch history for a client service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.BatchesForClientService(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "batch", Short: "Manage proposal batches"}
	cmd.AddCommand(batchCreateCmd())
	cmd.AddCommand(batchShowCmd())
	return cmd
}

func batchCreateCmd() *cobra.Command {
	var clientServiceID, mode, reason string
	var targetCount int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a proposal batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				batch, count, err := e.CreateBatch(ctx, engine.CreateBatchOptions{
					ClientServiceID: clientServiceID,
					Mode:            mode,
					StartReason:     reason,
					TargetCount:     targetCount,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				fmt.Printf("Opened batch %s with %d proposal(s), deadline %s\n", batch.ID, count, batch.Deadline)
				return printJSONOrTable(batch)
			})
		},
	}
	cmd.Flags().StringVar(&clientServiceID, "record", "", "client service id")
	cmd.Flags().StringVar(&mode, "mode", domain.ModeSingle, "single or broadcast")
	cmd.Flags().StringVar(&reason, "reason", domain.ReasonManual, "start reason")
	cmd.Flags().IntVar(&targetCount, "count", 0, "single mode: number of artists to offer (default 1)")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}

func batchShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch and its proposals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				batch, err := r.GetBatch(ctx, args[0])
				if err != nil {
					return err
				}
				views, err := r.BatchesForClientService(ctx, batch.ClientServiceID)
				if err != nil {
					return err
				}
				for _, v := range views {
					if v.ID == batch.ID {
						return printJSONOrTable(v)
					}
				}
				return repo.ErrNotFound
			})
		},
	}
	return cmd
}

func proposalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "proposal", Short: "Manage proposals"}
	cmd.AddCommand(proposalRespondCmd())
	cmd.AddCommand(proposalListCmd())
	return cmd
}

func proposalRespondCmd() *cobra.Command {
	var response string
	cmd := &cobra.Command{
		Use:   "respond <proposal-id>",
		Short: "Record an artist response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Respond(ctx, args[0], response, viper.GetString("actor-id")); err != nil {
					return err
				}
				p, err := e.Repo.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&response, "response", "", "yes or no")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}

func proposalListCmd() *cobra.Command {
	var artistID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open proposals for an artist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if artistID == "" {
				artistID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.OpenProposalsForArtist(ctx, artistID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Proposal", "Mode", "Client", "Event date", "Deadline"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ProposalID, v.Mode, v.ClientName, v.EventDate, v.Deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&artistID, "artist", "", "artist id (defaults to --actor-id)")
	return cmd
}

func sweepCmd() *cobra.Command {
	var loop bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire batches past their deadline",
		Long:  "One pass by default. With --loop, keeps sweeping on an interval until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if loop {
					runner := sweep.Runner{
						Engine:   e,
						Interval: interval,
						ActorID:  viper.GetString("actor-id"),
					}
					return runner.Run(ctx)
				}
				res, err := e.Sweep(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep sweeping on an interval")
	cmd.Flags().DurationVar(&interval, "interval", sweep.DefaultInterval, "sweep interval with --loop")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Audit log"}
	cmd.AddCommand(auditTailCmd())
	return cmd
}

func auditTailCmd() *cobra.Command {
	var n int
	var action, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAudit(ctx, repo.AuditFilters{
					Action:     action,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Action", "Entity", "Actor", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.TS, e.Action, e.EntityKind + "/" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&action, "action", "", "filter by action")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, role, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != "admin" && role != "artist" {
				return fmt.Errorf("--role must be admin or artist")
			}
			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			key := "blk_" + hex.EncodeToString(raw)
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				k := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actorID,
					Role:      role,
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				fmt.Printf("API key for %s (%s): %s\n", actorID, role, key)
				fmt.Println("Store it now; only the hash is kept.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&role, "role", "artist", "admin or artist")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Role", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Role, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, conn, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("BOOKLINE_JWT_SECRET"),
				AllowLegacyActorHeader: legacyHeader,
			}
			if authCfg.JWTSecret == "" && !legacyHeader {
				return fmt.Errorf("BOOKLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Bookline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "legacy-actor-header", false, "accept X-Actor-Id without auth (local only)")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	e, conn, err := app.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e.Repo)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
