package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/ProofStamp/internal/app"
	"github.com/jmerrifield20/ProofStamp/internal/auth"
	"github.com/jmerrifield20/ProofStamp/internal/config"
	"github.com/jmerrifield20/ProofStamp/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile    string
	serverURL  string
	adminToken string
	outFormat  string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "proofstamp",
	Short: "ProofStamp ledger CLI",
	Long: `proofstamp stamps content hashes into an append-only ledger and
verifies published documents against them.

backfill and stamp operate directly on the configured content store and
ledger. proof and verify query a running proofstampd.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger = zap.NewNop()
		if verbose {
			if logger, err = config.NewLogger(true); err != nil {
				return err
			}
		}
		cfg, err = config.Load(viper.New(), cfgFile, logger)
		if err != nil {
			return err
		}
		if serverURL == "" {
			serverURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/proofstamp.yaml or ./proofstamp.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "proofstampd base URL (default http://localhost:<server.port>)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("PROOFSTAMP_TOKEN"), "admin token for remote admin calls")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(stampCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func verdict(b *bool) string {
	switch {
	case b == nil:
		return "unknown"
	case *b:
		return "match"
	default:
		return "MISMATCH"
	}
}

// ── backfill ─────────────────────────────────────────────────────────────────

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Stamp every published post that has no ledger receipt yet",
	Long: `backfill walks published posts oldest first and stamps each one lacking
a ledger receipt. A failing post is reported and skipped; the run continues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Recorder.Backfill(cmd.Context())
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		if outFormat == "json" {
			return printJSON(map[string]int{"backfilled": n})
		}
		fmt.Printf("Backfilled %d posts\n", n)
		return nil
	},
}

// ── stamp ────────────────────────────────────────────────────────────────────

var stampCmd = &cobra.Command{
	Use:   "stamp <id> [id] ...",
	Short: "Hash and stamp the given documents",
	Long: `stamp recomputes and stores the local hash of each document and, when a
ledger is configured, appends a ledger entry for it.

With --remote the request is sent to proofstampd (requires --token).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStamp,
}

var stampRemote bool

func init() {
	stampCmd.Flags().BoolVar(&stampRemote, "remote", false, "stamp through a running proofstampd instead of locally")
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid document id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runStamp(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	var ok, fail int
	if stampRemote {
		c, err := client.New(serverURL, client.WithAdminToken(adminToken))
		if err != nil {
			return err
		}
		t, err := c.StampMany(cmd.Context(), ids)
		if err != nil {
			return err
		}
		ok, fail = t.OK, t.Fail
	} else {
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		if !a.Recorder.LedgerConfigured() {
			fmt.Fprintln(os.Stderr, "ledger not configured: storing local hashes only")
		}
		t := a.Recorder.StampMany(cmd.Context(), ids)
		ok, fail = t.OK, t.Fail
	}

	if outFormat == "json" {
		return printJSON(map[string]int{"ok": ok, "fail": fail})
	}
	if fail > 0 {
		fmt.Printf("Stamped %d posts (%d failed).\n", ok, fail)
		return fmt.Errorf("%d of %d stamps failed", fail, len(ids))
	}
	fmt.Printf("Stamped %d posts.\n", ok)
	return nil
}

// ── proof ────────────────────────────────────────────────────────────────────

var proofCmd = &cobra.Command{
	Use:   "proof <id>",
	Short: "Show the proof summary of a published document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		p, err := c.Proof(cmd.Context(), ids[0])
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(p)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "MODE\t%s\n", p.Mode)
		fmt.Fprintf(w, "URL\t%s\n", p.URL)
		fmt.Fprintf(w, "VER\t%s\n", p.Ver)
		fmt.Fprintf(w, "COMMIT\t%s\n", orDash(p.Commit))
		fmt.Fprintf(w, "HASH\t%s\n", orDash(p.Hash))
		if p.CommitURL != "" {
			fmt.Fprintf(w, "LINK\t%s\n", p.CommitURL)
		}
		return w.Flush()
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <url>",
	Short: "Verify a document URL against its stored hash and the ledger",
	Long: `verify asks proofstampd to recompute the hash of the document at <url>
and compare it with the locally stored hash and the latest ledger entry.

Each comparison is reported as match, MISMATCH or unknown. unknown means
one side was unavailable and is not evidence of tampering.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		v, err := c.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(v)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "URL\t%s\n", v.URL)
		fmt.Fprintf(w, "COMPUTED\t%s\n", orDash(v.ComputedSHA))
		fmt.Fprintf(w, "STORED\t%s\t%s\n", orDash(v.StoredSHA), verdict(v.MatchLocal))
		fmt.Fprintf(w, "LEDGER\t%s\t%s\n", orDash(v.LedgerSHA), verdict(v.MatchLedger))
		fmt.Fprintf(w, "COMMIT\t%s\n", orDash(v.Commit))
		if v.CommitURL != nil {
			fmt.Fprintf(w, "LINK\t%s\n", *v.CommitURL)
		}
		fmt.Fprintf(w, "MODIFIED\t%s\n", orDash(v.LastModified))
		return w.Flush()
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin token from server.admin_secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		issuerURL := cfg.Server.IssuerURL
		if issuerURL == "" {
			issuerURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}
		issuer, err := auth.NewIssuer(cfg.Server.AdminSecret, issuerURL, tokenTTL)
		if err != nil {
			return err
		}
		token, err := issuer.Issue(tokenSubject)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 8*time.Hour, "token lifetime")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the proofstamp CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("proofstamp %s\n", version)
	},
}
