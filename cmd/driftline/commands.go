package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline-app/driftline/internal/comprehension"
	"github.com/driftline-app/driftline/internal/config"
	"github.com/driftline-app/driftline/internal/importer"
	"github.com/driftline-app/driftline/internal/ollama"
	sig "github.com/driftline-app/driftline/internal/signal"
	"github.com/driftline-app/driftline/internal/storage"
	"github.com/driftline-app/driftline/internal/worker"
)

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a journal entry",
	Long: `Add a journal entry and queue it for signal extraction.

Examples:
  driftline add "Big presentation next Friday, feeling nervous about it"
  driftline add --file ./today.md
  driftline add "Went for a run" --domains health,exercise`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		domainsStr, _ := cmd.Flags().GetString("domains")

		var content string
		switch {
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			content = string(data)
		case len(args) > 0:
			content = strings.Join(args, " ")
		default:
			return fmt.Errorf("entry text or --file is required")
		}

		req := map[string]any{"content": content}
		if domainsStr != "" {
			domains := strings.Split(domainsStr, ",")
			for i := range domains {
				domains[i] = strings.TrimSpace(domains[i])
			}
			req["domains"] = domains
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/entries", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued entry %s for extraction", result["id"])
		return nil
	},
}

func init() {
	addCmd.Flags().String("file", "", "file to read the entry from")
	addCmd.Flags().String("domains", "", "comma-separated life domains the entry touches")
}

// --- entries ---

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Browse journal entries",
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/entries?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			ID        string    `json:"id"`
			Content   string    `json:"content"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No entries yet.")
			return nil
		}

		for _, e := range entries {
			content := e.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, e.ID[:8]),
				e.CreatedAt.Format("2006-01-02"),
				content,
			)
		}
		return nil
	},
}

var entriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/entries/"+args[0])
		if err != nil {
			return err
		}

		var entry any
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

var entriesSignalsCmd = &cobra.Command{
	Use:   "signals <id>",
	Short: "Show the signals extracted from an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/entries/"+args[0]+"/signals")
		if err != nil {
			return err
		}

		var signals []signalView
		if err := decodeJSON(resp, &signals); err != nil {
			return err
		}

		if len(signals) == 0 {
			fmt.Println("No signals extracted from this entry.")
			return nil
		}

		printSignals(signals)
		return nil
	},
}

var entriesReprocessCmd = &cobra.Command{
	Use:   "reprocess <id>",
	Short: "Re-run signal extraction for an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/entries/"+args[0]+"/reprocess", nil)
		if err != nil {
			return err
		}

		var result struct {
			ID                string `json:"id"`
			ExtractionVersion int    `json:"extraction_version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued entry %s for re-extraction (version %d)", result.ID, result.ExtractionVersion)
		return nil
	},
}

func init() {
	entriesListCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesShowCmd)
	entriesCmd.AddCommand(entriesSignalsCmd)
	entriesCmd.AddCommand(entriesReprocessCmd)
}

// --- signals ---

type signalView struct {
	Kind           string    `json:"kind"`
	Content        string    `json:"content"`
	TargetDate     time.Time `json:"target_date"`
	Sentiment      string    `json:"sentiment"`
	OriginalPhrase string    `json:"original_phrase"`
	Confidence     float64   `json:"confidence"`
}

func printSignals(signals []signalView) {
	for _, s := range signals {
		fmt.Printf("%s  %s  %s",
			s.TargetDate.Format("Mon Jan 2"),
			colorize(colorBold, s.Kind),
			s.Content,
		)
		if s.Sentiment != "" && s.Sentiment != "neutral" {
			fmt.Printf(" (%s)", s.Sentiment)
		}
		fmt.Println()
	}
}

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Query extracted signals",
}

var signalsUpcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "Show signals landing in the next days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/signals/upcoming?days=%d", days))
		if err != nil {
			return err
		}

		var signals []signalView
		if err := decodeJSON(resp, &signals); err != nil {
			return err
		}

		if len(signals) == 0 {
			fmt.Printf("Nothing on the horizon for the next %d days.\n", days)
			return nil
		}

		printSignals(signals)
		return nil
	},
}

func init() {
	signalsUpcomingCmd.Flags().Int("days", 30, "how many days ahead to look")
	signalsCmd.AddCommand(signalsUpcomingCmd)
}

// --- entities ---

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage tracked goals, intentions, and relationships",
}

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/entities"
		if typ != "" {
			path += "?type=" + url.QueryEscape(typ)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var entities []struct {
			ID    string `json:"id"`
			Type  string `json:"type"`
			Topic string `json:"topic"`
			State string `json:"state"`
		}
		if err := decodeJSON(resp, &entities); err != nil {
			return err
		}

		if len(entities) == 0 {
			fmt.Println("No entities tracked yet.")
			return nil
		}

		for _, e := range entities {
			fmt.Printf("%s  %-12s  %-10s  %s\n",
				colorize(colorCyan, e.ID[:8]),
				e.Type,
				colorize(colorBold, e.State),
				e.Topic,
			)
		}
		return nil
	},
}

var entitiesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single entity as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/entities/"+args[0])
		if err != nil {
			return err
		}

		var entity any
		if err := decodeJSON(resp, &entity); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entity)
	},
}

var entitiesPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote a recurring signal to a tracked entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		topic, _ := cmd.Flags().GetString("topic")
		entryID, _ := cmd.Flags().GetString("entry")

		if typ == "" || topic == "" {
			return fmt.Errorf("--type and --topic are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"type": typ, "topic": topic}
		if entryID != "" {
			req["entry_id"] = entryID
		}

		resp, err := client.post(cmd.Context(), "/entities/promote", req)
		if err != nil {
			return err
		}

		var entity struct {
			ID    string `json:"id"`
			State string `json:"state"`
		}
		if err := decodeJSON(resp, &entity); err != nil {
			return err
		}

		printSuccess("Tracking %s %q as %s (%s)", typ, topic, entity.ID[:8], entity.State)
		return nil
	},
}

var entitiesTransitionCmd = &cobra.Command{
	Use:   "transition <id> <state>",
	Short: "Move an entity to a new lifecycle state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		exclude, _ := cmd.Flags().GetBool("exclude")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"to": args[1]}
		if reason != "" {
			req["reason"] = reason
		}
		if exclude {
			req["exclude_permanently"] = true
		}

		resp, err := client.post(cmd.Context(), "/entities/"+args[0]+"/transition", req)
		if err != nil {
			return err
		}

		var entity struct {
			ID    string `json:"id"`
			Topic string `json:"topic"`
			State string `json:"state"`
		}
		if err := decodeJSON(resp, &entity); err != nil {
			return err
		}

		printSuccess("%q is now %s", entity.Topic, entity.State)
		return nil
	},
}

func init() {
	entitiesListCmd.Flags().String("type", "", "filter by entity type (goal, intention, relationship, pattern)")
	entitiesPromoteCmd.Flags().String("type", "", "entity type (goal, intention, relationship, pattern)")
	entitiesPromoteCmd.Flags().String("topic", "", "what the entity is about")
	entitiesPromoteCmd.Flags().String("entry", "", "source entry id")
	entitiesTransitionCmd.Flags().String("reason", "", "why the state is changing")
	entitiesTransitionCmd.Flags().Bool("exclude", false, "never resurface this topic again")
	entitiesCmd.AddCommand(entitiesListCmd)
	entitiesCmd.AddCommand(entitiesShowCmd)
	entitiesCmd.AddCommand(entitiesPromoteCmd)
	entitiesCmd.AddCommand(entitiesTransitionCmd)
}

// --- prompt ---

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Get a writing prompt for a neglected life domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/prompts/gap")
		if err != nil {
			return err
		}

		var result struct {
			Prompt *struct {
				Domain string `json:"domain"`
				Text   string `json:"text"`
			} `json:"prompt"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Prompt == nil {
			fmt.Println("No gap prompt right now.")
			return nil
		}

		fmt.Printf("%s\n\n%s\n", colorize(colorBold, result.Prompt.Domain), result.Prompt.Text)
		return nil
	},
}

// --- insights ---

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Browse and schedule backfilled insights",
}

var insightsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List currently visible insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/insights")
		if err != nil {
			return err
		}

		var result struct {
			Insights []struct {
				ID       string  `json:"id"`
				Content  string  `json:"content"`
				Revealed bool    `json:"revealed"`
				Conf     float64 `json:"confidence"`
			} `json:"insights"`
			Counts struct {
				Visible int `json:"visible"`
				Pending int `json:"pending"`
			} `json:"counts"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Insights) == 0 {
			fmt.Println("No insights visible yet.")
		}
		for _, i := range result.Insights {
			marker := " "
			if !i.Revealed {
				marker = colorize(colorYellow, "*")
			}
			fmt.Printf("%s %s  %s\n", marker, colorize(colorCyan, i.ID[:8]), i.Content)
		}
		if result.Counts.Pending > 0 {
			fmt.Printf("\n%d more insight(s) scheduled for later.\n", result.Counts.Pending)
		}
		return nil
	},
}

var insightsScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Assign reveal dates to unscheduled backfilled insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/insights/schedule", nil)
		if err != nil {
			return err
		}

		var result struct {
			Scheduled int `json:"scheduled"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Scheduled %d insight(s) for gradual reveal", result.Scheduled)
		return nil
	},
}

var insightsRevealCmd = &cobra.Command{
	Use:   "reveal <id>",
	Short: "Mark an insight as seen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/insights/"+args[0]+"/reveal", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Insight %s marked as revealed", args[0])
		return nil
	},
}

func init() {
	insightsCmd.AddCommand(insightsListCmd)
	insightsCmd.AddCommand(insightsScheduleCmd)
	insightsCmd.AddCommand(insightsRevealCmd)
}

// --- engagement ---

var engagementCmd = &cobra.Command{
	Use:   "engagement",
	Short: "Inspect or adjust prompt engagement preferences",
}

var engagementShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show engagement preferences as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/engagement")
		if err != nil {
			return err
		}

		var prefs any
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prefs)
	},
}

var engagementSnoozeCmd = &cobra.Command{
	Use:   "snooze <domain>",
	Short: "Stop prompting about a domain for a while",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/engagement/snooze", map[string]string{"domain": args[0]})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Snoozed prompts about %q", args[0])
		return nil
	},
}

func init() {
	engagementCmd.AddCommand(engagementShowCmd)
	engagementCmd.AddCommand(engagementSnoozeCmd)
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a journal export and backfill signal extraction",
	Long: `Import entries from another journaling app and re-run signal
extraction over the imported history. Works directly against local
storage, so the server does not need to be running.

Examples:
  driftline import --html export.html
  driftline import --pdf export.pdf --concurrency 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		htmlPath, _ := cmd.Flags().GetString("html")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		if (htmlPath == "") == (pdfPath == "") {
			return fmt.Errorf("exactly one of --html or --pdf is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if concurrency <= 0 {
			concurrency = cfg.Worker.BackfillConcurrency
		}

		ctx := cmd.Context()

		var parsed []importer.ParsedEntry
		if htmlPath != "" {
			f, err := os.Open(htmlPath)
			if err != nil {
				return fmt.Errorf("opening export: %w", err)
			}
			defer f.Close()
			parsed, err = importer.ParseHTMLExport(f)
			if err != nil {
				return err
			}
		} else {
			parsed, err = importer.ParsePDFExport(pdfPath)
			if err != nil {
				return err
			}
		}
		printStep("Parsed %d entries from export", len(parsed))

		ollamaClient := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.Model, os.Stderr); err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		imp := importer.NewImporter(store, nil)
		entries, err := imp.Import(ctx, "local", parsed)
		if err != nil {
			return err
		}
		printStep("Imported %d entries, extracting signals...", len(entries))

		comp := comprehension.NewClient(ollamaClient, cfg.Ollama.Model)
		processor := sig.NewProcessor(sig.NewExtractor(comp, nil), store, nil)
		if err := worker.Backfill(ctx, processor, entries, concurrency); err != nil {
			return fmt.Errorf("backfilling signals: %w", err)
		}

		printSuccess("Imported %d entries with signal extraction", len(entries))
		return nil
	},
}

func init() {
	importCmd.Flags().String("html", "", "HTML export file to import")
	importCmd.Flags().String("pdf", "", "PDF export file to import")
	importCmd.Flags().Int("concurrency", 0, "concurrent extraction calls during backfill")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
