package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/analyzer"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/batch"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/ingest"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <entity-type> <entity-id>",
	Short: "Audit one content entity and print its risk report",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entity id %q", args[1])
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		e, err := eng.entities.Load(cmd.Context(), args[0], id)
		if err != nil {
			return fmt.Errorf("loading entity %s/%d: %w", args[0], id, err)
		}

		res, err := eng.analyzer.Analyze(cmd.Context(), e)
		if err != nil {
			return err
		}

		printStatus("Status", "%s", res.Status)
		summary, ok := analyzer.Summary(res)
		if !ok {
			return nil
		}
		printStatus("Top risk", "%s (%s)", summary.Label, formatScore(summary.Value))
		for _, ind := range analyzer.Report(res) {
			fmt.Printf("  %-40s %s\n", ind.Label, formatScore(ind.Value))
		}
		return nil
	},
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch <entity-type>[.<bundle>] ...",
	Short: "Audit all matching entities in chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		limit, _ := cmd.Flags().GetInt("limit")

		var targets []batch.Target
		for _, arg := range args {
			entityType, bundle, _ := strings.Cut(arg, ".")
			targets = append(targets, batch.Target{Type: entityType, Bundle: bundle})
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := eng.runner.Run(cmd.Context(), batch.Options{
			Targets:      targets,
			Force:        force,
			Limit:        limit,
			ChunkSize:    eng.cfg.Batch.ChunkSize,
			Policy:       eng.cfg.Batch.Policy,
			RecentWindow: eng.cfg.Batch.RecentWindow,
		}, func(p batch.Progress) {
			fmt.Fprintf(os.Stderr, "\rprogress: %d/%d (%.0f%%)", p.Attempted, p.Total, p.Fraction()*100)
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		printSuccess("batch %s: %d of %d entities analyzed", result.RunID, result.Processed, result.Total)
		for _, itemErr := range result.Errors {
			printWarning("%s", itemErr)
		}
		return nil
	},
}

// --- vectors ---

var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Manage security risk vectors",
}

var vectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured vectors in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		vs, err := eng.registry.List()
		if err != nil {
			return err
		}
		for _, v := range vectors.SortByWeight(vs) {
			fmt.Printf("%-28s %-32s weight=%d\n", v.ID, v.Label, v.Weight)
		}
		return nil
	},
}

var vectorsAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a vector (weight auto-assigned unless --weight is given)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")
		description, _ := cmd.Flags().GetString("description")

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if cmd.Flags().Changed("weight") {
			weight, _ := cmd.Flags().GetInt("weight")
			v := vectors.Vector{ID: args[0], Label: label, Description: description, Weight: weight}
			if err := eng.registry.Save(v); err != nil {
				return err
			}
			printSuccess("saved vector %s (weight %d)", v.ID, v.Weight)
			return nil
		}

		v, err := eng.registry.Add(args[0], label, description)
		if err != nil {
			return err
		}
		printSuccess("added vector %s (weight %d)", v.ID, v.Weight)
		return nil
	},
}

var vectorsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a vector and every cached score carrying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.registry.Delete(args[0]); err != nil {
			return err
		}
		printSuccess("deleted vector %s", args[0])
		return nil
	},
}

// --- enable ---

var enableCmd = &cobra.Command{
	Use:   "enable <entity-type> <bundle>",
	Short: "Enable auditing for an entity-type/bundle pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorIDs, _ := cmd.Flags().GetString("vectors")

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		bs := vectors.BundleSettings{Enabled: true}
		if vectorIDs != "" {
			for _, id := range strings.Split(vectorIDs, ",") {
				bs.Vectors = append(bs.Vectors, strings.TrimSpace(id))
			}
		}
		if err := eng.settings.Set(args[0], args[1], bs); err != nil {
			return err
		}
		printSuccess("auditing enabled for %s.%s", args[0], args[1])
		return nil
	},
}

// --- content ---

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage stored content items",
}

var contentAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a content item from text or a file (txt, html, pdf)",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		entityType, _ := cmd.Flags().GetString("type")
		bundle, _ := cmd.Flags().GetString("bundle")
		langcode, _ := cmd.Flags().GetString("langcode")
		unpublished, _ := cmd.Flags().GetBool("unpublished")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		var doc ingest.Document
		if file != "" {
			var err error
			if doc, err = ingest.FromFile(file); err != nil {
				return err
			}
		} else {
			doc = ingest.FromText(title, text)
		}
		if title != "" {
			doc.Title = title
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		item, err := eng.store.SaveContentItem(storage.ContentItem{
			EntityType: entityType,
			Bundle:     bundle,
			Langcode:   langcode,
			Title:      doc.Title,
			Body:       doc.Body,
			Published:  !unpublished,
		})
		if err != nil {
			return err
		}
		printSuccess("stored %s/%d (%s)", item.EntityType, item.EntityID, item.Title)
		return nil
	},
}

var contentListCmd = &cobra.Command{
	Use:   "list <entity-type>",
	Short: "List stored content items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, _ := cmd.Flags().GetString("bundle")

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		items, err := eng.store.QueryContentItems(args[0], bundle, false, 0)
		if err != nil {
			return err
		}
		for _, item := range items {
			state := "published"
			if !item.Published {
				state = "unpublished"
			}
			fmt.Printf("%s/%-6d %-12s %-12s %s\n", item.EntityType, item.EntityID, item.Bundle, state, item.Title)
		}
		return nil
	},
}

var contentRemoveCmd = &cobra.Command{
	Use:   "rm <entity-type> <entity-id>",
	Short: "Delete a content item and its cached scores",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entity id %q", args[1])
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.store.DeleteContentItem(args[0], id); err != nil {
			return err
		}
		printSuccess("deleted %s/%d", args[0], id)
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show score cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		stats, err := eng.store.Statistics()
		if err != nil {
			return err
		}
		averages, err := eng.store.AverageScores()
		if err != nil {
			return err
		}

		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"statistics":     stats,
				"average_scores": averages,
			})
		}

		printStatus("Records", "%d", stats.TotalRecords)
		printStatus("Entities", "%d", stats.DistinctEntities)
		printStatus("Vectors", "%d", stats.DistinctVectors)
		if stats.TotalRecords > 0 {
			printStatus("Oldest", "%s", stats.OldestAnalyzedAt.Format("2006-01-02 15:04:05"))
			printStatus("Newest", "%s", stats.NewestAnalyzedAt.Format("2006-01-02 15:04:05"))
		}
		for id, avg := range averages {
			fmt.Printf("  avg %-28s %.1f\n", id, avg)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().Bool("force", false, "delete cached scores and re-analyze")
	batchCmd.Flags().Int("limit", 0, "cap the number of entities processed")

	vectorsAddCmd.Flags().String("label", "", "human-readable label")
	vectorsAddCmd.Flags().String("description", "", "one-line description used in the scoring prompt")
	vectorsAddCmd.Flags().Int("weight", 0, "explicit display weight")
	vectorsCmd.AddCommand(vectorsListCmd, vectorsAddCmd, vectorsRemoveCmd)

	enableCmd.Flags().String("vectors", "", "comma-separated vector ids to enable (default: all)")

	contentAddCmd.Flags().String("text", "", "plain text content")
	contentAddCmd.Flags().String("file", "", "path to a txt, html, or pdf file")
	contentAddCmd.Flags().String("title", "", "item title")
	contentAddCmd.Flags().String("type", "node", "entity type")
	contentAddCmd.Flags().String("bundle", "article", "bundle")
	contentAddCmd.Flags().String("langcode", "en", "language code")
	contentAddCmd.Flags().Bool("unpublished", false, "store as unpublished")
	contentListCmd.Flags().String("bundle", "", "filter by bundle")
	contentCmd.AddCommand(contentAddCmd, contentListCmd, contentRemoveCmd)

	statsCmd.Flags().Bool("json", false, "emit JSON")
}
