package main

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kalambet/semdoc/internal/api"
	"github.com/kalambet/semdoc/internal/config"
	"github.com/kalambet/semdoc/internal/documents"
	"github.com/kalambet/semdoc/internal/graph"
	"github.com/kalambet/semdoc/internal/ingest"
	"github.com/kalambet/semdoc/internal/stats"
)

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func printResults(w io.Writer, results []documents.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching documents.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%2d. %s %s\n", i+1, colorize(colorBold, r.Title), colorize(colorDim, "("+r.ID+")"))
		meta := []string{fmt.Sprintf("score %.3f", r.Score)}
		if r.Category != "" {
			meta = append(meta, "category "+r.Category)
		}
		if r.SourceType != "" {
			meta = append(meta, "type "+r.SourceType)
		}
		if len(r.Tags) > 0 {
			meta = append(meta, "tags "+strings.Join(r.Tags, ","))
		}
		fmt.Fprintf(w, "    %s\n", strings.Join(meta, " | "))
		fmt.Fprintf(w, "    %s\n", excerpt(r.Content, 120))
	}
}

func printGraph(w io.Writer, g graph.Graph) {
	titles := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		titles[n.ID] = n.Title
	}
	fmt.Fprintf(w, "%d nodes, %d edges\n", len(g.Nodes), len(g.Edges))
	for _, e := range g.Edges {
		fmt.Fprintf(w, "  %s %s %s  %.3f\n",
			colorize(colorBold, titles[e.Source]),
			colorize(colorDim, "<->"),
			colorize(colorBold, titles[e.Target]),
			e.Weight)
	}
}

func printCounts(w io.Writer, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintln(w, colorize(colorBold, label+":"))
	for _, k := range keys {
		fmt.Fprintf(w, "  %-24s %d\n", k, counts[k])
	}
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a document",
	Long: `Add a document to the collection.

Examples:
  semdoc add --title "Inflation report" --content "Annual inflation fell" --category economy
  semdoc add --title "Notes" --file ./notes.txt --tags notes,draft`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		file, _ := cmd.Flags().GetString("file")
		source, _ := cmd.Flags().GetString("source")
		sourceType, _ := cmd.Flags().GetString("source-type")
		category, _ := cmd.Flags().GetString("category")
		tags, _ := cmd.Flags().GetString("tags")
		id, _ := cmd.Flags().GetString("id")

		if title == "" {
			return fmt.Errorf("--title is required")
		}
		if (content == "") == (file == "") {
			return fmt.Errorf("exactly one of --content or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			content = string(data)
			if source == "" {
				source = file
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/documents", documents.NewDocument{
			ID:         id,
			Title:      title,
			Content:    content,
			Source:     source,
			SourceType: sourceType,
			Category:   category,
			Tags:       splitTags(tags),
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), result["id"])
		printSuccess("Added document %s", result["id"])
		return nil
	},
}

func init() {
	addCmd.Flags().String("title", "", "document title")
	addCmd.Flags().String("content", "", "document content")
	addCmd.Flags().String("file", "", "read content from a file")
	addCmd.Flags().String("source", "", "where the document came from")
	addCmd.Flags().String("source-type", "", "kind of source (e.g. text, markdown, html, pdf)")
	addCmd.Flags().String("category", "", "category")
	addCmd.Flags().String("tags", "", "comma-separated tags")
	addCmd.Flags().String("id", "", "document id (default: generated)")
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "Import files and directories",
	Long: `Import .txt, .md, .html and .pdf files. Directories are walked
recursively; unsupported files are ignored.

Examples:
  semdoc import ./notes --category notes
  semdoc import report.pdf article.html --tags inbox`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		category, _ := cmd.Flags().GetString("category")
		tags, _ := cmd.Flags().GetString("tags")

		paths, err := collectFiles(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			printWarning("No supported files found")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Importing %d files", len(paths))
		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionSetWriter(statusOut),
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		importer := ingest.NewImporter(client, ingest.ImporterOptions{
			BatchSize: batchSize,
			Category:  category,
			Tags:      splitTags(tags),
			Logger:    slog.New(slog.NewTextHandler(statusOut, &slog.HandlerOptions{Level: slog.LevelError})),
		})
		res, err := importer.Import(cmd.Context(), paths, func(done int) {
			bar.Set(done)
		})
		bar.Finish()

		for _, p := range sortedKeys(res.Failed) {
			printWarning("Skipped %s: %v", p, res.Failed[p])
		}
		if err != nil {
			if len(res.IDs) > 0 {
				printWarning("%d documents were stored before the failure", len(res.IDs))
			}
			return err
		}
		printSuccess("Imported %d documents (%d skipped)", len(res.IDs), len(res.Failed))
		return nil
	},
}

func init() {
	importCmd.Flags().Int("batch-size", ingest.DefaultBatchSize, "documents per bulk request")
	importCmd.Flags().String("category", "", "category applied to every document")
	importCmd.Flags().String("tags", "", "comma-separated tags applied to every document")
}

// collectFiles expands directories into the supported files below them.
// Files named explicitly are kept even if unsupported so the import reports
// them.
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != arg && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if ingest.Supported(p) {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return paths, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- get / update / delete / list ---

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/documents/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var doc documents.Document
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), doc)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a document",
	Long: `Update fields of a document. Only the flags given are changed;
changing the title or content re-embeds the document.

Examples:
  semdoc update doc-001 --category archive
  semdoc update doc-001 --tags ""`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Built as a map so that an empty tag list is sent and clears the tags.
		body := map[string]any{}
		flags := cmd.Flags()
		for flag, field := range map[string]string{
			"title":       "title",
			"content":     "content",
			"source":      "source",
			"source-type": "source_type",
			"category":    "category",
		} {
			if flags.Changed(flag) {
				v, _ := flags.GetString(flag)
				body[field] = v
			}
		}
		if flags.Changed("tags") {
			v, _ := flags.GetString("tags")
			tags := splitTags(v)
			if tags == nil {
				tags = []string{}
			}
			body["tags"] = tags
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to update; pass at least one field flag")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/api/documents/"+url.PathEscape(args[0]), body)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Updated document %s", args[0])
		return nil
	},
}

func init() {
	updateCmd.Flags().String("title", "", "new title")
	updateCmd.Flags().String("content", "", "new content")
	updateCmd.Flags().String("source", "", "new source")
	updateCmd.Flags().String("source-type", "", "new source type")
	updateCmd.Flags().String("category", "", "new category")
	updateCmd.Flags().String("tags", "", "comma-separated tags replacing the current ones")
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/documents/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))
		resp, err := client.get(cmd.Context(), "/api/documents?"+q.Encode())
		if err != nil {
			return err
		}
		var docs []documents.Document
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, docs)
		}
		if len(docs) == 0 {
			fmt.Fprintln(w, "No documents.")
			return nil
		}
		for _, d := range docs {
			cat := d.Category
			if cat == "" {
				cat = "-"
			}
			fmt.Fprintf(w, "%s  %-16s %s\n", colorize(colorDim, d.ID), cat, d.Title)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 100, "maximum number of documents")
	listCmd.Flags().Int("offset", 0, "documents to skip")
	listCmd.Flags().Bool("json", false, "print JSON")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search documents by meaning",
	Long: `Search documents by meaning, optionally filtered by metadata.

Examples:
  semdoc search "interest rate decisions"
  semdoc search inflation --category economy --tags report --limit 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		category, _ := flags.GetString("category")
		sourceType, _ := flags.GetString("source-type")
		tags, _ := flags.GetString("tags")
		asJSON, _ := flags.GetBool("json")

		req := api.SearchRequest{
			Query:            strings.Join(args, " "),
			FilterCategory:   category,
			FilterSourceType: sourceType,
			FilterTags:       splitTags(tags),
		}
		if flags.Changed("limit") {
			v, _ := flags.GetInt("limit")
			req.Limit = &v
		}
		if flags.Changed("threshold") {
			v, _ := flags.GetFloat32("threshold")
			req.ScoreThreshold = &v
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/search", req)
		if err != nil {
			return err
		}
		var out api.SearchResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, out)
		}
		printResults(w, out.Results)
		if out.Relationships != nil && len(out.Relationships.Edges) > 0 {
			fmt.Fprintln(w)
			printGraph(w, *out.Relationships)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 0, "maximum number of results (default: server setting)")
	searchCmd.Flags().Float32("threshold", 0, "minimum score (default: server setting)")
	searchCmd.Flags().String("category", "", "only this category")
	searchCmd.Flags().String("source-type", "", "only this source type")
	searchCmd.Flags().String("tags", "", "comma-separated tags; any match")
	searchCmd.Flags().Bool("json", false, "print JSON")
}

var similarCmd = &cobra.Command{
	Use:   "similar <id>",
	Short: "Find documents similar to a stored one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		asJSON, _ := flags.GetBool("json")
		req := api.SimilarRequest{DocumentID: args[0]}
		if flags.Changed("limit") {
			v, _ := flags.GetInt("limit")
			req.Limit = &v
		}
		if flags.Changed("threshold") {
			v, _ := flags.GetFloat32("threshold")
			req.ScoreThreshold = &v
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/search/similar", req)
		if err != nil {
			return err
		}
		var out api.SimilarResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, out)
		}
		fmt.Fprintf(w, "Similar to %s\n", colorize(colorBold, out.ReferenceDocument.Title))
		printResults(w, out.SimilarDocuments)
		return nil
	},
}

func init() {
	similarCmd.Flags().Int("limit", 0, "maximum number of results (default: server setting)")
	similarCmd.Flags().Float32("threshold", 0, "minimum score (default: server setting)")
	similarCmd.Flags().Bool("json", false, "print JSON")
}

// --- graph ---

var graphCmd = &cobra.Command{
	Use:   "graph <id> <id>...",
	Short: "Show similarity links between documents",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		req := api.RelationshipsRequest{DocumentIDs: args}
		if cmd.Flags().Changed("threshold") {
			v, _ := cmd.Flags().GetFloat32("threshold")
			req.SimilarityThreshold = &v
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/search/relationships", req)
		if err != nil {
			return err
		}
		var g graph.Graph
		if err := decodeJSON(resp, &g); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), g)
		}
		printGraph(cmd.OutOrStdout(), g)
		return nil
	},
}

func init() {
	graphCmd.Flags().Float32("threshold", 0, "minimum similarity (default: server setting)")
	graphCmd.Flags().Bool("json", false, "print JSON")
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Show the similarity graph of a slice of the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		asJSON, _ := flags.GetBool("json")
		q := url.Values{}
		if v, _ := flags.GetString("category"); v != "" {
			q.Set("category", v)
		}
		if v, _ := flags.GetString("source-type"); v != "" {
			q.Set("source_type", v)
		}
		if flags.Changed("limit") {
			v, _ := flags.GetInt("limit")
			q.Set("limit", strconv.Itoa(v))
		}
		if flags.Changed("threshold") {
			v, _ := flags.GetFloat32("threshold")
			q.Set("threshold", strconv.FormatFloat(float64(v), 'f', -1, 32))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/api/search/explore"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var g graph.Graph
		if err := decodeJSON(resp, &g); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), g)
		}
		printGraph(cmd.OutOrStdout(), g)
		return nil
	},
}

func init() {
	exploreCmd.Flags().Int("limit", graph.DefaultExploreLimit, "maximum number of documents")
	exploreCmd.Flags().Float32("threshold", 0, "minimum similarity (default: server setting)")
	exploreCmd.Flags().String("category", "", "only this category")
	exploreCmd.Flags().String("source-type", "", "only this source type")
	exploreCmd.Flags().Bool("json", false, "print JSON")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/documents/stats")
		if err != nil {
			return err
		}
		var st stats.CollectionStats
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, st)
		}
		fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Documents:"), st.TotalDocuments)
		printCounts(w, "Categories", st.Categories)
		printCounts(w, "Source types", st.SourceTypes)
		printCounts(w, "Tags", st.Tags)
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "print JSON")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file.\n\nValid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
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
